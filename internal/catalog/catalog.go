// Package catalog enumerates the day's candidate images from upload_files.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/models"
	"gorm.io/gorm"
)

// ErrUnavailable wraps every failure to reach or query the catalog. A run
// that sees it stops before touching any tracking state.
var ErrUnavailable = errors.New("catalog unavailable")

// ListOptions narrows the listing for one processing date.
type ListOptions struct {
	Date       time.Time
	Limit      int        // 0 = no limit; never splits a car, see limitCars
	PathFilter string     // prefix of save_file_name, e.g. /upfile/1041/8430/
	Since      *time.Time // only rows created or modified at or after this instant
}

// Group is the set of files sharing a car key.
type Group struct {
	CarID string
	Files []models.FileDescriptor
}

// Catalog reads upload_files through GORM.
type Catalog struct {
	db *gorm.DB
}

// New returns a Catalog over db.
func New(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// DayBounds returns [start, end) of the calendar day containing date, in
// date's location.
func DayBounds(date time.Time) (time.Time, time.Time) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}

// ListRowsForDate returns live upload_files rows created or modified on
// opts.Date, ordered by car key then branch number (absent branches last).
// opts.Limit is applied to whole cars after path filtering.
func (c *Catalog) ListRowsForDate(ctx context.Context, opts ListOptions) ([]models.UploadFile, error) {
	if c == nil || c.db == nil {
		return nil, fmt.Errorf("catalog: no database: %w", ErrUnavailable)
	}
	start, end := DayBounds(opts.Date)

	q := c.db.WithContext(ctx).Model(&models.UploadFile{}).
		Where("(created >= ? AND created < ?) OR (modified >= ? AND modified < ?)", start, end, start, end).
		Where("delete_flg = ?", 0).
		Where("save_file_name IS NOT NULL AND save_file_name <> ?", "")
	if opts.PathFilter != "" {
		q = q.Where("save_file_name LIKE ?", opts.PathFilter+"%")
	}
	if opts.Since != nil {
		q = q.Where("created >= ? OR modified >= ?", *opts.Since, *opts.Since)
	}
	q = q.Order("id ASC")

	var rows []models.UploadFile
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("catalog: list files for %s: %w: %w", start.Format("2006-01-02"), ErrUnavailable, err)
	}

	// LIKE treats _ as a wildcard; keep only exact prefixes.
	if opts.PathFilter != "" {
		kept := rows[:0]
		for _, r := range rows {
			if strings.HasPrefix(r.SaveFileName, opts.PathFilter) {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	sort.SliceStable(rows, func(i, j int) bool {
		ki, kj := rows[i].CarKey(), rows[j].CarKey()
		if ki != kj {
			return ki < kj
		}
		return branchLess(rows[i].BranchNo, rows[j].BranchNo)
	})
	return limitCars(rows, opts.Limit), nil
}

// limitCars keeps the leading cars of sorted rows whose files fit in limit.
// The first car is always kept whole, even when it alone exceeds limit.
func limitCars(rows []models.UploadFile, limit int) []models.UploadFile {
	if limit <= 0 || len(rows) <= limit {
		return rows
	}
	end := 0
	for end < len(rows) {
		next := end
		key := rows[end].CarKey()
		for next < len(rows) && rows[next].CarKey() == key {
			next++
		}
		if end > 0 && next > limit {
			break
		}
		end = next
		if end >= limit {
			break
		}
	}
	return rows[:end]
}

// ListFilesForDate returns the FileDescriptors for opts.Date.
func (c *Catalog) ListFilesForDate(ctx context.Context, opts ListOptions) ([]models.FileDescriptor, error) {
	rows, err := c.ListRowsForDate(ctx, opts)
	if err != nil {
		return nil, err
	}
	files := make([]models.FileDescriptor, 0, len(rows))
	for _, r := range rows {
		files = append(files, r.Descriptor())
	}
	return files, nil
}

// GroupByCar splits files into vehicle groups in first-seen order. Each
// group's files are sorted by branch number, absent branches last.
func GroupByCar(files []models.FileDescriptor) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, f := range files {
		i, ok := index[f.CarID]
		if !ok {
			i = len(groups)
			index[f.CarID] = i
			groups = append(groups, Group{CarID: f.CarID})
		}
		groups[i].Files = append(groups[i].Files, f)
	}
	for i := range groups {
		fs := groups[i].Files
		sort.SliceStable(fs, func(a, b int) bool {
			return branchLess(fs[a].BranchNo, fs[b].BranchNo)
		})
	}
	return groups
}

func branchLess(a, b *int) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return *a < *b
	}
}
