// Package export writes a date's catalog as a car-structured document,
// either JSON or an xlsx workbook.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/catalog"
	"github.com/ecsol/cars-numberplate-inference/internal/models"
	"github.com/xuri/excelize/v2"
)

// ErrUnknownCar is returned when a car filter matches nothing.
var ErrUnknownCar = errors.New("export: car not found")

// RowLister returns raw catalog rows. *catalog.Catalog implements it.
type RowLister interface {
	ListRowsForDate(ctx context.Context, opts catalog.ListOptions) ([]models.UploadFile, error)
}

// Image is one photo of a car.
type Image struct {
	FileID   int64  `json:"file_id"`
	BranchNo *int   `json:"branch_no"`
	Path     string `json:"path"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Car groups a car's photos in branch order.
type Car struct {
	CarCd            *string `json:"car_cd"`
	InspresultdataCd *string `json:"inspresultdata_cd"`
	TotalImages      int     `json:"total_images"`
	Images           []Image `json:"images"`
}

// Document is the export for one date.
type Document struct {
	Date         string          `json:"date"`
	ExportedAt   time.Time       `json:"exported_at"`
	TotalCars    int             `json:"total_cars"`
	TotalImages  int             `json:"total_images"`
	ImageBaseURL string          `json:"image_base_url"`
	Cars         map[string]*Car `json:"cars"`
}

// Build groups rows by car key. Rows without a car key are dropped.
func Build(rows []models.UploadFile, date time.Time, baseURL string, now time.Time) *Document {
	doc := &Document{
		Date:         date.Format("2006-01-02"),
		ExportedAt:   now,
		ImageBaseURL: baseURL,
		Cars:         make(map[string]*Car),
	}
	for _, r := range rows {
		key := r.CarKey()
		if key == "" {
			continue
		}
		car, ok := doc.Cars[key]
		if !ok {
			car = &Car{}
			doc.Cars[key] = car
		}
		if r.CarCd != nil {
			cd := strconv.FormatInt(*r.CarCd, 10)
			car.CarCd = &cd
		}
		if r.InspresultdataCd != nil && *r.InspresultdataCd != "" {
			code := *r.InspresultdataCd
			car.InspresultdataCd = &code
		}
		car.Images = append(car.Images, Image{
			FileID:   r.ID,
			BranchNo: r.BranchNo,
			Path:     r.SaveFileName,
			URL:      baseURL + r.SaveFileName,
			Filename: path.Base(r.SaveFileName),
		})
		car.TotalImages++
		doc.TotalImages++
	}
	for _, car := range doc.Cars {
		sort.SliceStable(car.Images, func(i, j int) bool {
			return branchOrder(car.Images[i].BranchNo) < branchOrder(car.Images[j].BranchNo)
		})
	}
	doc.TotalCars = len(doc.Cars)
	return doc
}

// branchOrder puts absent branches last.
func branchOrder(b *int) int {
	if b == nil {
		return 999
	}
	return *b
}

// OnlyCar narrows the document to one car.
func (d *Document) OnlyCar(id string) error {
	car, ok := d.Cars[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCar, id)
	}
	d.Cars = map[string]*Car{id: car}
	d.TotalCars = 1
	d.TotalImages = car.TotalImages
	return nil
}

// CarIDs returns the car keys in sorted order.
func (d *Document) CarIDs() []string {
	ids := make([]string, 0, len(d.Cars))
	for id := range d.Cars {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WriteJSON writes the document as indented JSON.
func (d *Document) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("export: encode json: %w", err)
	}
	return nil
}

// XLSX renders one row per image.
func (d *Document) XLSX() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Images"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("export: sheet: %w", err)
	}

	headers := []string{"Car", "car_cd", "inspresultdata_cd", "Branch", "File ID", "Path", "URL", "Filename"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, id := range d.CarIDs() {
		car := d.Cars[id]
		for _, img := range car.Images {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(sheet, cell, v)
			}
			write(1, id)
			write(2, deref(car.CarCd))
			write(3, deref(car.InspresultdataCd))
			if img.BranchNo != nil {
				write(4, *img.BranchNo)
			}
			write(5, img.FileID)
			write(6, img.Path)
			write(7, img.URL)
			write(8, img.Filename)
			row++
		}
	}

	_ = f.SetColWidth(sheet, "A", "C", 18)
	_ = f.SetColWidth(sheet, "F", "G", 60)
	_ = f.SetColWidth(sheet, "H", "H", 32)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("export: xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Exporter builds documents from the catalog.
type Exporter struct {
	rows    RowLister
	baseURL string
	now     func() time.Time
}

// New returns an exporter; baseURL prefixes every image path.
func New(rows RowLister, baseURL string) *Exporter {
	return &Exporter{rows: rows, baseURL: baseURL, now: time.Now}
}

// Export lists the date's rows and builds the document, optionally
// narrowed to carID.
func (e *Exporter) Export(ctx context.Context, date time.Time, carID string) (*Document, error) {
	rows, err := e.rows.ListRowsForDate(ctx, catalog.ListOptions{Date: date})
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	doc := Build(rows, date, e.baseURL, e.now())
	if carID != "" {
		if err := doc.OnlyCar(carID); err != nil {
			return nil, err
		}
	}
	return doc, nil
}
