package dashboard

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/tracking"
	"github.com/gin-gonic/gin"
)

// dateLayouts are the accepted forms of the :date path parameter.
var dateLayouts = []string{"20060102", "2006-01-02"}

// carView summarises one car inside a tracking file.
type carView struct {
	CarID  string                  `json:"car_id"`
	Files  int                     `json:"files"`
	Counts map[tracking.Status]int `json:"counts"`
	Done   bool                    `json:"done"`
	DoneAt *time.Time              `json:"done_at,omitempty"`
}

// summaryView is the response of the per-date summary endpoint.
type summaryView struct {
	Date              string                  `json:"date"`
	CreatedAt         time.Time               `json:"created_at"`
	LastProcessedTime *time.Time              `json:"last_processed_time,omitempty"`
	LastRunID         string                  `json:"last_run_id,omitempty"`
	Files             int                     `json:"files"`
	Cars              int                     `json:"cars"`
	CarsDone          int                     `json:"cars_done"`
	Counts            map[tracking.Status]int `json:"counts"`
}

// registerRoutes sets up all dashboard routes.
func registerRoutes(router *gin.Engine, dir string, poll time.Duration) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/tracking/:date")
	api.GET("", func(c *gin.Context) {
		f, ok := loadTracking(c, dir)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, summarize(f))
	})
	api.GET("/cars", func(c *gin.Context) {
		f, ok := loadTracking(c, dir)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"cars": carViews(f)})
	})
	api.GET("/cars/:car", func(c *gin.Context) {
		f, ok := loadTracking(c, dir)
		if !ok {
			return
		}
		recs := f.CarRecords(c.Param("car"))
		if len(recs) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown car " + c.Param("car")})
			return
		}
		c.JSON(http.StatusOK, gin.H{"car_id": c.Param("car"), "files": recs, "marker": f.Cars[c.Param("car")]})
	})
	api.GET("/files", func(c *gin.Context) {
		statuses, ok := parseStatuses(c.Query("status"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter " + strconv.Quote(c.Query("status"))})
			return
		}
		f, ok := loadTracking(c, dir)
		if !ok {
			return
		}
		recs := f.Filter(statuses...)
		c.JSON(http.StatusOK, gin.H{"total": len(recs), "files": recs})
	})
	api.GET("/events", handleSSE(dir, poll))
}

// parseDate accepts YYYYMMDD or YYYY-MM-DD in local time.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseStatuses splits a comma separated status list. An empty list means
// every status.
func parseStatuses(raw string) ([]tracking.Status, bool) {
	if raw == "" {
		return nil, true
	}
	var out []tracking.Status
	for _, part := range strings.Split(raw, ",") {
		s, ok := tracking.ParseStatus(strings.TrimSpace(part))
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// loadTracking resolves :date and reads the tracking file, writing the error
// response itself when it returns false.
func loadTracking(c *gin.Context, dir string) (*tracking.File, bool) {
	date, ok := parseDate(c.Param("date"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYYMMDD or YYYY-MM-DD"})
		return nil, false
	}
	f, err := tracking.Load(dir, date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if f == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no tracking file for " + date.Format("2006-01-02")})
		return nil, false
	}
	return f, true
}

func summarize(f *tracking.File) summaryView {
	cars := carViews(f)
	done := 0
	for _, cv := range cars {
		if cv.Done {
			done++
		}
	}
	return summaryView{
		Date:              f.Date,
		CreatedAt:         f.CreatedAt,
		LastProcessedTime: f.LastProcessedTime,
		LastRunID:         f.LastRunID,
		Files:             len(f.Processed),
		Cars:              len(cars),
		CarsDone:          done,
		Counts:            f.Counts(),
	}
}

// carViews returns one entry per car sorted by car id.
func carViews(f *tracking.File) []carView {
	byCar := make(map[string]*carView)
	var order []string
	for _, rec := range f.Filter() {
		cv, ok := byCar[rec.CarID]
		if !ok {
			cv = &carView{CarID: rec.CarID, Counts: make(map[tracking.Status]int)}
			byCar[rec.CarID] = cv
			order = append(order, rec.CarID)
		}
		cv.Files++
		cv.Counts[rec.Status]++
	}
	sort.Strings(order)
	out := make([]carView, 0, len(order))
	for _, id := range order {
		cv := byCar[id]
		if m := f.Cars[id]; m != nil && m.Status == tracking.StatusDone {
			cv.Done = true
			cv.DoneAt = m.DoneAt
		}
		out = append(out, *cv)
	}
	return out
}
