package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/models"
	"github.com/ecsol/cars-numberplate-inference/internal/tracking"
	"github.com/gin-gonic/gin"
)

var testDate = time.Date(2026, 2, 3, 0, 0, 0, 0, time.Local)

func TestStart_NoTrackingDir(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	if err == nil {
		t.Fatal("expected error for empty tracking dir")
	}
	if !strings.Contains(err.Error(), "tracking dir is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "tracking dir is required")
	}
}

func TestStartOpts_ZeroValue(t *testing.T) {
	opts := StartOpts{}
	if opts.TrackingDir != "" || opts.Port != 0 || opts.Out != nil {
		t.Error("zero-value StartOpts should have nil/zero fields")
	}
}

// seedTracking writes a tracking file with car A fully done and car B
// holding one error.
func seedTracking(t *testing.T, dir string) {
	t.Helper()
	clock := func() time.Time { return testDate.Add(9 * time.Hour) }
	s, err := tracking.OpenWithClock(dir, testDate, clock)
	if err != nil {
		t.Fatalf("open tracking: %v", err)
	}
	one, two := 1, 2
	files := []models.FileDescriptor{
		{FileID: 1, CarID: "A", BranchNo: &one, RelativePath: "/upfile/a/1.jpg"},
		{FileID: 2, CarID: "A", BranchNo: &two, RelativePath: "/upfile/a/2.jpg"},
		{FileID: 3, CarID: "B", BranchNo: &one, RelativePath: "/upfile/b/1.jpg"},
	}
	for _, fd := range files {
		if _, _, err := s.Observe(fd, "regular"); err != nil {
			t.Fatalf("observe %d: %v", fd.FileID, err)
		}
		if err := s.Transition(fd.FileID, tracking.StatusProcessing, tracking.Update{Mode: "normal"}); err != nil {
			t.Fatalf("processing %d: %v", fd.FileID, err)
		}
	}
	for _, id := range []int64{1, 2} {
		if err := s.Transition(id, tracking.StatusVerified, tracking.Update{}); err != nil {
			t.Fatalf("verify %d: %v", id, err)
		}
	}
	if err := s.Transition(3, tracking.StatusError, tracking.Update{Error: "DetectorFailure: boom"}); err != nil {
		t.Fatalf("error 3: %v", err)
	}
	if _, err := tracking.NewAggregator(s).Reevaluate("A"); err != nil {
		t.Fatalf("reevaluate: %v", err)
	}
	if err := s.MarkRun("run-1", clock()); err != nil {
		t.Fatalf("mark run: %v", err)
	}
}

func setupTestRouter(t *testing.T, seed bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	if seed {
		seedTracking(t, dir)
	}
	router := gin.New()
	registerRoutes(router, dir, 10*time.Millisecond)
	return router
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := get(t, setupTestRouter(t, false), "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestSummary(t *testing.T) {
	router := setupTestRouter(t, true)
	for _, date := range []string{"20260203", "2026-02-03"} {
		w := get(t, router, "/api/tracking/"+date)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, body = %s", date, w.Code, w.Body.String())
		}
		var got summaryView
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Files != 3 || got.Cars != 2 || got.CarsDone != 1 {
			t.Errorf("%s: summary = %+v, want 3 files 2 cars 1 done", date, got)
		}
		if got.Counts[tracking.StatusDone] != 2 || got.Counts[tracking.StatusError] != 1 {
			t.Errorf("%s: counts = %v", date, got.Counts)
		}
		if got.LastRunID != "run-1" {
			t.Errorf("%s: LastRunID = %q", date, got.LastRunID)
		}
	}
}

func TestSummary_Errors(t *testing.T) {
	router := setupTestRouter(t, false)
	tests := []struct {
		path string
		code int
	}{
		{"/api/tracking/yesterday", http.StatusBadRequest},
		{"/api/tracking/20260203", http.StatusNotFound},
		{"/api/tracking/20260203/cars", http.StatusNotFound},
		{"/api/tracking/20260203/files?status=bogus", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if w := get(t, router, tt.path); w.Code != tt.code {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.code, w.Body.String())
			}
		})
	}
}

func TestCars(t *testing.T) {
	w := get(t, setupTestRouter(t, true), "/api/tracking/20260203/cars")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got struct {
		Cars []carView `json:"cars"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Cars) != 2 {
		t.Fatalf("cars = %+v, want 2", got.Cars)
	}
	if got.Cars[0].CarID != "A" || !got.Cars[0].Done || got.Cars[0].DoneAt == nil {
		t.Errorf("car A = %+v, want done with timestamp", got.Cars[0])
	}
	if got.Cars[1].CarID != "B" || got.Cars[1].Done || got.Cars[1].Counts[tracking.StatusError] != 1 {
		t.Errorf("car B = %+v, want not done with one error", got.Cars[1])
	}
}

func TestCarDetail(t *testing.T) {
	router := setupTestRouter(t, true)
	w := get(t, router, "/api/tracking/20260203/cars/B")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "DetectorFailure: boom") {
		t.Errorf("body = %s, want error text", w.Body.String())
	}
	if w := get(t, router, "/api/tracking/20260203/cars/Z"); w.Code != http.StatusNotFound {
		t.Errorf("unknown car status = %d, want 404", w.Code)
	}
}

func TestFiles_StatusFilter(t *testing.T) {
	router := setupTestRouter(t, true)
	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?status=done", 2},
		{"?status=error", 1},
		{"?status=error,done", 3},
		{"?status=pending", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := get(t, router, "/api/tracking/20260203/files"+tt.query)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var got struct {
				Total int `json:"total"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Total != tt.want {
				t.Errorf("total = %d, want %d", got.Total, tt.want)
			}
		})
	}
}

func TestEvents_StreamsSummary(t *testing.T) {
	router := setupTestRouter(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/tracking/20260203/events", nil).WithContext(ctx)
	router.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event: connected") {
		t.Errorf("body missing connected event: %s", body)
	}
	if strings.Count(body, "event: summary") != 1 {
		t.Errorf("want exactly one summary for an unchanged file, body: %s", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestParseStatuses(t *testing.T) {
	if got, ok := parseStatuses(""); !ok || got != nil {
		t.Errorf("empty = %v, %v", got, ok)
	}
	if got, ok := parseStatuses("done, error"); !ok || len(got) != 2 {
		t.Errorf("list = %v, %v", got, ok)
	}
	if _, ok := parseStatuses("done,nope"); ok {
		t.Error("unknown status should fail")
	}
}
