package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/catalog"
	"github.com/ecsol/cars-numberplate-inference/internal/models"
	"github.com/xuri/excelize/v2"
)

var day = time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func rows() []models.UploadFile {
	return []models.UploadFile{
		{ID: 11, CarCd: ptr(int64(10418430)), BranchNo: ptr(2), SaveFileName: "/upfile/1041/8430/b.jpg"},
		{ID: 10, CarCd: ptr(int64(10418430)), BranchNo: ptr(1), SaveFileName: "/upfile/1041/8430/a.jpg"},
		{ID: 12, CarCd: ptr(int64(10418430)), SaveFileName: "/upfile/1041/8430/z.jpg"},
		{ID: 20, CarCd: ptr(int64(5)), InspresultdataCd: ptr("1554913G"), BranchNo: ptr(1), SaveFileName: "/upfile/1554/913G/a.jpg"},
		{ID: 30, SaveFileName: "/upfile/orphan.jpg"},
	}
}

type fakeRows struct {
	rows []models.UploadFile
	err  error
}

func (f fakeRows) ListRowsForDate(ctx context.Context, opts catalog.ListOptions) ([]models.UploadFile, error) {
	return f.rows, f.err
}

func TestBuild(t *testing.T) {
	doc := Build(rows(), day, "https://img.example.com", day)
	if doc.Date != "2026-02-03" || doc.TotalCars != 2 || doc.TotalImages != 4 {
		t.Fatalf("doc = %+v", doc)
	}
	car := doc.Cars["10418430"]
	if car == nil || car.TotalImages != 3 {
		t.Fatalf("car = %+v", car)
	}
	if car.Images[0].FileID != 10 || car.Images[1].FileID != 11 || car.Images[2].FileID != 12 {
		t.Errorf("image order = %+v", car.Images)
	}
	if car.Images[0].URL != "https://img.example.com/upfile/1041/8430/a.jpg" || car.Images[0].Filename != "a.jpg" {
		t.Errorf("image = %+v", car.Images[0])
	}
	insp := doc.Cars["1554913G"]
	if insp == nil || *insp.InspresultdataCd != "1554913G" || *insp.CarCd != "5" {
		t.Errorf("inspection car = %+v", insp)
	}
}

func TestWriteJSON(t *testing.T) {
	doc := Build(rows(), day, "", day)
	var buf bytes.Buffer
	if err := doc.WriteJSON(&buf); err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"date", "exported_at", "total_cars", "total_images", "image_base_url", "cars"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
}

func TestXLSX(t *testing.T) {
	data, err := Build(rows(), day, "", day).XLSX()
	if err != nil {
		t.Fatalf("XLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	all, err := f.GetRows("Images")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("rows = %d, want header + 4", len(all))
	}
	if all[0][0] != "Car" || all[1][0] != "10418430" || all[4][0] != "1554913G" {
		t.Errorf("first column = %q %q %q", all[0][0], all[1][0], all[4][0])
	}
	if all[1][3] != "1" {
		t.Errorf("branch cell = %q", all[1][3])
	}
}

func TestExport_CarFilter(t *testing.T) {
	e := New(fakeRows{rows: rows()}, "")
	doc, err := e.Export(context.Background(), day, "1554913G")
	if err != nil {
		t.Fatal(err)
	}
	if doc.TotalCars != 1 || doc.TotalImages != 1 {
		t.Errorf("doc = %+v", doc)
	}
	if _, err := e.Export(context.Background(), day, "nope"); !errors.Is(err, ErrUnknownCar) {
		t.Errorf("error = %v, want ErrUnknownCar", err)
	}
}

func TestExport_CatalogError(t *testing.T) {
	_, err := New(fakeRows{err: catalog.ErrUnavailable}, "").Export(context.Background(), day, "")
	if !errors.Is(err, catalog.ErrUnavailable) {
		t.Errorf("error = %v", err)
	}
}
