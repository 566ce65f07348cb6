package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/export"
	"github.com/ecsol/cars-numberplate-inference/internal/models"
	"github.com/xuri/excelize/v2"
)

func sampleDocument() *export.Document {
	carCd := int64(10418430)
	branch := 1
	rows := []models.UploadFile{
		{ID: 1, CarCd: &carCd, BranchNo: &branch, SaveFileName: "/upfile/1041/8430/a.jpg"},
	}
	day := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	return export.Build(rows, day, "https://img.example.com", day.Add(time.Hour))
}

func TestWriteExport_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "images.json")
	if err := writeExport(path, sampleDocument()); err != nil {
		t.Fatalf("writeExport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["total_images"] != float64(1) {
		t.Errorf("total_images = %v, want 1", got["total_images"])
	}
}

func TestWriteExport_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.XLSX")
	if err := writeExport(path, sampleDocument()); err != nil {
		t.Fatalf("writeExport: %v", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Images")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("rows = %d, want header plus one image", len(rows))
	}
}
