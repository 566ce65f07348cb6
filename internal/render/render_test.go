package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ecsol/cars-numberplate-inference/internal/config"
	"github.com/ecsol/cars-numberplate-inference/internal/pipeline"
)

var gray = color.RGBA{R: 100, G: 100, B: 100, A: 255}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) (image.Image, string) {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return img, format
}

func rgba(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestRender_Mask(t *testing.T) {
	r := NewWithBanner(nil, 98)
	region := pipeline.PlateRegion{Polygon: []pipeline.Point{{X: 10, Y: 10}, {X: 30, Y: 10}, {X: 30, Y: 20}, {X: 10, Y: 20}}}

	out, err := r.Render(context.Background(), encodePNG(t, solid(40, 40, gray)), []pipeline.PlateRegion{region}, true, false)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, format := decode(t, out)
	if format != "png" {
		t.Errorf("format = %s, want png", format)
	}
	if got := rgba(img, 20, 15); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("inside plate = %v, want white", got)
	}
	if got := rgba(img, 2, 2); got != gray {
		t.Errorf("outside plate = %v, want untouched", got)
	}
}

func TestRender_MaskingOffIgnoresRegions(t *testing.T) {
	r := NewWithBanner(nil, 98)
	region := pipeline.PlateRegion{Polygon: []pipeline.Point{{X: 0, Y: 0}, {X: 40, Y: 0}, {X: 40, Y: 40}}}
	out, err := r.Render(context.Background(), encodePNG(t, solid(40, 40, gray)), []pipeline.PlateRegion{region}, false, false)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, _ := decode(t, out)
	if got := rgba(img, 35, 5); got != gray {
		t.Errorf("pixel = %v, want untouched", got)
	}
}

func TestRender_Banner(t *testing.T) {
	r := NewWithBanner(solid(20, 5, color.RGBA{R: 255, A: 255}), 98)

	out, err := r.Render(context.Background(), encodePNG(t, solid(40, 40, gray)), nil, false, true)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, _ := decode(t, out)
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 40 {
		t.Errorf("bounds = %v, want unchanged", img.Bounds())
	}
	if got := rgba(img, 20, 35); got.R < 250 || got.G > 5 || got.B > 5 {
		t.Errorf("banner pixel = %v, want red", got)
	}
	if got := rgba(img, 20, 25); got != gray {
		t.Errorf("above banner = %v, want untouched", got)
	}
}

func TestRender_NoBanner(t *testing.T) {
	_, err := NewWithBanner(nil, 98).Render(context.Background(), encodePNG(t, solid(4, 4, gray)), nil, false, true)
	if !errors.Is(err, ErrNoBanner) {
		t.Errorf("error = %v, want ErrNoBanner", err)
	}
}

func TestRender_JPEGStaysJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(32, 24, gray), nil); err != nil {
		t.Fatal(err)
	}
	out, err := NewWithBanner(nil, 98).Render(context.Background(), buf.Bytes(), nil, true, false)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, format := decode(t, out)
	if format != "jpeg" {
		t.Errorf("format = %s, want jpeg", format)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 24 {
		t.Errorf("bounds = %v", img.Bounds())
	}
}

func TestRender_BadInput(t *testing.T) {
	if _, err := NewWithBanner(nil, 98).Render(context.Background(), []byte("not an image"), nil, true, false); err == nil {
		t.Error("expected decode error")
	}
}

func TestBannerRect(t *testing.T) {
	tests := []struct {
		name         string
		w, h, bw, bh int
		want         image.Rectangle
	}{
		{"scaled to width", 40, 40, 20, 5, image.Rect(0, 30, 40, 40)},
		{"capped at quarter", 40, 40, 10, 10, image.Rect(0, 30, 40, 40)},
		{"wide image", 800, 600, 400, 50, image.Rect(0, 500, 800, 600)},
		{"empty banner", 40, 40, 0, 0, image.Rectangle{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BannerRect(tt.w, tt.h, tt.bw, tt.bh); got != tt.want {
				t.Errorf("BannerRect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_LoadsBanner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banner.png")
	if err := os.WriteFile(path, encodePNG(t, solid(8, 2, gray)), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := New(config.RenderConfig{BannerPath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.banner == nil || r.quality != 98 {
		t.Errorf("renderer = %+v", r)
	}
	if _, err := New(config.RenderConfig{BannerPath: filepath.Join(t.TempDir(), "nope.png")}); err == nil {
		t.Error("expected error for missing banner")
	}
}
