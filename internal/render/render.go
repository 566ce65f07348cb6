// Package render masks plates and composites the banner onto images using
// pure Go image processing.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"

	"github.com/ecsol/cars-numberplate-inference/internal/config"
	"github.com/ecsol/cars-numberplate-inference/internal/pipeline"
	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// ErrNoBanner is returned when a banner is requested but none is loaded.
var ErrNoBanner = errors.New("render: no banner configured")

// Renderer implements pipeline.Renderer.
type Renderer struct {
	banner  image.Image
	quality int
}

var _ pipeline.Renderer = (*Renderer)(nil)

// New loads the banner named by cfg.BannerPath, if any.
func New(cfg config.RenderConfig) (*Renderer, error) {
	r := &Renderer{quality: cfg.JPEGQuality}
	if r.quality == 0 {
		r.quality = 98
	}
	if cfg.BannerPath == "" {
		return r, nil
	}
	f, err := os.Open(cfg.BannerPath)
	if err != nil {
		return nil, fmt.Errorf("render: open banner: %w", err)
	}
	defer f.Close()
	banner, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("render: decode banner %s: %w", cfg.BannerPath, err)
	}
	r.banner = banner
	return r, nil
}

// NewWithBanner returns a renderer using an already decoded banner.
func NewWithBanner(banner image.Image, quality int) *Renderer {
	return &Renderer{banner: banner, quality: quality}
}

// Render decodes data, fills each region white when masking, overlays the
// banner along the bottom edge when banner is set, and re-encodes in the
// input's format.
func (r *Renderer) Render(ctx context.Context, data []byte, regions []pipeline.PlateRegion, masking, banner bool) ([]byte, error) {
	if banner && r.banner == nil {
		return nil, ErrNoBanner
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("render: decode: %w", err)
	}
	b := src.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)

	if masking {
		for _, reg := range regions {
			fillPolygon(img, reg.Polygon)
		}
	}
	if banner {
		overlayBanner(img, r.banner)
	}
	return r.encode(img, format)
}

func fillPolygon(img *image.RGBA, pts []pipeline.Point) {
	if len(pts) < 3 {
		return
	}
	b := img.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.DrawOp = draw.Over
	z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		z.LineTo(float32(p.X), float32(p.Y))
	}
	z.ClosePath()
	z.Draw(img, b, image.NewUniform(color.White), image.Point{})
}

// BannerRect is where a banner of size bw x bh lands on an image of size
// w x h: full width, bottom aligned, at most a quarter of the height.
func BannerRect(w, h, bw, bh int) image.Rectangle {
	if bw <= 0 || bh <= 0 {
		return image.Rectangle{}
	}
	nh := bh * w / bw
	if limit := h / 4; nh > limit {
		nh = limit
	}
	return image.Rect(0, h-nh, w, h)
}

func overlayBanner(img *image.RGBA, banner image.Image) {
	b := img.Bounds()
	sb := banner.Bounds()
	dr := BannerRect(b.Dx(), b.Dy(), sb.Dx(), sb.Dy())
	if dr.Empty() {
		return
	}
	draw.ApproxBiLinear.Scale(img, dr, banner, sb, draw.Over, nil)
}

func (r *Renderer) encode(img image.Image, format string) ([]byte, error) {
	var out bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&out, img)
	case "jpeg":
		err = jpeg.Encode(&out, img, &jpeg.Options{Quality: r.quality})
	default:
		return nil, fmt.Errorf("render: unsupported format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("render: encode %s: %w", format, err)
	}
	return out.Bytes(), nil
}
