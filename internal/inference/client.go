// Package inference is the HTTP client for the plate detection service.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/config"
	"github.com/ecsol/cars-numberplate-inference/internal/pipeline"
	"github.com/google/uuid"
)

// Detection is one entry of the /detect response.
type Detection struct {
	// BBox is [x, y, width, height].
	BBox       []float64   `json:"bbox"`
	Confidence float64     `json:"confidence"`
	MaskPoints [][]float64 `json:"mask_points"`
}

// DetectResponse is the body returned by POST /detect.
type DetectResponse struct {
	Count      int         `json:"count"`
	Detections []Detection `json:"detections"`
}

// Client calls the inference service. It implements pipeline.Detector.
type Client struct {
	baseURL       string
	http          *http.Client
	minConfidence float64
}

var _ pipeline.Detector = (*Client)(nil)

// NewClient returns a client for cfg.
func NewClient(cfg config.InferenceConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		http:          &http.Client{Timeout: timeout},
		minConfidence: cfg.MinConfidence,
	}
}

// Detect uploads image to /detect and converts the response to plate
// regions, dropping detections under the configured confidence.
func (c *Client) Detect(ctx context.Context, image []byte) ([]pipeline.PlateRegion, error) {
	resp, err := c.post(ctx, image)
	if err != nil {
		return nil, err
	}
	regions := make([]pipeline.PlateRegion, 0, len(resp.Detections))
	for _, d := range resp.Detections {
		if d.Confidence < c.minConfidence {
			continue
		}
		poly := polygon(d)
		if len(poly) < 3 {
			continue
		}
		regions = append(regions, pipeline.PlateRegion{Polygon: poly, Confidence: d.Confidence})
	}
	return regions, nil
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("inference: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("inference: health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("inference: health: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, image []byte) (*DetectResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="image"`)
	h.Set("Content-Type", http.DetectContentType(image))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("inference: build form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("inference: build form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("inference: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", &body)
	if err != nil {
		return nil, fmt.Errorf("inference: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference: detect: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("inference: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("inference: detect: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out DetectResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("inference: decode response: %w", err)
	}
	return &out, nil
}

// polygon prefers the segmentation outline and falls back to the box.
func polygon(d Detection) []pipeline.Point {
	if len(d.MaskPoints) >= 3 {
		pts := make([]pipeline.Point, 0, len(d.MaskPoints))
		for _, p := range d.MaskPoints {
			if len(p) < 2 {
				continue
			}
			pts = append(pts, pipeline.Point{X: p[0], Y: p[1]})
		}
		return pts
	}
	if len(d.BBox) != 4 {
		return nil
	}
	x, y, w, h := d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3]
	return []pipeline.Point{{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h}}
}
