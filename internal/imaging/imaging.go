// Package imaging exports an item's photos for upload: each photo is
// downloaded, checked, downscaled and written as a numbered JPEG.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/draw"

	"github.com/erazemk/oddaja/internal/model"
)

// Defaults for Exporter.
const (
	DefaultMaxDimension = 1600
	DefaultMaxBytes     = 20 << 20
	JPEGQuality         = 85
)

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Exporter writes photos into a directory per item.
type Exporter struct {
	Dir          string
	Client       *http.Client
	MaxDimension int
	MaxBytes     int64
	Logger       *slog.Logger
}

// NewExporter returns an exporter writing below dir.
func NewExporter(dir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		Dir:          dir,
		Client:       &http.Client{Timeout: 30 * time.Second},
		MaxDimension: DefaultMaxDimension,
		MaxBytes:     DefaultMaxBytes,
		Logger:       logger,
	}
}

// PhotoError is a photo that could not be exported.
type PhotoError struct {
	URL string `json:"url"`
	Err string `json:"error"`
}

// Result lists what an export produced.
type Result struct {
	Dir    string       `json:"dir"`
	Files  []string     `json:"files"`
	Failed []PhotoError `json:"failed,omitempty"`
}

// Summary is a one-line description of the export.
func (r Result) Summary() string {
	s := fmt.Sprintf("%d photos in %s", len(r.Files), r.Dir)
	if len(r.Failed) > 0 {
		s += fmt.Sprintf(", %d failed", len(r.Failed))
	}
	return s
}

// ItemDir returns the directory an item's photos are written to.
func (e *Exporter) ItemDir(item model.WorkItem) string {
	return filepath.Join(e.Dir, string(item.Kind)+"-"+filepath.Base(item.ID))
}

// Export writes every photo of item. A photo that fails is recorded in
// Result.Failed and does not stop the others; only a failure to create the
// directory is returned as an error.
func (e *Exporter) Export(ctx context.Context, item model.WorkItem) (Result, error) {
	dir := e.ItemDir(item)
	res := Result{Dir: dir, Files: []string{}}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, fmt.Errorf("creating media directory: %w", err)
	}

	for i, url := range item.Photos {
		name := filepath.Join(dir, fmt.Sprintf("%02d.jpg", i+1))
		if err := e.exportOne(ctx, url, name); err != nil {
			e.Logger.Warn("exporting photo", "item", item.ID, "url", url, "error", err)
			res.Failed = append(res.Failed, PhotoError{URL: url, Err: err.Error()})
			continue
		}
		res.Files = append(res.Files, name)
	}
	return res, nil
}

func (e *Exporter) exportOne(ctx context.Context, url, path string) error {
	data, err := e.fetch(ctx, url)
	if err != nil {
		return err
	}
	out, err := Recode(data, e.maxDimension())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (e *Exporter) maxDimension() int {
	if e.MaxDimension > 0 {
		return e.MaxDimension
	}
	return DefaultMaxDimension
}

func (e *Exporter) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading: unexpected status %s", resp.Status)
	}

	limit := e.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("downloading: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("photo larger than %d bytes", limit)
	}
	return data, nil
}

// Recode checks that data is a JPEG or PNG by its bytes, shrinks it to fit
// within maxDim and re-encodes it as JPEG.
func Recode(data []byte, maxDim int) ([]byte, error) {
	detected := http.DetectContentType(data)
	if !allowedMIME[detected] {
		return nil, fmt.Errorf("unsupported image format: %s (only JPEG and PNG accepted)", detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	img = fit(img, maxDim)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// fit scales img down so neither side exceeds maxDim, keeping the aspect
// ratio. Smaller images are returned unchanged.
func fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(max(w, h))
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
