// Package imaging fits raw captures under a byte budget: orientation
// normalization, aspect-preserving downscale, then a fixed JPEG
// quality cascade. The cascade is a closed list of presets, so
// processing always terminates after a bounded number of encodes.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"runtime"

	"golang.org/x/image/draw"
	"golang.org/x/sync/semaphore"
)

// ErrDecode indicates the input could not be decoded as a raster
// image. Permanent: the caller must re-capture.
var ErrDecode = errors.New("undecodable image")

// Config bounds the recompression work.
type Config struct {
	// MaxDimension constrains the longer edge, in pixels. Images are
	// never upscaled.
	MaxDimension int

	// ByteBudget is the target encoded size. The final cascade step is
	// accepted even if it still exceeds the budget.
	ByteBudget int

	// Qualities is the descending JPEG quality cascade.
	Qualities []int

	// Workers caps concurrent encodes. Encoding is CPU-bound, so this
	// is sized to available CPU independent of request concurrency.
	Workers int64
}

// DefaultConfig returns the production preset: 1920px, 500KB,
// quality 85 → 70 → 50.
func DefaultConfig() Config {
	return Config{
		MaxDimension: 1920,
		ByteBudget:   500 * 1024,
		Qualities:    []int{85, 70, 50},
		Workers:      int64(runtime.NumCPU()),
	}
}

// Result is one processed capture.
type Result struct {
	Data    []byte
	Width   int
	Height  int
	Quality int // quality level of the accepted encode
}

// Processor recompresses captures under the configured budget.
// Safe for concurrent use.
type Processor struct {
	cfg Config
	sem *semaphore.Weighted
}

// NewProcessor creates a processor, filling zero config fields from
// DefaultConfig.
func NewProcessor(cfg Config) *Processor {
	def := DefaultConfig()
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = def.MaxDimension
	}
	if cfg.ByteBudget <= 0 {
		cfg.ByteBudget = def.ByteBudget
	}
	if len(cfg.Qualities) == 0 {
		cfg.Qualities = def.Qualities
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &Processor{
		cfg: cfg,
		sem: semaphore.NewWeighted(cfg.Workers),
	}
}

// Process decodes raw capture bytes, normalizes orientation, scales
// down to the configured maximum dimension and encodes JPEG at each
// cascade quality until the result fits the byte budget. The last
// cascade step is returned as-is when nothing fits.
func (p *Processor) Process(ctx context.Context, raw []byte) (*Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	img = normalizeOrientation(img, orientationOf(raw))
	img = p.scaleDown(img)

	bounds := img.Bounds()
	var buf bytes.Buffer
	var quality int

	for _, q := range p.cfg.Qualities {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("jpeg encode at quality %d: %w", q, err)
		}
		quality = q
		if buf.Len() <= p.cfg.ByteBudget {
			break
		}
	}

	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())

	return &Result{
		Data:    data,
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
		Quality: quality,
	}, nil
}

// scaleDown constrains the longer edge to MaxDimension, preserving
// aspect ratio and never upscaling.
func (p *Processor) scaleDown(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	longer := w
	if h > longer {
		longer = h
	}
	if longer <= p.cfg.MaxDimension {
		return img
	}

	scale := float64(p.cfg.MaxDimension) / float64(longer)
	dw := int(float64(w)*scale + 0.5)
	dh := int(float64(h)*scale + 0.5)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
