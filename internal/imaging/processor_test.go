package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

// gradientImage compresses well; noiseImage barely compresses at all.
func gradientImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), 128, 255})
		}
	}
	return img
}

func noiseImage(w, h int) image.Image {
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	return img
}

func TestProcessFitsBudgetAndDimensions(t *testing.T) {
	p := NewProcessor(Config{MaxDimension: 1920, ByteBudget: 500 * 1024, Qualities: []int{85, 70, 50}})

	raw := encodeJPEG(t, gradientImage(6000, 4000), 95)
	res, err := p.Process(context.Background(), raw)
	require.NoError(t, err)

	require.Equal(t, 1920, res.Width)
	require.Equal(t, 1280, res.Height)
	require.LessOrEqual(t, len(res.Data), 500*1024)

	// Result must itself be a decodable JPEG.
	decoded, format, err := image.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, 1920, decoded.Bounds().Dx())
}

func TestProcessNeverUpscales(t *testing.T) {
	p := NewProcessor(Config{MaxDimension: 1920})

	raw := encodeJPEG(t, gradientImage(100, 50), 90)
	res, err := p.Process(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, 100, res.Width)
	require.Equal(t, 50, res.Height)
}

func TestProcessCascadeTerminates(t *testing.T) {
	// An impossible budget: every quality step exceeds it. The cascade
	// must stop at the last preset and hand back its output.
	p := NewProcessor(Config{MaxDimension: 256, ByteBudget: 100, Qualities: []int{85, 70, 50}})

	raw := encodeJPEG(t, noiseImage(256, 256), 95)
	res, err := p.Process(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, 50, res.Quality)
	require.Greater(t, len(res.Data), 100)
}

func TestProcessStopsAtFirstFittingQuality(t *testing.T) {
	p := NewProcessor(Config{MaxDimension: 1920, ByteBudget: 500 * 1024, Qualities: []int{85, 70, 50}})

	raw := encodeJPEG(t, gradientImage(640, 480), 90)
	res, err := p.Process(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, 85, res.Quality)
}

func TestProcessAcceptsPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gradientImage(300, 200)))

	p := NewProcessor(Config{})
	res, err := p.Process(context.Background(), buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 300, res.Width)

	_, format, err := image.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
}

func TestProcessRejectsGarbage(t *testing.T) {
	p := NewProcessor(Config{})

	_, err := p.Process(context.Background(), []byte("definitely not an image"))
	require.ErrorIs(t, err, ErrDecode)
}
