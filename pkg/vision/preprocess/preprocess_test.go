package preprocess

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestApplySquareInput(t *testing.T) {
	src := solidImage(320, 320, color.NRGBA{R: 255, A: 255})

	out, meta := Apply(src, Options{TargetWidth: 640, TargetHeight: 640})

	assert.Equal(t, 640, out.Bounds().Dx())
	assert.Equal(t, 640, out.Bounds().Dy())
	assert.InDelta(t, 2.0, meta.ScaleFactor, 1e-9)
	assert.Equal(t, 0, meta.XOffset)
	assert.Equal(t, 0, meta.YOffset)
	assert.Equal(t, 320, meta.OriginalWidth)
	assert.Equal(t, 320, meta.OriginalHeight)
}

func TestApplyWideInputCentersVertically(t *testing.T) {
	src := solidImage(1280, 640, color.NRGBA{G: 255, A: 255})

	out, meta := Apply(src, Options{TargetWidth: 640, TargetHeight: 640})

	require.InDelta(t, 0.5, meta.ScaleFactor, 1e-9)
	assert.Equal(t, 0, meta.XOffset)
	assert.Equal(t, 160, meta.YOffset)

	// Padding band above the content, content inside
	top := out.NRGBAAt(320, 10)
	assert.Equal(t, padColor, top)
	mid := out.NRGBAAt(320, 320)
	assert.Equal(t, uint8(0), mid.R)
	assert.NotEqual(t, padColor, mid)
}

func TestApplyTallInputCentersHorizontally(t *testing.T) {
	src := solidImage(300, 600, color.NRGBA{B: 255, A: 255})

	_, meta := Apply(src, Options{TargetWidth: 640, TargetHeight: 640})

	require.InDelta(t, 640.0/600.0, meta.ScaleFactor, 1e-9)
	assert.Equal(t, 640, meta.TargetWidth)
	assert.Greater(t, meta.XOffset, 0)
	assert.Equal(t, 0, meta.YOffset)
}

func TestApplyEnhanceChangesPixels(t *testing.T) {
	src := solidImage(100, 100, color.NRGBA{R: 60, G: 60, B: 60, A: 255})

	plain, _ := Apply(src, Options{TargetWidth: 64, TargetHeight: 64})
	boosted, _ := Apply(src, Options{TargetWidth: 64, TargetHeight: 64, Enhance: true})

	assert.NotEqual(t, plain.NRGBAAt(32, 32), boosted.NRGBAAt(32, 32))
}
