package coords

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/palletscan/palletscan/pkg/types"
)

func letterboxMeta() *types.PreprocessMeta {
	// 1280x640 source letterboxed into 640x640
	return &types.PreprocessMeta{
		ScaleFactor:    0.5,
		TargetWidth:    640,
		TargetHeight:   640,
		OriginalWidth:  1280,
		OriginalHeight: 640,
		XOffset:        0,
		YOffset:        160,
	}
}

func TestToOriginalInvertsLetterbox(t *testing.T) {
	meta := letterboxMeta()
	processed := types.BoundingBox{X: 100, Y: 260, Width: 50, Height: 40}

	orig := ToOriginal(processed, meta)

	assert.Equal(t, types.BoundingBox{X: 200, Y: 200, Width: 100, Height: 80}, orig)
}

func TestRoundTripWithinOnePixel(t *testing.T) {
	meta := &types.PreprocessMeta{
		ScaleFactor:    640.0 / 1920.0,
		TargetWidth:    640,
		TargetHeight:   640,
		OriginalWidth:  1920,
		OriginalHeight: 1080,
		XOffset:        0,
		YOffset:        140,
	}

	orig := types.BoundingBox{X: 301, Y: 407, Width: 213, Height: 119}
	back := ToOriginal(ToProcessed(orig, meta), meta)

	assert.InDelta(t, orig.X, back.X, 2)
	assert.InDelta(t, orig.Y, back.Y, 2)
	assert.InDelta(t, orig.Width, back.Width, 2)
	assert.InDelta(t, orig.Height, back.Height, 2)
}

func TestToOriginalClampsToFrame(t *testing.T) {
	meta := letterboxMeta()

	// A box reaching into the padding band maps to the frame edge
	orig := ToOriginal(types.BoundingBox{X: -20, Y: 100, Width: 30, Height: 30}, meta)
	assert.Equal(t, 0, orig.X)
	assert.Equal(t, 0, orig.Y)
	assert.GreaterOrEqual(t, orig.Width, 1)
	assert.GreaterOrEqual(t, orig.Height, 1)

	// A box past the right edge is pulled back inside
	orig = ToOriginal(types.BoundingBox{X: 630, Y: 300, Width: 100, Height: 100}, meta)
	assert.LessOrEqual(t, orig.X+orig.Width, meta.OriginalWidth)
	assert.LessOrEqual(t, orig.Y+orig.Height, meta.OriginalHeight)
}

func TestToOriginalNeverDegenerates(t *testing.T) {
	meta := letterboxMeta()

	orig := ToOriginal(types.BoundingBox{X: 0, Y: 0, Width: 0, Height: 0}, meta)
	assert.GreaterOrEqual(t, orig.Width, 1)
	assert.GreaterOrEqual(t, orig.Height, 1)
}
