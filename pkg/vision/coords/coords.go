// Package coords maps detection boxes from preprocessed-image space
// back onto the original image. The letterbox transform is invertible:
// subtract the padding offsets, divide by the scale factor, then clamp
// to the original bounds.
package coords

import (
	"math"

	"github.com/palletscan/palletscan/pkg/types"
)

// ToOriginal converts a bounding box expressed in preprocessed
// coordinates into original-image coordinates. The result is clamped
// inside the original frame and never degenerates below 1x1.
func ToOriginal(box types.BoundingBox, meta *types.PreprocessMeta) types.BoundingBox {
	scale := meta.ScaleFactor
	if scale <= 0 {
		scale = 1
	}

	x := float64(box.X-meta.XOffset) / scale
	y := float64(box.Y-meta.YOffset) / scale
	w := float64(box.Width) / scale
	h := float64(box.Height) / scale

	ox := clampInt(int(math.Round(x)), 0, meta.OriginalWidth-1)
	oy := clampInt(int(math.Round(y)), 0, meta.OriginalHeight-1)

	ow := int(math.Round(w))
	oh := int(math.Round(h))
	if ox+ow > meta.OriginalWidth {
		ow = meta.OriginalWidth - ox
	}
	if oy+oh > meta.OriginalHeight {
		oh = meta.OriginalHeight - oy
	}
	if ow < 1 {
		ow = 1
	}
	if oh < 1 {
		oh = 1
	}

	return types.BoundingBox{X: ox, Y: oy, Width: ow, Height: oh}
}

// ToProcessed converts an original-image box into preprocessed
// coordinates. Used when drawing annotations on the model input.
func ToProcessed(box types.BoundingBox, meta *types.PreprocessMeta) types.BoundingBox {
	return types.BoundingBox{
		X:      int(math.Round(float64(box.X)*meta.ScaleFactor)) + meta.XOffset,
		Y:      int(math.Round(float64(box.Y)*meta.ScaleFactor)) + meta.YOffset,
		Width:  int(math.Round(float64(box.Width) * meta.ScaleFactor)),
		Height: int(math.Round(float64(box.Height) * meta.ScaleFactor)),
	}
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
