package preprocess

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/palletscan/palletscan/pkg/types"
)

// fill value for letterbox padding bands
var padColor = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// Options controls the preprocessing stage
type Options struct {
	TargetWidth  int
	TargetHeight int
	// Enhance applies a gentle contrast boost before resizing.
	// Production deployments leave this off; the model expects
	// color-faithful input.
	Enhance bool
}

// Apply letterboxes the source image into the target rectangle,
// preserving aspect ratio and centering the content between padding
// bands. The returned metadata carries everything needed to map
// detections back onto the original image.
func Apply(src image.Image, opts Options) (*image.NRGBA, *types.PreprocessMeta) {
	bounds := src.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	if opts.Enhance {
		src = imaging.AdjustGamma(src, 1.2)
	}

	scale := math.Min(
		float64(opts.TargetWidth)/float64(origW),
		float64(opts.TargetHeight)/float64(origH),
	)
	newW := int(math.Round(float64(origW) * scale))
	newH := int(math.Round(float64(origH) * scale))
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	resized := imaging.Resize(src, newW, newH, imaging.CatmullRom)

	xOffset := (opts.TargetWidth - newW) / 2
	yOffset := (opts.TargetHeight - newH) / 2

	canvas := imaging.New(opts.TargetWidth, opts.TargetHeight, padColor)
	canvas = imaging.Paste(canvas, resized, image.Pt(xOffset, yOffset))

	meta := &types.PreprocessMeta{
		ScaleFactor:    scale,
		TargetWidth:    opts.TargetWidth,
		TargetHeight:   opts.TargetHeight,
		OriginalWidth:  origW,
		OriginalHeight: origH,
		XOffset:        xOffset,
		YOffset:        yOffset,
	}
	return canvas, meta
}
