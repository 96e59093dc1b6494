package qr

import (
	"image"
)

// strategy is one rung of the decode ladder. It transforms the raw
// grayscale crop and attempts a decode, returning on first success.
type strategy struct {
	name string
	run  func(gray *image.Gray) (string, bool)
}

// ladder holds the strategies in escalation order. Later rungs are
// progressively more aggressive reconstructions of a degraded symbol.
var ladder = []strategy{
	{"raw_grayscale", func(g *image.Gray) (string, bool) {
		return tryDecode(g)
	}},
	{"adaptive_threshold", func(g *image.Gray) (string, bool) {
		return tryDecode(adaptiveThreshold(g, 11, 2))
	}},
	{"median_otsu", func(g *image.Gray) (string, bool) {
		return tryDecode(otsu(medianBlur(g, 3)))
	}},
	{"sharpen_otsu", func(g *image.Gray) (string, bool) {
		return tryDecode(otsu(sharpen(g)))
	}},
	{"upscale_otsu", func(g *image.Gray) (string, bool) {
		for _, factor := range []float64{1.5, 2.0} {
			if text, ok := tryDecode(otsu(upscale(g, factor))); ok {
				return text, true
			}
		}
		return "", false
	}},
	{"blur_otsu_invert", func(g *image.Gray) (string, bool) {
		binary := otsu(gaussianBlur(g, 5))
		if text, ok := tryDecode(binary); ok {
			return text, true
		}
		return tryDecode(invert(binary))
	}},
	{"otsu_rotations", func(g *image.Gray) (string, bool) {
		binary := otsu(g)
		for _, deg := range []int{90, 180, 270} {
			if text, ok := tryDecode(rotate(binary, deg)); ok {
				return text, true
			}
		}
		return "", false
	}},
}

// DecodeCrop runs the strategy ladder over a cropped QR region,
// returning the decoded content, the name of the strategy that
// succeeded and whether any rung succeeded at all.
func DecodeCrop(crop image.Image) (content string, strategyName string, ok bool) {
	gray := toGray(crop)
	for _, s := range ladder {
		if text, done := s.run(gray); done {
			return text, s.name, true
		}
	}
	return "", "", false
}
