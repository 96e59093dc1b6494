package vision

import (
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/palletscan/palletscan/pkg/types"
)

var (
	objectColor = color.NRGBA{R: 220, G: 60, B: 40, A: 255}
	qrColor     = color.NRGBA{R: 40, G: 200, B: 80, A: 255}
)

// saveVisualization draws box outlines for every detection on a copy
// of the original image and writes it to the outputs directory
func saveVisualization(original image.Image, objects []types.DetectedObject, qrCodes []types.QRCode, dir string) (string, error) {
	canvas := imaging.Clone(original)

	for _, obj := range objects {
		drawRect(canvas, obj.BoundingBox, objectColor)
	}
	for _, code := range qrCodes {
		drawRect(canvas, code.BoundingBox, qrColor)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "annotated_"+uuid.New().String()+".jpg")
	if err := imaging.Save(canvas, path); err != nil {
		return "", err
	}
	return path, nil
}

// drawRect paints a 3px box outline clamped to the canvas
func drawRect(canvas *image.NRGBA, box types.BoundingBox, c color.NRGBA) {
	const thickness = 3
	bounds := canvas.Bounds()

	x0 := box.X
	y0 := box.Y
	x1 := box.X + box.Width
	y1 := box.Y + box.Height

	set := func(x, y int) {
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			canvas.SetNRGBA(x, y, c)
		}
	}

	for t := 0; t < thickness; t++ {
		for x := x0; x <= x1; x++ {
			set(x, y0+t)
			set(x, y1-t)
		}
		for y := y0; y <= y1; y++ {
			set(x0+t, y)
			set(x1-t, y)
		}
	}
}
