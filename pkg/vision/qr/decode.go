package qr

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

var decodeHints = map[gozxing.DecodeHintType]interface{}{
	gozxing.DecodeHintType_TRY_HARDER: true,
}

// tryDecode attempts a single decode of the given image. Returns the
// decoded text and whether decoding succeeded.
func tryDecode(img image.Image) (string, bool) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", false
	}
	reader := qrcode.NewQRCodeReader()
	result, err := reader.Decode(bmp, decodeHints)
	if err != nil {
		return "", false
	}
	return result.GetText(), true
}

// DecodeDirect runs a single decode pass over the full grayscale
// image. It backs up the per-crop ladder when a symbol is readable in
// context but the crop is too degraded.
func DecodeDirect(img image.Image) (string, bool) {
	return tryDecode(toGray(img))
}
