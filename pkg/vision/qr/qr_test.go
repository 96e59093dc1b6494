package qr

import (
	"image"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeQR(t *testing.T, content string, size int) image.Image {
	t.Helper()
	writer := qrcode.NewQRCodeWriter()
	matrix, err := writer.Encode(content, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	require.NoError(t, err)
	return matrix
}

func TestDecodeCropCleanSymbol(t *testing.T) {
	img := encodeQR(t, "PALLET-001234", 200)

	content, strategyName, ok := DecodeCrop(img)
	require.True(t, ok)
	assert.Equal(t, "PALLET-001234", content)
	assert.Equal(t, "raw_grayscale", strategyName, "a clean symbol decodes on the first rung")
}

func TestDecodeCropRotatedSymbol(t *testing.T) {
	img := toGray(encodeQR(t, "ROTATED-CONTENT", 200))
	rotated := rotate(img, 90)

	content, _, ok := DecodeCrop(rotated)
	require.True(t, ok)
	assert.Equal(t, "ROTATED-CONTENT", content)
}

func TestDecodeCropInvertedSymbol(t *testing.T) {
	img := invert(toGray(encodeQR(t, "INVERTED-CONTENT", 200)))

	content, _, ok := DecodeCrop(img)
	require.True(t, ok)
	assert.Equal(t, "INVERTED-CONTENT", content)
}

func TestDecodeCropFailsOnNoise(t *testing.T) {
	noise := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range noise.Pix {
		noise.Pix[i] = byte(i*31 + i/64*17)
	}

	_, _, ok := DecodeCrop(noise)
	assert.False(t, ok)
}

func TestDecodeDirect(t *testing.T) {
	img := encodeQR(t, "DIRECT-SCAN", 300)

	content, ok := DecodeDirect(img)
	require.True(t, ok)
	assert.Equal(t, "DIRECT-SCAN", content)

	_, ok = DecodeDirect(image.NewGray(image.Rect(0, 0, 50, 50)))
	assert.False(t, ok)
}

func TestOtsuSplitsBimodalHistogram(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range g.Pix {
		if i%2 == 0 {
			g.Pix[i] = 40
		} else {
			g.Pix[i] = 210
		}
	}

	out := otsu(g)
	for i := range out.Pix {
		if i%2 == 0 {
			assert.Equal(t, byte(0), out.Pix[i])
		} else {
			assert.Equal(t, byte(255), out.Pix[i])
		}
	}
}

func TestMedianBlurRemovesSaltNoise(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 9, 9))
	// Uniform field with one hot pixel
	for i := range g.Pix {
		g.Pix[i] = 100
	}
	g.Pix[4*g.Stride+4] = 255

	out := medianBlur(g, 3)
	assert.Equal(t, byte(100), out.Pix[4*out.Stride+4])
}

func TestUpscaleDimensions(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 100, 60))

	out := upscale(g, 2.0)
	assert.Equal(t, 200, out.Bounds().Dx())
	assert.Equal(t, 120, out.Bounds().Dy())
}
