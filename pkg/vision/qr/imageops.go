package qr

import (
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

// toGray converts any image to 8-bit grayscale
func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, src.At(x, y))
		}
	}
	return gray
}

// otsu binarizes using Otsu's global threshold
func otsu(src *image.Gray) *image.Gray {
	var hist [256]int
	for _, p := range src.Pix {
		hist[p]++
	}
	total := len(src.Pix)

	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	var sumB, wB float64
	var maxVar float64
	threshold := 0
	for i := 0; i < 256; i++ {
		wB += float64(hist[i])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * float64(hist[i])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > maxVar {
			maxVar = between
			threshold = i
		}
	}

	out := image.NewGray(src.Bounds())
	for i, p := range src.Pix {
		if int(p) > threshold {
			out.Pix[i] = 255
		} else {
			out.Pix[i] = 0
		}
	}
	return out
}

// adaptiveThreshold binarizes against a Gaussian-weighted local mean
// computed over a blockSize window, offset by c
func adaptiveThreshold(src *image.Gray, blockSize int, c float64) *image.Gray {
	if blockSize%2 == 0 {
		blockSize++
	}
	kernel := gaussianKernel1D(blockSize)
	blurred := separableConvolve(src, kernel)

	out := image.NewGray(src.Bounds())
	for i, p := range src.Pix {
		if float64(p) > float64(blurred.Pix[i])-c {
			out.Pix[i] = 255
		} else {
			out.Pix[i] = 0
		}
	}
	return out
}

// medianBlur applies a k x k median filter (k odd)
func medianBlur(src *image.Gray, k int) *image.Gray {
	if k%2 == 0 {
		k++
	}
	r := k / 2
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewGray(bounds)
	window := make([]byte, 0, k*k)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					sx := clamp(x+dx, 0, w-1)
					sy := clamp(y+dy, 0, h-1)
					window = append(window, src.Pix[sy*src.Stride+sx])
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			out.Pix[y*out.Stride+x] = window[len(window)/2]
		}
	}
	return out
}

// sharpen applies the standard 3x3 sharpening kernel
func sharpen(src *image.Gray) *image.Gray {
	kernel := [9]float64{
		0, -1, 0,
		-1, 5, -1,
		0, -1, 0,
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewGray(bounds)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			ki := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sx := clamp(x+dx, 0, w-1)
					sy := clamp(y+dy, 0, h-1)
					acc += kernel[ki] * float64(src.Pix[sy*src.Stride+sx])
					ki++
				}
			}
			out.Pix[y*out.Stride+x] = clampByte(acc)
		}
	}
	return out
}

// gaussianBlur applies a separable Gaussian of the given odd size
func gaussianBlur(src *image.Gray, size int) *image.Gray {
	if size%2 == 0 {
		size++
	}
	return separableConvolve(src, gaussianKernel1D(size))
}

// invert flips every pixel
func invert(src *image.Gray) *image.Gray {
	out := image.NewGray(src.Bounds())
	for i, p := range src.Pix {
		out.Pix[i] = 255 - p
	}
	return out
}

// upscale resizes by a factor with bicubic interpolation
func upscale(src *image.Gray, factor float64) *image.Gray {
	w := int(float64(src.Bounds().Dx()) * factor)
	h := int(float64(src.Bounds().Dy()) * factor)
	if w < 1 || h < 1 {
		return src
	}
	return toGray(imaging.Resize(src, w, h, imaging.CatmullRom))
}

// rotate returns the image rotated counterclockwise by the given
// multiple of 90 degrees
func rotate(src *image.Gray, degrees int) *image.Gray {
	switch degrees % 360 {
	case 90:
		return toGray(imaging.Rotate90(src))
	case 180:
		return toGray(imaging.Rotate180(src))
	case 270:
		return toGray(imaging.Rotate270(src))
	default:
		return src
	}
}

func gaussianKernel1D(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	kernel := make([]float64, size)
	mid := size / 2
	var sum float64
	for i := range kernel {
		d := float64(i - mid)
		kernel[i] = gaussian(d, sigma)
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func gaussian(d, sigma float64) float64 {
	return math.Exp(-(d * d) / (2 * sigma * sigma))
}

func separableConvolve(src *image.Gray, kernel []float64) *image.Gray {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	r := len(kernel) / 2

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k := -r; k <= r; k++ {
				sx := clamp(x+k, 0, w-1)
				acc += kernel[k+r] * float64(src.Pix[y*src.Stride+sx])
			}
			tmp[y*w+x] = acc
		}
	}

	out := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k := -r; k <= r; k++ {
				sy := clamp(y+k, 0, h-1)
				acc += kernel[k+r] * tmp[sy*w+x]
			}
			out.Pix[y*out.Stride+x] = clampByte(acc)
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}
