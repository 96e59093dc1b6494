package detect

import (
	"image"
	"strings"

	"github.com/palletscan/palletscan/pkg/types"
)

// RawDetection is a single model output in preprocessed coordinates
type RawDetection struct {
	ClassID    int
	ClassName  string
	Confidence float64
	Box        types.BoundingBox
}

// Detector runs object detection over a preprocessed buffer
type Detector interface {
	// Detect returns all detections above the detector's confidence
	// threshold, boxes in the coordinate space of the input image
	Detect(img image.Image) ([]RawDetection, error)

	// Close releases model resources
	Close() error
}

// Sink is the routing target for a detection
type Sink string

const (
	SinkQR     Sink = "qr"
	SinkObject Sink = "object"
)

// SinkFor routes a detection by class name: anything mentioning a QR
// or barcode goes to the QR sink, everything else is a general object.
func SinkFor(className string) Sink {
	name := strings.ToLower(className)
	if strings.Contains(name, "qr") || strings.Contains(name, "barcode") {
		return SinkQR
	}
	return SinkObject
}
