package detect

import (
	"bufio"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"

	"github.com/palletscan/palletscan/pkg/types"
)

const nmsThreshold = 0.45

// fallback when no .names file sits next to the model
var defaultClasses = []string{"pallet", "qr_code"}

// YOLODetector runs an ONNX YOLO network through the OpenCV DNN module
type YOLODetector struct {
	net       gocv.Net
	classes   []string
	threshold float64
}

// NewYOLODetector loads the network and its class list. Class names
// come from a .names file next to the model, one per line.
func NewYOLODetector(modelPath string, threshold float64) (Detector, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not accessible: %w", err)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to read network from %s", modelPath)
	}

	classes, err := loadClassNames(modelPath)
	if err != nil {
		net.Close()
		return nil, err
	}

	return &YOLODetector{net: net, classes: classes, threshold: threshold}, nil
}

func loadClassNames(modelPath string) ([]string, error) {
	namesPath := strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".names"
	f, err := os.Open(namesPath)
	if os.IsNotExist(err) {
		return defaultClasses, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open class names %s: %w", namesPath, err)
	}
	defer f.Close()

	var classes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			classes = append(classes, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read class names: %w", err)
	}
	if len(classes) == 0 {
		return defaultClasses, nil
	}
	return classes, nil
}

// Detect runs one forward pass and returns thresholded, NMS-filtered
// detections in the input image's coordinate space
func (d *YOLODetector) Detect(img image.Image) ([]RawDetection, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	size := img.Bounds().Size()
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size.X, size.Y),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	return d.decodeOutput(output)
}

// decodeOutput parses the [1, 4+nc, anchors] output tensor
func (d *YOLODetector) decodeOutput(output gocv.Mat) ([]RawDetection, error) {
	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	rows := dims[1]
	anchors := dims[2]
	numClasses := rows - 4
	if numClasses < 1 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read output tensor: %w", err)
	}
	at := func(row, col int) float32 {
		return data[row*anchors+col]
	}

	var boxes []image.Rectangle
	var scores []float32
	var classIDs []int

	for col := 0; col < anchors; col++ {
		bestClass := 0
		bestScore := float32(0)
		for c := 0; c < numClasses; c++ {
			if s := at(4+c, col); s > bestScore {
				bestScore = s
				bestClass = c
			}
		}
		if float64(bestScore) < d.threshold {
			continue
		}

		cx := float64(at(0, col))
		cy := float64(at(1, col))
		w := float64(at(2, col))
		h := float64(at(3, col))

		x := int(math.Round(cx - w/2))
		y := int(math.Round(cy - h/2))
		boxes = append(boxes, image.Rect(x, y, x+int(math.Round(w)), y+int(math.Round(h))))
		scores = append(scores, bestScore)
		classIDs = append(classIDs, bestClass)
	}

	indices := gocv.NMSBoxes(boxes, scores, float32(d.threshold), nmsThreshold)

	detections := make([]RawDetection, 0, len(indices))
	for _, i := range indices {
		box := boxes[i]
		detections = append(detections, RawDetection{
			ClassID:    classIDs[i],
			ClassName:  d.className(classIDs[i]),
			Confidence: float64(scores[i]),
			Box: types.BoundingBox{
				X:      box.Min.X,
				Y:      box.Min.Y,
				Width:  box.Dx(),
				Height: box.Dy(),
			},
		})
	}
	return detections, nil
}

func (d *YOLODetector) className(id int) string {
	if id >= 0 && id < len(d.classes) {
		return d.classes[id]
	}
	return fmt.Sprintf("class_%d", id)
}

// Close releases the network
func (d *YOLODetector) Close() error {
	return d.net.Close()
}
