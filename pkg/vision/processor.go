package vision

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/palletscan/palletscan/pkg/log"
	"github.com/palletscan/palletscan/pkg/metrics"
	"github.com/palletscan/palletscan/pkg/types"
	"github.com/palletscan/palletscan/pkg/vision/coords"
	"github.com/palletscan/palletscan/pkg/vision/detect"
	"github.com/palletscan/palletscan/pkg/vision/preprocess"
	"github.com/palletscan/palletscan/pkg/vision/qr"
)

const cropMargin = 5

// Options configures one pipeline invocation
type Options struct {
	ModelPath           string
	ConfidenceThreshold float64
	TargetWidth         int
	TargetHeight        int
	EnhanceContrast     bool
	EnableQRDetection   bool
	SaveCrops           bool
	SaveProcessedImages bool
	CropsDir            string
	OutputsDir          string
}

// Processor runs the detection pipeline. It is stateless apart from
// the shared model slot and safe for sequential reuse across jobs.
type Processor struct {
	slot   *detect.Slot
	logger zerolog.Logger
}

// NewProcessor creates a pipeline around a model slot
func NewProcessor(slot *detect.Slot) *Processor {
	return &Processor{
		slot:   slot,
		logger: log.WithComponent("pipeline"),
	}
}

// Process runs the four pipeline stages over one image and assembles
// the result payload. Decode failures on individual symbols are
// absorbed; only load and detection failures abort the run.
func (p *Processor) Process(ctx context.Context, imageSource string, opts Options) (*types.ResultPayload, error) {
	start := time.Now()

	original, err := loadImage(imageSource)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage A
	stageTimer := metrics.NewTimer()
	processed, meta := preprocess.Apply(original, preprocess.Options{
		TargetWidth:  opts.TargetWidth,
		TargetHeight: opts.TargetHeight,
		Enhance:      opts.EnhanceContrast,
	})
	stageTimer.ObserveDurationVec(metrics.PipelineStageDuration, "preprocess")

	// Stage B
	stageTimer = metrics.NewTimer()
	detector, err := p.slot.Get(opts.ModelPath, opts.ConfidenceThreshold)
	if err != nil {
		return nil, &DetectionError{Err: err}
	}
	raw, err := detector.Detect(processed)
	if err != nil {
		return nil, &DetectionError{Err: err}
	}
	stageTimer.ObserveDurationVec(metrics.PipelineStageDuration, "detect")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var objects []types.DetectedObject
	var qrRaw []detect.RawDetection
	for _, det := range raw {
		if detect.SinkFor(det.ClassName) == detect.SinkQR {
			qrRaw = append(qrRaw, det)
			metrics.DetectionsTotal.WithLabelValues("qr").Inc()
			continue
		}
		objects = append(objects, types.DetectedObject{
			ObjectID:    "OBJ_" + uuid.New().String(),
			Class:       det.ClassName,
			Confidence:  det.Confidence,
			BoundingBox: coords.ToOriginal(det.Box, meta),
		})
		metrics.DetectionsTotal.WithLabelValues("object").Inc()
	}

	// Stage C
	stageTimer = metrics.NewTimer()
	qrCodes := p.decodeQRs(original, qrRaw, meta, opts)
	stageTimer.ObserveDurationVec(metrics.PipelineStageDuration, "qr_decode")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage D
	payload := p.assemble(imageSource, original, meta, objects, qrCodes, start)

	if opts.SaveProcessedImages {
		if path, err := saveVisualization(original, objects, qrCodes, opts.OutputsDir); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to save visualization")
			payload.ProcessedImage = &types.ProcessedImage{Saved: false}
		} else {
			payload.ProcessedImage = &types.ProcessedImage{Saved: true, Path: path}
		}
	}

	return payload, nil
}

// decodeQRs runs Stage C over the QR-sink detections. The direct
// full-image pass runs at most once, lazily, the first time a crop
// ladder comes up empty.
func (p *Processor) decodeQRs(original image.Image, detections []detect.RawDetection, meta *types.PreprocessMeta, opts Options) []types.QRCode {
	qrCodes := make([]types.QRCode, 0, len(detections))

	directTried := false
	directContent := ""
	directOK := false
	tryDirect := func() (string, bool) {
		if !directTried {
			directContent, directOK = qr.DecodeDirect(original)
			directTried = true
		}
		return directContent, directOK
	}

	for _, det := range detections {
		box := coords.ToOriginal(det.Box, meta)
		qrID := "QR_" + uuid.New().String()

		code := types.QRCode{
			QRID:        qrID,
			Position:    types.Position{X: box.X, Y: box.Y},
			Confidence:  det.Confidence,
			BoundingBox: box,
			CropInfo:    types.CropInfo{Saved: false},
		}

		crop := cropWithMargin(original, box, cropMargin)

		if !opts.EnableQRDetection {
			code.Content = types.QRContentPending
			code.DecodeSource = types.DecodeSourceNone
		} else if content, strategyName, ok := qr.DecodeCrop(crop); ok {
			code.Content = content
			code.DecodeSource = types.DecodeSourceCrop
			metrics.QRDecodesTotal.WithLabelValues("crop").Inc()
			p.logger.Debug().Str("qr_id", qrID).Str("strategy", strategyName).Msg("QR decoded from crop")
		} else if content, ok := tryDirect(); ok {
			code.Content = content
			code.DecodeSource = types.DecodeSourceDirect
			metrics.QRDecodesTotal.WithLabelValues("direct").Inc()
		} else {
			code.Content = types.QRContentFailed
			code.DecodeSource = types.DecodeSourceNone
			metrics.QRDecodesTotal.WithLabelValues("failed").Inc()
		}

		if opts.SaveCrops {
			code.CropInfo = saveCrop(crop, qrID, opts.CropsDir, p.logger)
		}

		qrCodes = append(qrCodes, code)
	}
	return qrCodes
}

func (p *Processor) assemble(imageSource string, original image.Image, meta *types.PreprocessMeta, objects []types.DetectedObject, qrCodes []types.QRCode, start time.Time) *types.ResultPayload {
	bounds := original.Bounds()

	classSet := make(map[string]struct{})
	for _, obj := range objects {
		classSet[obj.Class] = struct{}{}
	}
	classes := make([]string, 0, len(classSet))
	for c := range classSet {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	cropsSaved := 0
	for _, code := range qrCodes {
		if code.CropInfo.Saved {
			cropsSaved++
		}
	}

	if objects == nil {
		objects = []types.DetectedObject{}
	}

	return &types.ResultPayload{
		Status: types.TaskStatusCompleted,
		ScanMetadata: &types.ScanMetadata{
			Timestamp:        time.Now().UTC().Format(time.RFC3339),
			ImageResolution:  fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()),
			ProcessingTimeMS: time.Since(start).Milliseconds(),
			ImageSource:      imageSource,
			Preprocessing:    meta,
		},
		DetectedObjects: objects,
		QRCodes:         qrCodes,
		Summary: &types.Summary{
			TotalDetections: len(objects) + len(qrCodes),
			ObjectsCount:    len(objects),
			QRCodesCount:    len(qrCodes),
			ClassesDetected: classes,
			QRCropsSaved:    cropsSaved,
		},
	}
}

// cropWithMargin cuts the box out of the original image with a small
// margin clamped to the frame
func cropWithMargin(src image.Image, box types.BoundingBox, margin int) image.Image {
	bounds := src.Bounds()
	x0 := box.X - margin
	y0 := box.Y - margin
	x1 := box.X + box.Width + margin
	y1 := box.Y + box.Height + margin

	if x0 < bounds.Min.X {
		x0 = bounds.Min.X
	}
	if y0 < bounds.Min.Y {
		y0 = bounds.Min.Y
	}
	if x1 > bounds.Max.X {
		x1 = bounds.Max.X
	}
	if y1 > bounds.Max.Y {
		y1 = bounds.Max.Y
	}

	return imaging.Crop(src, image.Rect(x0, y0, x1, y1))
}

func saveCrop(crop image.Image, qrID, dir string, logger zerolog.Logger) types.CropInfo {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn().Err(err).Str("qr_id", qrID).Msg("Failed to create crops directory")
		return types.CropInfo{Saved: false}
	}
	path := filepath.Join(dir, qrID+"_crop.jpg")
	if err := imaging.Save(crop, path); err != nil {
		logger.Warn().Err(err).Str("qr_id", qrID).Msg("Failed to save crop")
		return types.CropInfo{Saved: false}
	}
	size := crop.Bounds().Size()
	return types.CropInfo{
		Saved: true,
		Path:  path,
		Size:  &types.Size{Width: size.X, Height: size.Y},
	}
}

// loadImage opens and decodes the source image. JPEG, PNG, BMP and
// TIFF decoders are registered.
func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, &FileNotFoundError{Path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return img, nil
}

// FileExists reports whether the image source is present on the local
// blob store. The worker checks this before invoking the pipeline.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
