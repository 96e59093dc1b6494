package api

import (
	"github.com/palletscan/palletscan/pkg/types"
)

// formattedResult is the client-facing projection of a stored payload.
// Worker-side fields (summary, preprocessing metadata, crop info,
// decode source, processed image descriptor) are stripped on output.
type formattedResult struct {
	TaskID          string             `json:"task_id"`
	Status          types.TaskStatus   `json:"status"`
	Error           string             `json:"error,omitempty"`
	ScanMetadata    *formattedScanMeta `json:"scan_metadata,omitempty"`
	DetectedObjects []formattedObject  `json:"detected_objects"`
	QRCodes         []formattedQR      `json:"qr_codes"`
}

type formattedScanMeta struct {
	Timestamp        string `json:"timestamp"`
	ImageResolution  string `json:"image_resolution"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
}

type formattedObject struct {
	ObjectID    string            `json:"object_id"`
	Class       string            `json:"class"`
	Confidence  float64           `json:"confidence"`
	BoundingBox types.BoundingBox `json:"bounding_box"`
}

type formattedQR struct {
	QRID       string         `json:"qr_id"`
	Content    string         `json:"content"`
	Position   types.Position `json:"position"`
	Confidence float64        `json:"confidence"`
}

// formatResult projects a stored payload into the wire shape. The
// projection is pure; formatting twice equals formatting once.
func formatResult(taskID string, payload *types.ResultPayload) *formattedResult {
	out := &formattedResult{
		TaskID:          taskID,
		Status:          payload.Status,
		Error:           payload.Error,
		DetectedObjects: []formattedObject{},
		QRCodes:         []formattedQR{},
	}

	if payload.ScanMetadata != nil {
		out.ScanMetadata = &formattedScanMeta{
			Timestamp:        payload.ScanMetadata.Timestamp,
			ImageResolution:  payload.ScanMetadata.ImageResolution,
			ProcessingTimeMS: payload.ScanMetadata.ProcessingTimeMS,
		}
	}

	for _, obj := range payload.DetectedObjects {
		out.DetectedObjects = append(out.DetectedObjects, formattedObject{
			ObjectID:    obj.ObjectID,
			Class:       obj.Class,
			Confidence:  obj.Confidence,
			BoundingBox: obj.BoundingBox,
		})
	}

	for _, code := range payload.QRCodes {
		out.QRCodes = append(out.QRCodes, formattedQR{
			QRID:       code.QRID,
			Content:    code.Content,
			Position:   code.Position,
			Confidence: code.Confidence,
		})
	}

	return out
}
