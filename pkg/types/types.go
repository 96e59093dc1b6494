package types

import (
	"strconv"
	"time"
)

// TaskStatus represents the lifecycle state of a processing task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether the status is absorbing
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Valid reports whether the status is one of the four known states
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// ProgressState is the coarse progress token published on the bus
// result channel while a task is in flight
type ProgressState string

const (
	ProgressPending    ProgressState = "PENDING"
	ProgressProcessing ProgressState = "PROCESSING"
	ProgressSuccess    ProgressState = "SUCCESS"
	ProgressFailure    ProgressState = "FAILURE"
)

// TaskMetadata is the listing/polling projection of a task row
type TaskMetadata struct {
	TaskID    string     `json:"task_id" db:"task_id"`
	Status    TaskStatus `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	HasResult bool       `json:"has_result" db:"has_result"`
}

// UploadMetadata is captured by the API at upload time and travels
// with the job on the bus
type UploadMetadata struct {
	OriginalFilename string `json:"original_filename"`
	UploadedAt       string `json:"uploaded_at"`
	FileSize         int64  `json:"file_size"`
	ContentType      string `json:"content_type"`
	ClientTag        string `json:"client_tag,omitempty"`
}

// Map flattens the metadata into the string map carried on the job
func (m UploadMetadata) Map() map[string]string {
	out := map[string]string{
		"original_filename": m.OriginalFilename,
		"uploaded_at":       m.UploadedAt,
		"file_size":         strconv.FormatInt(m.FileSize, 10),
		"content_type":      m.ContentType,
	}
	if m.ClientTag != "" {
		out["client_tag"] = m.ClientTag
	}
	return out
}

// BoundingBox is an axis-aligned box in original-image pixel coordinates
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Position is the top-left corner of a detection
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// DetectedObject is a single non-QR detection in a result payload
type DetectedObject struct {
	ObjectID    string      `json:"object_id"`
	Class       string      `json:"class"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"bounding_box"`
}

// DecodeSource records which decode branch produced a QR's content
type DecodeSource string

const (
	DecodeSourceCrop   DecodeSource = "crop"
	DecodeSourceDirect DecodeSource = "direct"
	DecodeSourceNone   DecodeSource = "none"
)

// QR content sentinels. PendingScan means the symbol was detected but
// decoding was never attempted; DecodeFailed means every strategy ran
// and none produced content.
const (
	QRContentPending = "PENDING_SCAN"
	QRContentFailed  = "DECODE_FAILED"
)

// CropInfo records whether the crop bytes for a QR were persisted
type CropInfo struct {
	Saved bool   `json:"saved"`
	Path  string `json:"path,omitempty"`
	Size  *Size  `json:"size,omitempty"`
}

// Size is a width/height pair in pixels
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// QRCode is a single QR detection in a result payload
type QRCode struct {
	QRID         string       `json:"qr_id"`
	Content      string       `json:"content"`
	DecodeSource DecodeSource `json:"decode_source"`
	Position     Position     `json:"position"`
	Confidence   float64      `json:"confidence"`
	BoundingBox  BoundingBox  `json:"bounding_box"`
	CropInfo     CropInfo     `json:"crop_info"`
}

// PreprocessMeta carries the letterbox transform parameters needed to
// map processed coordinates back onto the original image
type PreprocessMeta struct {
	ScaleFactor   float64 `json:"scale_factor"`
	TargetWidth   int     `json:"target_width"`
	TargetHeight  int     `json:"target_height"`
	OriginalWidth int     `json:"original_width"`
	OriginalHeight int    `json:"original_height"`
	XOffset       int     `json:"x_offset"`
	YOffset       int     `json:"y_offset"`
}

// ScanMetadata describes one pipeline invocation
type ScanMetadata struct {
	Timestamp        string          `json:"timestamp"`
	ImageResolution  string          `json:"image_resolution"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
	ImageSource      string          `json:"image_source"`
	Preprocessing    *PreprocessMeta `json:"preprocessing,omitempty"`
}

// Summary aggregates detection counts for a result payload
type Summary struct {
	TotalDetections int      `json:"total_detections"`
	ObjectsCount    int      `json:"objects_count"`
	QRCodesCount    int      `json:"qr_codes_count"`
	ClassesDetected []string `json:"classes_detected"`
	QRCropsSaved    int      `json:"qr_crops_saved"`
}

// ProcessedImage describes a persisted annotated visualization
type ProcessedImage struct {
	Saved bool   `json:"saved"`
	Path  string `json:"path,omitempty"`
}

// TaskInfo is the envelope the worker attaches before the terminal write
type TaskInfo struct {
	TaskID       string            `json:"task_id"`
	ImagePath    string            `json:"image_path"`
	ProcessedAt  string            `json:"processed_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CleanupError string            `json:"cleanup_error,omitempty"`
}

// ResultPayload is the terminal output of the detection pipeline plus
// the worker envelope. For failed tasks only Status, Error and
// TaskInfo are meaningful.
type ResultPayload struct {
	Status          TaskStatus       `json:"status"`
	ScanMetadata    *ScanMetadata    `json:"scan_metadata,omitempty"`
	DetectedObjects []DetectedObject `json:"detected_objects"`
	QRCodes         []QRCode         `json:"qr_codes"`
	Summary         *Summary         `json:"summary,omitempty"`
	ProcessedImage  *ProcessedImage  `json:"processed_image,omitempty"`
	TaskInfo        *TaskInfo        `json:"task_info,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// Job is the in-flight representation of a Task on the message bus
type Job struct {
	TaskID    string            `json:"task_id"`
	ImagePath string            `json:"image_path"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Config    *JobConfig        `json:"config,omitempty"`
}

// JobConfig is the optional per-task override merged onto the worker's
// default processing options
type JobConfig struct {
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	SaveCrops           *bool    `json:"save_crops,omitempty"`
	SaveProcessedImages *bool    `json:"save_processed_images,omitempty"`
	EnableQRDetection   *bool    `json:"enable_qr_detection,omitempty"`
}

// StorageStats is the aggregate returned by the store's stats query
type StorageStats struct {
	TotalTasks   int                `json:"total_tasks"`
	StatusCounts map[TaskStatus]int `json:"status_counts"`
	Timestamp    time.Time          `json:"timestamp"`
}

// HealthReport is a single component's health check outcome
type HealthReport struct {
	Status            string    `json:"status"`
	DatabaseConnected bool      `json:"database_connected,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	Error             string    `json:"error,omitempty"`
}
