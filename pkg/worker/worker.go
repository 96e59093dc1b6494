package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/palletscan/palletscan/pkg/bus"
	"github.com/palletscan/palletscan/pkg/config"
	"github.com/palletscan/palletscan/pkg/events"
	"github.com/palletscan/palletscan/pkg/log"
	"github.com/palletscan/palletscan/pkg/metrics"
	"github.com/palletscan/palletscan/pkg/types"
	"github.com/palletscan/palletscan/pkg/vision"
)

// Store is the slice of the result store the worker writes to
type Store interface {
	UpsertTask(ctx context.Context, taskID string, status types.TaskStatus, expiresAt time.Time) error
	SaveResult(ctx context.Context, taskID string, payload *types.ResultPayload, expiresAt time.Time) error
}

// Cache clears transient entries after the terminal store write
type Cache interface {
	ClearTaskResult(ctx context.Context, taskID string) (bool, error)
}

// JobSource delivers jobs and carries progress tokens back
type JobSource interface {
	Consume(ctx context.Context, consumerTag string, handler bus.Handler) error
	PublishProgress(ctx context.Context, taskID string, state types.ProgressState)
}

// Pipeline is the detection pipeline entry point
type Pipeline interface {
	Process(ctx context.Context, imageSource string, opts vision.Options) (*types.ResultPayload, error)
}

// Worker consumes jobs, drives the pipeline and commits terminal
// state. One Worker processes one job at a time.
type Worker struct {
	id       string
	cfg      *config.Config
	store    Store
	cache    Cache
	source   JobSource
	pipeline Pipeline
	broker   *events.Broker
	logger   zerolog.Logger
}

// New creates a worker
func New(id string, cfg *config.Config, store Store, cache Cache, source JobSource, pipeline Pipeline, broker *events.Broker) *Worker {
	return &Worker{
		id:       id,
		cfg:      cfg,
		store:    store,
		cache:    cache,
		source:   source,
		pipeline: pipeline,
		broker:   broker,
		logger:   log.WithWorkerID(id),
	}
}

// Run consumes jobs until ctx is cancelled
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("Worker started")
	return w.source.Consume(ctx, w.id, w.handleJob)
}

// handleJob drives one task through the state machine. A nil return
// acknowledges the message. Errors before a terminal row exists are
// wrapped with bus.Requeue so the message is redelivered; the
// idempotent upserts absorb the retry.
func (w *Worker) handleJob(ctx context.Context, job *types.Job) error {
	logger := w.logger.With().Str("task_id", job.TaskID).Logger()
	logger.Info().Str("image_path", job.ImagePath).Msg("Processing task")

	metrics.TasksInFlight.Inc()
	defer metrics.TasksInFlight.Dec()
	timer := metrics.NewTimer()

	expiresAt := time.Now().Add(w.cfg.RowTTL)

	// From this row on, polling clients can see the task
	if err := w.store.UpsertTask(ctx, job.TaskID, types.TaskStatusProcessing, expiresAt); err != nil {
		logger.Error().Err(err).Msg("Failed to write processing row")
		return bus.Requeue(fmt.Errorf("failed to write processing row for task %s: %w", job.TaskID, err))
	}
	w.source.PublishProgress(ctx, job.TaskID, types.ProgressProcessing)
	w.publishEvent(events.EventTaskStarted, job.TaskID, "")

	if !vision.FileExists(job.ImagePath) {
		return w.failTask(ctx, job, expiresAt, &vision.FileNotFoundError{Path: job.ImagePath}, logger)
	}

	opts := w.mergeOptions(job.Config)

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.TaskTimeLimit)
	defer cancel()

	payload, err := w.pipeline.Process(jobCtx, job.ImagePath, opts)
	if err != nil {
		return w.failTask(ctx, job, expiresAt, err, logger)
	}

	payload.Status = types.TaskStatusCompleted
	payload.TaskInfo = w.taskInfo(job)

	if w.cfg.DeleteAfterProcess {
		if rmErr := os.Remove(job.ImagePath); rmErr != nil {
			logger.Warn().Err(rmErr).Msg("Failed to delete source image")
			payload.TaskInfo.CleanupError = rmErr.Error()
		}
	}

	if err := w.store.SaveResult(ctx, job.TaskID, payload, expiresAt); err != nil {
		logger.Error().Err(err).Msg("Failed to commit result")
		return bus.Requeue(fmt.Errorf("failed to commit result for task %s: %w", job.TaskID, err))
	}

	w.clearTransient(ctx, job.TaskID, logger)
	w.source.PublishProgress(ctx, job.TaskID, types.ProgressSuccess)
	w.publishEvent(events.EventTaskCompleted, job.TaskID, "")

	metrics.TasksProcessed.WithLabelValues(string(types.TaskStatusCompleted)).Inc()
	timer.ObserveDuration(metrics.TaskDuration)

	done := logger.Info()
	if payload.Summary != nil {
		done = done.Int("objects", payload.Summary.ObjectsCount).Int("qr_codes", payload.Summary.QRCodesCount)
	}
	done.Msg("Task completed")
	return nil
}

// failTask commits the failure payload and reports the error back to
// the bus. The transient entry and the PROCESSING token are kept until
// the terminal row is committed; a failed commit asks for redelivery.
func (w *Worker) failTask(ctx context.Context, job *types.Job, expiresAt time.Time, cause error, logger zerolog.Logger) error {
	logger.Error().Err(cause).Msg("Task failed")

	payload := &types.ResultPayload{
		Status:          types.TaskStatusFailed,
		Error:           cause.Error(),
		DetectedObjects: []types.DetectedObject{},
		QRCodes:         []types.QRCode{},
		TaskInfo:        w.taskInfo(job),
	}

	if err := w.store.SaveResult(ctx, job.TaskID, payload, expiresAt); err != nil {
		logger.Error().Err(err).Msg("Failed to commit failure payload")
		return bus.Requeue(fmt.Errorf("task %s failed: %w", job.TaskID, cause))
	}

	w.clearTransient(ctx, job.TaskID, logger)
	w.source.PublishProgress(ctx, job.TaskID, types.ProgressFailure)
	w.publishEvent(events.EventTaskFailed, job.TaskID, cause.Error())
	metrics.TasksProcessed.WithLabelValues(string(types.TaskStatusFailed)).Inc()

	return fmt.Errorf("task %s failed: %w", job.TaskID, cause)
}

// clearTransient removes the in-flight cache entry. Failure here is
// logged and swallowed; the durable result is already committed.
func (w *Worker) clearTransient(ctx context.Context, taskID string, logger zerolog.Logger) {
	if _, err := w.cache.ClearTaskResult(ctx, taskID); err != nil {
		logger.Warn().Err(err).Msg("Failed to clear transient entry")
	}
}

// mergeOptions lays the per-task overrides over the worker defaults
func (w *Worker) mergeOptions(jc *types.JobConfig) vision.Options {
	opts := vision.Options{
		ModelPath:           w.cfg.ModelPath,
		ConfidenceThreshold: w.cfg.ConfidenceThreshold,
		TargetWidth:         w.cfg.Preprocessing.TargetSize,
		TargetHeight:        w.cfg.Preprocessing.TargetSize,
		EnhanceContrast:     w.cfg.Preprocessing.EnhanceContrast,
		EnableQRDetection:   w.cfg.EnableQRDetection,
		SaveCrops:           w.cfg.SaveCrops,
		SaveProcessedImages: w.cfg.SaveProcessedImages,
		CropsDir:            w.cfg.QRCropsDir,
		OutputsDir:          w.cfg.ProcessedImagesDir,
	}
	if jc == nil {
		return opts
	}
	if jc.ConfidenceThreshold != nil {
		opts.ConfidenceThreshold = *jc.ConfidenceThreshold
	}
	if jc.SaveCrops != nil {
		opts.SaveCrops = *jc.SaveCrops
	}
	if jc.SaveProcessedImages != nil {
		opts.SaveProcessedImages = *jc.SaveProcessedImages
	}
	if jc.EnableQRDetection != nil {
		opts.EnableQRDetection = *jc.EnableQRDetection
	}
	return opts
}

func (w *Worker) taskInfo(job *types.Job) *types.TaskInfo {
	meta := job.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	return &types.TaskInfo{
		TaskID:      job.TaskID,
		ImagePath:   job.ImagePath,
		ProcessedAt: time.Now().UTC().Format(time.RFC3339),
		Metadata:    meta,
	}
}

func (w *Worker) publishEvent(eventType events.EventType, taskID, message string) {
	if w.broker == nil {
		return
	}
	w.broker.Publish(&events.Event{Type: eventType, TaskID: taskID, Message: message})
}
