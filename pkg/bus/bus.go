package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/palletscan/palletscan/pkg/log"
	"github.com/palletscan/palletscan/pkg/metrics"
	"github.com/palletscan/palletscan/pkg/types"
)

// ResultBackend receives in-flight state tokens published alongside
// queue traffic. The transient cache satisfies this.
type ResultBackend interface {
	SetProgress(ctx context.Context, taskID string, state types.ProgressState) error
}

// Handler processes a single dequeued job. A nil return acknowledges
// the message; a plain error discards it. An error wrapped with
// Requeue puts the message back on the queue for redelivery.
type Handler func(ctx context.Context, job *types.Job) error

// RequeueError marks a failure that must not discard the message. The
// handler returns it when no terminal state was committed, so the only
// safe answer is redelivery.
type RequeueError struct {
	Err error
}

func (e *RequeueError) Error() string { return e.Err.Error() }

func (e *RequeueError) Unwrap() error { return e.Err }

// Requeue wraps err so the consume loop redelivers the message instead
// of discarding it
func Requeue(err error) error {
	return &RequeueError{Err: err}
}

// Bus wraps an AMQP connection serving one durable work queue
type Bus struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	compress bool
	backend  ResultBackend
	logger   zerolog.Logger
}

// Options configures the bus connection
type Options struct {
	URL      string
	Queue    string
	Compress bool
	Backend  ResultBackend
}

// New connects to the broker and declares the durable work queue
func New(opts Options) (*Bus, error) {
	conn, err := amqp.Dial(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(opts.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", opts.Queue, err)
	}

	logger := log.WithComponent("bus")
	logger.Info().Str("queue", opts.Queue).Msg("Connected to message bus")

	return &Bus{
		conn:     conn,
		ch:       ch,
		queue:    opts.Queue,
		compress: opts.Compress,
		backend:  opts.Backend,
		logger:   logger,
	}, nil
}

// Enqueue publishes a job for the given image and returns the new task
// id. The PENDING token is written to the result backend best-effort;
// queue delivery is the source of truth.
func (b *Bus) Enqueue(ctx context.Context, imagePath string, metadata map[string]string, cfg *types.JobConfig) (string, error) {
	taskID := uuid.New().String()
	job := &types.Job{
		TaskID:    taskID,
		ImagePath: imagePath,
		Metadata:  metadata,
		Config:    cfg,
	}

	body, encoding, err := encodeJob(job, b.compress)
	if err != nil {
		return "", err
	}

	err = b.ch.PublishWithContext(ctx, "", b.queue, false, false, amqp.Publishing{
		ContentType:     contentTypeJSON,
		ContentEncoding: encoding,
		DeliveryMode:    amqp.Persistent,
		MessageId:       taskID,
		Timestamp:       time.Now().UTC(),
		Body:            body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish job: %w", err)
	}

	if b.backend != nil {
		if perr := b.backend.SetProgress(ctx, taskID, types.ProgressPending); perr != nil {
			b.logger.Warn().Err(perr).Str("task_id", taskID).Msg("Failed to record pending state")
		}
	}

	metrics.TasksEnqueued.Inc()
	b.logger.Debug().Str("task_id", taskID).Str("image_path", imagePath).Msg("Job enqueued")
	return taskID, nil
}

// Consume dequeues jobs one at a time and invokes the handler.
// Prefetch is fixed at 1 and acknowledgment is deferred until the
// handler returns, so a crash mid-job leads to redelivery. The call
// blocks until ctx is cancelled or the delivery stream closes.
func (b *Bus) Consume(ctx context.Context, consumerTag string, handler Handler) error {
	if err := b.ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := b.ch.Consume(b.queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			b.ch.Cancel(consumerTag, false)
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			b.handleDelivery(ctx, d, handler)
		}
	}
}

func (b *Bus) handleDelivery(ctx context.Context, d amqp.Delivery, handler Handler) {
	job, err := decodeJob(d.Body, d.ContentEncoding)
	if err != nil {
		b.logger.Error().Err(err).Msg("Discarding undecodable message")
		d.Nack(false, false)
		return
	}

	if err := handler(ctx, job); err != nil {
		var rq *RequeueError
		if errors.As(err, &rq) {
			b.logger.Warn().Err(err).Str("task_id", job.TaskID).Msg("Job failed before terminal commit, requeueing")
			d.Nack(false, true)
			return
		}
		b.logger.Error().Err(err).Str("task_id", job.TaskID).Msg("Job failed")
		d.Nack(false, false)
		return
	}
	d.Ack(false)
}

// PublishProgress writes a state token for a task to the result backend
func (b *Bus) PublishProgress(ctx context.Context, taskID string, state types.ProgressState) {
	if b.backend == nil {
		return
	}
	if err := b.backend.SetProgress(ctx, taskID, state); err != nil {
		b.logger.Warn().Err(err).Str("task_id", taskID).Msg("Failed to publish progress")
	}
}

// InspectWorkers reports the queue depth and the number of attached
// consumers. At least one consumer means the worker fleet is alive.
func (b *Bus) InspectWorkers() (messages int, consumers int, err error) {
	q, err := b.ch.QueueDeclarePassive(b.queue, true, false, false, false, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to inspect queue %s: %w", b.queue, err)
	}
	return q.Messages, q.Consumers, nil
}

// HealthCheck verifies the connection and queue are reachable
func (b *Bus) HealthCheck(ctx context.Context) *types.HealthReport {
	report := &types.HealthReport{Timestamp: time.Now().UTC()}
	if b.conn.IsClosed() {
		report.Status = "unhealthy"
		report.Error = "connection closed"
		return report
	}
	if _, _, err := b.InspectWorkers(); err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
		return report
	}
	report.Status = "healthy"
	return report
}

// Close shuts down the channel and connection
func (b *Bus) Close() error {
	b.logger.Info().Msg("Closing bus connection")
	if err := b.ch.Close(); err != nil {
		b.conn.Close()
		return err
	}
	return b.conn.Close()
}
