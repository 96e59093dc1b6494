package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/palletscan/palletscan/pkg/api"
	"github.com/palletscan/palletscan/pkg/bus"
	"github.com/palletscan/palletscan/pkg/cache"
	"github.com/palletscan/palletscan/pkg/config"
	"github.com/palletscan/palletscan/pkg/events"
	"github.com/palletscan/palletscan/pkg/health"
	"github.com/palletscan/palletscan/pkg/log"
	"github.com/palletscan/palletscan/pkg/reconciler"
	"github.com/palletscan/palletscan/pkg/storage"
	"github.com/palletscan/palletscan/pkg/vision"
	"github.com/palletscan/palletscan/pkg/vision/detect"
	"github.com/palletscan/palletscan/pkg/worker"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "palletscan",
	Short: "Palletscan - asynchronous pallet and QR detection service",
	Long: `Palletscan accepts image uploads over HTTP, queues them on a
durable message bus and processes them in background workers running
an object detection and QR decoding pipeline. Results are persisted
and retrievable by task id.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Palletscan version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(workerCmd)
}

// logEvents drains a broker subscription into the log until the
// channel closes
func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for ev := range sub {
		entry := logger.Info().Str("type", string(ev.Type))
		if ev.TaskID != "" {
			entry = entry.Str("task_id", ev.TaskID)
		}
		if ev.Message != "" {
			entry = entry.Str("message", ev.Message)
		}
		entry.Msg("Event")
	}
}

func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	return cfg, nil
}

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the HTTP ingress server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		store, err := storage.NewPostgresStore(cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("failed to open store: %v", err)
		}
		defer store.Close()

		transient, err := cache.NewCache(cfg.RedisURL, cfg.ResultTTL)
		if err != nil {
			return fmt.Errorf("failed to connect cache: %v", err)
		}
		defer transient.Close()

		queue, err := bus.New(bus.Options{
			URL:      cfg.RabbitMQURL,
			Queue:    cfg.QueueName,
			Compress: cfg.CompressPayloads,
			Backend:  transient,
		})
		if err != nil {
			return fmt.Errorf("failed to connect bus: %v", err)
		}
		defer queue.Close()

		for _, dir := range []string{cfg.UploadsDir, cfg.QRCropsDir, cfg.ProcessedImagesDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %v", dir, err)
			}
		}

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()
		go logEvents(broker.Subscribe())

		recon := reconciler.New(store, broker, cfg.SweepInterval,
			health.NewStoreChecker(store),
			health.NewBusChecker(queue),
			health.NewDirsChecker(cfg.UploadsDir, cfg.QRCropsDir, cfg.ProcessedImagesDir),
		)
		recon.Start()
		defer recon.Stop()

		server := api.NewServer(cfg, store, transient, queue)
		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil {
				errCh <- fmt.Errorf("API server error: %v", err)
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("Shutting down")
		case err := <-errCh:
			return err
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a background processing worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		store, err := storage.NewPostgresStore(cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("failed to open store: %v", err)
		}
		defer store.Close()

		transient, err := cache.NewCache(cfg.RedisURL, cfg.ResultTTL)
		if err != nil {
			return fmt.Errorf("failed to connect cache: %v", err)
		}
		defer transient.Close()

		queue, err := bus.New(bus.Options{
			URL:      cfg.RabbitMQURL,
			Queue:    cfg.QueueName,
			Compress: cfg.CompressPayloads,
			Backend:  transient,
		})
		if err != nil {
			return fmt.Errorf("failed to connect bus: %v", err)
		}
		defer queue.Close()

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()
		go logEvents(broker.Subscribe())

		slot := detect.NewSlot(detect.NewYOLODetector)
		defer slot.Close()
		slot.OnLoad(func(modelPath string, rebuilt bool) {
			eventType := events.EventModelLoaded
			if rebuilt {
				eventType = events.EventModelRebuilt
			}
			broker.Publish(&events.Event{Type: eventType, Message: modelPath})
		})
		pipeline := vision.NewProcessor(slot)

		hostname, _ := os.Hostname()
		workerID := fmt.Sprintf("palletscan-worker-%s-%d", hostname, os.Getpid())
		w := worker.New(workerID, cfg, store, transient, queue, pipeline, broker)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			log.Info("Shutting down")
			cancel()
		}()

		if err := w.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}
