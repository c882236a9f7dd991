package app

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/droneworks/tellostation/internal/flightlog"
	"github.com/droneworks/tellostation/internal/hud"
	"github.com/droneworks/tellostation/internal/tello"
	"github.com/droneworks/tellostation/internal/video"
)

const (
	storageDir     = "data"
	commandLogSize = 256
)

// Run connects to the vehicle and records telemetry, the command audit
// trail and optional video snapshots until ctx is cancelled.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, dbPath, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	commandLog := make(chan tello.Exchange, commandLogSize)

	options := []func(*tello.Controller){
		tello.WithControllerLogger(logger),
		tello.WithDroneAddr(config.Drone.Addr),
		tello.WithLocalPorts(config.Drone.LocalCommandPort, config.Drone.TelemetryPort),
		tello.WithChannelOptions(
			tello.WithKeepAliveIdle(seconds(config.Drone.KeepAliveIdle)),
			tello.WithCommandObserver(func(e tello.Exchange) {
				select {
				case commandLog <- e:
				default: // recording must never stall the command channel
				}
			}),
		),
	}

	if config.Video.Enabled {
		source := video.NewUDPSource(fmt.Sprintf(":%d", config.Drone.VideoPort))
		options = append(options, tello.WithVideoMonitor(video.NewMonitor(source,
			video.WithLogger(logger),
			video.WithStableThreshold(config.Video.StableThreshold),
			video.WithFrameTimeout(seconds(config.Video.FrameTimeout)),
		)))
	}

	controller := tello.NewController(options...)
	if err = controller.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer controller.Disconnect()

	sessionID, err := store.CreateSession(ctx, config.Drone.Addr, config)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	logger.Info("flight session started",
		slog.Int64("session", sessionID),
		slog.String("database", dbPath))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range commandLog {
			if err := store.StoreCommand(context.Background(), sessionID, flightlog.CommandFromExchange(e)); err != nil {
				logger.Warn("storing command record", slog.String("error", err.Error()))
			}
		}
	}()

	var annotator *hud.Annotator
	if config.Video.Enabled {
		if err = controller.StartVideoStream(seconds(config.Video.StartTimeout)); err != nil {
			logger.Warn("video stream unavailable", slog.String("error", err.Error()))
		} else if config.HUD.Enabled {
			if annotator, err = hud.NewAnnotator(config.HUD.FontPath); err != nil {
				logger.Warn("hud disabled", slog.String("error", err.Error()))
			}
		}
	}

	telemetryTicker := time.NewTicker(seconds(config.Storage.TelemetryInterval))
	defer telemetryTicker.Stop()

	var snapshotC <-chan time.Time
	if config.Video.Enabled && config.Video.SnapshotInterval > 0 && config.Video.SnapshotDir != "" {
		snapshotTicker := time.NewTicker(seconds(config.Video.SnapshotInterval))
		defer snapshotTicker.Stop()
		snapshotC = snapshotTicker.C
	}

	batch := make([]flightlog.TelemetryRow, 0, config.Storage.MaxBatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := store.StoreTelemetryBatch(ctx, sessionID, batch); err != nil {
			logger.Warn("storing telemetry batch", slog.String("error", err.Error()))
		}
		batch = batch[:0]
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case <-telemetryTicker.C:
			batch = append(batch, flightlog.TelemetryFromStatus(time.Now(), controller.Status()))
			if len(batch) >= config.Storage.MaxBatchSize {
				flush(ctx)
			}

		case <-snapshotC:
			saveSnapshot(controller, annotator, config.Video.SnapshotDir, logger)
		}
	}

	logger.Info("shutting down", slog.Int64("session", sessionID))

	if config.Video.Enabled {
		if err = controller.StopVideoStream(); err != nil {
			logger.Warn("stopping video stream", slog.String("error", err.Error()))
		}
	}
	if err = controller.Disconnect(); err != nil {
		logger.Warn("disconnecting", slog.String("error", err.Error()))
	}

	close(commandLog)
	wg.Wait()

	flush(context.Background())
	if err = store.Close(); err != nil {
		return fmt.Errorf("closing storage: %w", err)
	}

	if stat, statErr := os.Stat(dbPath); statErr == nil {
		logger.Info("flight session recorded",
			slog.Int64("session", sessionID),
			slog.String("database", dbPath),
			slog.String("size", humanize.Bytes(uint64(stat.Size()))))
	}
	return nil
}

// saveSnapshot writes the latest decoded frame to the snapshot directory,
// with the telemetry overlay when a HUD annotator is configured. Frames the
// source could not decode into RGBA are skipped.
func saveSnapshot(controller *tello.Controller, annotator *hud.Annotator, dir string, logger *slog.Logger) {
	frame, ok := controller.Frame()
	if !ok {
		return
	}

	img := frame.RGBA()
	if img == nil {
		return
	}

	captured := time.Now()
	if annotator != nil {
		if err := annotator.Annotate(img, controller.Status(), captured); err != nil {
			logger.Warn("annotating snapshot", slog.String("error", err.Error()))
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("frame_%s.png", captured.UTC().Format("20060102_150405")))
	out, err := os.Create(path)
	if err != nil {
		logger.Warn("creating snapshot file", slog.String("error", err.Error()))
		return
	}
	defer out.Close()

	if err = png.Encode(out, img); err != nil {
		logger.Warn("encoding snapshot", slog.String("error", err.Error()))
	}
}

func createStorage(config *StorageConfig) (*flightlog.Store, string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	var dbDir string
	if config.DataDirectory != "" {
		dbDir = filepath.Join(wd, config.DataDirectory)
	} else {
		dbDir = filepath.Join(wd, storageDir)
	}

	stat, err := os.Stat(dbDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("storage directory '%s' does not exist: %w", dbDir, err)
		}
		return nil, "", fmt.Errorf("checking storage directory '%s': %w", dbDir, err)
	}
	if !stat.IsDir() {
		return nil, "", fmt.Errorf("invalid storage directory '%s'", dbDir)
	}

	dbPath := filepath.Join(dbDir, fmt.Sprintf("flight_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return flightlog.NewStore(dbPath), dbPath, nil
}
