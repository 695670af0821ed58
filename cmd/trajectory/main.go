// trajectory: track people in a video, map them onto the ground plane and
// forecast where they are heading. Serves a live dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-trajectory/internal/config"
	"github.com/teslashibe/go-trajectory/internal/log"
	"github.com/teslashibe/go-trajectory/pkg/detection"
	"github.com/teslashibe/go-trajectory/pkg/forecast"
	"github.com/teslashibe/go-trajectory/pkg/plan"
	"github.com/teslashibe/go-trajectory/pkg/playback"
	"github.com/teslashibe/go-trajectory/pkg/prediction"
	"github.com/teslashibe/go-trajectory/pkg/store"
	"github.com/teslashibe/go-trajectory/pkg/tracking"
	"github.com/teslashibe/go-trajectory/pkg/web"
)

var (
	version    = "0.1.0"
	configPath = flag.String("config", "", "YAML config file")
	videoPath  = flag.String("video", "", "Video file (overrides config)")
	modelPath  = flag.String("model", "", "YOLO ONNX model (overrides config)")
	port       = flag.String("port", "", "Dashboard port (overrides config)")
	dbPath     = flag.String("db", "", "Record sessions to this SQLite file")
	noRemote   = flag.Bool("no-remote", false, "Forecast with the linear extrapolator only")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyFlags(cfg)

	level := cfg.LogLevel
	if *debug {
		level = "debug"
	}
	log.Init(level)
	logger := log.L()
	logger.Info("trajectory starting", "version", version, "video", cfg.Video)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("trajectory failed", "error", err)
		os.Exit(1)
	}
	logger.Info("trajectory stopped")
}

func applyFlags(cfg *config.File) {
	if *videoPath != "" {
		cfg.Video = *videoPath
	}
	if *modelPath != "" {
		cfg.Detection.Model = *modelPath
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
}

func run(ctx context.Context, cfg *config.File, logger *slog.Logger) error {
	if err := cfg.Calibration.Validate(); err != nil {
		return err
	}

	tracks := tracking.NewStore(cfg.Tracking)
	ingester := tracking.NewIngester(tracks, cfg.Calibration, logger)

	forecaster, err := newForecaster(cfg, logger)
	if err != nil {
		return err
	}
	defer forecaster.Close()
	scheduler := prediction.NewScheduler(tracks, forecaster, cfg.Cadence, logger)

	// Detection failures are fatal before the first tick.
	source, err := openSource(cfg, tracks, logger)
	if err != nil {
		return err
	}

	planner, err := plan.New(cfg.Plan, logger)
	if err != nil {
		source.Close()
		return err
	}
	server := web.NewServer(cfg.Server, tracks, planner, logger)

	renderers := playback.MultiRenderer{server}
	if cfg.Store.Path != "" {
		recorder, err := store.Open(cfg.Store, logger)
		if err != nil {
			source.Close()
			return err
		}
		defer recorder.Close()
		renderers = append(renderers, recorder)
		server.AttachHistory(recorder)
	}

	controller := playback.NewController(cfg.Playback, source, tracks, ingester, scheduler, renderers, logger)
	server.Attach(controller)

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	go func() {
		if err := server.Start(serverCtx); err != nil {
			logger.Error("dashboard failed", "error", err)
		}
	}()

	err = controller.Run(ctx)
	if sum, ok := controller.Summary(); ok {
		logger.Info("session summary",
			"reason", sum.Reason,
			"consumed", sum.Consumed,
			"rendered", sum.Rendered,
			"discarded", sum.Discarded,
			"predictions", sum.Predictions,
		)
	}
	if err != nil {
		return err
	}

	// Keep the dashboard up after the video ends until interrupted.
	logger.Info("video ended, dashboard still serving", "url", "http://localhost:"+cfg.Server.Port)
	<-ctx.Done()
	return nil
}

// newForecaster chains the remote model with the linear fallback.
func newForecaster(cfg *config.File, logger *slog.Logger) (forecast.Forecaster, error) {
	linear := forecast.NewLinear(cfg.Cadence.OutputLength)
	if *noRemote || cfg.Forecast.BaseURL == "" {
		logger.Info("forecasting with linear extrapolation")
		return linear, nil
	}

	client, err := forecast.NewClient(
		forecast.WithBaseURL(cfg.Forecast.BaseURL),
		forecast.WithModel(cfg.Forecast.Model),
		forecast.WithTimeout(cfg.Forecast.Timeout),
		forecast.WithRetry(cfg.Forecast.MaxRetries, cfg.Forecast.RetryDelay),
		forecast.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	if !cfg.Forecast.Fallback {
		return client, nil
	}
	return forecast.NewChainWithLogger(logger, client, linear)
}

func openSource(cfg *config.File, tracks *tracking.Store, logger *slog.Logger) (*detection.VideoSource, error) {
	yolo := detection.DefaultYOLOConfig()
	yolo.ModelPath = cfg.Detection.Model
	yolo.ConfidenceThresh = cfg.Detection.Confidence
	yolo.NMSThresh = cfg.Detection.NMS
	yolo.InputWidth, yolo.InputHeight = cfg.Detection.InputSize, cfg.Detection.InputSize

	detector, err := detection.NewYOLO(yolo, logger)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	tracker := detection.NewIoUTracker(detection.IoUTrackerConfig{
		MinIoU:    cfg.Detection.MinIoU,
		MaxMisses: cfg.Detection.MaxMisses,
	})
	annotator := detection.NewAnnotator(detection.DefaultAnnotateStyle(), cfg.Calibration, tracks)

	source, err := detection.OpenVideo(detection.VideoConfig{
		Path:        cfg.Video,
		JPEGQuality: cfg.Detection.JPEGQuality,
	}, detector, tracker, annotator, logger)
	if err != nil {
		detector.Close()
		return nil, err
	}
	return source, nil
}

