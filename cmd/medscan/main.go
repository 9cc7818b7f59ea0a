package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/jo-hoe/medscan/internal/analysis"
	"github.com/jo-hoe/medscan/internal/backend"
	"github.com/jo-hoe/medscan/internal/backend/database"
	"github.com/jo-hoe/medscan/internal/common"
	"github.com/jo-hoe/medscan/internal/core"
	"github.com/jo-hoe/medscan/internal/frontend"
	"github.com/jo-hoe/medscan/internal/hardware"
	"github.com/jo-hoe/medscan/internal/imageprocessing"
	"github.com/jo-hoe/medscan/internal/metrics"
	"github.com/jo-hoe/medscan/internal/ocr"
	"github.com/jo-hoe/medscan/internal/ocr/tesseract"
	"github.com/jo-hoe/medscan/internal/retention"
	"github.com/jo-hoe/medscan/internal/scanner"
	"github.com/jo-hoe/medscan/internal/speech"
	"github.com/jo-hoe/medscan/internal/speech/googletts"
	"github.com/jo-hoe/medscan/internal/translate"
)

func getConfigPath() string {
	// First check if config path is provided via environment variable
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return configPath
	}

	// Default to config.yaml in current working directory
	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return filepath.Join(cwd, "config.yaml")
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env file: %v\n", err)
	}

	logCloser, err := setupLogging()
	if err != nil {
		slog.Warn("file logging disabled", "error", err)
	}
	defer func() { _ = logCloser.Close() }()

	if err := run(); err != nil {
		slog.Error("medscan stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := getConfigPath()
	config, err := core.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}
	slog.Info("configuration loaded",
		"path", configPath,
		"server_mode", config.ServerMode,
		"use_local_models", config.UseLocalModels,
		"use_api_fallback", config.UseAPIFallback,
		"languages", config.SupportedLanguages)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(config.OutputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	db, err := database.NewDatabase(ctx, config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)

	deps, cleanup, err := buildDependencies(ctx, config, db)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer cleanup()

	coreService, err := core.NewCoreService(config, deps)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() {
		if err := coreService.Close(); err != nil {
			slog.Error("core service close error", "error", err)
		}
	}()

	interval, _ := config.RetentionInterval()
	pruner := retention.NewPruner(config.Retention, config.TempPath, config.OutputPath, db)
	go pruner.Run(ctx, interval, func(r retention.Report) {
		deps.Metrics.Pruned.WithLabelValues("scan_file").Add(float64(r.ScanFiles))
		deps.Metrics.Pruned.WithLabelValues("result_file").Add(float64(r.ResultFiles))
		deps.Metrics.Pruned.WithLabelValues("result_row").Add(float64(r.ResultRows))
	})

	var server *echo.Echo
	if config.ServerMode {
		server = defineServer()
		backend.NewAPIService(config, coreService).SetRoutes(server)
		frontend.NewFrontendService(config, coreService).SetRoutes(server)

		portString := fmt.Sprintf(":%d", config.Port)
		go func() {
			if err := server.Start(portString); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "error", err)
			}
		}()
	}

	coreService.Startup(ctx)

	watcherDone := make(chan struct{})
	go func() {
		coreService.WatchButton(ctx)
		close(watcherDone)
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}
	<-watcherDone
	return nil
}

// buildDependencies creates the pipeline collaborators from the configuration.
// The returned cleanup releases external clients.
func buildDependencies(ctx context.Context, config *core.ServiceConfig, db database.DatabaseService) (core.Dependencies, func(), error) {
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("cleanup failed", "error", err)
			}
		}
	}
	fail := func(err error) (core.Dependencies, func(), error) {
		cleanup()
		return core.Dependencies{}, func() {}, err
	}

	scan, err := scanner.New(config.ScannerConfig())
	if err != nil {
		return fail(fmt.Errorf("failed to create scanner: %w", err))
	}

	var engine ocr.Engine = ocr.NoopEngine{}
	if config.OCR.Engine == "tesseract" {
		engine = tesseract.NewEngine()
	}

	preprocessor, err := imageprocessing.NewCommandInvokerFromConfig(imageprocessing.DefaultRegistry, config.Preprocessing)
	if err != nil {
		return fail(fmt.Errorf("failed to build preprocessing chain: %w", err))
	}

	local, err := analysis.BuildAnalyzers(analysis.DefaultRegistry, config.Analyzers)
	if err != nil {
		return fail(fmt.Errorf("failed to build analyzers: %w", err))
	}
	var remote analysis.Analyzer
	if config.APIEndpoint != "" {
		remote, err = analysis.NewRemoteAnalyzer(config.APIEndpoint, config.APIKey, config.APITimeout())
		if err != nil {
			return fail(fmt.Errorf("failed to create remote analyzer: %w", err))
		}
	} else {
		slog.Warn("no api_endpoint configured, documents without a local analyzer cannot be analyzed")
	}
	dispatcher := analysis.NewDispatcher(local, remote, analysis.DispatcherOptions{
		UseLocalModels:      config.UseLocalModels,
		UseAPIFallback:      config.UseAPIFallback,
		ConfidenceThreshold: config.ConfidenceThreshold,
	})

	translator, err := translate.New(config.Translation)
	if err != nil {
		return fail(fmt.Errorf("failed to create translator: %w", err))
	}

	var synthesizer speech.Synthesizer = speech.SilentSynthesizer{}
	if config.Speech.Provider == "google" {
		google, err := googletts.New(ctx, config.Speech.Google)
		if err != nil {
			return fail(fmt.Errorf("failed to create speech synthesizer: %w", err))
		}
		closers = append(closers, google.Close)
		synthesizer = google
	}
	player, err := speech.NewCommandPlayer(config.Speech.PlayerCommand, config.Speech.PlayerArgs, config.AudioVolume, common.RunCommand)
	if err != nil {
		return fail(fmt.Errorf("failed to create audio player: %w", err))
	}
	speaker := speech.NewSpeaker(synthesizer, translator, player, config.TempPath, config.SupportedLanguages)
	if err := speaker.Prepare(ctx); err != nil {
		slog.Warn("some system messages could not be prepared", "error", err)
	}

	panel, err := hardware.NewPanel(config.Hardware)
	if err != nil {
		slog.Error("hardware initialization failed, continuing without panel", "error", err)
		panel = hardware.Noop{}
	}

	return core.Dependencies{
		Scanner:      scan,
		OCR:          engine,
		Preprocessor: preprocessor,
		Dispatcher:   dispatcher,
		Announcer:    speaker,
		Panel:        panel,
		Database:     db,
		Metrics:      metrics.New(),
	}, cleanup, nil
}

func defineServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Configure request logger to skip the probe endpoint
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/probe"
		},
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogError:     true,
		LogRemoteIP:  true,
		LogRoutePath: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"route", v.RoutePath,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				slog.Error("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.Info("request", attrs...)
			return nil
		},
	}))

	e.Use(middleware.Recover())
	e.Pre(middleware.RemoveTrailingSlash())

	e.Validator = &common.GenericEchoValidator{}

	return e
}
