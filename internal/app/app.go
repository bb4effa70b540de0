// Package app provides application-level orchestration and dependency injection.
// This package wires together all components and manages the application lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"github.com/jonboulle/clockwork"

	"github.com/primalradio/primalradio/internal/adapter/audio/mock"
	"github.com/primalradio/primalradio/internal/adapter/audio/mpv"
	"github.com/primalradio/primalradio/internal/adapter/eventbus"
	"github.com/primalradio/primalradio/internal/adapter/repository/memory"
	"github.com/primalradio/primalradio/internal/adapter/status"
	fyneui "github.com/primalradio/primalradio/internal/adapter/ui/fyne"
	"github.com/primalradio/primalradio/internal/adapter/web"
	"github.com/primalradio/primalradio/internal/config"
	"github.com/primalradio/primalradio/internal/directory"
	"github.com/primalradio/primalradio/internal/logger"
	"github.com/primalradio/primalradio/internal/metrics"
	"github.com/primalradio/primalradio/internal/ports"
	"github.com/primalradio/primalradio/internal/schedule"
	"github.com/primalradio/primalradio/internal/service"
)

// shutdownTimeout bounds the web surface shutdown.
const shutdownTimeout = 5 * time.Second

// Application is the root application structure that holds all dependencies.
// It follows the Dependency Injection pattern with constructor-based injection.
//
// The Application struct is responsible for:
// - Creating and wiring all dependencies
// - Managing the application lifecycle (startup, shutdown)
// - Providing a clean entry point for main.go
type Application struct {
	// Core dependencies
	config  Config
	logger  *slog.Logger
	fyneApp fyne.App
	clock   clockwork.Clock
	metrics *metrics.Metrics

	// Infrastructure
	eventBus    ports.EventBus
	audioOutput ports.AudioOutput
	directory   *directory.Directory
	schedule    *schedule.Resolver

	// Repositories
	preferencesRepo ports.PreferencesRepository

	// Services
	playbackService *service.PlaybackService
	metadataService *service.MetadataService
	rotationService *service.RotationService

	// Display surfaces
	presenter  *fyneui.Presenter
	mainWindow *fyneui.MainWindow
	webServer  *web.Server

	shutdownOnce sync.Once
	shutdownErr  error
}

// Config holds application configuration.
type Config struct {
	// AppID is the unique application identifier
	AppID string

	// AppName is the display name
	AppName string

	// UseMockAudio selects the in-memory audio output instead of mpv
	UseMockAudio bool

	// MPVPath is the mpv executable
	MPVPath string

	// MPVSocket is the mpv IPC socket (empty for the default)
	MPVSocket string

	// StartTimeout bounds how long a play attempt waits for the stream
	StartTimeout time.Duration

	// PollInterval is the metadata poll period
	PollInterval time.Duration

	// RequestTimeout bounds one status request
	RequestTimeout time.Duration

	// RotationDir is scanned at startup for placeholder rotation tracks (optional)
	RotationDir string

	// WebEnabled starts the HTTP surface on WebAddr
	WebEnabled bool
	WebAddr    string

	// Headless runs without a window
	Headless bool

	// LogLevel controls logging verbosity
	LogLevel slog.Level

	// LogFormat is "text" or "json"
	LogFormat string

	// LogOutput overrides the log destination (stderr when nil)
	LogOutput io.Writer

	// TestFyneApp allows injecting a test Fyne app for testing (nil for production)
	TestFyneApp fyne.App
}

// DefaultConfig returns the default application configuration.
func DefaultConfig() Config {
	loggerCfg := logger.DefaultConfig()
	return Config{
		AppID:          "com.primalradio.player",
		AppName:        "Primal Radio",
		UseMockAudio:   false,
		MPVPath:        "mpv",
		StartTimeout:   mpv.DefaultStartTimeout,
		PollInterval:   service.DefaultPollInterval,
		RequestTimeout: status.DefaultTimeout,
		WebAddr:        "127.0.0.1:8090",
		LogLevel:       loggerCfg.Level,
		LogFormat:      loggerCfg.Format,
	}
}

// ConfigFrom maps loaded settings onto the application configuration.
func ConfigFrom(settings *config.Config) Config {
	cfg := DefaultConfig()
	cfg.AppID = settings.App.ID
	cfg.AppName = settings.App.Name
	cfg.UseMockAudio = settings.Audio.Backend == config.BackendMock
	cfg.MPVPath = settings.Audio.MPVPath
	cfg.MPVSocket = settings.Audio.SocketPath
	cfg.StartTimeout = settings.Audio.StartTimeout
	cfg.PollInterval = settings.Metadata.PollInterval
	cfg.RequestTimeout = settings.Metadata.RequestTimeout
	cfg.RotationDir = settings.Metadata.RotationDir
	cfg.WebEnabled = settings.Web.Enabled
	cfg.WebAddr = settings.Web.Addr
	cfg.Headless = settings.UI.Headless
	cfg.LogLevel = logger.ParseLevel(settings.Log.Level, cfg.LogLevel)
	cfg.LogFormat = settings.Log.Format
	return cfg
}

// NewApplication creates a new application with all dependencies wired.
// This is the main dependency injection function.
func NewApplication(ctx context.Context, config Config) (*Application, error) {
	app := &Application{
		config: config,
		clock:  clockwork.NewRealClock(),
	}

	// Step 1: Create logger
	app.logger = logger.NewLogger(logger.Config{
		Level:  config.LogLevel,
		Format: config.LogFormat,
		Output: config.LogOutput,
	})
	app.logger.Info("initializing application",
		slog.String("app_id", config.AppID),
		slog.String("version", GetVersionInfo().FullString()),
		slog.Bool("headless", config.Headless))

	// Step 2: Create Fyne application. Headless runs have no window and no
	// preference store.
	switch {
	case config.TestFyneApp != nil:
		app.fyneApp = config.TestFyneApp
	case !config.Headless:
		app.fyneApp = fyneapp.NewWithID(config.AppID)
	}

	// Step 3: Create an event bus and metrics
	app.eventBus = eventbus.NewSyncEventBus(app.logger.With(slog.String("component", "eventbus")))
	app.metrics = metrics.New()

	// Step 4: Create an audio output
	if config.UseMockAudio {
		app.audioOutput = mock.NewOutput(app.logger.With(slog.String("output", "mock")), app.eventBus)
	} else {
		output := mpv.NewOutput(app.logger.With(slog.String("output", "mpv")), app.eventBus, mpv.Config{
			Executable:   config.MPVPath,
			SocketPath:   config.MPVSocket,
			StartTimeout: config.StartTimeout,
		})
		if err := output.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize audio output: %w", err)
		}
		app.audioOutput = output
	}

	// Step 5: Create repositories
	if app.fyneApp != nil {
		app.preferencesRepo = memory.NewPreferencesRepository(app.fyneApp.Preferences())
	}

	// Step 6: Station directory and schedule
	app.directory = directory.New()
	resolver, err := schedule.NewDefaultResolver()
	if err != nil {
		_ = app.audioOutput.Close()
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	app.schedule = resolver

	// Step 7: Create services (with dependency injection)
	app.playbackService = service.NewPlaybackService(
		app.logger,
		app.audioOutput,
		app.eventBus,
		app.preferencesRepo,
		app.directory,
		app.clock,
		app.metrics,
		service.DefaultReconnectPolicy(),
	)

	app.metadataService = service.NewMetadataService(
		app.logger,
		status.NewClient(app.logger,
			status.WithTimeout(config.RequestTimeout),
			status.WithUserAgent(GetVersionInfo().UserAgent())),
		app.schedule,
		app.eventBus,
		app.clock,
		app.metrics,
		service.MetadataConfig{
			Interval:  config.PollInterval,
			Endpoints: app.directory.StatusEndpoints(),
		},
	)

	app.rotationService = service.NewRotationService(app.logger, app.eventBus)

	// Step 8: Load the local rotation, if any
	if config.RotationDir != "" {
		if err := app.loadRotation(ctx, config.RotationDir); err != nil {
			// Non-fatal - the compiled-in rotation stays in place
			app.logger.Warn("failed to load rotation folder", slog.Any("error", err))
		}
	}

	// Step 9: Create UI
	if !config.Headless {
		app.mainWindow = fyneui.NewMainWindow(app.fyneApp,
			app.logger.With(slog.String("component", "window")),
			GetVersionInfo().FullString())

		app.presenter = fyneui.NewPresenter(
			app.logger.With(slog.String("component", "presenter")),
			app.playbackService,
			app.metadataService,
			app.rotationService,
			app.directory,
			app.eventBus,
			app.mainWindow,
		)

		// Connect presenter to the main window
		app.mainWindow.SetPresenter(app.presenter)
	}

	// Step 10: Create the web surface
	if config.WebEnabled {
		app.webServer = web.NewServer(app.logger, web.Deps{
			Directory: app.directory,
			Schedule:  app.schedule,
			Metadata:  app.metadataService,
			Playback:  app.playbackService,
			Bus:       app.eventBus,
			Metrics:   app.metrics,
			Clock:     app.clock,
			Debug:     config.LogLevel <= slog.LevelDebug,
		})
	}

	return app, nil
}

// loadRotation scans a folder and uses its tracks for the placeholder rotation.
func (a *Application) loadRotation(ctx context.Context, dir string) error {
	tracks, err := a.rotationService.ScanFolder(ctx, dir)
	if err != nil {
		return err
	}
	if len(tracks) > 0 {
		a.metadataService.SetRotation(tracks)
	}
	a.logger.Info("rotation loaded", slog.String("dir", dir), slog.Int("tracks", len(tracks)))
	return nil
}

// Run starts polling and the optional web surface, then blocks until the window
// closes or, when headless, until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	if err := a.metadataService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metadata poller: %w", err)
	}

	if a.webServer != nil {
		go func() {
			if err := a.webServer.ListenAndServe(a.config.WebAddr); err != nil {
				a.logger.Error("web surface stopped", slog.Any("error", err))
			}
		}()
	}

	a.logger.Info("Primal Radio started")

	if a.config.Headless {
		a.startHeadless(ctx)
		<-ctx.Done()
		return nil
	}

	// A signal closes the window from the UI thread
	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			fyne.Do(a.mainWindow.Close)
		case <-closed:
		}
	}()

	// Show and run UI (blocks until the window is closed)
	a.mainWindow.ShowAndRun()
	return nil
}

// startHeadless tunes to the restored station (or the default) and starts playing.
func (a *Application) startHeadless(ctx context.Context) {
	station := a.playbackService.CurrentStation()
	if station == nil {
		def := a.directory.Default()
		if err := a.playbackService.SetCurrentStation(&def); err != nil {
			a.logger.Error("failed to select default station", slog.Any("error", err))
			return
		}
		station = &def
	}

	a.metadataService.SetCurrentStation(ctx, station.ID)

	if err := a.playbackService.TogglePlay(); err != nil {
		// Network failures keep retrying in the background
		a.logger.Warn("initial play failed", slog.String("station", station.ID), slog.Any("error", err))
	}
}

// Shutdown gracefully shuts down the application.
// It's safe to call multiple times (idempotent).
func (a *Application) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.shutdown()
	})
	return a.shutdownErr
}

func (a *Application) shutdown() error {
	a.logger.Info("shutting down application")

	var errs []error

	// Shutdown UI and presenter
	if a.presenter != nil {
		a.presenter.Shutdown()
	}

	if a.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.webServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("web surface: %w", err))
		}
		cancel()
	}

	// Shutdown services (in reverse order of creation)
	a.rotationService.CancelScan()
	a.metadataService.Stop()

	// Closes the audio output as well
	if err := a.playbackService.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("playback: %w", err))
	}

	if err := a.eventBus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("event bus: %w", err))
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// GetServices returns the application services.
func (a *Application) GetServices() (*service.PlaybackService, *service.MetadataService, *service.RotationService) {
	return a.playbackService, a.metadataService, a.rotationService
}

// GetEventBus returns the event bus.
func (a *Application) GetEventBus() ports.EventBus {
	return a.eventBus
}

// GetFyneApp returns the Fyne application (nil when headless).
func (a *Application) GetFyneApp() fyne.App {
	return a.fyneApp
}

// GetWebServer returns the web surface (nil when disabled).
func (a *Application) GetWebServer() *web.Server {
	return a.webServer
}
