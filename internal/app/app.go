package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"vidsync/internal/config"
	"vidsync/internal/infrastructure"
	"vidsync/internal/middleware"
	"vidsync/internal/realtime"
	transport "vidsync/internal/transport/http"
	"vidsync/internal/widgets"
)

// Version is set at build time with -ldflags "-X vidsync/internal/app.Version=..."
var Version = "dev"

// Application wires the realtime manager, the widgets and the status API
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	OTel      *infrastructure.OTelProviders
	Manager   *realtime.Manager
	Dashboard *widgets.AnalyticsDashboard
	Workers   *widgets.WorkerMonitor
	Preview   *widgets.LivePreview
	Router    *chi.Mux
	Server    *http.Server

	listener net.Listener
	serveErr chan error
}

// Option customises Build
type Option func(*buildOptions)

type buildOptions struct {
	realtime []realtime.Option
	otel     []infrastructure.OTelOption
	chart    widgets.ChartRenderer
	notifier widgets.Notifier
	listener net.Listener
}

// WithRealtimeOptions passes options through to realtime.New
func WithRealtimeOptions(opts ...realtime.Option) Option {
	return func(o *buildOptions) {
		o.realtime = append(o.realtime, opts...)
	}
}

// WithOTelOptions passes options through to InitializeOTel
func WithOTelOptions(opts ...infrastructure.OTelOption) Option {
	return func(o *buildOptions) {
		o.otel = append(o.otel, opts...)
	}
}

// WithChartRenderer sets the dashboard's chart renderer
func WithChartRenderer(r widgets.ChartRenderer) Option {
	return func(o *buildOptions) {
		o.chart = r
	}
}

// WithNotifier sets the live preview's notifier. The default logs each
// notification.
func WithNotifier(n widgets.Notifier) Option {
	return func(o *buildOptions) {
		o.notifier = n
	}
}

// WithListener serves the status API on l instead of the configured address
func WithListener(l net.Listener) Option {
	return func(o *buildOptions) {
		o.listener = l
	}
}

// NewApplication loads the configuration, initializes logging and builds
// the application
func NewApplication(opts ...Option) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return Build(cfg, logger, opts...)
}

// Build assembles the application from an already loaded configuration
func Build(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Application, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger.Info("Application starting",
		slog.String("version", Version),
		slog.String("realtime_url", cfg.Realtime.URL))

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger, o.otel...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	a := &Application{
		Config: cfg,
		Logger: logger,
		OTel:   providers,
	}

	if err := a.buildRealtime(o); err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, err
	}
	if err := a.buildRouter(); err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, err
	}

	a.Server = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	a.listener = o.listener
	return a, nil
}

func (a *Application) buildRealtime(o buildOptions) error {
	metrics, err := realtime.NewMetrics(a.OTel.Meter)
	if err != nil {
		return fmt.Errorf("failed to create realtime metrics: %w", err)
	}

	rtOpts := append([]realtime.Option{
		realtime.WithLogger(a.Logger),
		realtime.WithMetrics(metrics),
		realtime.WithTracerProvider(a.OTel.TracerProviderOrGlobal()),
	}, o.realtime...)

	manager, err := realtime.New(RealtimeConfig(a.Config.Realtime), rtOpts...)
	if err != nil {
		return fmt.Errorf("failed to create realtime manager: %w", err)
	}
	a.Manager = manager

	w := a.Config.Widgets
	if w.Dashboard {
		a.Dashboard = widgets.NewAnalyticsDashboard(manager, w.DashboardDays, o.chart, a.Logger)
	}
	if w.Workers {
		a.Workers = widgets.NewWorkerMonitor(manager, a.Logger)
	}
	if w.Preview {
		if o.notifier == nil {
			o.notifier = widgets.NewLogNotifier(a.Logger)
		}
		a.Preview = widgets.NewLivePreview(manager, w.PreviewJobID, o.notifier, a.Logger)
	}
	return nil
}

func (a *Application) buildRouter() error {
	deps := transport.RouterDeps{
		Version:    Version,
		Connection: a.Manager,
		Metrics:    a.OTel.PrometheusHTTP,
		Logger:     a.Logger,
	}
	// typed nil pointers must not reach the interfaces
	if a.Dashboard != nil {
		deps.Dashboard = a.Dashboard
	}
	if a.Workers != nil {
		deps.Workers = a.Workers
	}
	if a.Preview != nil {
		deps.Preview = a.Preview
	}

	otelMiddleware, err := middleware.NewOTelMiddleware(a.OTel.Tracer, a.OTel.Meter)
	if err != nil {
		return fmt.Errorf("failed to create HTTP instrumentation: %w", err)
	}
	deps.OTel = otelMiddleware

	if rl := a.Config.RateLimit; rl.Enabled {
		deps.RateLimiter = middleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger)
	}

	a.Router = transport.NewRouter(deps)
	return nil
}

// RealtimeConfig converts the file/env configuration into the manager's
// configuration. A non-empty AuthToken becomes a bearer Authorization
// header on the handshake and on every poll.
func RealtimeConfig(c config.RealtimeConfig) realtime.Config {
	rc := realtime.Config{
		URL:               c.URL,
		PollURL:           c.PollURL,
		HeartbeatInterval: c.HeartbeatInterval,
		PollingInterval:   c.PollingInterval,
		DuplexGrace:       c.DuplexGrace,
		BaseBackoff:       c.BaseBackoff,
		MaxBackoff:        c.MaxBackoff,
		HandshakeTimeout:  c.HandshakeTimeout,
	}
	if len(c.Endpoints) > 0 {
		rc.Endpoints = make(map[string]string, len(c.Endpoints))
		for topic, path := range c.Endpoints {
			rc.Endpoints[topic] = path
		}
	}
	if c.AuthToken != "" {
		rc.Header = http.Header{}
		rc.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}
	return rc
}

// Start starts the widgets, connects and serves the status API. Serve
// errors are reported by Wait.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("address", a.Server.Addr),
		slog.String("level", a.Config.Logging.Level))

	listener := a.listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", a.Server.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
		}
	}

	for _, w := range a.startables() {
		if err := w.Start(); err != nil {
			_ = listener.Close()
			a.stopWidgets()
			return fmt.Errorf("failed to start widget: %w", err)
		}
	}
	a.Manager.Connect()

	a.serveErr = make(chan error, 1)
	go func() {
		err := a.Server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		a.serveErr <- err
	}()

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("address", listener.Addr().String()))
	return nil
}

// Wait blocks until ctx is done or the server fails
func (a *Application) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-a.serveErr:
		if err != nil {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
		}
		return err
	}
}

// Stop shuts the server down, stops the widgets, disconnects and flushes
// telemetry
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	a.stopWidgets()
	a.Manager.Disconnect()

	if a.OTel != nil {
		if err := a.OTel.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

// Run runs the application until SIGINT or SIGTERM
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}
	serveErr := a.Wait(ctx)
	if ctx.Err() != nil {
		a.Logger.Info("Received interrupt signal")
	}

	if err := a.Stop(context.Background()); err != nil {
		return err
	}
	return serveErr
}

type startable interface {
	Start() error
	Stop()
}

func (a *Application) startables() []startable {
	var out []startable
	if a.Dashboard != nil {
		out = append(out, a.Dashboard)
	}
	if a.Workers != nil {
		out = append(out, a.Workers)
	}
	if a.Preview != nil {
		out = append(out, a.Preview)
	}
	return out
}

func (a *Application) stopWidgets() {
	for _, w := range a.startables() {
		w.Stop()
	}
}
