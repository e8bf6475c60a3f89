// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/artpar/crudkit/adapters/clock"
	"github.com/artpar/crudkit/adapters/hasher"
	apihttp "github.com/artpar/crudkit/adapters/http"
	"github.com/artpar/crudkit/adapters/logging"
	"github.com/artpar/crudkit/adapters/metrics"
	"github.com/artpar/crudkit/config"
	"github.com/artpar/crudkit/core/events"
	"github.com/artpar/crudkit/core/openapi"
	"github.com/artpar/crudkit/core/registry"
	"github.com/artpar/crudkit/core/routebuilder"
	"github.com/artpar/crudkit/domain/entity"
	"github.com/artpar/crudkit/ports"
)

// Build information, set with -ldflags.
var (
	Version = "dev"
	Commit  = ""
)

// Options configure New.
type Options struct {
	Config *config.Config

	// Hooks are registered next to the built-in hooks.
	Hooks map[string]routebuilder.Hook

	// Store replaces the store DB_URI selects.
	Store ports.DocumentStore

	// Console receives the development console log. Defaults to stdout.
	Console io.Writer
}

// App represents the running application.
type App struct {
	Config     *config.Config
	Logger     *logging.Logger
	Store      ports.DocumentStore
	Registry   *registry.Registry
	Entities   *config.Holder
	Events     *events.Bus
	Metrics    *metrics.Collector
	HTTPServer *http.Server

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates and initializes the application: logger, store, entity
// registry and HTTP server. A store connection failure is fatal.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("bootstrap: missing config")
	}

	logger, err := logging.New(logging.Options{
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Dir:     cfg.LogDir,
		Console: opts.Console,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}
	logger.Info().Str("env", cfg.Env).Str("version", Version).Msg("initializing crudkit")

	if err := a.init(ctx, opts); err != nil {
		a.Shutdown(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.Config
	log := a.Logger.Logger

	if cfg.MetricsEnabled {
		a.Metrics = metrics.NewRegistry()
		log.Info().Msg("prometheus metrics enabled")
	}

	store := opts.Store
	if store == nil {
		var err error
		store, err = OpenStore(ctx, cfg.DBURI, cfg.DBName, log)
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
	}
	a.Store = store
	if a.Metrics != nil {
		store = a.Metrics.InstrumentStore(store)
	}

	errs := apihttp.NewErrorHandler(log, cfg.IsProduction())

	regOpts := registry.Options{
		OnError: errs.Handle,
		Hasher:  hasher.NewBcrypt(0),
		Clock:   clock.Real{},
		Logger:  log,
	}
	if a.Metrics != nil {
		regOpts.Metrics = a.Metrics
	}
	a.Registry = registry.New(store, regOpts)

	a.Events = events.NewBus(log)
	for name, h := range BuiltinHooks(log, a.Events) {
		if err := a.Registry.RegisterHook(name, h); err != nil {
			return err
		}
	}
	for name, h := range opts.Hooks {
		if err := a.Registry.RegisterHook(name, h); err != nil {
			return err
		}
	}

	var err error
	a.Entities, err = config.NewHolder(cfg.EntitiesFile, log)
	if err != nil {
		return err
	}
	if err := a.Registry.Load(ctx, a.Entities.Get()); err != nil {
		return fmt.Errorf("load entities: %w", err)
	}
	a.Entities.OnChange(func(descs []entity.Descriptor) error {
		if err := a.Registry.Load(context.Background(), descs); err != nil {
			return err
		}
		a.Events.PublishAsync(context.Background(), events.Event{
			Name:   events.Name("entities", events.ActionReloaded),
			Entity: "entities",
			Action: events.ActionReloaded,
		})
		return nil
	})
	if cfg.EntitiesWatch {
		if err := a.Entities.WatchFile(); err != nil {
			return err
		}
		a.Entities.WatchSignals()
	}

	var doc *openapi.Document
	if cfg.OpenAPIEnabled {
		gen := openapi.NewGenerator()
		gen.SetInfo(openapi.Info{
			Title:       "crudkit API",
			Version:     Version,
			Description: "Generated from " + cfg.EntitiesFile,
		})
		doc = openapi.NewDocument(gen, a.Registry.Descriptors)
		openapi.Register(doc)
	}

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Logger:      log,
		Errors:      errs,
		API:         a.Registry,
		Health:      apihttp.NewHealthHandler(a.Store),
		Version:     apihttp.VersionInfo{Service: "crudkit", Version: Version, Commit: Commit},
		Metrics:     a.Metrics,
		OpenAPI:     doc,
		CORSOrigins: cfg.CORSOrigins,
		BodyLimit:   cfg.BodyLimit,
	})

	a.HTTPServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return nil
}

// Run serves HTTP until ctx is cancelled, SIGINT or SIGTERM arrives, or the
// server fails, then shuts the app down.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.HTTPServer.Addr)
	if err != nil {
		a.Shutdown(context.Background())
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", ln.Addr().String()).
			Str("env", a.Config.Env).
			Msg("starting http server")
		errCh <- a.HTTPServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			// Shutdown was called elsewhere; wait for it and share its result.
			return a.Shutdown(context.Background())
		}
		a.Shutdown(context.Background())
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		a.Logger.Info().Msg("shutting down")
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully stops the application. Only the first call does the
// work; later calls return its result.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.shutdown(ctx)
	})
	return a.shutdownErr
}

func (a *App) shutdown(ctx context.Context) error {
	timeout := config.DefaultShutdownTimeout
	if a.Config != nil && a.Config.ShutdownTimeout > 0 {
		timeout = a.Config.ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}

	if a.Entities != nil {
		a.Entities.Stop()
	}
	if a.Events != nil {
		a.Events.Wait()
	}

	if a.Store != nil {
		if err := a.Store.Close(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("store close error")
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	if err := a.Logger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("logger: %w", err))
	}

	return errors.Join(errs...)
}
