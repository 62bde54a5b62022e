package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/copyvara/internal/config"
	"github.com/fyrsmithlabs/copyvara/internal/events"
	apihttp "github.com/fyrsmithlabs/copyvara/internal/http"
	"github.com/fyrsmithlabs/copyvara/internal/inbox"
	"github.com/fyrsmithlabs/copyvara/internal/llm"
	"github.com/fyrsmithlabs/copyvara/internal/logging"
	"github.com/fyrsmithlabs/copyvara/internal/mcp"
	"github.com/fyrsmithlabs/copyvara/internal/secrets"
	"github.com/fyrsmithlabs/copyvara/internal/storage"
	"github.com/fyrsmithlabs/copyvara/internal/storage/postgrest"
	"github.com/fyrsmithlabs/copyvara/internal/storage/sqlite"
	"github.com/fyrsmithlabs/copyvara/internal/telemetry"
	"github.com/fyrsmithlabs/copyvara/internal/workspace"
)

// app holds the wired dependencies shared by every run mode.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	store     storage.Store
	scrubber  *secrets.Scrubber
	ws        *workspace.Workspace

	closeEvents func()
}

// newApp loads configuration and builds the workspace. stderrLogs routes
// logs to stderr for stdio transports.
func newApp(ctx context.Context, opts *rootOptions, stderrLogs bool) (*app, error) {
	if err := loadEnvFile(opts.envFile); err != nil {
		return nil, err
	}

	cfg, err := config.LoadWithFile(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logger, err := newLogger(opts, stderrLogs, tel)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	if degraded, terr := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Error(terr))
	}

	a := &app{cfg: cfg, logger: logger, telemetry: tel}
	if err := a.wire(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	zl := a.logger.Underlying()

	store, err := openStore(a.cfg.Storage, zl)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", a.cfg.Storage.Driver, err)
	}
	a.store = store

	gen, err := llm.New(a.cfg.LLM, zl.Named("llm"))
	if err != nil {
		return fmt.Errorf("creating llm client: %w", err)
	}

	scrubCfg := secrets.DefaultConfig()
	scrubCfg.Gitleaks = a.cfg.Workspace.SecretScan
	if path := a.cfg.Workspace.SecretsFile; path != "" {
		if err := secrets.MergeFile(&scrubCfg, path); err != nil {
			return err
		}
	}
	a.scrubber, err = secrets.New(scrubCfg)
	if err != nil {
		return fmt.Errorf("creating secret scrubber: %w", err)
	}

	publisher, closeEvents, err := openEvents(a.cfg.Events, zl.Named("events"))
	if err != nil {
		return fmt.Errorf("opening event bus: %w", err)
	}
	a.closeEvents = closeEvents

	a.ws, err = workspace.New(workspace.ConfigFrom(a.cfg), workspace.Deps{
		Documents: store,
		History:   store,
		Analyzer:  llm.NewAnalyzer(gen),
		Generator: gen,
	},
		workspace.WithLogger(a.logger.Named("workspace")),
		workspace.WithTracer(a.telemetry.Tracer("github.com/fyrsmithlabs/copyvara/internal/workspace")),
		workspace.WithScrubber(a.scrubber),
		workspace.WithEvents(publisher),
	)
	if err != nil {
		return fmt.Errorf("creating workspace: %w", err)
	}

	a.logger.Info(ctx, "workspace configured",
		zap.String("storage", a.cfg.Storage.Driver),
		zap.String("llm_provider", a.cfg.LLM.Provider),
		zap.String("llm_model", a.cfg.LLM.Model),
		logging.Secret("llm_api_key", a.cfg.LLM.APIKey),
		zap.String("evidence_mode", a.cfg.Ask.EvidenceMode))
	return nil
}

// Close releases the store and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.closeEvents != nil {
		a.closeEvents()
	}
	errs = append(errs, a.telemetry.Shutdown(ctx))
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// loadWorkspace loads persisted state. A failed load is logged and the
// daemon keeps serving with empty collections.
func (a *app) loadWorkspace(ctx context.Context) {
	if err := a.ws.Load(ctx); err != nil {
		a.logger.Warn(ctx, "loading workspace failed, starting empty", zap.Error(err))
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := newApp(ctx, opts, false)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			a.logger.Warn(shutdownCtx, "shutdown incomplete", zap.Error(err))
		}
	}()

	a.loadWorkspace(ctx)

	if a.cfg.Inbox.Enabled {
		w, err := inbox.New(a.cfg.Inbox.Dir, a.ws, inbox.Options{Logger: a.logger.Underlying().Named("inbox")})
		if err != nil {
			return fmt.Errorf("creating inbox watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("starting inbox watcher: %w", err)
		}
		defer w.Stop()
	}

	srv, err := apihttp.NewServer(a.ws, a.logger.Underlying().Named("http"), &apihttp.Config{
		Host:    a.cfg.Server.Host,
		Port:    a.cfg.Server.Port,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info(context.Background(), "shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, opts *rootOptions) error {
	a, err := newApp(ctx, opts, true)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(shutdownCtx)
	}()

	a.loadWorkspace(ctx)

	srv, err := mcp.NewServer(&mcp.Config{
		Name:     "copyvara",
		Version:  version,
		Logger:   a.logger.Underlying().Named("mcp"),
		Scrubber: a.scrubber,
	}, a.ws)
	if err != nil {
		return fmt.Errorf("creating mcp server: %w", err)
	}
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openStore builds the configured persistence backend.
func openStore(cfg config.StorageConfig, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return storage.NewMemoryStore(), nil
	case config.StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLiteDir, logger.Named("sqlite"))
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoragePostgREST:
		store, err := postgrest.New(postgrest.OptionsFromConfig(cfg, logger.Named("postgrest")))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.Driver)
	}
}

// openEvents connects the workspace event publisher. Disabled events yield
// a no-op publisher. The returned function flushes the connection and stops
// the embedded server, if any.
func openEvents(cfg config.EventsConfig, logger *zap.Logger) (events.Publisher, func(), error) {
	if !cfg.Enabled {
		return events.Nop{}, func() {}, nil
	}

	url := cfg.URL
	stopServer := func() {}
	if cfg.Embedded {
		srv, err := events.StartEmbedded(cfg.EmbeddedHost, cfg.EmbeddedPort)
		if err != nil {
			return nil, nil, err
		}
		url = srv.ClientURL()
		stopServer = func() {
			srv.Shutdown()
			srv.WaitForShutdown()
		}
		logger.Info("embedded nats server started", zap.String("url", url))
	}

	conn, err := events.Connect(url, logger)
	if err != nil {
		stopServer()
		return nil, nil, err
	}
	publisher, err := events.NewNATSPublisher(conn)
	if err != nil {
		conn.Close()
		stopServer()
		return nil, nil, err
	}
	return publisher, func() {
		if err := conn.FlushTimeout(time.Second); err != nil {
			logger.Warn("flushing nats connection failed", zap.Error(err))
		}
		conn.Close()
		stopServer()
	}, nil
}

func newLogger(opts *rootOptions, stderr bool, tel *telemetry.Telemetry) (*logging.Logger, error) {
	cfg := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(opts.logLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level
	cfg.Format = opts.logFormat
	cfg.Fields["version"] = version
	if stderr {
		cfg.Output.Stdout = false
		cfg.Output.Stderr = true
	}
	cfg.Output.OTEL = tel.LoggerProvider() != nil
	return logging.NewLogger(cfg, tel.LoggerProvider())
}

// loadEnvFile loads a dotenv file. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}
