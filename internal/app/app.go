// Package app wires the application together: configuration, logging,
// storage, lookup clients, the model gateway, the coaching engine, and the
// HTTP API server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nutribot/nutribot/internal/api"
	"github.com/nutribot/nutribot/internal/chat"
	"github.com/nutribot/nutribot/internal/coach"
	"github.com/nutribot/nutribot/internal/config"
	"github.com/nutribot/nutribot/internal/llm"
	"github.com/nutribot/nutribot/internal/log"
	"github.com/nutribot/nutribot/internal/lookup"
	"github.com/nutribot/nutribot/internal/memory"
	"github.com/nutribot/nutribot/internal/storage"
	"github.com/nutribot/nutribot/internal/tools"
)

// Shutdown waits this long for in-flight requests before forcing the server
// closed.
const shutdownTimeout = 10 * time.Second

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger log.Logger

	db     *sql.DB
	server *api.Server
}

// New builds the application from configuration. The returned App owns the
// database connection; call Close when done.
func New(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := storage.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	app, err := build(ctx, cfg, logger, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func build(ctx context.Context, cfg *config.Config, logger log.Logger, db *sql.DB) (*App, error) {
	store, err := storage.NewStore(db)
	if err != nil {
		return nil, err
	}
	memStore, err := memory.NewStore(db)
	if err != nil {
		return nil, err
	}

	products, err := lookup.NewOpenFoodFacts(lookup.OpenFoodFactsConfig{
		BaseURL:   cfg.OpenFoodFactsBaseURL,
		UserAgent: cfg.OpenFoodFactsUserAgent,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating Open Food Facts client: %w", err)
	}
	foods, err := lookup.NewUSDA(lookup.USDAConfig{
		BaseURL: cfg.USDABaseURL,
		APIKey:  cfg.USDAAPIKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating USDA client: %w", err)
	}
	safety, err := lookup.NewOpenFDA(lookup.OpenFDAConfig{
		BaseURL: cfg.OpenFDABaseURL,
		APIKey:  cfg.OpenFDAAPIKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating openFDA client: %w", err)
	}
	evidence, err := lookup.NewPubMed(lookup.PubMedConfig{
		ESearchURL:  cfg.PubMedESearchURL,
		ESummaryURL: cfg.PubMedESummaryURL,
		APIKey:      cfg.NCBIAPIKey,
		Tool:        cfg.NCBITool,
		Email:       cfg.NCBIEmail,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating PubMed client: %w", err)
	}

	registry, err := tools.NewRegistry(tools.Deps{
		Products: products,
		Foods:    foods,
		Safety:   safety,
		Evidence: evidence,
		Memory:   memStore,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating tool registry: %w", err)
	}

	gateway, err := llm.New(ctx, llm.Config{
		APIKey:            cfg.GeminiAPIKey,
		Model:             cfg.Model,
		VisionModel:       cfg.VisionModel,
		UploadDir:         cfg.UploadDir,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating model gateway: %w", err)
	}
	if !gateway.Enabled() {
		logger.Warn("GEMINI_API_KEY not set, coaching plans use the deterministic fallback")
	}

	engine, err := coach.NewEngine(gateway, registry, cfg.MaxToolRounds, logger)
	if err != nil {
		return nil, fmt.Errorf("creating coaching engine: %w", err)
	}

	chatService, err := chat.NewService(store, engine, gateway, logger)
	if err != nil {
		return nil, fmt.Errorf("creating chat service: %w", err)
	}

	server, err := api.NewServer(api.ServerConfig{
		Logger:      logger,
		Chat:        chatService,
		Store:       store,
		Memory:      memStore,
		DB:          db,
		UploadDir:   cfg.UploadDir,
		MaxUploadMB: cfg.MaxUploadSizeMB,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   cfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	return &App{
		Config: cfg,
		Logger: logger,
		db:     db,
		server: server,
	}, nil
}

// Handler returns the HTTP handler serving the full API surface.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Run serves HTTP until ctx is canceled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", a.Config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// Close releases the application's resources.
func (a *App) Close() error {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return fmt.Errorf("closing database: %w", err)
		}
	}
	return nil
}
