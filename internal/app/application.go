package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"classpulse/internal/api"
	"classpulse/internal/config"
	"classpulse/internal/database"
	"classpulse/internal/grades"
	"classpulse/internal/hub"
	"classpulse/internal/poll"
	"classpulse/internal/session"
	"classpulse/internal/websocket"
	pkgdatabase "classpulse/pkg/database"
)

// Application wires all components together. Initialization follows strict
// dependency order: Database → Aggregator → Registry → Hub → Engines → API →
// HTTP.
type Application struct {
	config        *config.Config
	dbManager     *database.Manager
	aggregator    *grades.Aggregator
	registry      *websocket.Registry
	eventHub      *hub.Hub
	sessionEngine *session.Engine
	pollEngine    *poll.Engine
	apiServer     *api.Server
	httpServer    *http.Server
}

// NewApplication creates an application instance with all components
// initialized but not yet serving.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
		MigrationsPath:  cfg.Database.MigrationsPath,
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	migrationManager := pkgdatabase.NewMigrationManager(dbManager.GetDB(), dbConfig.MigrationsPath)
	if err := migrationManager.ApplyMigrations(); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := migrationManager.ValidateSchema(); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	log.Println("Database migrations applied successfully")

	aggregator := grades.NewAggregator(dbManager)
	authorizer := session.NewOwnerAuthorizer(dbManager)
	locks := session.NewLocks()

	registry := websocket.NewRegistry()
	eventHub := hub.NewHub(registry, dbManager, aggregator)

	sessionEngine := session.NewEngine(dbManager, dbManager, authorizer, eventHub, aggregator, locks)
	pollEngine := poll.NewEngine(dbManager, authorizer, eventHub, locks)

	apiServer := api.NewServer(sessionEngine, pollEngine, aggregator, registry, dbManager)
	wsHandler := websocket.NewHandler(dbManager, eventHub)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:        cfg,
		dbManager:     dbManager,
		aggregator:    aggregator,
		registry:      registry,
		eventHub:      eventHub,
		sessionEngine: sessionEngine,
		pollEngine:    pollEngine,
		apiServer:     apiServer,
		httpServer:    httpServer,
	}, nil
}

// Start begins serving. It returns once the HTTP listener is up.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting classpulse on %s", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("classpulse started successfully")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the application down in reverse dependency order:
// HTTP → Database.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down classpulse")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("classpulse shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
