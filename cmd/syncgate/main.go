// SyncGate - multi-tenant synchronization gateway
//
// SyncGate fronts a changeset-based object store: tenants authenticate with
// an encrypted session cookie, push and pull ordered change sets, and work
// with a graph of objects organised by tags, groups, roles, attributes,
// classes and stored queries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/syncgate/migrations"

	"github.com/nerrad567/syncgate/internal/api"
	"github.com/nerrad567/syncgate/internal/backend"
	"github.com/nerrad567/syncgate/internal/history"
	"github.com/nerrad567/syncgate/internal/infrastructure/config"
	"github.com/nerrad567/syncgate/internal/infrastructure/database"
	"github.com/nerrad567/syncgate/internal/infrastructure/logging"
	"github.com/nerrad567/syncgate/internal/notify"
	"github.com/nerrad567/syncgate/internal/registry"
	"github.com/nerrad567/syncgate/internal/session"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting syncgate", "version", version, "commit", commit)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "backend", cfg.Backend.Kind)

	log = logging.New(cfg.Logging, version)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Backend.DatabasePath(),
		WALMode:     cfg.Backend.WALMode,
		BusyTimeout: cfg.Backend.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	tenantRepo := backend.NewTenantRepository(db.DB)
	if _, err := backend.SeedAdmin(ctx, tenantRepo, log); err != nil {
		return fmt.Errorf("seeding admin tenant: %w", err)
	}
	svc := backend.NewTenantService(tenantRepo, log)

	reg := registry.New(db.DB)

	sessions, err := session.NewManager(cfg.Session.CookieName, cfg.SessionTTL(), cfg.Session.Secure)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	// Optional infrastructure: the gateway runs fine without either.
	var notifier *notify.Notifier
	if cfg.MQTT.Enabled {
		notifier, err = notify.Connect(cfg.MQTT, log)
		if err != nil {
			log.Warn("change notifier unavailable", "error", err)
		} else {
			defer notifier.Close()
			log.Info("change notifier connected", "broker", fmt.Sprintf("%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
		}
	}

	var recorder *history.Recorder
	if cfg.InfluxDB.Enabled {
		recorder, err = history.Connect(cfg.InfluxDB, log)
		if err != nil {
			log.Warn("apply history unavailable", "error", err)
		} else {
			defer recorder.Close()
			log.Info("apply history connected", "url", cfg.InfluxDB.URL)
		}
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Feed:     cfg.Feed,
		Logger:   log,
		Backend:  svc,
		Registry: reg,
		Sessions: sessions,
		Notifier: notifier,
		History:  recorder,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing server", "error", closeErr)
		}
	}()

	log.Info("syncgate ready", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// getConfigPath returns the config file path from args or the default.
func getConfigPath() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	if v := os.Getenv("SYNCGATE_CONFIG"); v != "" {
		return v
	}
	return defaultConfigPath
}
