package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"

	_ "github.com/lib/pq"

	httpapi "rentacar-escrow-backend/internal/api/http"
	"rentacar-escrow-backend/internal/config"
	"rentacar-escrow-backend/internal/events"
	"rentacar-escrow-backend/internal/kv"
	"rentacar-escrow-backend/internal/logger"
	"rentacar-escrow-backend/internal/security"
	"rentacar-escrow-backend/internal/service"
	"rentacar-escrow-backend/internal/treasury"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Rent-a-Car Escrow Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())
	logger.Info("Ledger configuration", "kv_backend", cfg.KV.Backend)

	// Initialize ledger store
	store, err := openStore(cfg)
	if err != nil {
		logger.Error("Failed to open ledger store", "error", err)
		log.Fatalf("Failed to open ledger store: %v", err)
	}
	defer store.Close()
	logger.Info("Ledger store opened")

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret)
	authorizer := security.NewContextAuthorizer()

	// Initialize Transfer Backend
	// The in-process vault stands in for an on-chain token; it keeps the
	// engine runnable end to end without external infrastructure.
	vault := treasury.NewVault()

	// Initialize Notifiers
	notifier := buildNotifier(cfg)

	// Initialize Escrow Engine
	engine := service.NewEscrowEngine(store, authorizer, vault, notifier, cfg.Engine.CustodyAccount)

	// Initialize HTTP API
	handler := httpapi.NewHandler(engine, tokenManager)
	router := handler.Router()

	addr := cfg.GetServerAddress()
	logger.Info("HTTP server listening", "address", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		logger.Error("HTTP server stopped", "error", err)
		log.Fatalf("HTTP server stopped: %v", err)
	}
}

// openStore selects and opens the configured key/value backend
func openStore(cfg *config.Config) (kv.Store, error) {
	switch cfg.KV.Backend {
	case "memory":
		return kv.NewMemoryStore(), nil
	case "leveldb":
		return kv.NewLevelDBStore(cfg.KV.Path)
	case "postgres":
		db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, err
		}
		store := kv.NewPostgresStore(db)
		if err := store.EnsureSchema(context.Background()); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		// Config validation rejects unknown backends before this point.
		return kv.NewMemoryStore(), nil
	}
}

// buildNotifier assembles the event sinks configured for this deployment
func buildNotifier(cfg *config.Config) events.Notifier {
	sinks := events.MultiNotifier{events.NewLogNotifier()}
	if cfg.SMTP.Enabled {
		logger.Info("Email notifications enabled", "host", cfg.SMTP.Host, "recipients", len(cfg.SMTP.Recipients))
		sinks = append(sinks, events.NewEmailNotifier(
			cfg.SMTP.Host,
			cfg.SMTP.Port,
			cfg.SMTP.User,
			cfg.SMTP.Password,
			cfg.SMTP.From,
			cfg.SMTP.Recipients,
		))
	}
	return sinks
}
