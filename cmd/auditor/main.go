package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"rentacar-escrow-backend/internal/config"
	"rentacar-escrow-backend/internal/jobs"
	"rentacar-escrow-backend/internal/kv"
	"rentacar-escrow-backend/internal/logger"
	"rentacar-escrow-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'audit-custody', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Escrow Auditor...", "log_level", cfg.Log.Level)

	// Open the ledger store read side
	store, err := openStore(cfg)
	if err != nil {
		logger.Error("Failed to open ledger store", "error", err)
		log.Fatalf("Failed to open ledger store: %v", err)
	}
	defer store.Close()
	logger.Info("Ledger store opened", "kv_backend", cfg.KV.Backend)

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(store, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Auditor scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down auditor scheduler...")
	cronScheduler.Stop()
	logger.Info("Auditor scheduler stopped. Goodbye!")
}

// openStore selects and opens the configured key/value backend
func openStore(cfg *config.Config) (kv.Store, error) {
	switch cfg.KV.Backend {
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
		// A memory backend holds no state for a separate process to audit,
		// but an empty store still lets the schedule be exercised locally.
		return kv.NewMemoryStore(), nil
	}
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "audit-custody":
		jobRunner.AuditCustody()
	case "all":
		jobRunner.RunAllJobs()
	default:
		logger.Error("Unknown job name", "job", jobName)
	}
}
