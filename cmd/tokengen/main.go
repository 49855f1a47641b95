package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"rentacar-escrow-backend/internal/config"
	"rentacar-escrow-backend/internal/security"
)

// tokengen mints a bearer token for an account so operators can call the
// authenticated API endpoints without a separate identity provider.
func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	account := flag.String("account", "", "Account ID to mint a token for")
	flag.Parse()

	if *account == "" {
		log.Fatal("an -account is required")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ttl := time.Duration(cfg.JWT.AccessTokenExpiry) * time.Minute
	tokenManager := security.NewTokenManager(cfg.JWT.Secret)
	token, err := tokenManager.GenerateAccountToken(*account, ttl)
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}

	fmt.Println(token)
}
