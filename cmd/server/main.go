/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the campus rewards server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (config.yaml, .env, environment)
  2. Apply command-line flags that were set explicitly
  3. Initialize SQLite store
  4. Create API handler and router
  5. Configure the assistant model, if any
  6. Start the ledger audit scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides REWARDS_PORT)
  -db      SQLite database path (overrides REWARDS_DB)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the audit scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  JWT_SECRET=dev ./server -db="./data/rewards.db"
  JWT_SECRET=dev ./server -db=":memory:" -port=3000

SEE ALSO:
  - config/config.go: configuration sources
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campus/rewards-engine/api"
	"github.com/campus/rewards-engine/assistant"
	"github.com/campus/rewards-engine/auth"
	"github.com/campus/rewards-engine/config"
	"github.com/campus/rewards-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "db":
			cfg.DBPath = *dbPath
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	handler := api.NewHandler(store, auth.NewTokens(cfg.JWTSecret))
	handler.Auth.Cooldown = auth.NewMemoryCooldown(cfg.ResetCooldown)
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	if cfg.AssistantProvider != "" {
		model, err := assistant.New(context.Background(), cfg.AssistantProvider, cfg.AssistantAPIKey, cfg.AssistantModel)
		if err != nil {
			log.Fatalf("Failed to initialize assistant: %v", err)
		}
		defer model.Close()
		handler.Assistant.Model = model
		log.Printf("Assistant enabled (%s)", cfg.AssistantProvider)
	}

	audit := api.NewAuditScheduler(store, cfg.AuditInterval)
	audit.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Port)
		log.Printf("API available at http://localhost:%d/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	audit.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		return
	}

	log.Println("Server stopped")
}
