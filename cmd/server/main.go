/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the hostel billing engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config.yaml / environment (see config package)
  2. Parse command-line flags (flags win)
  3. Initialize SQLite store
  4. Optionally seed the admin allowlist (-admins)
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides config)
  -db      SQLite database path (":memory:" for in-memory)
  -admins  Comma-separated caller ids to write to the admin allowlist

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/billing.db"

  # Bootstrap the first administrator
  ./server -admins="admin-1"

SEE ALSO:
  - config/config.go: Configuration loading
  - api/server.go:    Router configuration
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
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hosteldesk/billing-engine/api"
	"github.com/hosteldesk/billing-engine/auth"
	"github.com/hosteldesk/billing-engine/config"
	"github.com/hosteldesk/billing-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override the config file.
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DatabasePath, "SQLite database path")
	admins := flag.String("admins", "", "comma-separated admin caller ids to persist")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if *admins != "" {
		ids := strings.Split(*admins, ",")
		for i := range ids {
			ids[i] = strings.TrimSpace(ids[i])
		}
		if err := store.SaveAdmins(context.Background(), ids); err != nil {
			log.Fatalf("Failed to save admin allowlist: %v", err)
		}
		log.Printf("Admin allowlist set: %s", strings.Join(ids, ", "))
	}

	metrics := api.NewMetrics(prometheus.DefaultRegisterer)
	handler := api.NewHandler(store, auth.NewGate(store), metrics)
	router := api.NewRouter(handler, api.RouterConfig{
		JWTSecret:       []byte(cfg.JWTSecret),
		AllowedOrigins:  cfg.AllowedOrigins,
		EnableScenarios: cfg.ScenariosEnabled,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Billing engine listening on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
