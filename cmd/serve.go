package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/database/postgres"
	"github.com/facegate/facegate/internal/identity"
	"github.com/facegate/facegate/internal/liveness"
	"github.com/facegate/facegate/internal/recognize"
	"github.com/facegate/facegate/internal/session"
	"github.com/facegate/facegate/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance server",
	Long: `Start the Facegate attendance server.
The server exposes the student registry and attendance REST API and a
websocket endpoint that recognizes faces in realtime camera streams.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// warmIdentityCache loads all enrolled faces before the first frame arrives.
func warmIdentityCache(ctx context.Context, cache *identity.Cache) {
	fmt.Println("Loading enrolled faces...")
	if err := cache.Refresh(ctx, true); err != nil {
		fmt.Printf("Warning: failed to preload faces: %v\n", err)
		fmt.Println("Matching starts once the registry becomes reachable")
		return
	}
	snap, err := cache.Current(ctx)
	if err == nil {
		fmt.Printf("Loaded %d enrolled faces\n", snap.Len())
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Println("Connecting to PostgreSQL database...")
	store, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	vision := recognize.NewClient(cfg.Vision.URL)

	cache := identity.NewCache(database.NewIdentityLoader(store), cfg.Vision.Dim, cfg.Match.CacheRefresh)
	warmIdentityCache(ctx, cache)

	var matcher identity.Matcher
	if cfg.Match.IndexedMatcher {
		fmt.Println("Using HNSW matcher")
		matcher = identity.NewHNSWMatcher()
	} else {
		matcher = identity.NewLinearMatcher()
	}

	live := liveness.SelectProvider(ctx, cfg.Liveness, vision, cfg.Vision.Landmarks)
	coordinator := session.NewCoordinator(cfg, cache, matcher, vision, live, store)

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, port, host, coordinator, store, vision, cache)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Facegate on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
