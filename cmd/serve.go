package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/securevote/backend/internal/config"
	"github.com/securevote/backend/internal/election"
	"github.com/securevote/backend/internal/extractor"
	"github.com/securevote/backend/internal/ledger"
	"github.com/securevote/backend/internal/voterstore"
	"github.com/securevote/backend/internal/voterstore/filestore"
	"github.com/securevote/backend/internal/voterstore/postgres"
	"github.com/securevote/backend/internal/voting"
	"github.com/securevote/backend/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voting API server",
	Long: `Start the SecureVote API server: voter registration and biometric
authentication endpoints plus the one-time vote casting endpoint.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// openStore selects the storage backend: PostgreSQL when a DATABASE_URL is
// configured, the JSON file store otherwise.
func openStore(ctx context.Context, cfg *config.Config) (voterstore.Store, error) {
	if cfg.Database.URL != "" {
		store, err := postgres.New(ctx, &cfg.Database, cfg.Embedding.Dim)
		if err != nil {
			return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		fmt.Printf("Using PostgreSQL backend\n")
		return store, nil
	}
	store, err := filestore.New(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening file store: %w", err)
	}
	fmt.Printf("Using file-backed storage in %s\n", cfg.Store.DataDir)
	return store, nil
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

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	pool := voterstore.NewPool()
	pool.EnableNeighborIndex()

	service := election.NewService(store, pool, cfg.Embedding.Dim)
	if err := service.Warmup(ctx); err != nil {
		return fmt.Errorf("warming authentication pool: %w", err)
	}

	gateway, err := ledger.NewEthereumGateway(ctx, &cfg.Ledger)
	if err != nil {
		return fmt.Errorf("creating ledger gateway: %w", err)
	}

	if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	audit := voting.NewAuditLog(filepath.Join(cfg.Store.DataDir, cfg.Store.AuditFile))
	orchestrator := voting.NewOrchestrator(store, gateway, audit, cfg.Ledger.SubmitTimeout)

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(web.Deps{
		Config:       cfg,
		Service:      service,
		Orchestrator: orchestrator,
		Gateway:      gateway,
		Extractor:    extractor.NewClient(cfg.Embedding.URL, cfg.Embedding.Dim),
	}, port, host)

	// Run the server and wait for a shutdown signal.
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
