package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/propertydigital/pdimport/internal/config"
	"github.com/propertydigital/pdimport/internal/ingest"
	"github.com/propertydigital/pdimport/internal/resolve"
	"github.com/propertydigital/pdimport/internal/server"
	"github.com/propertydigital/pdimport/internal/state"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the import server",
		Long: `Start the HTTP server hosting the bulk import endpoint, job status
queries and the health probe. The entity resolution cache is warmed from
durable storage before the server accepts traffic.`,
		Example: `  # Serve with the default config
  pdimport serve

  # Custom port and store location
  pdimport serve --server.port 9090 --store.path /var/lib/pdimport.db`,
		RunE: runServe,
	}

	cmd.Flags().Int("server.port", 8080, "Port to serve on")
	cmd.Flags().String("store.path", "pdimport.db", "Path to the SQLite store")
	cmd.Flags().String("resolve.base_url", "", "Entity API base URL (empty disables resolution)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger()

	store := state.NewSQLiteStore()
	if err := store.Open(cfg.Store.Path); err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate store: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var resolver *resolve.Resolver
	opts := []ingest.Option{}
	if cfg.Resolve.BaseURL != "" {
		resolver = resolve.New(resolverConfig(cfg), store, resolve.NewHTTPFetcher(cfg.Resolve.BaseURL), logger)
		if err := resolver.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize entity cache: %w", err)
		}
		opts = append(opts, ingest.WithCacheHitRate(func() string {
			return resolver.Stats().HitRate()
		}))
	}

	service := ingest.NewService(store, store, logger, opts...)

	srv := server.NewServer(server.Config{
		Service:  service,
		Jobs:     store,
		Records:  store,
		Resolver: resolver,
		Port:     cfg.Server.Port,
		Logger:   logger,
	})
	return srv.Serve(ctx)
}

func resolverConfig(cfg *config.Config) resolve.Config {
	return resolve.Config{
		Capacity:    cfg.Resolve.Capacity,
		BatchSize:   cfg.Resolve.BatchSize,
		Concurrency: cfg.Resolve.Concurrency,
		MaxRetries:  uint64(cfg.Resolve.MaxRetries),
		BaseDelay:   time.Duration(cfg.Resolve.BaseDelayMS) * time.Millisecond,
	}
}
