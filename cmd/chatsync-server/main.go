// Package main provides the chatsync server executable: HTTP API, WebSocket
// push, change feed watcher and payload ingestion.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coregx/chatsync"
	"github.com/coregx/chatsync/client"
	"github.com/coregx/chatsync/cmd/chatsync-server/internal/config"
	"github.com/coregx/chatsync/cmd/chatsync-server/internal/logging"
	"github.com/coregx/chatsync/model"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	root := &cobra.Command{
		Use:          "chatsync-server",
		Short:        "chatsync: WhatsApp conversation sync server",
		Long:         "chatsync ingests WhatsApp webhook payloads into a message store and pushes live changes to connected clients.",
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the process logger.
func setup() (*config.Config, zerolog.Logger, chatsync.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	zl := logging.New(cfg.IsDevelopment(), cfg.LogLevel)
	return cfg, zl, logging.NewAdapter(zl), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, push hub and change feed watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, zl, logger, err := setup()
			if err != nil {
				return err
			}
			return runServe(cfg, zl, logger)
		},
	}
}

func ingestCmd() *cobra.Command {
	var (
		dir     string
		server  string
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest every payload file of a directory once and print the report",
		Long: `Ingest every payload file of a directory once and print the report.

With --server the files are posted to the running server's /webhook, so its
watcher pushes the new messages to connected clients on every store.

Without --server the store is written directly. On postgres and mongo the
running server observes those writes through the database. On sqlite3, mysql
and memory the change feed lives in the server process and would miss them,
so direct ingestion requires --offline to confirm no server is running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, logger, err := setup()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Ingest.PayloadDir
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var report model.IngestionReport
			if server != "" {
				report, err = forwardDir(ctx, client.NewClient(server), dir, cfg.Webhook.AppSecret, logger)
			} else {
				report, err = ingestDirect(ctx, cfg, dir, offline, logger)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "payload directory (default: PAYLOAD_DIR)")
	cmd.Flags().StringVar(&server, "server", "", "base URL of a running server to ingest through, e.g. http://localhost:5000")
	cmd.Flags().BoolVar(&offline, "offline", false, "write the store directly although its change feed is process-local")
	return cmd
}

func ingestDirect(ctx context.Context, cfg *config.Config, dir string, offline bool, logger chatsync.Logger) (model.IngestionReport, error) {
	if err := checkDirectIngest(cfg.Database, offline); err != nil {
		return model.IngestionReport{}, err
	}

	store, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return model.IngestionReport{}, err
	}
	defer store.Close()

	ingestor, err := chatsync.NewIngestor(
		chatsync.WithIngestorRepository(store.Repo),
		chatsync.WithIngestorLogger(logger),
	)
	if err != nil {
		return model.IngestionReport{}, err
	}

	return ingestor.IngestDir(ctx, dir)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the message schema (tables, indexes, triggers)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, logger, err := setup()
			if err != nil {
				return err
			}

			// openBackend applies migrations for SQL drivers and indexes for mongo
			store, err := openBackend(context.Background(), cfg, logger)
			if err != nil {
				return err
			}
			store.Close()

			logger.Infof("✅ Schema ready for %s", cfg.Database.Driver)
			return nil
		},
	}
}
