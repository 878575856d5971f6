package main

import (
	"context"
	"fmt"

	"github.com/coregx/chatsync"
	"github.com/coregx/chatsync/client"
	"github.com/coregx/chatsync/cmd/chatsync-server/internal/config"
	"github.com/coregx/chatsync/model"
)

// checkDirectIngest refuses to write a store whose change feed lives in the
// serving process: a running server would never push those writes.
func checkDirectIngest(db config.DatabaseConfig, offline bool) error {
	if db.HasSharedFeed() || offline {
		return nil
	}
	return fmt.Errorf("driver %s only observes writes made by the server process: "+
		"use --server to ingest through the running server, or --offline when no server is running", db.Driver)
}

// forwardDir posts every payload file of dir to the server's webhook receiver.
// It stops at the first failed delivery and returns the report so far.
func forwardDir(ctx context.Context, c *client.Client, dir, secret string, logger chatsync.Logger) (model.IngestionReport, error) {
	var report model.IngestionReport

	units, err := chatsync.LoadDir(dir)
	if err != nil {
		return report, err
	}
	logger.Infof("📂 Forwarding %d payload files from %s to %s", len(units), dir, c.BaseURL)

	for _, unit := range units {
		unitReport, err := c.PostWebhook(ctx, unit.Body, secret)
		if err != nil {
			return report, fmt.Errorf("failed to deliver %s: %w", unit.Source, err)
		}
		report.Add(unitReport)
	}

	return report, nil
}
