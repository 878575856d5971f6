package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coregx/chatsync"
	"github.com/coregx/chatsync/adapters/memory"
	"github.com/coregx/chatsync/adapters/mongo"
	"github.com/coregx/chatsync/adapters/relica"
	"github.com/coregx/chatsync/cmd/chatsync-server/internal/config"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// connectTimeout bounds store connection establishment.
const connectTimeout = 5 * time.Second

// backend is an opened store with its change feed.
type backend struct {
	Repo  chatsync.MessageRepository
	Feed  chatsync.ChangeFeed
	close func()
}

// Close releases the store connection.
func (b *backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// openBackend connects to the configured store and prepares its schema.
func openBackend(ctx context.Context, cfg *config.Config, logger chatsync.Logger) (*backend, error) {
	switch cfg.Database.Driver {
	case "memory":
		feed := chatsync.NewLocalFeed(chatsync.DefaultFeedBuffer)
		logger.Warnf("⚠️ Using in-memory store, data is lost on restart")
		return &backend{
			Repo: chatsync.NewRecordingRepository(memory.NewMessageRepository(), feed),
			Feed: feed,
		}, nil

	case "sqlite3", "postgres", "mysql":
		return openSQL(ctx, cfg, logger)

	case "mongo":
		return openMongo(ctx, cfg, logger)

	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Database.Driver)
	}
}

func openSQL(ctx context.Context, cfg *config.Config, logger chatsync.Logger) (*backend, error) {
	dsn := cfg.Database.GetDSN()

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, chatsync.NewErrorWithCause(chatsync.ErrCodeStoreUnavailable, "failed to connect to database", err)
	}
	logger.Infof("✅ Database connection established (%s)", cfg.Database.Driver)

	prefix := cfg.Database.Prefix
	if prefix == "" {
		prefix = chatsync.DefaultTablePrefix
	}

	if err := chatsync.ApplyMigrationsWithPrefix(ctx, db, cfg.Database.Driver, prefix); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Infof("✅ Migrations applied (table %s%s)", prefix, chatsync.MessagesTable)

	repos := relica.NewRepositoriesWithPrefix(db, cfg.Database.Driver, dsn, prefix, logger)

	return &backend{
		Repo: repos.Message,
		Feed: repos.Feed,
		close: func() {
			if err := db.Close(); err != nil {
				logger.Warnf("Failed to close database: %v", err)
			}
		},
	}, nil
}

func openMongo(ctx context.Context, cfg *config.Config, logger chatsync.Logger) (*backend, error) {
	client, err := mongo.Connect(ctx, cfg.Database.MongoURI)
	if err != nil {
		return nil, err
	}
	logger.Infof("✅ Connected to MongoDB (database %s)", cfg.Database.MongoDatabase)

	repo := mongo.NewMessageRepository(client.Database(cfg.Database.MongoDatabase))
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &backend{
		Repo: repo,
		Feed: mongo.NewFeed(repo),
		close: func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			if err := client.Disconnect(disconnectCtx); err != nil {
				logger.Warnf("Failed to disconnect from MongoDB: %v", err)
			}
		},
	}, nil
}
