package relica

import (
	"database/sql"

	"github.com/coregx/chatsync"
)

// Repositories holds the repository and change feed for one SQL database.
type Repositories struct {
	Message chatsync.MessageRepository
	Feed    chatsync.ChangeFeed
}

// NewRepositories creates the repositories for db.
//
// The driverName should be "mysql", "postgres", or "sqlite3". On postgres the
// feed is a PostgresFeed connected with dsn. Other drivers have no native
// feed: the repository is wrapped in a RecordingRepository that publishes to
// an in-process LocalFeed.
func NewRepositories(db *sql.DB, driverName, dsn string, logger chatsync.Logger) *Repositories {
	return NewRepositoriesWithPrefix(db, driverName, dsn, DefaultTablePrefix, logger)
}

// NewRepositoriesWithPrefix creates the repositories with a custom table prefix.
// The schema must have been created with chatsync.ApplyMigrationsWithPrefix
// and the same prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, dsn, prefix string, logger chatsync.Logger) *Repositories {
	repo := NewMessageRepositoryWithPrefix(db, driverName, prefix)

	if driverName == "postgres" {
		return &Repositories{
			Message: repo,
			Feed:    NewPostgresFeedWithPrefix(dsn, prefix, logger),
		}
	}

	feed := chatsync.NewLocalFeed(chatsync.DefaultFeedBuffer)
	return &Repositories{
		Message: chatsync.NewRecordingRepository(repo, feed),
		Feed:    feed,
	}
}
