// Package relica provides the SQL implementation of chatsync.MessageRepository
// using the Relica query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query builder
// for Go with zero production dependencies.
//
// Supported drivers are sqlite3, postgres and mysql. Postgres gets a native
// change feed through LISTEN/NOTIFY (PostgresFeed). The other drivers use an
// in-process chatsync.LocalFeed fed by a chatsync.RecordingRepository, which
// only observes writes made through the same process.
//
// Every operation is bounded by DefaultTimeout. Include a connect timeout in
// the DSN as well (connect_timeout for postgres, timeout for mysql): lib/pq
// does not watch the context during the connection handshake.
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/chatsync"
//	    "github.com/coregx/chatsync/adapters/relica"
//	    _ "github.com/mattn/go-sqlite3"
//	)
//
//	db, err := sql.Open("sqlite3", "chat.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := chatsync.ApplyMigrations(ctx, db, "sqlite3"); err != nil {
//	    log.Fatal(err)
//	}
//
//	repos := relica.NewRepositories(db, "sqlite3", "chat.db", logger)
//
//	watcher, err := chatsync.NewWatcher(
//	    chatsync.WithFeed(repos.Feed, repos.Message),
//	    chatsync.WithBroadcaster(hub),
//	    chatsync.WithLogger(logger),
//	)
package relica
