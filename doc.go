// Package chatsync ingests WhatsApp Business webhook payloads into a message
// store and keeps connected chat clients in sync with that store in real time.
//
// Works both as a library for embedding in your application AND as a standalone
// server with REST and WebSocket endpoints (cmd/chatsync-server).
//
// # Features
//
//   - Idempotent ingestion: re-processing the same payloads never duplicates messages
//   - Status progression: sent → delivered → read, applied from status records
//   - Change feed watcher turning store mutations into newMessage / messageUpdated events
//   - Exactly-once newMessage for messages sent through the API
//   - Derived conversation list, most recent first
//   - Multi-store support: MongoDB change streams, PostgreSQL LISTEN/NOTIFY,
//     MySQL and SQLite via Relica adapters, plus an in-memory store
//   - Pluggable Logger and EventBroadcaster
//   - Embedded migrations for the SQL stores
//
// # Quick Start
//
// Apply the migrations and create the repositories:
//
//	db, _ := sql.Open("sqlite3", "chatsync.db")
//	if err := chatsync.ApplyMigrations(ctx, db, "sqlite3"); err != nil {
//	    log.Fatal(err)
//	}
//	repos := relica.NewRepositories(db, "sqlite3", "", logger)
//
// Watch the change feed and push events to WebSocket clients:
//
//	h, _ := hub.New(hub.WithLogger(logger))
//	watcher, _ := chatsync.NewWatcher(
//	    chatsync.WithFeed(repos.Feed, repos.Message),
//	    chatsync.WithBroadcaster(h),
//	    chatsync.WithLogger(logger),
//	)
//	go watcher.Run(ctx)
//	http.HandleFunc("/ws", h.ServeWS)
//
// Ingest payload files:
//
//	ingestor, _ := chatsync.NewIngestor(
//	    chatsync.WithIngestorRepository(repos.Message),
//	    chatsync.WithIngestorLogger(logger),
//	)
//	report, err := ingestor.IngestDir(ctx, "messages")
//
// Send and delete messages:
//
//	service, _ := chatsync.NewMessageService(
//	    chatsync.WithServiceRepository(repos.Message),
//	    chatsync.WithServiceBroadcaster(h),
//	    chatsync.WithServiceLogger(logger),
//	)
//	msg, err := service.CreateMessage(ctx, chatsync.CreateMessageRequest{
//	    ConversationID: "919937320320",
//	    SenderName:     "Support",
//	    Text:           "Hello!",
//	})
//
// # Event Flow
//
//  1. INGEST
//     Payload unit → Extract messages and statuses
//     → InsertIfAbsent (duplicates skipped)
//     → UpdateStatus (unknown ids reported, not retried)
//
//  2. WATCH
//     Store mutation → ChangeFeed → Watcher
//     → insert: newMessage, update: messageUpdated (post-update document)
//     → delete: ignored
//
//  3. DELETE
//     MessageService captures the document, deletes it
//     and broadcasts messageDeleted itself
//
// A lost change stream is reopened with exponential backoff (see package retry).
// Events emitted while a client is disconnected are not replayed: clients
// reload state over REST after reconnecting (see package client).
//
// # Stores
//
//	memory    - in-process, RecordingRepository + LocalFeed
//	sqlite3   - Relica, RecordingRepository + LocalFeed
//	mysql     - Relica, RecordingRepository + LocalFeed
//	postgres  - Relica, PostgresFeed (trigger + LISTEN/NOTIFY)
//	mongo     - mongo driver, change stream with full document lookup
//
// The SQL stores keep messages in a single table, chat_messages by default
// (see ApplyMigrationsWithPrefix).
//
// sqlite3, mysql and memory observe only writes made through the serving
// process. Other writers ingest through its POST /webhook endpoint.
package chatsync
