package chatsync

import (
	"fmt"

	"github.com/coregx/chatsync/retry"
)

// Option is a function that configures a Watcher.
//
// Example:
//
//	watcher, err := chatsync.NewWatcher(
//	    chatsync.WithFeed(feed, repo),
//	    chatsync.WithBroadcaster(hub),
//	    chatsync.WithLogger(logger),
//	    chatsync.WithRetryStrategy(retry.DefaultStrategy()), // optional
//	)
type Option func(*Watcher) error

// WithFeed sets the change feed to observe and the repository used to look
// up documents that the feed does not carry.
//
// This is a required option for NewWatcher.
func WithFeed(feed ChangeFeed, repo MessageRepository) Option {
	return func(w *Watcher) error {
		if feed == nil {
			return fmt.Errorf("feed cannot be nil")
		}
		if repo == nil {
			return fmt.Errorf("repo cannot be nil")
		}

		w.feed = feed
		w.repo = repo
		return nil
	}
}

// WithBroadcaster sets the push layer that receives classified events.
//
// This is a required option for NewWatcher.
func WithBroadcaster(broadcaster EventBroadcaster) Option {
	return func(w *Watcher) error {
		if broadcaster == nil {
			return fmt.Errorf("broadcaster cannot be nil")
		}
		w.broadcaster = broadcaster
		return nil
	}
}

// WithLogger sets the logger instance for the watcher.
// Logger is required and must not be nil.
//
// Use NoopLogger for silent operation.
func WithLogger(logger Logger) Option {
	return func(w *Watcher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		w.logger = logger
		return nil
	}
}

// WithRetryStrategy sets the resubscription strategy used when the change
// stream is lost. This is an optional configuration - if not provided,
// retry.DefaultStrategy() will be used.
//
// When the strategy is exhausted the watcher stops and Run returns an error
// for which IsUnavailable reports true.
func WithRetryStrategy(strategy retry.Strategy) Option {
	return func(w *Watcher) error {
		if strategy.MaxAttempts <= 0 {
			return fmt.Errorf("retry strategy must allow at least one attempt, got %d", strategy.MaxAttempts)
		}
		w.retryStrategy = strategy
		return nil
	}
}
