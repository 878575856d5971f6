package chatsync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coregx/chatsync/model"
)

// DefaultFeedBuffer is the per-subscriber buffer of a LocalFeed.
const DefaultFeedBuffer = 256

// LocalFeed is an in-process change feed for stores without a native one
// (SQLite, MySQL, the memory store). Writers report committed changes through
// Record, usually via RecordingRepository.
//
// Only writes made through this process are observed. That matches the single
// process deployment in which one server owns both the store writers and the feed.
//
// Record never blocks. When a subscriber's buffer is full the change is
// dropped for that subscriber and its next Next call reports an observation error.
type LocalFeed struct {
	mu      sync.RWMutex
	streams map[*localStream]struct{}
	buffer  int
}

// NewLocalFeed creates a LocalFeed with the given per-subscriber buffer size.
// A size <= 0 selects DefaultFeedBuffer.
func NewLocalFeed(buffer int) *LocalFeed {
	if buffer <= 0 {
		buffer = DefaultFeedBuffer
	}
	return &LocalFeed{
		streams: make(map[*localStream]struct{}),
		buffer:  buffer,
	}
}

// Record publishes a committed change to every open stream.
func (f *LocalFeed) Record(change model.Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for s := range f.streams {
		select {
		case s.changes <- change:
		default:
			s.dropped.Add(1)
		}
	}
}

// Watch opens a new stream. It implements ChangeFeed.
func (f *LocalFeed) Watch(ctx context.Context) (ChangeStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &localStream{
		feed:    f,
		changes: make(chan model.Change, f.buffer),
		closed:  make(chan struct{}),
	}

	f.mu.Lock()
	f.streams[s] = struct{}{}
	f.mu.Unlock()

	return s, nil
}

// Subscribers returns the number of open streams.
func (f *LocalFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.streams)
}

func (f *LocalFeed) remove(s *localStream) {
	f.mu.Lock()
	delete(f.streams, s)
	f.mu.Unlock()
}

type localStream struct {
	feed      *LocalFeed
	changes   chan model.Change
	closed    chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

func (s *localStream) Next(ctx context.Context) (model.Change, error) {
	if n := s.dropped.Swap(0); n > 0 {
		return model.Change{}, NewError(ErrCodeFeedObservation,
			fmt.Sprintf("%d changes dropped, subscriber buffer full", n))
	}

	select {
	case <-ctx.Done():
		return model.Change{}, ctx.Err()
	case <-s.closed:
		return model.Change{}, ErrStreamClosed
	case change := <-s.changes:
		return change, nil
	}
}

func (s *localStream) Close() error {
	s.closeOnce.Do(func() {
		s.feed.remove(s)
		close(s.closed)
	})
	return nil
}
