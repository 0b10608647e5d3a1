package ledger

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Feed distributes appended entries to subscribers over buffered channels.
// Publishing never blocks: a subscriber whose buffer is full misses the
// entry and its drop counter is incremented. Subscribers needing a complete
// view should re-read from the Store rather than rely on the feed.
type Feed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
	logger *zap.Logger
}

type subscriber struct {
	ch      chan *Entry
	dropped atomic.Int64
}

// NewFeed creates an empty Feed.
func NewFeed(logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{subs: make(map[int]*subscriber), logger: logger}
}

// Subscribe registers a new subscriber with the given channel buffer size
// (minimum 1). The returned cancel function unregisters the subscriber and
// closes its channel; it is safe to call more than once.
func (f *Feed) Subscribe(buffer int) (<-chan *Entry, func()) {
	if buffer < 1 {
		buffer = 1
	}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	sub := &subscriber{ch: make(chan *Entry, buffer)}
	f.subs[id] = sub
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers e to every subscriber that has buffer capacity.
func (f *Feed) Publish(e *Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, sub := range f.subs {
		select {
		case sub.ch <- e:
		default:
			if n := sub.dropped.Add(1); n == 1 {
				f.logger.Warn("slow ledger feed subscriber, dropping entries",
					zap.Int("subscriber", id),
				)
			}
		}
	}
}
