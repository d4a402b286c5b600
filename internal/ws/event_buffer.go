package ws

import (
	"sort"
	"sync"
	"time"

	"github.com/persistorai/doctrail/internal/metrics"
)

// BufferConfig bounds the replay buffer kept for reconnecting clients.
type BufferConfig struct {
	// MaxLen caps the events kept per scope unless ScopeMaxLen overrides it.
	MaxLen int
	MaxAge time.Duration

	// ScopeMaxLen sets a cap for individual scopes. Busy root types can keep a
	// deeper backlog than rarely edited ones.
	ScopeMaxLen map[string]int
}

// DefaultBufferConfig is used for zero fields of a BufferConfig.
var DefaultBufferConfig = BufferConfig{MaxLen: 1000, MaxAge: time.Hour}

func (c BufferConfig) withDefaults() BufferConfig {
	if c.MaxLen <= 0 {
		c.MaxLen = DefaultBufferConfig.MaxLen
	}

	if c.MaxAge <= 0 {
		c.MaxAge = DefaultBufferConfig.MaxAge
	}

	return c
}

// EventBuffer keeps recent events per scope so a reconnecting client can
// catch up from its last seen event ID. It runs no goroutine of its own: the
// hub calls Evict periodically.
type EventBuffer struct {
	mu     sync.RWMutex
	events map[string][]Event
	cfg    BufferConfig
	now    func() time.Time
}

// NewEventBuffer creates an EventBuffer.
func NewEventBuffer(cfg BufferConfig) *EventBuffer {
	return &EventBuffer{
		events: make(map[string][]Event),
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
}

// Limit returns the number of events kept for scope.
func (eb *EventBuffer) Limit(scope string) int {
	if n, ok := eb.cfg.ScopeMaxLen[scope]; ok && n > 0 {
		return n
	}

	return eb.cfg.MaxLen
}

// Evict drops expired events and forgets scopes left empty.
func (eb *EventBuffer) Evict() {
	cutoff := eb.now().Add(-eb.cfg.MaxAge)

	eb.mu.Lock()
	defer eb.mu.Unlock()

	for scope, buf := range eb.events {
		buf = eb.expire(buf, cutoff)
		if len(buf) == 0 {
			delete(eb.events, scope)

			continue
		}

		eb.events[scope] = buf
	}
}

func (eb *EventBuffer) expire(buf []Event, cutoff time.Time) []Event {
	n := sort.Search(len(buf), func(i int) bool { return !buf[i].Time.Before(cutoff) })
	if n > 0 {
		metrics.WSReplayEvictedTotal.WithLabelValues("expired").Add(float64(n))
	}

	return buf[n:]
}

// Append stores an event of scope, evicting expired entries and those over
// the scope's limit.
func (eb *EventBuffer) Append(scope string, event *Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	buf := eb.expire(eb.events[scope], eb.now().Add(-eb.cfg.MaxAge))
	buf = append(buf, *event)

	if limit := eb.Limit(scope); len(buf) > limit {
		metrics.WSReplayEvictedTotal.WithLabelValues("overflow").Add(float64(len(buf) - limit))
		buf = buf[len(buf)-limit:]
	}

	eb.events[scope] = buf
}

// Since returns all events of a scope with ID > lastEventID, or nil.
func (eb *EventBuffer) Since(scope string, lastEventID uint64) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	buf := eb.events[scope]

	// IDs are ascending within a scope.
	lo := sort.Search(len(buf), func(i int) bool { return buf[i].ID > lastEventID })
	if lo >= len(buf) {
		return nil
	}

	result := make([]Event, len(buf)-lo)
	copy(result, buf[lo:])

	return result
}

// OldestID returns the oldest buffered event ID of a scope, or 0 if empty.
func (eb *EventBuffer) OldestID(scope string) uint64 {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	buf := eb.events[scope]
	if len(buf) == 0 {
		return 0
	}

	return buf[0].ID
}
