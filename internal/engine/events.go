package engine

import (
	"sync"
	"time"
)

// Event categories.
const (
	CategoryEpisode    = "episode"
	CategoryCurriculum = "curriculum"
	CategorySession    = "session"
	CategoryConfig     = "config"
)

// Event is a notable occurrence in a run.
type Event struct {
	Tick        uint64         `json:"tick"`
	Time        time.Time      `json:"time"`
	Description string         `json:"description"`
	Category    string         `json:"category"` // "episode", "curriculum", "session", "config"
	Meta        map[string]any `json:"meta,omitempty"`
}

// EventLog keeps the most recent events in memory and remembers which have
// not been persisted yet.
type EventLog struct {
	mu       sync.Mutex
	capacity int
	events   []Event
	unsaved  int
}

// NewEventLog creates a log holding at most capacity events.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &EventLog{capacity: capacity}
}

// Emit appends an event, dropping the oldest when full.
func (l *EventLog) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, e)
	if l.unsaved < l.capacity {
		l.unsaved++
	}
	if len(l.events) > l.capacity {
		l.events = l.events[len(l.events)-l.capacity:]
	}
}

// Recent returns up to n of the newest events, oldest first.
func (l *EventLog) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]Event, n)
	copy(out, l.events[len(l.events)-n:])
	return out
}

// Unsaved returns events emitted since the last MarkSaved.
func (l *EventLog) Unsaved() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, l.unsaved)
	copy(out, l.events[len(l.events)-l.unsaved:])
	return out
}

// MarkSaved records that the first n unsaved events were persisted.
func (l *EventLog) MarkSaved(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unsaved -= n
	if l.unsaved < 0 {
		l.unsaved = 0
	}
}
