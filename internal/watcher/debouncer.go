package watcher

import (
	"sync"
	"time"
)

// BatchDebouncer collects events and emits them together once no new event
// has arrived for the configured delay.
type BatchDebouncer struct {
	delay  time.Duration
	timer  *time.Timer
	mu     sync.Mutex
	events []Event
	emit   func([]Event)
}

// NewBatchDebouncer creates a batch debouncer. A zero delay emits on the next
// timer tick after each Add.
func NewBatchDebouncer(delay time.Duration, emit func([]Event)) *BatchDebouncer {
	return &BatchDebouncer{
		delay:  delay,
		events: make([]Event, 0),
		emit:   emit,
	}
}

// Add queues an event and restarts the quiet period
func (b *BatchDebouncer) Add(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.delay, b.flush)
}

func (b *BatchDebouncer) flush() {
	b.mu.Lock()
	events := b.events
	b.events = make([]Event, 0)
	b.timer = nil
	b.mu.Unlock()

	if len(events) > 0 && b.emit != nil {
		b.emit(Coalesce(events))
	}
}

// Cancel drops pending events without emitting them
func (b *BatchDebouncer) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.events = make([]Event, 0)
}

// Flush emits pending events now
func (b *BatchDebouncer) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	b.flush()
}

// EventCount returns the number of pending events
func (b *BatchDebouncer) EventCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Coalesce removes redundant events from a batch while keeping the order of
// the rest. A modify is dropped when the previous event kept for the same
// path was a create or a modify.
func Coalesce(events []Event) []Event {
	last := make(map[string]EventType, len(events))
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		prev, seen := last[ev.Path]
		if seen && ev.Type == EventModify && (prev == EventModify || prev == EventCreate) {
			continue
		}
		last[ev.Path] = ev.Type
		out = append(out, ev)
	}
	return out
}
