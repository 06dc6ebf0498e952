package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Handler consumes one event. Handlers may be called concurrently for
// different events and must be safe for that.
type Handler func(ctx context.Context, ev Event) error

type subscription struct {
	id      int
	name    string
	handler Handler
}

// Bus is an instance-scoped publish/subscribe component. Subscriptions live
// exactly as long as the consumer keeps them; there is no global registry.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[int]subscription
	nextID int

	statsMu   sync.Mutex
	published map[Kind]int
	failed    int
}

// NewBus creates an empty bus
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger:    logger,
		subs:      make(map[int]subscription),
		published: make(map[Kind]int),
	}
}

// Subscribe registers a named handler. The returned function removes it and
// is safe to call more than once.
func (b *Bus) Subscribe(name string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscription{id: id, name: name, handler: h}
	b.mu.Unlock()

	b.logger.Debug("Subscriber registered", "name", name)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			b.logger.Debug("Subscriber removed", "name", name)
		})
	}
}

// Subscribers returns the names of current subscribers in registration order
func (b *Bus) Subscribers() []string {
	subs := b.snapshot()
	names := make([]string, len(subs))
	for i, s := range subs {
		names[i] = s.name
	}
	return names
}

func (b *Bus) snapshot() []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	return subs
}

// Publish hands ev to every current subscriber. Subscribers run
// concurrently since they are independent of each other. The returned
// Delivery completes once all of them have returned.
func (b *Bus) Publish(ctx context.Context, ev Event) *Delivery {
	subs := b.snapshot()
	d := &Delivery{event: ev, done: make(chan struct{})}

	b.statsMu.Lock()
	b.published[ev.Kind]++
	b.statsMu.Unlock()

	if len(subs) == 0 {
		close(d.done)
		return d
	}

	go func() {
		defer close(d.done)
		p := pool.New().WithErrors().WithContext(ctx)
		for _, s := range subs {
			s := s
			p.Go(func(ctx context.Context) error {
				if err := s.handler(ctx, ev); err != nil {
					return fmt.Errorf("subscriber %s: %w", s.name, err)
				}
				return nil
			})
		}
		d.err = p.Wait()
		if d.err != nil {
			b.statsMu.Lock()
			b.failed++
			b.statsMu.Unlock()
			b.logger.Warn("Event delivery failed",
				"kind", ev.Kind.String(),
				"path", ev.Path,
				"error", d.err.Error(),
			)
		}
	}()
	return d
}

// Stats returns bus statistics
func (b *Bus) Stats() map[string]interface{} {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	published := make(map[string]int, len(b.published))
	for k, n := range b.published {
		published[k.String()] = n
	}
	return map[string]interface{}{
		"subscribers": len(b.snapshot()),
		"published":   published,
		"failed":      b.failed,
	}
}

// Delivery is the pending result of one Publish call.
type Delivery struct {
	event Event
	done  chan struct{}
	err   error
}

// Event returns the event being delivered
func (d *Delivery) Event() Event { return d.event }

// Done is closed once every subscriber has returned
func (d *Delivery) Done() <-chan struct{} { return d.done }

// Wait blocks until every subscriber has returned and reports their joined
// errors.
func (d *Delivery) Wait() error {
	<-d.done
	return d.err
}

// WaitAll waits for every delivery and joins their errors.
func WaitAll(deliveries []*Delivery) error {
	var errs []error
	for _, d := range deliveries {
		if err := d.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
