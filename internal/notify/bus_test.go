package notify

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"slnsync/internal/slogutil"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{FileAdded, "file_added"},
		{FileRemoved, "file_removed"},
		{FileMoved, "file_moved"},
		{FileRenamed, "file_renamed"},
		{FileContentChanged, "file_content_changed"},
		{DirectoryAdded, "directory_added"},
		{DirectoryRemoved, "directory_removed"},
		{Kind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if tt.want == "unknown" {
				return
			}
			parsed, ok := ParseKind(tt.want)
			if !ok || parsed != tt.kind {
				t.Errorf("ParseKind(%q) = (%v, %v), want (%v, true)", tt.want, parsed, ok, tt.kind)
			}
		})
	}
}

func TestIsFileEvent(t *testing.T) {
	if !FileRenamed.IsFileEvent() {
		t.Error("FileRenamed is a file event")
	}
	if DirectoryAdded.IsFileEvent() {
		t.Error("DirectoryAdded is not a file event")
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus(slogutil.NewDiscardLogger())
	a, b := NewRecorder(), NewRecorder()
	bus.Subscribe("a", a.Handle)
	bus.Subscribe("b", b.Handle)

	ev := Added("n1", "/P/a.cs", []byte("class A {}"))
	if err := bus.Publish(context.Background(), ev).Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	for name, r := range map[string]*Recorder{"a": a, "b": b} {
		got := r.Events()
		if len(got) != 1 {
			t.Fatalf("%s received %d events, want 1", name, len(got))
		}
		if got[0].ID != ev.ID || string(got[0].Contents) != "class A {}" {
			t.Errorf("%s received %+v", name, got[0])
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(slogutil.NewDiscardLogger())
	r := NewRecorder()
	unsubscribe := bus.Subscribe("r", r.Handle)

	_ = bus.Publish(context.Background(), NewEvent(FileRemoved, "n", "/x")).Wait()
	unsubscribe()
	unsubscribe() // idempotent
	_ = bus.Publish(context.Background(), NewEvent(FileRemoved, "n", "/y")).Wait()

	if got := len(r.Events()); got != 1 {
		t.Errorf("received %d events, want 1", got)
	}
	if len(bus.Subscribers()) != 0 {
		t.Errorf("Subscribers() = %v, want empty", bus.Subscribers())
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(slogutil.NewDiscardLogger())
	d := bus.Publish(context.Background(), NewEvent(DirectoryAdded, "n", "/d"))
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("delivery without subscribers should complete immediately")
	}
	if err := d.Wait(); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestDeliveryCollectsErrors(t *testing.T) {
	bus := NewBus(slogutil.NewDiscardLogger())
	var calls atomic.Int32
	bus.Subscribe("ok", func(ctx context.Context, ev Event) error {
		calls.Add(1)
		return nil
	})
	bus.Subscribe("broken", func(ctx context.Context, ev Event) error {
		calls.Add(1)
		return errors.New("consumer offline")
	})

	err := bus.Publish(context.Background(), NewEvent(FileRemoved, "n", "/x")).Wait()
	if err == nil {
		t.Fatal("expected an error from the broken subscriber")
	}
	if !strings.Contains(err.Error(), "subscriber broken") {
		t.Errorf("error = %q, want subscriber name", err.Error())
	}
	if calls.Load() != 2 {
		t.Errorf("handlers called %d times, want 2 (one failure must not stop the other)", calls.Load())
	}

	stats := bus.Stats()
	if stats["failed"] != 1 {
		t.Errorf("stats[failed] = %v, want 1", stats["failed"])
	}
}

func TestWaitAll(t *testing.T) {
	bus := NewBus(slogutil.NewDiscardLogger())
	r := NewRecorder()
	bus.Subscribe("r", r.Handle)

	var deliveries []*Delivery
	for _, p := range []string{"/a", "/b", "/c"} {
		deliveries = append(deliveries, bus.Publish(context.Background(), Added("n", p, nil)))
	}
	if err := WaitAll(deliveries); err != nil {
		t.Fatalf("WaitAll() error = %v", err)
	}
	if got := len(r.OfKind(FileAdded)); got != 3 {
		t.Errorf("recorded %d FileAdded, want 3", got)
	}
	r.Reset()
	if len(r.Events()) != 0 {
		t.Error("Reset() should clear events")
	}
}

func TestMovedAndRenamedCarryOldPath(t *testing.T) {
	m := Moved("n", "/A/x.cs", "/B/x.cs")
	if m.Kind != FileMoved || m.OldPath != "/A/x.cs" || m.Path != "/B/x.cs" {
		t.Errorf("Moved() = %+v", m)
	}
	r := Renamed("n", "/A/x.cs", "/A/y.cs")
	if r.Kind != FileRenamed || r.OldPath != "/A/x.cs" || r.Path != "/A/y.cs" {
		t.Errorf("Renamed() = %+v", r)
	}
	if m.ID == r.ID {
		t.Error("events must get distinct IDs")
	}
}
