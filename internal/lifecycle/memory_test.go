package lifecycle

import (
	"context"
	"testing"

	"QDataServer/pkg/plugin"
)

func TestMemoryPublisherRetainsEventsInOrder(t *testing.T) {
	publisher := NewMemoryPublisher(8)
	ctx := context.Background()

	for _, kind := range []string{"loaded", "initialized", "unloaded"} {
		if err := publisher.Publish(ctx, NewEvent(kind, "Core", "")); err != nil {
			t.Fatalf("publish %s: %v", kind, err)
		}
	}

	events := publisher.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, kind := range []string{"loaded", "initialized", "unloaded"} {
		if events[i].Kind != kind {
			t.Fatalf("event %d kind = %q, want %q", i, events[i].Kind, kind)
		}
		if events[i].ID == "" {
			t.Fatalf("event %d has no id", i)
		}
		if events[i].At.IsZero() {
			t.Fatalf("event %d has no timestamp", i)
		}
	}
	if events[0].ID == events[1].ID {
		t.Fatalf("event ids must be unique")
	}
}

func TestMemoryPublisherBoundsRetention(t *testing.T) {
	publisher := NewMemoryPublisher(2)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		if err := publisher.Publish(ctx, NewEvent("loaded", name, "")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	events := publisher.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 retained events, got %d", len(events))
	}
	if events[0].Plugin != "B" || events[1].Plugin != "C" {
		t.Fatalf("oldest event must be dropped, got %+v", events)
	}
}

func TestMemoryPublisherRejectsAfterClose(t *testing.T) {
	publisher := NewMemoryPublisher(0)
	if err := publisher.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := publisher.Publish(context.Background(), NewEvent("loaded", "A", "")); err == nil {
		t.Fatalf("publish after close must fail")
	}
}

func TestListenerForwardsManagerEvents(t *testing.T) {
	publisher := NewMemoryPublisher(0)
	listener := Listener(publisher)

	listener(plugin.EventInitializationFailed, "Flaky", "no database")

	events := publisher.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	event := events[0]
	if event.Kind != string(plugin.EventInitializationFailed) ||
		event.Plugin != "Flaky" || event.Detail != "no database" {
		t.Fatalf("unexpected event: %+v", event)
	}
}
