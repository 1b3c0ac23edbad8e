package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"tokendao/internal/shared/events"
)

func TestPublishDeliversToTopicSubscribers(t *testing.T) {
	bus, err := NewKafka([]string{"localhost:9092"}, nil)
	if err != nil {
		t.Fatalf("new kafka: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan events.Envelope, 1)
	if err := bus.Subscribe(ctx, "governance.vote.cast", "audit", func(_ context.Context, event events.Envelope) error {
		received <- event
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(ctx, "governance.proposal.submitted", events.Envelope{EventID: "evt-0"}); err != nil {
		t.Fatalf("publish other topic: %v", err)
	}
	if err := bus.Publish(ctx, "governance.vote.cast", events.Envelope{EventID: "evt-1", PartitionKey: "1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case event := <-received:
		if event.EventID != "evt-1" {
			t.Fatalf("event id = %q, want evt-1", event.EventID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeSurvivesHandlerErrors(t *testing.T) {
	bus, _ := NewKafka(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan string, 2)
	_ = bus.Subscribe(ctx, "governance.proposal.closed", "keeper", func(_ context.Context, event events.Envelope) error {
		calls <- event.EventID
		return errors.New("projection unavailable")
	})

	for _, id := range []string{"evt-1", "evt-2"} {
		if err := bus.Publish(ctx, "governance.proposal.closed", events.Envelope{EventID: id}); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	for _, want := range []string{"evt-1", "evt-2"} {
		select {
		case got := <-calls:
			if got != want {
				t.Fatalf("handler saw %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestPublishWaitsForSlowSubscriberInsteadOfDropping(t *testing.T) {
	bus, _ := NewKafka(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	var delivered atomic.Int64
	_ = bus.Subscribe(ctx, "governance.vote.cast", "audit", func(context.Context, events.Envelope) error {
		<-release
		delivered.Add(1)
		return nil
	})

	// One event sits in the blocked handler and the rest fill the buffer.
	total := subscriberBuffer + 1
	for i := range total {
		if err := bus.Publish(ctx, "governance.vote.cast", events.Envelope{EventID: fmt.Sprintf("evt-%d", i)}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	short, stop := context.WithTimeout(ctx, 50*time.Millisecond)
	defer stop()
	err := bus.Publish(short, "governance.vote.cast", events.Envelope{EventID: "evt-overflow"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("publish on full buffer = %v, want deadline exceeded", err)
	}

	close(release)
	deadline := time.After(2 * time.Second)
	for delivered.Load() < int64(total) {
		select {
		case <-deadline:
			t.Fatalf("delivered %d of %d events", delivered.Load(), total)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPublishSkipsSubscribersThatStopped(t *testing.T) {
	bus, _ := NewKafka(nil, nil)
	subCtx, stopSub := context.WithCancel(context.Background())
	_ = bus.Subscribe(subCtx, "governance.proposal.closed", "audit", func(context.Context, events.Envelope) error {
		return nil
	})
	stopSub()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := range subscriberBuffer * 2 {
		if err := bus.Publish(ctx, "governance.proposal.closed", events.Envelope{EventID: fmt.Sprintf("evt-%d", i)}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
}
