package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: ObligationStarted, UserID: "u1", ThreadID: "t1"})

	select {
	case e := <-ch:
		if e.Type != ObligationStarted || e.UserID != "u1" || e.ThreadID != "t1" {
			t.Fatalf("unexpected event: %+v", e)
		}
		if e.Time.IsZero() {
			t.Fatal("Publish should stamp Time")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	// Fill the buffer, then overflow; Publish must never block.
	b.Publish(Event{Type: ObligationFired})
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: ObligationCancelled})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	e := <-ch
	if e.Type != ObligationFired {
		t.Fatalf("first event = %q, want %q", e.Type, ObligationFired)
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	_ = ch
	unsub()
	unsub() // idempotent
	b.Publish(Event{Type: ObligationSuperseded})
}
