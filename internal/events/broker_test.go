package events

import (
	"testing"
	"time"

	"steward/internal/session"
)

func TestSubscribe_SnapshotFirst(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("s1", session.StatePlanning)
	defer cancel()

	evt := <-ch
	if evt.Type != TypeSnapshot {
		t.Fatalf("expected snapshot first, got %s", evt.Type)
	}
	if evt.State != session.StatePlanning {
		t.Errorf("expected current state in snapshot, got %s", evt.State)
	}
}

func TestSubscribe_TerminalSessionClosesImmediately(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("s1", session.StateCompleted)
	defer cancel()

	evt, ok := <-ch
	if !ok || evt.Type != TypeSnapshot {
		t.Fatal("expected the terminal snapshot")
	}
	if _, ok := <-ch; ok {
		t.Error("expected stream closed after terminal snapshot")
	}
}

func TestPublish_DeliversInOrder(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("s1", session.StateExecuting)
	defer cancel()
	<-ch // snapshot

	b.Publish(Event{SessionID: "s1", Type: TypeToolInvoked, Tool: "write_file", Timestamp: time.Now()})
	b.Publish(Event{SessionID: "s1", Type: TypeStateChanged, State: session.StateReviewing, Timestamp: time.Now()})

	first := <-ch
	if first.Type != TypeToolInvoked || first.Tool != "write_file" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	second := <-ch
	if second.Type != TypeStateChanged || second.State != session.StateReviewing {
		t.Fatalf("unexpected second event: %+v", second)
	}
}

func TestPublish_TerminalStateEndsStream(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("s1", session.StateExecuting)
	defer cancel()
	<-ch // snapshot

	b.Publish(Event{SessionID: "s1", Type: TypeStateChanged, State: session.StateCompleted, Timestamp: time.Now()})

	evt, ok := <-ch
	if !ok || evt.State != session.StateCompleted {
		t.Fatal("expected the terminal state change delivered")
	}
	if _, ok := <-ch; ok {
		t.Error("expected stream closed after terminal event")
	}
}

func TestPublish_OtherSessionsUnaffected(t *testing.T) {
	b := NewBroker()
	ch1, cancel1 := b.Subscribe("s1", session.StateExecuting)
	defer cancel1()
	ch2, cancel2 := b.Subscribe("s2", session.StateExecuting)
	defer cancel2()
	<-ch1
	<-ch2

	b.Publish(Event{SessionID: "s1", Type: TypeError, Error: "boom", Timestamp: time.Now()})

	select {
	case evt := <-ch1:
		if evt.Error != "boom" {
			t.Errorf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("s1 subscriber got nothing")
	}
	select {
	case evt := <-ch2:
		t.Errorf("s2 subscriber leaked event: %+v", evt)
	default:
	}
}

func TestCancel_DetachesSubscriber(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("s1", session.StateExecuting)
	<-ch
	cancel()

	if _, ok := <-ch; ok {
		t.Error("expected channel closed on cancel")
	}
	// Publishing after detach must not panic.
	b.Publish(Event{SessionID: "s1", Type: TypeError, Error: "late", Timestamp: time.Now()})
	// Cancelling twice is fine.
	cancel()
}

func TestPublish_FullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("s1", session.StateExecuting)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(Event{SessionID: "s1", Type: TypeContentChunk, Timestamp: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	_ = ch
}

func TestCompositeSink_FiltersNil(t *testing.T) {
	var got []Event
	rec := sinkFunc(func(evt Event) { got = append(got, evt) })

	sink := NewCompositeSink(nil, rec, nil)
	sink.Publish(Event{SessionID: "s1", Type: TypeError})
	if len(got) != 1 {
		t.Errorf("expected 1 delivered event, got %d", len(got))
	}

	if _, ok := NewCompositeSink(nil, nil).(NoopSink); !ok {
		t.Error("expected noop sink when nothing is attached")
	}
}

type sinkFunc func(Event)

func (f sinkFunc) Publish(evt Event) { f(evt) }
