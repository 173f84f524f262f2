package eventstore

import (
	"testing"
	"time"
)

func TestStoreEventAssignsMonotonicTimestamps(t *testing.T) {
	s := New(100, 0)
	var last int64
	for i := 0; i < 10; i++ {
		ts := s.StoreEvent("step_started", map[string]any{"taskId": "t1"})
		if ts <= last {
			t.Fatalf("timestamp did not increase: %d <= %d", ts, last)
		}
		last = ts
	}
}

func TestGetRecentEventsReturnsNewestInOrder(t *testing.T) {
	s := New(3, 0)
	for i := 0; i < 5; i++ {
		s.StoreEvent("e", map[string]any{})
	}
	recent := s.GetRecentEvents(10)
	if len(recent) != 3 {
		t.Fatalf("expected ring cap to bound results to 3, got %d", len(recent))
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].Timestamp <= recent[i-1].Timestamp {
			t.Fatalf("events not in increasing order")
		}
	}
}

func TestGetEventsSinceIsAtLeastOnce(t *testing.T) {
	s := New(100, 0)
	s.StoreEvent("a", map[string]any{})
	cursor := s.StoreEvent("b", map[string]any{})
	s.StoreEvent("c", map[string]any{})
	s.StoreEvent("d", map[string]any{})

	got := s.GetEventsSince(cursor, 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 events after cursor, got %d", len(got))
	}
	if got[0].Type != "c" || got[1].Type != "d" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestGetTaskEventsFiltersByTask(t *testing.T) {
	s := New(100, 0)
	s.StoreEvent("e1", map[string]any{"taskId": "t1"})
	s.StoreEvent("e2", map[string]any{"taskId": "t2"})
	s.StoreEvent("e3", map[string]any{"taskId": "t1"})

	got := s.GetTaskEvents("t1")
	if len(got) != 2 {
		t.Fatalf("expected 2 events for t1, got %d", len(got))
	}
}

func TestClientCursorRoundTrip(t *testing.T) {
	s := New(100, 0)
	if _, ok := s.GetClientCursor("c1"); ok {
		t.Fatalf("expected no cursor for unseen client")
	}
	s.SaveClientCursor("c1", 42)
	ts, ok := s.GetClientCursor("c1")
	if !ok || ts != 42 {
		t.Fatalf("expected cursor 42, got %d ok=%v", ts, ok)
	}
}

func TestSubscribeReceivesNewEvents(t *testing.T) {
	s := New(100, 0)
	ch, unsub := s.Subscribe(8)
	defer unsub()

	s.StoreEvent("hello", map[string]any{})

	select {
	case ev := <-ch:
		if ev.Type != "hello" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscribed event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := New(100, 0)
	ch, unsub := s.Subscribe(8)
	unsub()

	_, ok := <-ch
	if ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
}

func TestSlowSubscriberDoesNotBlockStoreEvent(t *testing.T) {
	s := New(100, 0)
	_, unsub := s.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			s.StoreEvent("e", map[string]any{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StoreEvent blocked on a slow subscriber")
	}
}
