// Package eventstore implements the append-only event log and per-client
// replay cursor described in SPEC_FULL.md §4.10, grounded on the teacher's
// pkg/server/events.go event-processing/fan-out pattern.
package eventstore

import (
	"sync"
	"sync/atomic"
)

// Event is one entry in the store: a type name, a JSON-able payload, and a
// monotonic timestamp assigned by the store itself.
type Event struct {
	Type      string
	Payload   map[string]any
	Timestamp int64 // monotonic sequence number (+1 per event), never wall-clock time
}

// Store holds a global ring buffer of recent events, a per-task
// append-only list, and per-client cursors. The single atomic counter is
// the store's one clock (§9 "Event replay": never call now() at multiple
// sites), so GetEventsSince is total-order correct under concurrent
// writers.
type Store struct {
	mu   sync.RWMutex
	seq  atomic.Int64
	ring []Event
	ringCap int

	byTask    map[string][]Event
	taskCap   int

	cursors map[string]int64

	subsMu sync.Mutex
	subs   map[int]chan Event
	nextSub int
}

// New creates a Store. ringCap bounds the global ring; taskCap bounds each
// per-task list (0 means unbounded). A positive taskCap applies to every
// task alike: the store does not know which tasks are active, so an
// active task's oldest events are evicted once its list passes taskCap.
// A 0 cap is the only way to keep every task's events.
func New(ringCap, taskCap int) *Store {
	if ringCap <= 0 {
		ringCap = 1000
	}
	return &Store{
		ringCap: ringCap,
		taskCap: taskCap,
		byTask:  make(map[string][]Event),
		cursors: make(map[string]int64),
		subs:    make(map[int]chan Event),
	}
}

// StoreEvent assigns the next monotonic timestamp, appends to the global
// ring (evicting the oldest entry past ringCap), appends to the task list
// when payload["taskId"] is set, and fans the event out to every
// subscriber. It never blocks on a slow subscriber — see Subscribe.
func (s *Store) StoreEvent(eventType string, payload map[string]any) int64 {
	ts := s.seq.Add(1)
	ev := Event{Type: eventType, Payload: payload, Timestamp: ts}

	s.mu.Lock()
	s.ring = append(s.ring, ev)
	if len(s.ring) > s.ringCap {
		s.ring = s.ring[len(s.ring)-s.ringCap:]
	}
	if taskID, ok := payload["taskId"].(string); ok && taskID != "" {
		list := append(s.byTask[taskID], ev)
		if s.taskCap > 0 && len(list) > s.taskCap {
			list = list[len(list)-s.taskCap:]
		}
		s.byTask[taskID] = list
	}
	s.mu.Unlock()

	s.broadcast(ev)
	return ts
}

// GetRecentEvents returns up to count of the newest events, oldest first.
func (s *Store) GetRecentEvents(count int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if count <= 0 || count > len(s.ring) {
		count = len(s.ring)
	}
	out := make([]Event, count)
	copy(out, s.ring[len(s.ring)-count:])
	return out
}

// GetEventsSince returns events with Timestamp > ts, in order, capped at
// limit (0 means unbounded). Invariant (§8 property 5): at-least-once
// delivery — every event stored after a client's cursor that is still in
// the global ring is returned here; events already evicted past ringCap
// are not.
func (s *Store) GetEventsSince(ts int64, limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, ev := range s.ring {
		if ev.Timestamp > ts {
			out = append(out, ev)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// GetTaskEvents returns every retained event tagged with taskID, in order.
func (s *Store) GetTaskEvents(taskID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.byTask[taskID]))
	copy(out, s.byTask[taskID])
	return out
}

// SaveClientCursor persists a client's last-received timestamp.
func (s *Store) SaveClientCursor(clientID string, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[clientID] = ts
}

// GetClientCursor returns a client's cursor and whether one exists.
func (s *Store) GetClientCursor(clientID string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.cursors[clientID]
	return ts, ok
}

// Subscribe registers a channel that receives every event stored from this
// point forward. The returned unsubscribe func must be called when the
// subscriber disconnects. The channel is buffered (bufSize); a subscriber
// that falls behind has its oldest buffered event dropped to make room
// rather than blocking StoreEvent (§5 back-pressure); the subscriber is
// not disconnected.
func (s *Store) Subscribe(bufSize int) (<-chan Event, func()) {
	if bufSize <= 0 {
		bufSize = 64
	}
	ch := make(chan Event, bufSize)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	unsub := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, unsub
}

func (s *Store) broadcast(ev Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Drop oldest to make room rather than block the writer.
			select {
			case <-ch:
				select {
				case ch <- ev:
				default:
				}
			default:
			}
		}
	}
}
