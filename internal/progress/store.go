package progress

import (
	"sync"
	"time"
)

// Store holds the current State and serializes dispatches.
type Store struct {
	mu    sync.RWMutex
	state State
	now   func() time.Time

	subMu       sync.Mutex
	subscribers map[int]func(State)
	nextID      int
}

// NewStore creates a store in InitialState. A nil clock uses time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		state:       InitialState(),
		now:         now,
		subscribers: make(map[int]func(State)),
	}
}

// Dispatch reduces a into the current state and calls every subscriber with
// the result. Subscribers run on the dispatching goroutine and must not
// dispatch themselves.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	next := Reduce(s.state, a, s.now().UTC())
	s.state = next
	s.mu.Unlock()

	s.subMu.Lock()
	subs := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(next)
	}

	return next
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}
