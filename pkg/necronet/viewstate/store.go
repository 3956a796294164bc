package viewstate

import "sync"

// store holds one view's state. Every change is tagged with a generation;
// changes from an older generation are dropped. Listeners run in order of
// the changes they observe, outside the state lock, and must not call back
// into the view that owns the store.
type store[S any] struct {
	notifyMu sync.Mutex

	mu         sync.Mutex
	state      S
	generation uint64
	listeners  map[int]func(S)
	nextID     int
	clone      func(S) S
}

func newStore[S any](initial S, clone func(S) S) *store[S] {
	if clone == nil {
		clone = func(s S) S { return s }
	}
	return &store[S]{state: initial, listeners: make(map[int]func(S)), clone: clone}
}

func (s *store[S]) get() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clone(s.state)
}

// next starts a new generation, making all earlier ones stale.
func (s *store[S]) next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

// apply runs fn on the state if gen is current. fn may veto the change by
// returning false. apply reports whether the change was made.
func (s *store[S]) apply(gen uint64, fn func(*S) bool) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if gen != s.generation || !fn(&s.state) {
		s.mu.Unlock()
		return false
	}
	snapshot := s.clone(s.state)
	listeners := make([]func(S), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
	return true
}

// applyCurrent is apply against whatever generation is current, returning it.
func (s *store[S]) applyCurrent(fn func(*S) bool) (uint64, bool) {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	return gen, s.apply(gen, fn)
}

func (s *store[S]) subscribe(fn func(S)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
