package settings

import (
	"slices"
	"sync"
)

// Listener receives every committed change. It may call Store.Update; the
// nested change is delivered after the current one, so every listener sees
// changes in commit order.
type Listener func(prev, next Settings)

type change struct {
	prev, next Settings
}

// Store owns the settings object. All mutations go through Update.
type Store struct {
	mu        sync.Mutex
	path      string
	cur       Settings
	listeners map[int]Listener
	nextID    int
	queue     []change
	draining  bool
}

// Open loads the settings file at path and returns a store persisting to it.
func Open(path string) (*Store, error) {
	s, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, cur: s, listeners: map[int]Listener{}}, nil
}

// NewMemoryStore returns a store that never touches disk.
func NewMemoryStore(initial Settings) *Store {
	initial = initial.Clone()
	initial.Normalize()
	return &Store{cur: initial, listeners: map[int]Listener{}}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Snapshot() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.Clone()
}

// Update applies mutator to a copy of the current settings. Changing
// chatProvider without touching chatModel clears chatModel. The result is
// normalized, validated and persisted before it becomes current; a failing
// step leaves the store unchanged.
func (s *Store) Update(mutator func(*Settings) error) error {
	s.mu.Lock()
	prev := s.cur.Clone()
	next := s.cur.Clone()
	if err := mutator(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	if next.ChatProvider != prev.ChatProvider && next.ChatModel == prev.ChatModel {
		next.ChatModel = ""
	}
	next.Normalize()
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	if next.Equal(prev) {
		s.mu.Unlock()
		return nil
	}
	if s.path != "" {
		if err := SaveFile(s.path, next); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.cur = next
	s.queue = append(s.queue, change{prev: prev, next: next.Clone()})
	if s.draining {
		s.mu.Unlock()
		return nil
	}
	s.draining = true
	s.drainLocked()
	return nil
}

// drainLocked delivers queued changes with the lock released around the
// listener calls. It returns with the lock released.
func (s *Store) drainLocked() {
	for len(s.queue) > 0 {
		c := s.queue[0]
		s.queue = s.queue[1:]
		ids := make([]int, 0, len(s.listeners))
		for id := range s.listeners {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		fns := make([]Listener, 0, len(ids))
		for _, id := range ids {
			fns = append(fns, s.listeners[id])
		}
		s.mu.Unlock()
		for _, fn := range fns {
			fn(c.prev.Clone(), c.next.Clone())
		}
		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}

// Subscribe registers fn and returns a function that removes it. Listeners
// are called in subscription order.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}
