// Package settings holds process-wide runtime settings that components
// observe instead of reading global state.
package settings

import (
	"fmt"
	"sync"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

type Settings struct {
	Theme            Theme `json:"theme"`
	SimulationPaused bool  `json:"simulation_paused"`
	AlertsMuted      bool  `json:"alerts_muted"`
}

func Default() Settings { return Settings{Theme: ThemeLight} }

func (s Settings) Validate() error {
	switch s.Theme {
	case ThemeLight, ThemeDark:
		return nil
	}
	return fmt.Errorf("unknown theme %q", s.Theme)
}

// Store is an observable Settings value. Subscribers are called
// synchronously, outside the lock, after every successful Update.
type Store struct {
	mu   sync.RWMutex
	cur  Settings
	subs map[int]func(Settings)
	next int
}

func NewStore(initial Settings) *Store {
	return &Store{cur: initial, subs: make(map[int]func(Settings))}
}

func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update applies fn to a copy of the current settings and publishes the
// result if it validates.
func (s *Store) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	next := s.cur
	fn(&next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return s.cur, err
	}
	s.cur = next
	subs := make([]func(Settings), 0, len(s.subs))
	for _, f := range s.subs {
		subs = append(subs, f)
	}
	s.mu.Unlock()

	for _, f := range subs {
		f(next)
	}
	return next, nil
}

// Subscribe registers fn and calls it once with the current value.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn func(Settings)) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	cur := s.cur
	s.mu.Unlock()

	fn(cur)
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
