package llm

import (
	"context"
	"sync"
	"time"
)

// Observer receives one event per pooled generation call, whether it
// succeeded or not. Implementations must not block.
type Observer interface {
	OnCall(ctx context.Context, event CallEvent)
}

// CallEvent describes one pooled generation call.
type CallEvent struct {
	Provider   string
	Model      string
	Resource   string
	Credential string
	Kind       Kind
	Tokens     int
	Wait       time.Duration
	Duration   time.Duration
	Error      error
	StartedAt  time.Time
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(ctx context.Context, event CallEvent)

// OnCall implements Observer.
func (f ObserverFunc) OnCall(ctx context.Context, event CallEvent) {
	f(ctx, event)
}

// MultiObserver dispatches each event to several observers.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver creates an observer that dispatches to multiple observers.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	return &MultiObserver{observers: observers}
}

// OnCall dispatches the event to all registered observers.
func (m *MultiObserver) OnCall(ctx context.Context, event CallEvent) {
	for _, obs := range m.observers {
		obs.OnCall(ctx, event)
	}
}

// Add adds an observer.
func (m *MultiObserver) Add(obs Observer) {
	m.observers = append(m.observers, obs)
}

// CallStats tallies call outcomes. It is safe for concurrent use.
type CallStats struct {
	mu     sync.Mutex
	counts map[Kind]int
	tokens int
}

// NewCallStats returns an empty tally.
func NewCallStats() *CallStats {
	return &CallStats{counts: make(map[Kind]int)}
}

// OnCall implements Observer.
func (s *CallStats) OnCall(_ context.Context, event CallEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[event.Kind]++
	if event.Kind == KindSuccess {
		s.tokens += event.Tokens
	}
}

// Count returns the number of calls that ended with kind.
func (s *CallStats) Count(kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[kind]
}

// Snapshot returns counts keyed by kind name plus the successful token total.
func (s *CallStats) Snapshot() (map[string]int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k.String()] = v
	}
	return out, s.tokens
}
