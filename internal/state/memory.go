package state

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MemoryStore keeps conversations in process memory. Entries idle for longer
// than the TTL are treated as absent and removed by Sweep.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]*ConversationState
	ttl    time.Duration
	now    func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an in-memory store. A zero ttl disables expiry.
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		states: make(map[string]*ConversationState),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, callID string) (*ConversationState, error) {
	if callID == "" {
		return nil, ErrInvalidCallID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.lookup(callID, s.now())
	if st == nil {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, callID string) (*ConversationState, error) {
	return s.Update(ctx, callID, func(*ConversationState) error { return nil })
}

func (s *MemoryStore) Update(_ context.Context, callID string, fn UpdateFunc) (*ConversationState, error) {
	if callID == "" {
		return nil, ErrInvalidCallID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var working ConversationState
	if st := s.lookup(callID, now); st != nil {
		working = *st
	} else {
		working = *newConversation(callID, now)
	}

	if err := fn(&working); err != nil {
		return nil, err
	}
	working.UpdatedAt = now
	s.states[callID] = &working

	cp := working
	return &cp, nil
}

// lookup must be called with s.mu held.
func (s *MemoryStore) lookup(callID string, now time.Time) *ConversationState {
	st, ok := s.states[callID]
	if !ok {
		return nil
	}
	if s.expired(st, now) {
		delete(s.states, callID)
		return nil
	}
	return st
}

func (s *MemoryStore) expired(st *ConversationState, now time.Time) bool {
	return s.ttl > 0 && now.Sub(st.UpdatedAt) > s.ttl
}

// Sweep drops every expired conversation and reports how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, st := range s.states {
		if s.expired(st, now) {
			delete(s.states, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored conversations, expired ones included
// until the next sweep.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// Run sweeps every interval until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration, log zerolog.Logger) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("State sweeper stopped.")
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				log.Debug().Int("removed", removed).Int("remaining", s.Len()).Msg("Expired conversations swept.")
			}
		}
	}
}
