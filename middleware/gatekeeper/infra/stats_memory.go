package infra

import (
	"context"
	"sync"

	"s2r-gateway/middleware/gatekeeper/domain"
)

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu         sync.Mutex
	byOutcome  map[domain.Outcome]int64
	byReject   map[domain.RejectReason]int64
	byIdentity map[domain.Identity]map[domain.Outcome]int64

	trackIdentities bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackIdentities(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackIdentities = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byOutcome:  make(map[domain.Outcome]int64),
		byReject:   make(map[domain.RejectReason]int64),
		byIdentity: make(map[domain.Identity]map[domain.Outcome]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byOutcome[ev.Outcome]++
	if ev.Reject != domain.RejectNone {
		s.byReject[ev.Reject]++
	}
	if s.trackIdentities && ev.Identity != "" {
		m := s.byIdentity[ev.Identity]
		if m == nil {
			m = make(map[domain.Outcome]int64)
			s.byIdentity[ev.Identity] = m
		}
		m[ev.Outcome]++
	}
	return nil
}

func (s *MemoryStatsStore) Count(o domain.Outcome) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byOutcome[o]
}

func (s *MemoryStatsStore) Rejects(r domain.RejectReason) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byReject[r]
}

func (s *MemoryStatsStore) ByIdentity() map[domain.Identity]map[domain.Outcome]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Identity]map[domain.Outcome]int64, len(s.byIdentity))
	for id, m := range s.byIdentity {
		cp := make(map[domain.Outcome]int64, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out[id] = cp
	}
	return out
}
