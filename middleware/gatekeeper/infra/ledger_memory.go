package infra

import (
	"context"
	"sync"
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"
)

// MemoryLedger guarda a cota em memória, protegida por mutex.
// Útil para testes, desenvolvimento e instância única.
//
// Não sobrevive a restart e não é compartilhado entre réplicas.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[domain.QuotaKey]*domain.QuotaRecord
	now     func() time.Time
}

type MemoryLedgerOption func(*MemoryLedger)

func WithMemoryLedgerClock(now func() time.Time) MemoryLedgerOption {
	return func(l *MemoryLedger) { l.now = now }
}

func NewMemoryLedger(opts ...MemoryLedgerOption) *MemoryLedger {
	l := &MemoryLedger{
		records: make(map[domain.QuotaKey]*domain.QuotaRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var (
	_ domain.Ledger    = (*MemoryLedger)(nil)
	_ domain.Reclaimer = (*MemoryLedger)(nil)
)

func (l *MemoryLedger) TryConsume(_ context.Context, key domain.QuotaKey, ceiling int) (domain.Consumption, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok {
		if ceiling <= 0 {
			return domain.Consumption{Admitted: false, Count: 0}, nil
		}
		rec = &domain.QuotaRecord{}
		l.records[key] = rec
	}
	if rec.Count >= ceiling {
		return domain.Consumption{Admitted: false, Count: rec.Count}, nil
	}
	rec.Count++
	rec.UpdatedAt = l.now()
	return domain.Consumption{Admitted: true, Count: rec.Count}, nil
}

// Record devolve uma cópia do registro, se existir.
func (l *MemoryLedger) Record(key domain.QuotaKey) (domain.QuotaRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		return domain.QuotaRecord{}, false
	}
	return *rec, true
}

// Reclaim remove registros de dias anteriores a before.
func (l *MemoryLedger) Reclaim(_ context.Context, before domain.Day) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int64
	for k := range l.records {
		// Day tem largura fixa (YYYY-MM-DD), então a ordem lexical é a cronológica
		if k.Day < before {
			delete(l.records, k)
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
