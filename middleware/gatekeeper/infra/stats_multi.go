package infra

import (
	"context"
	"errors"

	"s2r-gateway/middleware/gatekeeper/domain"
)

// MultiStatsStore repassa cada evento para vários stores.
// Um store com erro não impede os outros de registrar.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
