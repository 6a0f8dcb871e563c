package application

import (
	"context"
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"
)

// ConversionSlots limita quantas conversões ficam em andamento ao mesmo tempo,
// sem saber nada sobre HTTP.
//
// Roda antes do gatekeeper: quem não consegue vaga é recusado sem consumir cota.
type ConversionSlots struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
// - Se `AcquireTimeout <= 0`, espera até ctx cancelar (ex: cliente desconectou).
// - Se `AcquireTimeout > 0`, espera até o timeout.
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida.
func (s ConversionSlots) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}
