package application

import (
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"
)

// ThrottleService concentra a regra do throttle de rajada por identidade.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Sem Store configurado tudo passa: a cota diária continua valendo depois.
type ThrottleService struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
}

func (s ThrottleService) Decide(identity domain.Identity) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	lim := s.Store.Get(domain.Key(identity))
	if lim == nil || lim.Allow() {
		return domain.Decision{Allowed: true}
	}
	return domain.Decision{Allowed: false, RetryAfter: s.RetryAfter}
}
