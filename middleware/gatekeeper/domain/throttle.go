package domain

// Camada de domínio do throttle de rajada.
//
// O throttle é uma proteção barata na frente do gatekeeper: limita a taxa de
// requisições por identidade antes de qualquer trabalho criptográfico. Não
// substitui a cota diária, que é a regra de negócio.

import "time"

type Key string

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// Observação: a implementação pode ser token-bucket, leaky-bucket, etc.
// A camada de infra usa golang.org/x/time/rate.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (aqui, a identidade de origem).
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
