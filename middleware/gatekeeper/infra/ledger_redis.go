package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"

	"github.com/redis/go-redis/v9"
)

// consumeScript faz check + incremento + expiração numa única execução
// atômica do Redis. HGET de chave inexistente vira 0, então o primeiro uso
// cria o registro dentro da mesma operação.
//
// KEYS[1] = chave do registro
// ARGV[1] = teto, ARGV[2] = agora (unix), ARGV[3] = expireat (unix)
var consumeScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local ceiling = tonumber(ARGV[1])
if current >= ceiling then
  return {0, current}
end
current = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
redis.call('EXPIREAT', KEYS[1], ARGV[3])
return {1, current}
`)

// RedisLedger guarda a cota num Redis (ou cluster) compartilhado entre réplicas.
// Cada registro expira sozinho no fim do dia UTC + retention.
type RedisLedger struct {
	rdb redis.Scripter

	prefix    string
	retention time.Duration
	now       func() time.Time
}

type RedisLedgerOption func(*RedisLedger)

func WithLedgerPrefix(prefix string) RedisLedgerOption {
	return func(l *RedisLedger) { l.prefix = strings.Trim(prefix, ":") }
}

// WithLedgerRetention define quanto tempo o registro sobrevive depois do fim do dia.
func WithLedgerRetention(d time.Duration) RedisLedgerOption {
	return func(l *RedisLedger) {
		if d >= 0 {
			l.retention = d
		}
	}
}

func WithRedisLedgerClock(now func() time.Time) RedisLedgerOption {
	return func(l *RedisLedger) { l.now = now }
}

func NewRedisLedger(rdb redis.Scripter, opts ...RedisLedgerOption) *RedisLedger {
	l := &RedisLedger{
		rdb:       rdb,
		prefix:    "s2r:quota",
		retention: 24 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ domain.Ledger = (*RedisLedger)(nil)

// RedisKey codifica a chave como prefix:dia:identidade.
//
// O dia tem largura fixa e vem antes da identidade, então nenhum par
// (identidade, dia) diferente gera a mesma string. Sem hash tag: no cluster
// as identidades de um mesmo dia se espalham pelos slots.
func (l *RedisLedger) RedisKey(key domain.QuotaKey) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, key.Day, key.Identity)
}

func (l *RedisLedger) TryConsume(ctx context.Context, key domain.QuotaKey, ceiling int) (domain.Consumption, error) {
	if l == nil || l.rdb == nil {
		return domain.Consumption{}, fmt.Errorf("%w: redis client not configured", domain.ErrLedgerUnavailable)
	}
	end, err := key.Day.End()
	if err != nil {
		return domain.Consumption{}, fmt.Errorf("invalid quota day %q: %w", key.Day, err)
	}

	res, err := consumeScript.Run(ctx, l.rdb,
		[]string{l.RedisKey(key)},
		ceiling,
		l.now().Unix(),
		end.Add(l.retention).Unix(),
	).Int64Slice()
	if err != nil {
		return domain.Consumption{}, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}
	if len(res) != 2 {
		return domain.Consumption{}, fmt.Errorf("%w: unexpected script reply %v", domain.ErrLedgerUnavailable, res)
	}
	return domain.Consumption{Admitted: res[0] == 1, Count: int(res[1])}, nil
}
