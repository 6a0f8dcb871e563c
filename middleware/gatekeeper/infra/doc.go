// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryLedger, RedisLedger, SQLiteLedger: cota diária com incremento condicional atômico
//   - ReclaimScheduler: limpeza periódica de dias antigos (robfig/cron)
//   - ThrottleStore: token bucket por identidade usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de conversões simultâneas
//   - ChatOracle: cliente HTTP do oráculo de conversão (chat completions)
//   - Memory/Redis/Prometheus stats stores
package infra
