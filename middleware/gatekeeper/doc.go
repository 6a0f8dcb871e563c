// Package gatekeeper fornece a borda HTTP (net/http) do conversor SLURM -> Run.ai.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (credencial, veredito, cota, falhas), sem net/http
//   - application: casos de uso (assinar, verificar, orquestrar cota + oráculo), sem net/http
//   - infra: implementações concretas (ledgers memória/Redis/SQLite, token bucket,
//     semáforo, estatísticas, cliente do oráculo)
//   - gatekeeper (este pacote): handler HTTP, extração de identidade, middlewares de
//     throttle/concorrência e tradução de falhas para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a identidade de origem (RemoteAddr ou último hop do XFF confiável)
//  2. Throttle de rajada e limite de concorrência (opcionais)
//  3. Lê o corpo (limitado), monta domain.Inbound e chama o Gatekeeper
//  4. Traduz o resultado: 200, 401, 413, 429, 500, 502 ou 504 com corpo JSON
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como DAILY_CEILING, SIGNATURE_MAX_AGE, LEDGER_BACKEND e THROTTLE_RPS.
package gatekeeper
