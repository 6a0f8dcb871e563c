// Package domain define contratos e tipos de domínio do gatekeeper: credencial,
// requisição assinada, chave de cota diária, taxonomia de falhas e as interfaces
// dos colaboradores externos (ledger de cota, oráculo de conversão, estatísticas).
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
package domain
