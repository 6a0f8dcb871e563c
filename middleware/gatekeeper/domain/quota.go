package domain

import (
	"context"
	"errors"
	"time"
)

var ErrLedgerUnavailable = errors.New("quota ledger unavailable")

// Identity é o endereço de origem observado na borda (ex: IP do socket).
// Serve só como chave de cota, nunca como fator de autenticação.
type Identity string

// Day é o dia de calendário UTC no formato fixo "2006-01-02".
type Day string

const dayLayout = "2006-01-02"

func DayOf(t time.Time) Day { return Day(t.UTC().Format(dayLayout)) }

func (d Day) Time() (time.Time, error) { return time.Parse(dayLayout, string(d)) }

// End devolve o instante em que o dia termina (meia-noite UTC seguinte).
func (d Day) End() (time.Time, error) {
	t, err := d.Time()
	if err != nil {
		return time.Time{}, err
	}
	return t.AddDate(0, 0, 1), nil
}

// QuotaKey é a chave composta (identidade, dia).
//
// Observação: a chave é estruturada de propósito. Cada backend escolhe a sua
// codificação, mas nenhuma pode depender de concatenar strings com delimitador
// sem garantir que identidades diferentes nunca colidam.
type QuotaKey struct {
	Identity Identity
	Day      Day
}

type QuotaRecord struct {
	Count     int
	UpdatedAt time.Time
}

// Consumption é o resultado de TryConsume.
//
//   - Admitted=true: Count é o novo valor depois do incremento.
//   - Admitted=false: Count é o valor atual (teto atingido), nada foi alterado.
type Consumption struct {
	Admitted bool
	Count    int
}

// Ledger guarda contadores por (identidade, dia) com incremento condicional atômico.
//
// A checagem "count < ceiling" e o incremento precisam ser uma única operação
// indivisível. Falha de infraestrutura deve virar erro (embrulhando
// ErrLedgerUnavailable), nunca Admitted=false.
type Ledger interface {
	TryConsume(ctx context.Context, key QuotaKey, ceiling int) (Consumption, error)
}

// Reclaimer é implementado por ledgers que precisam de limpeza explícita de dias
// antigos (backends com TTL nativo não precisam).
type Reclaimer interface {
	Reclaim(ctx context.Context, before Day) (int64, error)
}
