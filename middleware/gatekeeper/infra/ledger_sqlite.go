package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteLedger guarda a cota num arquivo SQLite.
//
// A admissão é um único UPSERT condicional dentro de uma transação IMMEDIATE:
// o banco serializa escritores concorrentes (WAL + busy timeout), então não
// existe janela entre ler e gravar.
type SQLiteLedger struct {
	db  *sql.DB
	now func() time.Time
}

type SQLiteLedgerOption func(*SQLiteLedger)

func WithSQLiteLedgerClock(now func() time.Time) SQLiteLedgerOption {
	return func(l *SQLiteLedger) { l.now = now }
}

var (
	_ domain.Ledger    = (*SQLiteLedger)(nil)
	_ domain.Reclaimer = (*SQLiteLedger)(nil)
)

// OpenSQLiteLedger abre (ou cria) o banco em path e garante o schema.
// ":memory:" funciona, mas com uma única conexão.
func OpenSQLiteLedger(ctx context.Context, path string, opts ...SQLiteLedgerOption) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// cada conexão nova seria um banco vazio diferente
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS quota_records (
		identity TEXT NOT NULL,
		day TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (identity, day)
	);

	CREATE INDEX IF NOT EXISTS idx_quota_records_day ON quota_records(day);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	l := &SQLiteLedger{db: db, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// sqliteDSN aplica os pragmas por conexão (via parâmetros do driver), não só
// na primeira conexão do pool.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_busy_timeout=5000&_txlock=immediate"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "file:" + path + sep + "_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL&_txlock=immediate"
}

func (l *SQLiteLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *SQLiteLedger) TryConsume(ctx context.Context, key domain.QuotaKey, ceiling int) (domain.Consumption, error) {
	// BEGIN IMMEDIATE (via _txlock): o lock de escrita é pego antes de ler,
	// respeitando o busy timeout, então a decisão e o valor lido são consistentes.
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Consumption{}, fmt.Errorf("%w: begin: %w", domain.ErrLedgerUnavailable, err)
	}
	defer tx.Rollback()

	cons, err := consumeTx(ctx, tx, key, ceiling, l.now().UTC())
	if err != nil {
		return domain.Consumption{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Consumption{}, fmt.Errorf("%w: commit: %w", domain.ErrLedgerUnavailable, err)
	}
	return cons, nil
}

func consumeTx(ctx context.Context, tx *sql.Tx, key domain.QuotaKey, ceiling int, now time.Time) (domain.Consumption, error) {
	if ceiling > 0 {
		const q = `
			INSERT INTO quota_records (identity, day, count, updated_at)
			VALUES (?, ?, 1, ?)
			ON CONFLICT (identity, day) DO UPDATE
			SET count = quota_records.count + 1, updated_at = excluded.updated_at
			WHERE quota_records.count < ?
			RETURNING count
		`
		var count int
		err := tx.QueryRowContext(ctx, q, string(key.Identity), string(key.Day), now, ceiling).Scan(&count)
		if err == nil {
			return domain.Consumption{Admitted: true, Count: count}, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.Consumption{}, fmt.Errorf("%w: consume quota: %w", domain.ErrLedgerUnavailable, err)
		}
	}

	// teto atingido (o WHERE barrou o update): só lê o valor atual
	const q = `
		SELECT count
		FROM quota_records
		WHERE identity = ? AND day = ?
	`
	var count int
	err := tx.QueryRowContext(ctx, q, string(key.Identity), string(key.Day)).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.Consumption{}, fmt.Errorf("%w: scan quota count: %w", domain.ErrLedgerUnavailable, err)
	}
	return domain.Consumption{Admitted: false, Count: count}, nil
}

// Find devolve o registro de key; registro ausente vale count=0.
func (l *SQLiteLedger) Find(ctx context.Context, key domain.QuotaKey) (domain.QuotaRecord, error) {
	const q = `
		SELECT count, updated_at
		FROM quota_records
		WHERE identity = ? AND day = ?
		LIMIT 1
	`
	var rec domain.QuotaRecord
	err := l.db.QueryRowContext(ctx, q, string(key.Identity), string(key.Day)).Scan(&rec.Count, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuotaRecord{}, nil
	}
	if err != nil {
		return domain.QuotaRecord{}, fmt.Errorf("%w: scan quota record: %w", domain.ErrLedgerUnavailable, err)
	}
	return rec, nil
}

// Reclaim apaga registros de dias anteriores a before.
func (l *SQLiteLedger) Reclaim(ctx context.Context, before domain.Day) (int64, error) {
	const q = `
		DELETE FROM quota_records
		WHERE day < ?
	`
	res, err := l.db.ExecContext(ctx, q, string(before))
	if err != nil {
		return 0, fmt.Errorf("delete quota records: %w", err)
	}
	return res.RowsAffected()
}
