package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IssueObserver is notified of every issued number.
type IssueObserver interface {
	ObserveSequence(kind string)
}

// Generator allocates document numbers from document_sequences.
type Generator struct {
	pool     Querier
	observer IssueObserver
}

// NewGenerator constructs a Generator. pool serves the non-transactional reads.
func NewGenerator(pool Querier, observer IssueObserver) *Generator {
	return &Generator{pool: pool, observer: observer}
}

const nextSQL = `
INSERT INTO document_sequences (kind, period, current_value)
VALUES ($1, $2, 1)
ON CONFLICT (kind, period) DO UPDATE
SET current_value = document_sequences.current_value + 1, updated_at = NOW()
RETURNING current_value`

const previewSQL = `SELECT current_value FROM document_sequences WHERE kind = $1 AND period = $2`

const seedSQL = `
INSERT INTO document_sequences (kind, period, current_value)
VALUES ($1, $2, $3)
ON CONFLICT (kind, period) DO UPDATE
SET current_value = GREATEST(document_sequences.current_value, EXCLUDED.current_value), updated_at = NOW()
RETURNING current_value`

// Next reserves the next number for kind in the month of at. q must be the
// transaction that inserts the numbered document; the counter row stays locked
// until that transaction ends.
func (g *Generator) Next(ctx context.Context, q Querier, kind Kind, at time.Time) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown document kind %q", shared.ErrValidation, kind)
	}
	var seq int64
	if err := q.QueryRow(ctx, nextSQL, string(kind), Period(at)).Scan(&seq); err != nil {
		return "", fmt.Errorf("sequence: next %s: %w", kind, err)
	}
	if g != nil && g.observer != nil {
		g.observer.ObserveSequence(string(kind))
	}
	return Format(kind, at, seq), nil
}

// Preview returns the number Next would issue now without reserving it.
// Repeated previews return the same candidate until a document commits.
func (g *Generator) Preview(ctx context.Context, kind Kind, at time.Time) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown document kind %q", shared.ErrValidation, kind)
	}
	var current int64
	err := g.pool.QueryRow(ctx, previewSQL, string(kind), Period(at)).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("sequence: preview %s: %w", kind, err)
	}
	return Format(kind, at, current+1), nil
}

// Seed raises the counter for (kind, month of at) to at least lastIssued. It
// never lowers a counter, so it is safe to run against live data when importing
// numbers issued elsewhere.
func (g *Generator) Seed(ctx context.Context, kind Kind, at time.Time, lastIssued int64) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: unknown document kind %q", shared.ErrValidation, kind)
	}
	if lastIssued < 0 {
		return 0, fmt.Errorf("%w: last issued sequence must not be negative", shared.ErrValidation)
	}
	var current int64
	if err := g.pool.QueryRow(ctx, seedSQL, string(kind), Period(at), lastIssued).Scan(&current); err != nil {
		return 0, fmt.Errorf("sequence: seed %s: %w", kind, err)
	}
	return current, nil
}

// SeedFromNumber seeds the counter from an existing formatted number.
func (g *Generator) SeedFromNumber(ctx context.Context, number string) (int64, error) {
	parsed, err := Parse(number)
	if err != nil {
		return 0, err
	}
	at := time.Date(parsed.Year, parsed.Month, 1, 0, 0, 0, 0, time.UTC)
	return g.Seed(ctx, parsed.Kind, at, parsed.Sequence)
}
