// Package integrity checks that sale item backorder counters agree with the
// backorder registry.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
)

// Kind names one class of inconsistency.
type Kind string

const (
	// KindBackorderQuantity: sale item backorder_quantity differs from the sum of its active pending.
	KindBackorderQuantity Kind = "backorder_quantity"
	// KindHasBackorderFlag: has_backorder differs from backorder_quantity > 0.
	KindHasBackorderFlag Kind = "has_backorder_flag"
	// KindActiveFlag: a backorder's active flag differs from pending_quantity > 0.
	KindActiveFlag Kind = "active_flag"
)

// Violation is one inconsistent row.
type Violation struct {
	Kind        Kind  `db:"kind" json:"kind"`
	SaleItemID  int64 `db:"sale_item_id" json:"sale_item_id"`
	BackorderID int64 `db:"backorder_id" json:"backorder_id,omitempty"`
	Expected    int64 `db:"expected" json:"expected"`
	Actual      int64 `db:"actual" json:"actual"`
}

// Report summarises one scan.
type Report struct {
	ScannedAt  time.Time    `json:"scanned_at"`
	Violations []Violation  `json:"violations"`
	ByKind     map[Kind]int `json:"by_kind"`
}

// Clean reports whether the scan found nothing.
func (r Report) Clean() bool {
	return len(r.Violations) == 0
}

// Store finds violations.
type Store interface {
	FindViolations(ctx context.Context) ([]Violation, error)
}

// PostgresStore runs the scan queries.
type PostgresStore struct {
	q pgxscan.Querier
}

// NewPostgresStore constructs PostgresStore.
func NewPostgresStore(q pgxscan.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

const violationsSQL = `
SELECT 'backorder_quantity' AS kind, si.id AS sale_item_id, 0::BIGINT AS backorder_id,
       COALESCE(SUM(b.pending_quantity) FILTER (WHERE b.active), 0)::BIGINT AS expected,
       si.backorder_quantity AS actual
FROM sale_items si
LEFT JOIN backorders b ON b.sale_item_id = si.id
GROUP BY si.id
HAVING si.backorder_quantity <> COALESCE(SUM(b.pending_quantity) FILTER (WHERE b.active), 0)
UNION ALL
SELECT 'has_backorder_flag', si.id, 0,
       CASE WHEN si.backorder_quantity > 0 THEN 1 ELSE 0 END,
       CASE WHEN si.has_backorder THEN 1 ELSE 0 END
FROM sale_items si
WHERE si.has_backorder <> (si.backorder_quantity > 0)
UNION ALL
SELECT 'active_flag', b.sale_item_id, b.id,
       CASE WHEN b.pending_quantity > 0 THEN 1 ELSE 0 END,
       CASE WHEN b.active THEN 1 ELSE 0 END
FROM backorders b
WHERE b.active <> (b.pending_quantity > 0)`

// FindViolations returns every inconsistent row.
func (s *PostgresStore) FindViolations(ctx context.Context) ([]Violation, error) {
	var out []Violation
	if err := pgxscan.Select(ctx, s.q, &out, violationsSQL); err != nil {
		return nil, fmt.Errorf("integrity scan: %w", err)
	}
	return out, nil
}

// Scanner runs the consistency checks.
type Scanner struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewScanner constructs Scanner.
func NewScanner(store Store, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Scan collects violations, logging each one.
func (s *Scanner) Scan(ctx context.Context) (Report, error) {
	violations, err := s.store.FindViolations(ctx)
	if err != nil {
		return Report{}, err
	}
	sort.Slice(violations, func(i, j int) bool {
		if violations[i].Kind != violations[j].Kind {
			return violations[i].Kind < violations[j].Kind
		}
		if violations[i].SaleItemID != violations[j].SaleItemID {
			return violations[i].SaleItemID < violations[j].SaleItemID
		}
		return violations[i].BackorderID < violations[j].BackorderID
	})
	report := Report{ScannedAt: s.now(), Violations: violations, ByKind: map[Kind]int{}}
	for _, v := range violations {
		report.ByKind[v.Kind]++
		s.logger.Warn("backorder ledger inconsistency",
			slog.String("kind", string(v.Kind)),
			slog.Int64("sale_item_id", v.SaleItemID),
			slog.Int64("backorder_id", v.BackorderID),
			slog.Int64("expected", v.Expected),
			slog.Int64("actual", v.Actual),
		)
	}
	return report, nil
}
