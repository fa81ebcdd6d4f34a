package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/odyssey-erp/fulfillment/internal/integrity"
)

// IntegrityScanner runs the backorder ledger checks.
type IntegrityScanner interface {
	Scan(ctx context.Context) (integrity.Report, error)
}

// ScanOptions configures the scan command.
type ScanOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ScanCommand runs the integrity scan in-process. Exit codes: 0 clean,
// 10 violations found, 2 scan failed.
func ScanCommand(ctx context.Context, scanner IntegrityScanner, opts ScanOptions) int {
	report, err := scanner.Scan(ctx)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "integrity scan: %v\n", err)
		return 2
	}
	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		for _, v := range report.Violations {
			fmt.Fprintf(opts.Stdout, "%-20s sale_item=%d backorder=%d expected=%d actual=%d\n",
				v.Kind, v.SaleItemID, v.BackorderID, v.Expected, v.Actual)
		}
		fmt.Fprintf(opts.Stdout, "%d violation(s)\n", len(report.Violations))
	}
	if !report.Clean() {
		return 10
	}
	return 0
}
