package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/fulfillment/internal/sequence"
)

// Seeder aligns a document counter with numbers issued before the counter existed.
type Seeder interface {
	Seed(ctx context.Context, kind sequence.Kind, at time.Time, lastIssued int64) (int64, error)
}

// SequenceCLI offers operational helpers for document numbering.
type SequenceCLI struct {
	seeder Seeder
}

// NewSequenceCLI constructs a new helper instance.
func NewSequenceCLI(seeder Seeder) *SequenceCLI {
	return &SequenceCLI{seeder: seeder}
}

// SeedOptions configures the seed command.
type SeedOptions struct {
	Source     io.Reader
	Apply      bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// SeedTarget is the highest legacy number found for one kind and month.
type SeedTarget struct {
	Kind       sequence.Kind `json:"kind"`
	Period     string        `json:"period"`
	LastIssued int64         `json:"last_issued"`
	Counter    int64         `json:"counter,omitempty"`
}

// SeedSummary reports a seed run.
type SeedSummary struct {
	Applied bool         `json:"applied"`
	Targets []SeedTarget `json:"targets"`
	Skipped []string     `json:"skipped,omitempty"`
}

// SeedCommand reads one legacy document number per line and seeds each
// kind/month counter to the highest sequence seen. Without Apply it only reports.
// Exit codes: 0 success, 1 unreadable input, 2 seeding failed.
func (c *SequenceCLI) SeedCommand(ctx context.Context, opts SeedOptions) int {
	targets := map[string]*SeedTarget{}
	var skipped []string
	scanner := bufio.NewScanner(opts.Source)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		n, err := sequence.Parse(line)
		if err != nil {
			skipped = append(skipped, line)
			continue
		}
		period := fmt.Sprintf("%04d-%02d", n.Year, int(n.Month))
		key := string(n.Kind) + "|" + period
		t, ok := targets[key]
		if !ok {
			t = &SeedTarget{Kind: n.Kind, Period: period}
			targets[key] = t
		}
		if n.Sequence > t.LastIssued {
			t.LastIssued = n.Sequence
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(opts.Stderr, "read numbers: %v\n", err)
		return 1
	}

	summary := SeedSummary{Applied: opts.Apply, Skipped: skipped, Targets: make([]SeedTarget, 0, len(targets))}
	for _, t := range targets {
		summary.Targets = append(summary.Targets, *t)
	}
	sort.Slice(summary.Targets, func(i, j int) bool {
		if summary.Targets[i].Kind != summary.Targets[j].Kind {
			return summary.Targets[i].Kind < summary.Targets[j].Kind
		}
		return summary.Targets[i].Period < summary.Targets[j].Period
	})

	if opts.Apply {
		for i, t := range summary.Targets {
			at, _ := time.Parse("2006-01", t.Period)
			counter, err := c.seeder.Seed(ctx, t.Kind, at, t.LastIssued)
			if err != nil {
				fmt.Fprintf(opts.Stderr, "seed %s %s: %v\n", t.Kind, t.Period, err)
				return 2
			}
			summary.Targets[i].Counter = counter
		}
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
		return 0
	}
	for _, t := range summary.Targets {
		line := fmt.Sprintf("%-15s %s last=%04d", t.Kind, t.Period, t.LastIssued)
		if opts.Apply {
			line += fmt.Sprintf(" counter=%d", t.Counter)
		}
		fmt.Fprintln(opts.Stdout, line)
	}
	for _, s := range skipped {
		fmt.Fprintf(opts.Stdout, "skipped %q\n", s)
	}
	return 0
}
