package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/fulfillment/cmd/fulfillmentctl/cli"
	"github.com/odyssey-erp/fulfillment/internal/app"
	"github.com/odyssey-erp/fulfillment/internal/integrity"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/sequence"
)

const usage = `usage: fulfillmentctl <command> [flags]

commands:
  jobs trigger <integrity:scan|views:invalidate> [args...]
  jobs stats
  sequence seed [-apply] [-json] [-file numbers.txt]
  integrity scan [-json]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	if len(args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return 1
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	switch args[0] + " " + args[1] {
	case "jobs trigger", "jobs stats":
		return runJobs(ctx, cfg, args[1:])
	case "sequence seed":
		return runSeed(ctx, cfg, args[2:])
	case "integrity scan":
		return runScan(ctx, cfg, args[2:])
	}
	fmt.Fprint(os.Stderr, usage)
	return 1
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	if args[0] == "stats" {
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 2
		}
		_ = json.NewEncoder(os.Stdout).Encode(stats)
		return 0
	}
	if len(args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return 1
	}
	info, err := jobsCLI.Trigger(ctx, args[1], args[2:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
		return 2
	}
	fmt.Fprintf(os.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	return 0
}

func runSeed(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("sequence seed", flag.ContinueOnError)
	apply := fs.Bool("apply", false, "write counters instead of previewing")
	asJSON := fs.Bool("json", false, "print a JSON summary")
	file := fs.String("file", "", "file with one document number per line (default stdin)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	source := os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open %s: %v\n", *file, err)
			return 1
		}
		defer f.Close()
		source = f
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		return 2
	}
	defer pool.Close()

	return cli.NewSequenceCLI(sequence.NewGenerator(pool, nil)).SeedCommand(ctx, cli.SeedOptions{
		Source:     source,
		Apply:      *apply,
		JSONOutput: *asJSON,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	})
}

func runScan(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("integrity scan", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		return 2
	}
	defer pool.Close()

	scanner := integrity.NewScanner(integrity.NewPostgresStore(pool), nil)
	return cli.ScanCommand(ctx, scanner, cli.ScanOptions{JSONOutput: *asJSON, Stdout: os.Stdout, Stderr: os.Stderr})
}
