package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"rollcall.org/internal/config"
	"rollcall.org/internal/report"
	"rollcall.org/internal/store/pg"
)

func main() {
	os.Exit(run())
}

func run() int {
	log.SetFlags(0)
	var (
		dsn     = flag.String("dsn", os.Getenv("ROLLCALL_PG_DSN"), "PostgreSQL DSN")
		org     = flag.String("org", "", "Organization id")
		member  = flag.Int64("member", 0, "Print only the progress of this member")
		summary = flag.Bool("summary", false, "Print the per-quota summary instead of the full report")
		timeout = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Parse()

	if *dsn == "" {
		log.Print("missing DSN: provide via -dsn or ROLLCALL_PG_DSN")
		return 2
	}
	if *org == "" {
		log.Print("usage: report -org <organization> [-member <user id>] [-summary]")
		return 2
	}

	epoch, err := config.LoadTrackingEpoch()
	if err != nil {
		log.Printf("config: %v", err)
		return 2
	}
	defaults := config.Config{TrackingEpoch: epoch}.EngineDefaults()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Printf("open db: %v", err)
		return 1
	}
	defer store.Close()

	svc, err := report.NewService(store, report.WithDefaults(defaults))
	if err != nil {
		log.Printf("report service: %v", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var out any
	switch {
	case *member > 0:
		out, err = svc.MemberProgress(ctx, *org, *member)
	case *summary:
		out, err = svc.QuotaSummary(ctx, *org)
	default:
		out, err = svc.OrganizationReport(ctx, *org)
	}
	if err != nil {
		log.Printf("report %s: %v", *org, err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Printf("encode: %v", err)
		return 1
	}
	return 0
}
