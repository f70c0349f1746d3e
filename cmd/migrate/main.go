package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"rollcall.org/internal/migrate"
	"rollcall.org/ops/migrations"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("ROLLCALL_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "", "Path to SQL migrations (default: embedded)")
		seedsPath      = flag.String("seeds", "", "Path to SQL seeds (default: embedded)")
		timeout        = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or ROLLCALL_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var mgr *migrate.Manager
	if *migrationsPath == "" && *seedsPath == "" {
		mgr = migrate.NewManagerFS(db, migrations.FS, migrations.SQLDir, migrations.SeedsDir)
	} else {
		mgr = migrate.NewManager(db, orDefault(*migrationsPath, "ops/migrations/sql"), orDefault(*seedsPath, "ops/migrations/seeds"))
	}

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		printList("applied", applied)
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			fmt.Println("nothing to roll back")
			err = nil
		} else if err == nil {
			fmt.Println("rolled back", name)
		}
	case "seed":
		var applied []string
		applied, err = mgr.Seed(ctx)
		printList("seeded", applied)
	case "status":
		var applied, pending []string
		applied, pending, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range applied {
				fmt.Println("applied ", item)
			}
			for _, item := range pending {
				fmt.Println("pending ", item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

func printList(verb string, names []string) {
	if len(names) == 0 {
		fmt.Println("up to date")
		return
	}
	for _, name := range names {
		fmt.Println(verb, name)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
