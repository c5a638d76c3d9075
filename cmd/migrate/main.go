// Command migrate applies or rolls back the moderation schema.
//
//	migrate [--database-url URL] [--steps N] up|down|version
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	flag "github.com/spf13/pflag"

	"github.com/whisper/chat-moderation/internal/config"
	"github.com/whisper/chat-moderation/internal/database"
)

func main() {
	cfg := config.Load()

	dsn := flag.String("database-url", cfg.DatabaseURL, "PostgreSQL connection string")
	steps := flag.Int("steps", 0, "number of migrations to apply or roll back (0 = all)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate [flags] up|down|version\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := database.Open(ctx, *dsn)
	cancel()
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	m, err := database.NewMigrator(db)
	if err != nil {
		log.Fatalf("%v", err)
	}

	switch cmd := flag.Arg(0); cmd {
	case "up":
		err = run(m.Up, m.Steps, *steps)
	case "down":
		err = run(m.Down, m.Steps, -*steps)
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return
		}
		if verr != nil {
			log.Fatalf("version: %v", verr)
		}
		fmt.Printf("version %d (dirty=%v)\n", version, dirty)
		return
	default:
		flag.Usage()
		os.Exit(2)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Printf("[migrate] no change")
		return
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
	log.Printf("[migrate] %s complete", flag.Arg(0))
}

// run applies all migrations in one direction, or n steps when n != 0.
func run(all func() error, stepFn func(int) error, n int) error {
	if n == 0 {
		return all()
	}
	return stepFn(n)
}
