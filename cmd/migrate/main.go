package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/andreyxaxa/Notify-Router/migrations"
	"github.com/andreyxaxa/Notify-Router/pkg/migrator"
	"github.com/joho/godotenv"
)

func main() {
	direction := flag.String("direction", "up", "up, down or steps")
	steps := flag.Int("steps", 0, "number of steps for -direction=steps")
	flag.Parse()

	// Config
	if _, err := os.Stat(".env"); err == nil {
		err = godotenv.Load()
		if err != nil {
			log.Fatalf("config error: %s", err)
		}
	}

	dsn := os.Getenv("PG_URL")
	if dsn == "" {
		log.Fatal("migrate: PG_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m, err := migrator.New(ctx, dsn, migrations.FS, ".")
	if err != nil {
		log.Fatalf("migrate: %s", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Printf("migrate: close: %s", err)
		}
	}()

	switch *direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		err = m.Steps(*steps)
	default:
		log.Printf("migrate: unknown direction %q", *direction)
		return
	}
	if err != nil {
		log.Printf("migrate: %s", err)
		return
	}

	version, dirty, err := m.Version()
	if err != nil {
		log.Printf("migrate: %s", err)
		return
	}

	log.Printf("migrate: version %d, dirty %t", version, dirty)
}
