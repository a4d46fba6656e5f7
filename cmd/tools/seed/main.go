// cmd/tools/seed/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"pulse-server/internal/common/config"
	"pulse-server/internal/common/database"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/routing"
	"pulse-server/internal/sender"
	"pulse-server/internal/template"
	"pulse-server/pkg/seed"
)

func main() {
	file := flag.String("file", "configs/fixtures.json", "Path to the fixture file")
	migrate := flag.Bool("migrate", false, "Apply database migrations before seeding")
	validateOnly := flag.Bool("validate", false, "Only check the fixture file against its schema")
	flag.Parse()

	fixture, err := seed.Load(*file)
	if err != nil {
		fmt.Printf("Fixture load failed: %v\n", err)
		os.Exit(1)
	}
	if *validateOnly {
		fmt.Printf("Fixture %s is valid: %d profiles, %d templates\n", *file, len(fixture.Profiles), len(fixture.Templates))
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config load failed: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewStructured(cfg.Logging.Level, "console")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Printf("PostgreSQL connection failed: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	if *migrate {
		if err := database.Migrate(ctx, pg.DB, log); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
	}

	// Seeding rules changes routing; drop whatever a running server cached.
	var cache *routing.Cache
	if cfg.Routing.CacheEnabled {
		redis := database.NewRedis(cfg.Database.Redis)
		defer redis.Close()
		if err := redis.Ping(ctx); err != nil {
			log.Warn("Redis unreachable, routing cache not invalidated", map[string]interface{}{"error": err.Error()})
		} else {
			cache = routing.NewCache(redis.Client, config.GetDuration(cfg.Routing.CacheTTL), log)
		}
	}

	loader := seed.NewLoader(
		sender.NewDirectory(pg.DB, log, cache),
		routing.NewStore(pg.DB, log, cache),
		template.NewDirectory(pg.DB, log),
		log,
	)
	summary, err := loader.Apply(ctx, fixture)
	if err != nil {
		fmt.Printf("Seeding failed after %d records: %v\n", summary.Created, err)
		os.Exit(1)
	}
	fmt.Printf("Seed complete: %d created, %d already present\n", summary.Created, summary.Skipped)
}
