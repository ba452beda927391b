// Command catalog-seed loads submission types from a YAML file into the
// review database.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/pesio-ai/be-ip-review/internal/catalog"
	"github.com/pesio-ai/be-ip-review/internal/platform/clock"
	"github.com/pesio-ai/be-ip-review/internal/platform/config"
	"github.com/pesio-ai/be-ip-review/internal/platform/database"
	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/repository"
	"github.com/pesio-ai/be-ip-review/internal/service"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

func main() {
	var (
		file    string
		dryRun  bool
		migrate bool
		timeout time.Duration
	)
	flagSet := pflag.NewFlagSet("catalog-seed", pflag.ContinueOnError)
	flagSet.StringVarP(&file, "file", "f", "configs/catalog.yaml", "catalog seed file")
	flagSet.BoolVar(&dryRun, "dry-run", false, "validate the file and exit")
	flagSet.BoolVar(&migrate, "migrate", false, "apply the database schema before seeding")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: "catalog-seed",
		Version:     cfg.Service.Version,
	})

	seed, err := catalog.ParseFile(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Invalid catalog seed")
	}
	log.Info().Str("file", file).Int("types", len(seed.SubmissionTypes)).Msg("Catalog seed parsed")
	if dryRun {
		return
	}
	if cfg.Store.Driver != "postgres" {
		log.Fatal().Str("store", cfg.Store.Driver).Msg("catalog-seed writes to postgres only")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	store := repository.NewPostgresStore(db)
	if migrate || cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
	}

	svc := service.NewCatalogService(store, workflow.NewDetailRegistry(), clock.Real(), log)
	res, err := catalog.Apply(ctx, svc, seed, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to apply catalog seed")
	}
	log.Info().Strs("created", res.Created).Strs("skipped", res.Skipped).Msg("Catalog seed applied")
}
