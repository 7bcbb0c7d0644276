package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"iq-card-service/internal/config"
	"iq-card-service/internal/domain"
	"iq-card-service/internal/infra/postgres"
	"iq-card-service/internal/infra/sqlite"
)

type bankSaver interface {
	SaveBank(ctx context.Context, bank domain.Bank) error
}

// NewSeedCmd copies the YAML question banks into Postgres or SQLite.
func NewSeedCmd(configPath *string) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert configured question banks into a database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, target)
		},
	}
	cmd.Flags().StringVar(&target, "target", "postgres", "postgres or sqlite")
	return cmd
}

func runSeed(ctx context.Context, configPath, target string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var saver bankSaver
	switch target {
	case "postgres":
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		db := postgres.Open(cfg.Postgres.URL)
		defer db.Close()
		saver = postgres.NewBankWriter(db)
	case "sqlite":
		if cfg.SQLite.Path == "" {
			return fmt.Errorf("sqlite path not configured")
		}
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		saver = store
	default:
		return fmt.Errorf("unknown seed target %q", target)
	}
	return seedBanks(ctx, saver, cfg)
}

func seedBanks(ctx context.Context, saver bankSaver, cfg config.Config) error {
	for _, b := range cfg.Brands {
		bank := b.BankData()
		if len(bank.Items) == 0 {
			continue
		}
		if err := saver.SaveBank(ctx, bank); err != nil {
			return err
		}
		log.Printf("seeded %d items for brand %s", len(bank.Items), b.ID)
	}
	return nil
}
