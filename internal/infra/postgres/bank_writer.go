package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"iq-card-service/internal/domain"
	"iq-card-service/internal/infra/postgres/migrations"
)

// Open returns a bun DB over the pgdriver connector.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *bun.DB) error {
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		return err
	}
	return nil
}

// BankWriter upserts question banks, used to seed Postgres from configuration.
type BankWriter struct {
	db *bun.DB
}

func NewBankWriter(db *bun.DB) *BankWriter {
	return &BankWriter{db: db}
}

func (w *BankWriter) SaveBank(ctx context.Context, bank domain.Bank) error {
	if err := bank.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(bank)
	if err != nil {
		return fmt.Errorf("marshal bank: %w", err)
	}
	_, err = w.db.ExecContext(ctx,
		`INSERT INTO question_banks (brand, data, updated_at) VALUES (?, ?::jsonb, now())
		 ON CONFLICT (brand) DO UPDATE SET data=EXCLUDED.data, updated_at=now()`,
		bank.Brand, string(data))
	if err != nil {
		return fmt.Errorf("save bank %s: %w", bank.Brand, err)
	}
	return nil
}
