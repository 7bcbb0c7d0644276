package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"iq-card-service/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS question_banks (
	brand      TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// BankStore keeps question banks in a local SQLite file, for single-host
// deployments that do not run Postgres.
type BankStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*BankStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &BankStore{db: db}, nil
}

func (s *BankStore) Close() error {
	return s.db.Close()
}

func (s *BankStore) LoadBank(ctx context.Context, brand string) (domain.Bank, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM question_banks WHERE brand = ?`, brand).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bank{}, domain.ErrBankNotFound
	}
	if err != nil {
		return domain.Bank{}, fmt.Errorf("load bank: %w", err)
	}
	var bank domain.Bank
	if err := json.Unmarshal([]byte(raw), &bank); err != nil {
		return domain.Bank{}, fmt.Errorf("unmarshal bank: %w", err)
	}
	bank.Brand = brand
	if err := bank.Validate(); err != nil {
		return domain.Bank{}, err
	}
	return bank, nil
}

func (s *BankStore) SaveBank(ctx context.Context, bank domain.Bank) error {
	if err := bank.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(bank)
	if err != nil {
		return fmt.Errorf("marshal bank: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO question_banks (brand, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(brand) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		bank.Brand, string(data))
	if err != nil {
		return fmt.Errorf("save bank %s: %w", bank.Brand, err)
	}
	return nil
}
