package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type currencySeed struct {
	Code      string
	Name      string
	Symbol    *string
	MinorUnit int
	IsActive  bool
}

type namedSeed struct {
	Code string
	Name string
}

func seedSystemImmutableData(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("system seed requires database handle")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin system seed transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := seedCurrencies(ctx, tx); err != nil {
		return err
	}
	if err := seedLeadTimeClasses(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit system seed transaction: %w", err)
	}
	return nil
}

func seedCurrencies(ctx context.Context, tx *sql.Tx) error {
	usd := "$"
	eur := "EUR"
	gbp := "GBP"
	cad := "CAD"

	seeds := []currencySeed{
		{Code: "USD", Name: "US Dollar", Symbol: &usd, MinorUnit: 2, IsActive: true},
		{Code: "EUR", Name: "Euro", Symbol: &eur, MinorUnit: 2, IsActive: true},
		{Code: "GBP", Name: "British Pound", Symbol: &gbp, MinorUnit: 2, IsActive: true},
		{Code: "CAD", Name: "Canadian Dollar", Symbol: &cad, MinorUnit: 2, IsActive: true},
	}

	const stmt = `
		INSERT INTO currencies (code, name, symbol, minor_unit, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name,
		    symbol = EXCLUDED.symbol,
		    minor_unit = EXCLUDED.minor_unit,
		    is_active = EXCLUDED.is_active
	`

	for _, seed := range seeds {
		if _, err := tx.ExecContext(ctx, stmt, seed.Code, seed.Name, seed.Symbol, seed.MinorUnit, seed.IsActive); err != nil {
			return fmt.Errorf("seed currency %s: %w", seed.Code, err)
		}
	}
	return nil
}

func seedLeadTimeClasses(ctx context.Context, tx *sql.Tx) error {
	seeds := []namedSeed{
		{Code: "economy", Name: "Economy"},
		{Code: "standard", Name: "Standard"},
		{Code: "expedite", Name: "Expedite"},
	}

	const stmt = `
		INSERT INTO lead_time_classes (code, name)
		VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name
	`

	for _, seed := range seeds {
		if _, err := tx.ExecContext(ctx, stmt, seed.Code, seed.Name); err != nil {
			return fmt.Errorf("seed lead time class %s: %w", seed.Code, err)
		}
	}
	return nil
}
