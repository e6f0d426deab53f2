package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"
)

// TxFunc функция, выполняемая в транзакции
type TxFunc func(tx pgx.Tx) error

// finisher общая часть pgx.Tx и sqlx.Tx
type finisher struct {
	commit   func() error
	rollback func() error
}

// WithTransaction выполняет fn в транзакции PostgreSQL.
// Ошибка или паника fn откатывает транзакцию.
func WithTransaction(ctx context.Context, db DB, fn TxFunc) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	return finish(finisher{
		commit:   func() error { return tx.Commit(ctx) },
		rollback: func() error { return tx.Rollback(ctx) },
	}, func() error { return fn(tx) })
}

// WithSQLTransaction то же для sqlx (SQLite)
func WithSQLTransaction(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	return finish(finisher{commit: tx.Commit, rollback: tx.Rollback}, func() error { return fn(tx) })
}

func finish(f finisher, body func() error) error {
	defer func() {
		if p := recover(); p != nil {
			_ = f.rollback() //nolint:errcheck // best effort on panic
			panic(p)
		}
	}()

	if err := body(); err != nil {
		if rbErr := f.rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := f.commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
