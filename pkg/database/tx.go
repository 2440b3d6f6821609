package database

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// Queryer is the subset of sqlx used by repositories. Both *sqlx.DB and
// *sqlx.Tx satisfy it, so repository methods transparently join an open
// transaction carried in the context.
type Queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// WithTx executes fn inside a transaction stored in the context. Repository
// calls made through Executor within fn run on that transaction, so a
// multi-row mutation commits or rolls back as a unit.
//
// Usage in services:
//
//	err := s.db.WithTx(ctx, func(ctx context.Context) error {
//	    if err := s.lots.Insert(ctx, lot); err != nil { return err }
//	    return s.transactions.Insert(ctx, txn)
//	})
func (db *DB) WithTx(ctx context.Context, fn func(context.Context) error) error {
	if tx := getTx(ctx); tx != nil {
		// Already inside a transaction; join it.
		return fn(ctx)
	}
	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Executor returns the context transaction if one is open, otherwise the
// pooled connection.
func (db *DB) Executor(ctx context.Context) Queryer {
	if tx := getTx(ctx); tx != nil {
		return tx
	}
	return db.DB
}

func getTx(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}
