package repository

import (
	"context"

	"gatherly/internal/database"
)

// Store is the PostgreSQL ledger. Every method runs on the transaction carried
// by ctx when WithTx opened one, and on the pool otherwise.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.WithTx(ctx, fn)
}

func (s *Store) conn(ctx context.Context) database.Querier {
	return s.db.Conn(ctx)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
