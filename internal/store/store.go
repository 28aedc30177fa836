// Package store provides descriptor-driven persistence for catalog records.
// All SQL is generated from the registry's record-type contracts; nothing in
// this package knows any concrete table by name.
package store

import (
	"database/sql"
	"fmt"

	"github.com/lherron/curio/internal/db"
	"github.com/lherron/curio/internal/registry"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// record primitives run identically inside and outside a transaction.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store is the root persistence handle.
type Store struct {
	db  *db.DB
	reg *registry.Registry

	Records *RecordStore
}

// New creates a new Store wrapping the given database connection.
func New(database *db.DB, reg *registry.Registry) *Store {
	s := &Store{db: database, reg: reg}
	s.Records = &RecordStore{store: s}
	return s
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// Registry returns the record-type registry the store was built with.
func (s *Store) Registry() *registry.Registry {
	return s.reg
}

// WithTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}
