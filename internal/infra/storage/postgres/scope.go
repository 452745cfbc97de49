package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ddvo/chorelist/internal/infra/storage"
	"github.com/ddvo/chorelist/internal/txretry"
)

// restartSavepoint is the marker CockroachDB recognizes for client-side
// transaction restarts. Taking it right after BEGIN lets a conflicted attempt
// roll back to an empty transaction without giving up the session or its
// retry priority.
const restartSavepoint = "cockroach_restart"

// Scope binds one logical transaction to the executor's
// Begin/Commit/Rollback/Restart contract. A scope is owned by a single Run
// call and is not safe for concurrent use.
type Scope struct {
	db *DB
	tx *sqlx.Tx
}

// NewScope opens a fresh scope. The transaction itself starts on Begin.
func (db *DB) NewScope(ctx context.Context) (txretry.TransactionScope, error) {
	return &Scope{db: db}, nil
}

// Begin opens a serializable transaction and takes the restart savepoint.
func (s *Scope) Begin(ctx context.Context) error {
	if s.tx != nil {
		return errors.New("transaction already open")
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+restartSavepoint); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("savepoint: %w", err)
	}
	s.tx = tx
	return nil
}

// Commit releases the savepoint and commits. CockroachDB surfaces
// serialization conflicts at the RELEASE, in which case the transaction stays
// open so the executor can Restart it.
func (s *Scope) Commit(ctx context.Context) error {
	if s.tx == nil {
		return errors.New("no open transaction")
	}
	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+restartSavepoint); err != nil {
		return err
	}
	err := s.tx.Commit()
	s.tx = nil
	return err
}

// Rollback abandons the open transaction. Safe to call at any point.
func (s *Scope) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil // Already committed or rolled back
	}
	err := s.tx.Rollback()
	s.tx = nil
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// Restart discards the attempt's writes by rolling back to the savepoint,
// keeping the session and transaction alive for the next attempt.
func (s *Scope) Restart(ctx context.Context) error {
	if s.tx == nil {
		return errors.New("no open transaction to restart")
	}
	if _, err := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+restartSavepoint); err != nil {
		return fmt.Errorf("rollback to savepoint: %w", err)
	}
	return nil
}

// Items binds an item repository to the scope's in-flight transaction. It is
// a storage.RepositoryFactory; units of work call it on every attempt so the
// repository always queries the current transaction.
func Items(scope txretry.TransactionScope) (storage.ItemRepository, error) {
	s, ok := scope.(*Scope)
	if !ok {
		return nil, fmt.Errorf("scope is %T, not a postgres scope", scope)
	}
	if s.tx == nil {
		return nil, errors.New("no open transaction")
	}
	return &ItemRepo{tx: s.tx}, nil
}
