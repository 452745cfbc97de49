package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ddvo/chorelist/internal/core/domain"
	"github.com/ddvo/chorelist/internal/infra/storage"
)

// ItemRepo runs shopping list queries inside one transaction attempt.
type ItemRepo struct {
	tx *sqlx.Tx
}

func (r *ItemRepo) Insert(ctx context.Context, item *domain.Item) error {
	// added is assigned server-side so replayed attempts agree with the
	// committed row.
	_, err := r.tx.NamedExecContext(ctx, `
		INSERT INTO shopping_lists (username, item_id, item, quantity, bought)
		VALUES (:username, :item_id, :item, :quantity, :bought)`, item)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (r *ItemRepo) Get(ctx context.Context, username string, id uuid.UUID) (*domain.Item, error) {
	var item domain.Item
	err := r.tx.GetContext(ctx, &item, `
		SELECT username, item_id, added, item, quantity, bought
		FROM shopping_lists
		WHERE username = $1 AND item_id = $2`, username, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

func (r *ItemRepo) First(ctx context.Context, username string) (*domain.Item, error) {
	var item domain.Item
	err := r.tx.GetContext(ctx, &item, `
		SELECT username, item_id, added, item, quantity, bought
		FROM shopping_lists
		WHERE username = $1
		ORDER BY added
		LIMIT 1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("first item: %w", err)
	}
	return &item, nil
}

func (r *ItemRepo) ListByUser(ctx context.Context, username string) ([]*domain.Item, error) {
	items := []*domain.Item{}
	err := r.tx.SelectContext(ctx, &items, `
		SELECT username, item_id, added, item, quantity, bought
		FROM shopping_lists
		WHERE username = $1
		ORDER BY added`, username)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (r *ItemRepo) SetBought(ctx context.Context, username string, id uuid.UUID, bought bool) error {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE shopping_lists
		SET bought = $3
		WHERE username = $1 AND item_id = $2`, username, id, bought)
	if err != nil {
		return fmt.Errorf("set bought: %w", err)
	}
	return requireRow(res)
}

func (r *ItemRepo) Delete(ctx context.Context, username string, id uuid.UUID) error {
	res, err := r.tx.ExecContext(ctx, `
		DELETE FROM shopping_lists
		WHERE username = $1 AND item_id = $2`, username, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return requireRow(res)
}

func (r *ItemRepo) DeleteBoughtBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.tx.ExecContext(ctx, `
		DELETE FROM shopping_lists
		WHERE bought AND added < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune bought items: %w", err)
	}
	return res.RowsAffected()
}

func (r *ItemRepo) CountByUser(ctx context.Context, username string) (int, error) {
	var n int
	err := r.tx.GetContext(ctx, &n, `
		SELECT count(*) FROM shopping_lists WHERE username = $1`, username)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrItemNotFound
	}
	return nil
}
