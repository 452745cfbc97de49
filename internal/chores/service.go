// Package chores implements the shopping list operations as units of work
// executed through the transaction retry executor. Each operation stays free
// of side effects until its transaction commits; cache invalidation and
// logging happen only after Run returns success.
package chores

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ddvo/chorelist/internal/core/domain"
	"github.com/ddvo/chorelist/internal/infra/storage"
	"github.com/ddvo/chorelist/internal/txretry"
)

// ListCache is the optional read-through cache for rendered lists. Misses and
// cache errors are equivalent; the store remains the source of truth.
type ListCache interface {
	GetList(ctx context.Context, username string) ([]*domain.Item, bool)
	SetList(ctx context.Context, username string, items []*domain.Item)
	Invalidate(ctx context.Context, username string)
}

// Service exposes the shopping list operations.
type Service struct {
	exec  *txretry.Executor
	repos storage.RepositoryFactory
	cache ListCache
}

// NewService builds a service. cache may be nil.
func NewService(exec *txretry.Executor, repos storage.RepositoryFactory, cache ListCache) *Service {
	return &Service{exec: exec, repos: repos, cache: cache}
}

// AddItem puts a new item on the user's list and returns the committed row,
// including the server-assigned added timestamp.
func (s *Service) AddItem(ctx context.Context, username, name string, quantity int) (*domain.Item, error) {
	if username == "" || name == "" {
		return nil, errors.New("username and item are required")
	}
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	item := domain.NewItem(username, name, quantity)
	got, err := txretry.Run(ctx, s.exec, func(ctx context.Context, scope txretry.TransactionScope) (*domain.Item, error) {
		repo, err := s.repos(scope)
		if err != nil {
			return nil, err
		}
		if err := repo.Insert(ctx, item); err != nil {
			return nil, err
		}
		return repo.Get(ctx, username, item.ID)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, username)
	slog.Info("added shopping list item",
		"username", username, "item_id", got.ID, "item", got.Name, "quantity", got.Quantity)
	return got, nil
}

// ListItems returns the user's list, oldest first. Reads go through the
// cache when one is configured.
func (s *Service) ListItems(ctx context.Context, username string) ([]*domain.Item, error) {
	if s.cache != nil {
		if items, ok := s.cache.GetList(ctx, username); ok {
			return items, nil
		}
	}

	items, err := txretry.Run(ctx, s.exec, func(ctx context.Context, scope txretry.TransactionScope) ([]*domain.Item, error) {
		repo, err := s.repos(scope)
		if err != nil {
			return nil, err
		}
		return repo.ListByUser(ctx, username)
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetList(ctx, username, items)
	}
	return items, nil
}

// NextItem returns the oldest item on the user's list.
func (s *Service) NextItem(ctx context.Context, username string) (*domain.Item, error) {
	return txretry.Run(ctx, s.exec, func(ctx context.Context, scope txretry.TransactionScope) (*domain.Item, error) {
		repo, err := s.repos(scope)
		if err != nil {
			return nil, err
		}
		return repo.First(ctx, username)
	})
}

// GetItem fetches a single item.
func (s *Service) GetItem(ctx context.Context, username string, id uuid.UUID) (*domain.Item, error) {
	return txretry.Run(ctx, s.exec, func(ctx context.Context, scope txretry.TransactionScope) (*domain.Item, error) {
		repo, err := s.repos(scope)
		if err != nil {
			return nil, err
		}
		return repo.Get(ctx, username, id)
	})
}

// MarkBought flags an item as bought and returns the updated row.
func (s *Service) MarkBought(ctx context.Context, username string, id uuid.UUID) (*domain.Item, error) {
	got, err := txretry.Run(ctx, s.exec, func(ctx context.Context, scope txretry.TransactionScope) (*domain.Item, error) {
		repo, err := s.repos(scope)
		if err != nil {
			return nil, err
		}
		if err := repo.SetBought(ctx, username, id, true); err != nil {
			return nil, err
		}
		return repo.Get(ctx, username, id)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, username)
	slog.Info("marked item bought", "username", username, "item_id", id)
	return got, nil
}

// RemoveItem deletes an item and returns how many items remain on the list.
func (s *Service) RemoveItem(ctx context.Context, username string, id uuid.UUID) (int, error) {
	remaining, err := txretry.Run(ctx, s.exec, func(ctx context.Context, scope txretry.TransactionScope) (int, error) {
		repo, err := s.repos(scope)
		if err != nil {
			return 0, err
		}
		if err := repo.Delete(ctx, username, id); err != nil {
			return 0, err
		}
		return repo.CountByUser(ctx, username)
	})
	if err != nil {
		return 0, err
	}

	s.invalidate(ctx, username)
	slog.Info("removed shopping list item",
		"username", username, "item_id", id, "remaining", remaining)
	return remaining, nil
}

// PruneBought deletes bought items added before the cutoff and reports how
// many rows went away. Used by the retention worker.
func (s *Service) PruneBought(ctx context.Context, cutoff time.Time) (int64, error) {
	return txretry.Run(ctx, s.exec, func(ctx context.Context, scope txretry.TransactionScope) (int64, error) {
		repo, err := s.repos(scope)
		if err != nil {
			return 0, err
		}
		return repo.DeleteBoughtBefore(ctx, cutoff)
	})
}

func (s *Service) invalidate(ctx context.Context, username string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, username)
	}
}
