package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ddvo/chorelist/internal/core/domain"
	"github.com/ddvo/chorelist/internal/txretry"
)

var (
	// ErrItemNotFound is returned when an item doesn't exist
	ErrItemNotFound = errors.New("item not found")
)

// ItemRepository handles shopping list storage operations. Implementations
// are bound to the transaction of the scope they were created from, so every
// call participates in the current attempt.
type ItemRepository interface {
	// Insert saves a new item
	Insert(ctx context.Context, item *domain.Item) error

	// Get retrieves an item by its composite key
	Get(ctx context.Context, username string, id uuid.UUID) (*domain.Item, error)

	// First retrieves the oldest item on a user's list
	First(ctx context.Context, username string) (*domain.Item, error)

	// ListByUser retrieves a user's items ordered by when they were added
	ListByUser(ctx context.Context, username string) ([]*domain.Item, error)

	// SetBought flips the bought flag of an item
	SetBought(ctx context.Context, username string, id uuid.UUID, bought bool) error

	// Delete removes an item
	Delete(ctx context.Context, username string, id uuid.UUID) error

	// DeleteBoughtBefore removes bought items added before the cutoff,
	// returning how many rows were pruned
	DeleteBoughtBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// CountByUser counts a user's items
	CountByUser(ctx context.Context, username string) (int, error)
}

// RepositoryFactory binds an ItemRepository to an in-flight transaction
// scope. It fails when handed a scope from a different storage backend.
type RepositoryFactory func(scope txretry.TransactionScope) (ItemRepository, error)
