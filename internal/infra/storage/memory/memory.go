// Package memory implements the storage contract over process memory. It
// exists for tests and local development: scopes stage writes against a
// snapshot and publish them on commit, and commit failures can be scripted to
// exercise the retry loop without a database.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ddvo/chorelist/internal/core/domain"
	"github.com/ddvo/chorelist/internal/infra/storage"
	"github.com/ddvo/chorelist/internal/txretry"
)

type itemMap map[string]map[uuid.UUID]*domain.Item

// Store holds committed state and hands out transaction scopes.
type Store struct {
	mu         sync.RWMutex
	items      itemMap
	commitErrs []error
	begins     int
	commits    int
	restarts   int
}

func NewStore() *Store {
	return &Store{items: make(itemMap)}
}

// FailNextCommits scripts errors for upcoming commits, consumed in order.
// Commits beyond the script succeed.
func (s *Store) FailNextCommits(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErrs = append(s.commitErrs, errs...)
}

// Counts reports how many begins, commits, and restarts the store has seen.
func (s *Store) Counts() (begins, commits, restarts int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.begins, s.commits, s.restarts
}

// NewScope opens a scope against the store. txretry.ScopeFactory.
func (s *Store) NewScope(ctx context.Context) (txretry.TransactionScope, error) {
	return &Scope{store: s}, nil
}

func (s *Store) snapshot() itemMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(itemMap, len(s.items))
	for user, list := range s.items {
		cp := make(map[uuid.UUID]*domain.Item, len(list))
		for id, item := range list {
			c := *item
			cp[id] = &c
		}
		snap[user] = cp
	}
	return snap
}

func (s *Store) nextCommitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	if len(s.commitErrs) == 0 {
		return nil
	}
	err := s.commitErrs[0]
	s.commitErrs = s.commitErrs[1:]
	return err
}

// Scope stages writes against a snapshot of the store. Writes become visible
// to other scopes only on a successful Commit.
type Scope struct {
	store  *Store
	staged itemMap
	open   bool
}

func (sc *Scope) Begin(ctx context.Context) error {
	if sc.open {
		return errors.New("transaction already open")
	}
	sc.staged = sc.store.snapshot()
	sc.open = true
	sc.store.mu.Lock()
	sc.store.begins++
	sc.store.mu.Unlock()
	return nil
}

func (sc *Scope) Commit(ctx context.Context) error {
	if !sc.open {
		return errors.New("no open transaction")
	}
	if err := sc.store.nextCommitErr(); err != nil {
		// Conflict at commit time: the transaction stays open so the
		// executor can Restart it, mirroring the savepoint protocol.
		return err
	}
	sc.store.mu.Lock()
	sc.store.items = sc.staged
	sc.store.mu.Unlock()
	sc.staged = nil
	sc.open = false
	return nil
}

func (sc *Scope) Rollback(ctx context.Context) error {
	sc.staged = nil
	sc.open = false
	return nil
}

// Restart discards staged writes but keeps the scope open, like rolling back
// to a checkpoint taken at Begin.
func (sc *Scope) Restart(ctx context.Context) error {
	if !sc.open {
		return errors.New("no open transaction to restart")
	}
	sc.staged = sc.store.snapshot()
	sc.store.mu.Lock()
	sc.store.restarts++
	sc.store.mu.Unlock()
	return nil
}

// Items binds a repository to the scope's staged state.
// storage.RepositoryFactory.
func Items(scope txretry.TransactionScope) (storage.ItemRepository, error) {
	sc, ok := scope.(*Scope)
	if !ok {
		return nil, fmt.Errorf("scope is %T, not a memory scope", scope)
	}
	if !sc.open {
		return nil, errors.New("no open transaction")
	}
	return &ItemRepo{scope: sc}, nil
}

// ItemRepo implements storage.ItemRepository over a scope's staged map.
type ItemRepo struct {
	scope *Scope
}

func (r *ItemRepo) Insert(ctx context.Context, item *domain.Item) error {
	list, ok := r.scope.staged[item.Username]
	if !ok {
		list = make(map[uuid.UUID]*domain.Item)
		r.scope.staged[item.Username] = list
	}
	if _, exists := list[item.ID]; exists {
		return txretry.NewClassifiedError(txretry.KindConstraint, false,
			fmt.Errorf("duplicate item %s for %s", item.ID, item.Username))
	}
	c := *item
	if c.Added.IsZero() {
		c.Added = time.Now()
	}
	list[item.ID] = &c
	return nil
}

func (r *ItemRepo) Get(ctx context.Context, username string, id uuid.UUID) (*domain.Item, error) {
	item, ok := r.scope.staged[username][id]
	if !ok {
		return nil, storage.ErrItemNotFound
	}
	c := *item
	return &c, nil
}

func (r *ItemRepo) First(ctx context.Context, username string) (*domain.Item, error) {
	items, err := r.ListByUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, storage.ErrItemNotFound
	}
	return items[0], nil
}

func (r *ItemRepo) ListByUser(ctx context.Context, username string) ([]*domain.Item, error) {
	list := r.scope.staged[username]
	items := make([]*domain.Item, 0, len(list))
	for _, item := range list {
		c := *item
		items = append(items, &c)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Added.Equal(items[j].Added) {
			return items[i].ID.String() < items[j].ID.String()
		}
		return items[i].Added.Before(items[j].Added)
	})
	return items, nil
}

func (r *ItemRepo) SetBought(ctx context.Context, username string, id uuid.UUID, bought bool) error {
	item, ok := r.scope.staged[username][id]
	if !ok {
		return storage.ErrItemNotFound
	}
	item.Bought = bought
	return nil
}

func (r *ItemRepo) Delete(ctx context.Context, username string, id uuid.UUID) error {
	if _, ok := r.scope.staged[username][id]; !ok {
		return storage.ErrItemNotFound
	}
	delete(r.scope.staged[username], id)
	return nil
}

func (r *ItemRepo) DeleteBoughtBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for _, list := range r.scope.staged {
		for id, item := range list {
			if item.Bought && item.Added.Before(cutoff) {
				delete(list, id)
				n++
			}
		}
	}
	return n, nil
}

func (r *ItemRepo) CountByUser(ctx context.Context, username string) (int, error) {
	return len(r.scope.staged[username]), nil
}
