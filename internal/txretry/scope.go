package txretry

import "context"

// TransactionScope is the session-side contract the executor drives. A scope
// is bound to one logical transaction at a time: Begin opens it, Commit or
// Rollback closes it. Rollback must be safe to call at any point, including
// after a failed Commit or when no transaction is open.
type TransactionScope interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Restartable is the optional fast path for stores that keep an internal
// checkpoint (e.g. a savepoint taken right after BEGIN). Restart discards the
// partial writes of the current attempt while keeping the session and its
// transaction priority, which is cheaper than a full rollback and re-begin.
//
// If Restart returns an error the executor falls back to Rollback + Begin.
type Restartable interface {
	Restart(ctx context.Context) error
}

// ScopeFactory opens a fresh scope for one Run call. The returned scope is
// exclusively owned by that Run until it finishes.
type ScopeFactory interface {
	NewScope(ctx context.Context) (TransactionScope, error)
}

// ScopeFactoryFunc adapts a function to the ScopeFactory interface.
type ScopeFactoryFunc func(ctx context.Context) (TransactionScope, error)

func (f ScopeFactoryFunc) NewScope(ctx context.Context) (TransactionScope, error) {
	return f(ctx)
}
