package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ddvo/chorelist/internal/txretry"
)

// Classifier maps SQLSTATE codes from CockroachDB/PostgreSQL to the retry
// taxonomy. Anything without a recognized code falls through to the default
// classifier (context, network, message hints), which fails closed.
type Classifier struct{}

func (Classifier) Classify(err error) *txretry.ClassifiedError {
	if err == nil {
		return nil
	}

	var cls *txretry.ClassifiedError
	if errors.As(err, &cls) {
		return cls
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		// serialization_failure: the optimistic-concurrency conflict
		// this whole package exists to absorb.
		case pgErr.Code == "40001":
			return txretry.NewClassifiedError(txretry.KindSerialization, true, err)

		// deadlock_detected resolves by replaying one of the victims.
		case pgErr.Code == "40P01":
			return txretry.NewClassifiedError(txretry.KindSerialization, true, err)

		// statement_completion_unknown: the commit may have applied.
		// Retrying could double-apply, so surface it to the caller.
		case pgErr.Code == "40003":
			return txretry.NewClassifiedError(txretry.KindUnknown, false, err)

		// query_canceled: the caller asked to stop.
		case pgErr.Code == "57014":
			return txretry.NewClassifiedError(txretry.KindTimeout, false, err)

		// Class 08: connection exceptions before any commit was sent.
		case strings.HasPrefix(pgErr.Code, "08"):
			return txretry.NewClassifiedError(txretry.KindConnection, true, err)

		// Class 23: integrity constraint violations. Retrying cannot
		// change the outcome.
		case strings.HasPrefix(pgErr.Code, "23"):
			return txretry.NewClassifiedError(txretry.KindConstraint, false, err)

		default:
			return txretry.NewClassifiedError(txretry.KindUnknown, false, err)
		}
	}

	return txretry.DefaultClassifier{}.Classify(err)
}
