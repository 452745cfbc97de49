package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ddvo/chorelist/internal/txretry"
)

func pgErr(code string) error {
	return &pgconn.PgError{Code: code, Message: "sqlstate " + code}
}

func TestClassifierSQLStates(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      txretry.Kind
		retryable bool
	}{
		{"serialization failure", pgErr("40001"), txretry.KindSerialization, true},
		{"deadlock detected", pgErr("40P01"), txretry.KindSerialization, true},
		{"ambiguous commit", pgErr("40003"), txretry.KindUnknown, false},
		{"query canceled", pgErr("57014"), txretry.KindTimeout, false},
		{"connection exception", pgErr("08000"), txretry.KindConnection, true},
		{"connection failure", pgErr("08006"), txretry.KindConnection, true},
		{"unique violation", pgErr("23505"), txretry.KindConstraint, false},
		{"foreign key violation", pgErr("23503"), txretry.KindConstraint, false},
		{"check violation", pgErr("23514"), txretry.KindConstraint, false},
		{"syntax error", pgErr("42601"), txretry.KindUnknown, false},
		{"wrapped serialization failure", fmt.Errorf("commit: %w", pgErr("40001")), txretry.KindSerialization, true},
	}

	c := Classifier{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := c.Classify(tt.err)
			if cls.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", cls.Kind, tt.kind)
			}
			if cls.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", cls.Retryable, tt.retryable)
			}
		})
	}
}

func TestClassifierFallsThroughToDefault(t *testing.T) {
	c := Classifier{}

	cls := c.Classify(context.Canceled)
	if cls.Kind != txretry.KindTimeout || cls.Retryable {
		t.Errorf("cancellation classified as %+v", cls)
	}

	cls = c.Classify(errors.New("restart transaction: conflict"))
	if cls.Kind != txretry.KindSerialization || !cls.Retryable {
		t.Errorf("restart hint classified as %+v", cls)
	}

	cls = c.Classify(errors.New("some app bug"))
	if cls.Kind != txretry.KindUnknown || cls.Retryable {
		t.Errorf("unknown error classified as %+v", cls)
	}
}

func TestClassifierPassesThroughPreclassified(t *testing.T) {
	pre := txretry.NewClassifiedError(txretry.KindConstraint, false, errors.New("dup"))
	if got := (Classifier{}).Classify(fmt.Errorf("x: %w", pre)); got != pre {
		t.Errorf("expected pre-classified error back, got %v", got)
	}
}

func TestClassifierNil(t *testing.T) {
	if got := (Classifier{}).Classify(nil); got != nil {
		t.Errorf("Classify(nil) = %v, want nil", got)
	}
}
