package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"нет строк", pgx.ErrNoRows, ErrNotFound},
		{"уникальность", &pgconn.PgError{Code: "23505"}, ErrConflict},
		{"lock_timeout", &pgconn.PgError{Code: "55P03"}, ErrLockConflict},
		{"сериализация", &pgconn.PgError{Code: "40001"}, ErrLockConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ErrLockConflict},
		{"сеть", errors.New("dial tcp: connection refused"), ErrUnavailable},
		{"контекст", context.DeadlineExceeded, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err, "операция")
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyError(%v) = %v, ожидается %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyError_OtherPgError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514"} // check_violation
	got := classifyError(pgErr, "операция")

	for _, sentinel := range []error{ErrNotFound, ErrConflict, ErrLockConflict, ErrUnavailable} {
		if errors.Is(got, sentinel) {
			t.Errorf("classifyError(23514) не должна совпадать с %v", sentinel)
		}
	}
	var target *pgconn.PgError
	if !errors.As(got, &target) {
		t.Error("исходная PgError должна сохраняться в цепочке")
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if err := classifyError(nil, "операция"); err != nil {
		t.Errorf("classifyError(nil) = %v, ожидается nil", err)
	}
}

func TestEscapeLike(t *testing.T) {
	tests := map[string]string{
		"EQ":     "EQ",
		"EQ_1":   `EQ\_1`,
		"50%":    `50\%`,
		`a\b`:    `a\\b`,
		"EQ-001": "EQ-001",
	}
	for in, want := range tests {
		if got := escapeLike(in); got != want {
			t.Errorf("escapeLike(%q) = %q, ожидается %q", in, got, want)
		}
	}
}

func TestBuildTagFilter(t *testing.T) {
	where, args := buildTagFilter(TagSearchParams{})
	if where != "" || len(args) != 0 {
		t.Errorf("пустой фильтр: where = %q, args = %v", where, args)
	}

	where, args = buildTagFilter(TagSearchParams{OwnerType: "equipment", Value: "EQ"})
	if where != "WHERE owner_type = $1 AND value LIKE $2" {
		t.Errorf("where = %q", where)
	}
	if len(args) != 2 || args[0] != "equipment" || args[1] != "EQ%" {
		t.Errorf("args = %v", args)
	}
}
