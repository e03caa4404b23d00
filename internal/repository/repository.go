// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
	// ErrLockConflict — не удалось получить блокировку строки (lock_timeout,
	// ошибка сериализации или взаимоблокировка). Операцию можно повторить.
	ErrLockConflict = errors.New("конфликт блокировки")
	// ErrUnavailable — хранилище недоступно (сеть, пул, отменённый контекст).
	ErrUnavailable = errors.New("хранилище недоступно")
)

// Коды SQLSTATE PostgreSQL, которые обрабатываются явно.
const (
	codeUniqueViolation      = "23505"
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeQueryCanceled        = "57014"
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
// Begin на pgx.Tx создаёт savepoint.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	db DBTX
}

// NewTxRunner создаёт TxRunner. db — пул или внешняя транзакция
// (во втором случае RunInTx работает через savepoint).
func NewTxRunner(db DBTX) *TxRunner {
	return &TxRunner{db: db}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn транзакция откатывается, при успехе — коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return runInTx(ctx, r.db, fn)
}

func runInTx(ctx context.Context, db DBTX, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return classifyError(err, "ошибка начала транзакции")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyError(err, "ошибка фиксации транзакции")
	}
	return nil
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation
	}
	return false
}

// isLockConflict проверяет, что ошибка вызвана конкуренцией за блокировку.
// 57014 возникает при срабатывании lock_timeout в старых версиях PostgreSQL
// и при statement_timeout; обе ситуации допускают повтор.
func isLockConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected, codeQueryCanceled:
			return true
		}
	}
	return false
}

// classifyError оборачивает ошибку pgx в одну из ошибок слоя.
// Ошибки PostgreSQL без специальной обработки возвращаются как есть,
// ошибки вне протокола (сеть, пул, контекст) — как ErrUnavailable.
func classifyError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s: %v", ErrConflict, msg, err)
	}
	if isLockConflict(err) {
		return fmt.Errorf("%w: %s: %v", ErrLockConflict, msg, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, msg, err)
}
