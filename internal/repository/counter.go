package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goarttag/internal/domain/model"
)

// CounterRepository — атомарная выдача номеров тегов под блокировкой строки
// конфигурации. Каждый вызов — отдельная короткая транзакция.
type CounterRepository interface {
	// NextSequence блокирует конфигурацию, увеличивает current_number на 1
	// и возвращает актуальную (заблокированную) запись с новым номером.
	NextSequence(ctx context.Context, configID string, lockTimeout time.Duration) (*model.TagConfig, error)
	// NextBranchSequence блокирует конфигурацию и увеличивает счётчик филиала.
	// При первом обращении счётчик инициализируется максимальным номером
	// среди уже существующих тегов филиала.
	NextBranchSequence(ctx context.Context, configID, ownerType, branchID string, lockTimeout time.Duration) (*model.TagConfig, uint64, error)
}

// counterRepo — реализация CounterRepository.
type counterRepo struct {
	db DBTX
}

// NewCounterRepository создаёт репозиторий счётчиков.
func NewCounterRepository(db DBTX) CounterRepository {
	return &counterRepo{db: db}
}

// setLockTimeout ограничивает ожидание блокировки в пределах текущей транзакции.
func setLockTimeout(ctx context.Context, tx pgx.Tx, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
		fmt.Sprintf("%dms", timeout.Milliseconds()))
	if err != nil {
		return classifyError(err, "ошибка установки lock_timeout")
	}
	return nil
}

func (r *counterRepo) NextSequence(ctx context.Context, configID string, lockTimeout time.Duration) (*model.TagConfig, error) {
	var result *model.TagConfig
	err := runInTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := setLockTimeout(ctx, tx, lockTimeout); err != nil {
			return err
		}
		if _, err := (&configRepo{db: tx}).GetByIDForUpdate(ctx, configID); err != nil {
			return err
		}

		cfg, err := scanConfig(tx.QueryRow(ctx, `
			UPDATE tag_configs
			SET current_number = current_number + 1
			WHERE id = $1
			RETURNING `+configColumns, configID))
		if err != nil {
			return classifyError(err, "ошибка увеличения счётчика")
		}
		result = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *counterRepo) NextBranchSequence(ctx context.Context, configID, ownerType, branchID string, lockTimeout time.Duration) (*model.TagConfig, uint64, error) {
	var (
		cfg *model.TagConfig
		seq uint64
	)
	err := runInTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := setLockTimeout(ctx, tx, lockTimeout); err != nil {
			return err
		}
		locked, err := (&configRepo{db: tx}).GetByIDForUpdate(ctx, configID)
		if err != nil {
			return err
		}
		cfg = locked

		var current int64
		err = tx.QueryRow(ctx, `
			UPDATE tag_branch_counters
			SET current_number = current_number + 1
			WHERE config_id = $1 AND branch_id = $2
			RETURNING current_number`, configID, branchID).Scan(&current)
		if err == nil {
			seq = uint64(current)
			return nil
		}
		if err != pgx.ErrNoRows {
			return classifyError(err, "ошибка увеличения счётчика филиала")
		}

		// Первый номер филиала: продолжаем после уже выданных тегов.
		seed, err := (&tagRepo{db: tx}).MaxBranchSequence(ctx, ownerType, locked.Prefix, locked.Separator, branchID)
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO tag_branch_counters (config_id, branch_id, current_number)
			VALUES ($1, $2, $3)
			RETURNING current_number`, configID, branchID, int64(seed+1)).Scan(&current)
		if err != nil {
			return classifyError(err, "ошибка создания счётчика филиала")
		}
		seq = uint64(current)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return cfg, seq, nil
}
