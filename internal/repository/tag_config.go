package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goarttag/internal/domain/model"
)

// ConfigRepository — интерфейс CRUD для таблицы tag_configs.
type ConfigRepository interface {
	// Create создаёт конфигурацию. ID и CurrentNumber задаются вызывающим кодом.
	Create(ctx context.Context, cfg *model.TagConfig) error
	// GetByID возвращает конфигурацию по UUID.
	GetByID(ctx context.Context, id string) (*model.TagConfig, error)
	// GetByEntityType возвращает конфигурацию по типу сущности.
	GetByEntityType(ctx context.Context, entityType string) (*model.TagConfig, error)
	// GetByIDForUpdate читает конфигурацию с блокировкой строки (только внутри транзакции).
	GetByIDForUpdate(ctx context.Context, id string) (*model.TagConfig, error)
	// List возвращает конфигурации, отсортированные по entity_type.
	List(ctx context.Context, limit, offset int) ([]*model.TagConfig, error)
	// Count возвращает количество конфигураций.
	Count(ctx context.Context) (int, error)
	// Update обновляет настройки конфигурации. current_number не изменяется.
	Update(ctx context.Context, cfg *model.TagConfig) error
	// Reseed устанавливает current_number. Значение не может уменьшаться.
	Reseed(ctx context.Context, id string, number uint64) error
	// Delete удаляет конфигурацию.
	Delete(ctx context.Context, id string) error
	// WithinTx выполняет fn в транзакции с репозиторием, привязанным к ней.
	WithinTx(ctx context.Context, fn func(repo ConfigRepository) error) error
}

// configRepo — реализация ConfigRepository.
type configRepo struct {
	db DBTX
}

// NewConfigRepository создаёт репозиторий конфигураций тегов.
func NewConfigRepository(db DBTX) ConfigRepository {
	return &configRepo{db: db}
}

const configColumns = `id, entity_type, prefix, separator, format, auto_generate,
	current_number, padding_length, description, created_at, updated_at`

func scanConfig(row pgx.Row) (*model.TagConfig, error) {
	cfg := &model.TagConfig{}
	var (
		format  string
		current int64
		padding int16
	)
	err := row.Scan(
		&cfg.ID, &cfg.EntityType, &cfg.Prefix, &cfg.Separator, &format,
		&cfg.AutoGenerate, &current, &padding, &cfg.Description,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.Format = model.Format(format)
	cfg.CurrentNumber = uint64(current)
	cfg.PaddingLength = int(padding)
	return cfg, nil
}

func (r *configRepo) Create(ctx context.Context, cfg *model.TagConfig) error {
	query := `
		INSERT INTO tag_configs (id, entity_type, prefix, separator, format,
			auto_generate, current_number, padding_length, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		cfg.ID, cfg.EntityType, cfg.Prefix, cfg.Separator, string(cfg.Format),
		cfg.AutoGenerate, int64(cfg.CurrentNumber), int16(cfg.PaddingLength), cfg.Description,
	).Scan(&cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: конфигурация для %q уже существует", ErrConflict, cfg.EntityType)
		}
		return classifyError(err, "ошибка создания конфигурации")
	}
	return nil
}

func (r *configRepo) GetByID(ctx context.Context, id string) (*model.TagConfig, error) {
	cfg, err := scanConfig(r.db.QueryRow(ctx,
		`SELECT `+configColumns+` FROM tag_configs WHERE id = $1`, id))
	if err != nil {
		return nil, classifyError(err, "ошибка получения конфигурации")
	}
	return cfg, nil
}

func (r *configRepo) GetByEntityType(ctx context.Context, entityType string) (*model.TagConfig, error) {
	cfg, err := scanConfig(r.db.QueryRow(ctx,
		`SELECT `+configColumns+` FROM tag_configs WHERE entity_type = $1`, entityType))
	if err != nil {
		return nil, classifyError(err, "ошибка получения конфигурации")
	}
	return cfg, nil
}

func (r *configRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.TagConfig, error) {
	cfg, err := scanConfig(r.db.QueryRow(ctx,
		`SELECT `+configColumns+` FROM tag_configs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, classifyError(err, "ошибка блокировки конфигурации")
	}
	return cfg, nil
}

func (r *configRepo) List(ctx context.Context, limit, offset int) ([]*model.TagConfig, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+configColumns+`
		FROM tag_configs
		ORDER BY entity_type
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, classifyError(err, "ошибка получения списка конфигураций")
	}
	defer rows.Close()

	var result []*model.TagConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования конфигурации: %w", err)
		}
		result = append(result, cfg)
	}
	return result, rows.Err()
}

func (r *configRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tag_configs`).Scan(&count); err != nil {
		return 0, classifyError(err, "ошибка подсчёта конфигураций")
	}
	return count, nil
}

func (r *configRepo) Update(ctx context.Context, cfg *model.TagConfig) error {
	query := `
		UPDATE tag_configs
		SET entity_type = $2, prefix = $3, separator = $4, format = $5,
			auto_generate = $6, padding_length = $7, description = $8
		WHERE id = $1
		RETURNING current_number, updated_at`

	var current int64
	err := r.db.QueryRow(ctx, query,
		cfg.ID, cfg.EntityType, cfg.Prefix, cfg.Separator, string(cfg.Format),
		cfg.AutoGenerate, int16(cfg.PaddingLength), cfg.Description,
	).Scan(&current, &cfg.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: конфигурация для %q уже существует", ErrConflict, cfg.EntityType)
		}
		return classifyError(err, "ошибка обновления конфигурации")
	}
	cfg.CurrentNumber = uint64(current)
	return nil
}

// Reseed не понижает счётчик: условие в WHERE отсекает уменьшение,
// и тогда возвращается ErrConflict.
func (r *configRepo) Reseed(ctx context.Context, id string, number uint64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE tag_configs SET current_number = $2
		WHERE id = $1 AND current_number <= $2`, id, int64(number))
	if err != nil {
		return classifyError(err, "ошибка изменения счётчика")
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: счётчик не может уменьшаться", ErrConflict)
	}
	return nil
}

func (r *configRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tag_configs WHERE id = $1`, id)
	if err != nil {
		return classifyError(err, "ошибка удаления конфигурации")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *configRepo) WithinTx(ctx context.Context, fn func(repo ConfigRepository) error) error {
	return runInTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&configRepo{db: tx})
	})
}
