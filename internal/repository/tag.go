package repository

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goarttag/internal/domain/model"
)

// TagSearchParams — фильтры поиска тегов. Пустые поля не участвуют в фильтрации.
type TagSearchParams struct {
	OwnerType string
	// Value — поиск по префиксу значения
	Value  string
	Limit  int
	Offset int
}

// TagRepository — интерфейс доступа к таблице tags.
type TagRepository interface {
	// Create сохраняет тег. Второй тег для того же владельца — ErrConflict.
	Create(ctx context.Context, tag *model.Tag) error
	// GetByID возвращает тег по идентификатору.
	GetByID(ctx context.Context, id int64) (*model.Tag, error)
	// GetByOwner возвращает тег владельца или ErrNotFound.
	GetByOwner(ctx context.Context, ownerType, ownerID string) (*model.Tag, error)
	// Search возвращает теги по фильтрам, отсортированные по id.
	Search(ctx context.Context, params TagSearchParams) ([]*model.Tag, error)
	// Count возвращает количество тегов по тем же фильтрам.
	Count(ctx context.Context, params TagSearchParams) (int, error)
	// UpdateValue меняет значение тега и возвращает обновлённую запись.
	UpdateValue(ctx context.Context, id int64, value string) (*model.Tag, error)
	// DeleteByOwner удаляет тег владельца и возвращает удалённую запись.
	DeleteByOwner(ctx context.Context, ownerType, ownerID string) (*model.Tag, error)
	// DeleteByIDs удаляет теги одним запросом и возвращает удалённые записи.
	DeleteByIDs(ctx context.Context, ids []int64) ([]*model.Tag, error)
	// MaxBranchSequence возвращает наибольший номер среди тегов вида
	// prefix{sep}NNN{sep}branch для типа сущности (0, если тегов нет).
	MaxBranchSequence(ctx context.Context, ownerType, prefix, separator, branchID string) (uint64, error)
	// WithinTx выполняет fn в транзакции (или savepoint, если репозиторий уже в транзакции).
	WithinTx(ctx context.Context, fn func(repo TagRepository) error) error
}

// tagRepo — реализация TagRepository.
type tagRepo struct {
	db DBTX
}

// NewTagRepository создаёт репозиторий тегов.
func NewTagRepository(db DBTX) TagRepository {
	return &tagRepo{db: db}
}

const tagColumns = `id, value, owner_type, owner_id, created_at, updated_at`

func scanTag(row pgx.Row) (*model.Tag, error) {
	t := &model.Tag{}
	if err := row.Scan(&t.ID, &t.Value, &t.OwnerType, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

func collectTags(rows pgx.Rows) ([]*model.Tag, error) {
	defer rows.Close()
	var result []*model.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования тега: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err, "ошибка чтения тегов")
	}
	return result, nil
}

func (r *tagRepo) Create(ctx context.Context, tag *model.Tag) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO tags (value, owner_type, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		tag.Value, tag.OwnerType, tag.OwnerID,
	).Scan(&tag.ID, &tag.CreatedAt, &tag.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: у %s/%s уже есть тег", ErrConflict, tag.OwnerType, tag.OwnerID)
		}
		return classifyError(err, "ошибка создания тега")
	}
	return nil
}

func (r *tagRepo) GetByID(ctx context.Context, id int64) (*model.Tag, error) {
	t, err := scanTag(r.db.QueryRow(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE id = $1`, id))
	if err != nil {
		return nil, classifyError(err, "ошибка получения тега")
	}
	return t, nil
}

func (r *tagRepo) GetByOwner(ctx context.Context, ownerType, ownerID string) (*model.Tag, error) {
	t, err := scanTag(r.db.QueryRow(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE owner_type = $1 AND owner_id = $2`,
		ownerType, ownerID))
	if err != nil {
		return nil, classifyError(err, "ошибка получения тега")
	}
	return t, nil
}

// buildTagFilter строит WHERE по параметрам поиска.
func buildTagFilter(params TagSearchParams) (string, []any) {
	var conditions []string
	var args []any
	argNum := 1

	if params.OwnerType != "" {
		conditions = append(conditions, fmt.Sprintf("owner_type = $%d", argNum))
		args = append(args, params.OwnerType)
		argNum++
	}
	if params.Value != "" {
		conditions = append(conditions, fmt.Sprintf("value LIKE $%d", argNum))
		args = append(args, escapeLike(params.Value)+"%")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// escapeLike экранирует спецсимволы шаблона LIKE.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *tagRepo) Search(ctx context.Context, params TagSearchParams) ([]*model.Tag, error) {
	where, args := buildTagFilter(params)
	query := fmt.Sprintf(`
		SELECT %s FROM tags
		%s
		ORDER BY id
		LIMIT $%d OFFSET $%d`, tagColumns, where, len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyError(err, "ошибка поиска тегов")
	}
	return collectTags(rows)
}

func (r *tagRepo) Count(ctx context.Context, params TagSearchParams) (int, error) {
	where, args := buildTagFilter(params)
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tags `+where, args...).Scan(&count); err != nil {
		return 0, classifyError(err, "ошибка подсчёта тегов")
	}
	return count, nil
}

func (r *tagRepo) UpdateValue(ctx context.Context, id int64, value string) (*model.Tag, error) {
	t, err := scanTag(r.db.QueryRow(ctx, `
		UPDATE tags SET value = $2
		WHERE id = $1
		RETURNING `+tagColumns, id, value))
	if err != nil {
		return nil, classifyError(err, "ошибка обновления тега")
	}
	return t, nil
}

func (r *tagRepo) DeleteByOwner(ctx context.Context, ownerType, ownerID string) (*model.Tag, error) {
	t, err := scanTag(r.db.QueryRow(ctx, `
		DELETE FROM tags
		WHERE owner_type = $1 AND owner_id = $2
		RETURNING `+tagColumns, ownerType, ownerID))
	if err != nil {
		return nil, classifyError(err, "ошибка удаления тега")
	}
	return t, nil
}

func (r *tagRepo) DeleteByIDs(ctx context.Context, ids []int64) ([]*model.Tag, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		DELETE FROM tags
		WHERE id = ANY($1)
		RETURNING `+tagColumns, ids)
	if err != nil {
		return nil, classifyError(err, "ошибка массового удаления тегов")
	}
	return collectTags(rows)
}

// MaxBranchSequence разбирает значения регулярным выражением PostgreSQL.
// Синтаксис экранирования regexp.QuoteMeta совместим с ARE PostgreSQL.
func (r *tagRepo) MaxBranchSequence(ctx context.Context, ownerType, prefix, separator, branchID string) (uint64, error) {
	pattern := "^" + regexp.QuoteMeta(prefix+separator) + "([0-9]+)" + regexp.QuoteMeta(separator+branchID) + "$"

	var maxSeq *int64
	err := r.db.QueryRow(ctx, `
		SELECT MAX((substring(value FROM $2))::BIGINT)
		FROM tags
		WHERE owner_type = $1 AND value ~ $2`, ownerType, pattern).Scan(&maxSeq)
	if err != nil {
		return 0, classifyError(err, "ошибка поиска номера филиала")
	}
	if maxSeq == nil {
		return 0, nil
	}
	return uint64(*maxSeq), nil
}

func (r *tagRepo) WithinTx(ctx context.Context, fn func(repo TagRepository) error) error {
	return runInTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&tagRepo{db: tx})
	})
}
