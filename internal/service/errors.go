// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/goarttag/internal/repository"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrConfigNotFound — для типа сущности нет конфигурации тегов.
	ErrConfigNotFound = errors.New("конфигурация тегов не найдена")
	// ErrConcurrencyExhausted — исчерпаны попытки получить блокировку счётчика.
	ErrConcurrencyExhausted = errors.New("исчерпаны попытки генерации тега")
	// ErrDuplicateTag — у сущности уже есть тег.
	ErrDuplicateTag = errors.New("у сущности уже есть тег")
	// ErrInvalidFormat — недопустимое значение тега или формат конфигурации.
	ErrInvalidFormat = errors.New("недопустимый формат тега")
	// ErrMissingBranch — для branch_based не указан филиал сущности.
	ErrMissingBranch = errors.New("не указан филиал сущности")
	// ErrStoreUnavailable — хранилище недоступно.
	ErrStoreUnavailable = errors.New("хранилище недоступно")
	// ErrConflictingRegistration — тип сущности уже зарегистрирован с другими параметрами.
	ErrConflictingRegistration = errors.New("тип сущности уже зарегистрирован с другими параметрами")
	// ErrUnknownEntityType — тип сущности не зарегистрирован.
	ErrUnknownEntityType = errors.New("неизвестный тип сущности")
)

// mapRepoError переводит ошибки репозитория в ошибки сервисного слоя.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err) //nolint:errorlint // намеренный двойной wrap
	case errors.Is(err, repository.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err) //nolint:errorlint // намеренный двойной wrap
	default:
		return err
	}
}
