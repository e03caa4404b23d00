// registry.go — явный реестр типов сущностей, участвующих в тегировании.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bigkaa/goarttag/internal/domain/model"
)

// ResolveFunc восстанавливает сущность по идентификатору
// (например, чтобы получить филиал для branch_based).
type ResolveFunc func(ctx context.Context, id string) (model.Entity, error)

// EntityType — описание типа сущности.
type EntityType struct {
	// Name — имя типа (совпадает с owner_type тегов и entity_type конфигурации)
	Name string `json:"name"`
	// Label — отображаемое название
	Label string `json:"label"`
	// Resolve — необязательная функция восстановления сущности
	Resolve ResolveFunc `json:"-"`
}

type registration struct {
	entityType EntityType
	hooks      *Hooks
}

// Registry — реестр типов сущностей. Регистрация явная, при старте.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*registration
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*registration)}
}

// Register регистрирует тип и возвращает его обработчики фаз.
// Повторная регистрация с тем же Label возвращает те же Hooks.
func (r *Registry) Register(t EntityType) (*Hooks, error) {
	if t.Name == "" {
		return nil, fmt.Errorf("%w: пустое имя типа сущности", ErrValidation)
	}
	if t.Label == "" {
		t.Label = t.Name
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.types[t.Name]; ok {
		if existing.entityType.Label != t.Label {
			return nil, fmt.Errorf("%w: %s (%q, ранее %q)",
				ErrConflictingRegistration, t.Name, t.Label, existing.entityType.Label)
		}
		if t.Resolve != nil && existing.entityType.Resolve == nil {
			existing.entityType.Resolve = t.Resolve
		}
		return existing.hooks, nil
	}

	reg := &registration{entityType: t, hooks: NewHooks()}
	r.types[t.Name] = reg
	return reg.hooks, nil
}

// Lookup возвращает описание типа.
func (r *Registry) Lookup(name string) (EntityType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.types[name]
	if !ok {
		return EntityType{}, false
	}
	return reg.entityType, true
}

// Hooks возвращает обработчики фаз типа.
func (r *Registry) Hooks(name string) (*Hooks, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.types[name]
	if !ok {
		return nil, false
	}
	return reg.hooks, true
}

// List возвращает типы, отсортированные по имени.
func (r *Registry) List() []EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]EntityType, 0, len(r.types))
	for _, reg := range r.types {
		result = append(result, reg.entityType)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Len возвращает число зарегистрированных типов.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Resolve восстанавливает сущность. Для незарегистрированных типов и типов
// без ResolveFunc возвращается model.EntityRef.
func (r *Registry) Resolve(ctx context.Context, entityType, id string) (model.Entity, error) {
	if r != nil {
		if t, ok := r.Lookup(entityType); ok && t.Resolve != nil {
			entity, err := t.Resolve(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("восстановление %s/%s: %w", entityType, id, err)
			}
			return entity, nil
		}
	}
	return model.EntityRef{Type: entityType, ID: id}, nil
}
