// hooks.go — фазы жизненного цикла сущности и их обработчики.
// Слой персистентности вызывает Run в нужной фазе; обработчики регистрируются явно.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/bigkaa/goarttag/internal/domain/model"
)

// Phase — фаза жизненного цикла сущности.
type Phase string

const (
	PhaseBeforeSave   Phase = "before_save"
	PhaseAfterSave    Phase = "after_save"
	PhaseBeforeDelete Phase = "before_delete"
	PhaseAfterDelete  Phase = "after_delete"
)

// ParsePhase возвращает фазу по имени.
func ParsePhase(s string) (Phase, bool) {
	switch p := Phase(s); p {
	case PhaseBeforeSave, PhaseAfterSave, PhaseBeforeDelete, PhaseAfterDelete:
		return p, true
	}
	return "", false
}

// HookFunc — обработчик фазы.
type HookFunc func(ctx context.Context, entity model.Entity) error

// Hooks — обработчики фаз одного типа сущности.
type Hooks struct {
	mu  sync.RWMutex
	fns map[Phase][]HookFunc
}

// NewHooks создаёт пустой набор обработчиков.
func NewHooks() *Hooks {
	return &Hooks{fns: make(map[Phase][]HookFunc)}
}

// On добавляет обработчик фазы.
func (h *Hooks) On(phase Phase, fn HookFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns[phase] = append(h.fns[phase], fn)
}

// Run вызывает обработчики фазы по порядку и останавливается на первой ошибке.
func (h *Hooks) Run(ctx context.Context, phase Phase, entity model.Entity) error {
	h.mu.RLock()
	fns := append([]HookFunc(nil), h.fns[phase]...)
	h.mu.RUnlock()

	for _, fn := range fns {
		if err := fn(ctx, entity); err != nil {
			return fmt.Errorf("фаза %s: %w", phase, err)
		}
	}
	return nil
}

// Count возвращает число обработчиков фазы.
func (h *Hooks) Count(phase Phase) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.fns[phase])
}
