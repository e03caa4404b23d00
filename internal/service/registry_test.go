package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bigkaa/goarttag/internal/domain/model"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	h1, err := r.Register(EntityType{Name: "equipment", Label: "Оборудование"})
	if err != nil {
		t.Fatalf("Register() ошибка: %v", err)
	}
	h2, err := r.Register(EntityType{Name: "equipment", Label: "Оборудование"})
	if err != nil {
		t.Fatalf("повторный Register() ошибка: %v", err)
	}
	if h1 != h2 {
		t.Error("повторная регистрация должна вернуть те же Hooks")
	}

	_, err = r.Register(EntityType{Name: "equipment", Label: "Техника"})
	if !errors.Is(err, ErrConflictingRegistration) {
		t.Errorf("Register() ошибка = %v, ожидается ErrConflictingRegistration", err)
	}

	if _, err := r.Register(EntityType{}); !errors.Is(err, ErrValidation) {
		t.Errorf("Register(пустое имя) ошибка = %v, ожидается ErrValidation", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, ожидается 1", r.Len())
	}
}

func TestRegistry_DefaultLabel(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(EntityType{Name: "vehicle"}); err != nil {
		t.Fatalf("Register() ошибка: %v", err)
	}

	et, ok := r.Lookup("vehicle")
	if !ok {
		t.Fatal("Lookup() не нашёл тип")
	}
	if et.Label != "vehicle" {
		t.Errorf("Label = %q, ожидается vehicle", et.Label)
	}
	if _, ok := r.Lookup("unknown"); ok {
		t.Error("Lookup(unknown) должен вернуть false")
	}
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"vehicle", "asset", "equipment"} {
		if _, err := r.Register(EntityType{Name: name}); err != nil {
			t.Fatalf("Register(%s) ошибка: %v", name, err)
		}
	}

	var names []string
	for _, et := range r.List() {
		names = append(names, et.Name)
	}
	if got := strings.Join(names, ","); got != "asset,equipment,vehicle" {
		t.Errorf("List() = %s, ожидается asset,equipment,vehicle", got)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(EntityType{
		Name: "equipment",
		Resolve: func(_ context.Context, id string) (model.Entity, error) {
			if id == "missing" {
				return nil, errors.New("not found")
			}
			return model.BranchEntity{EntityRef: model.EntityRef{Type: "equipment", ID: id}, Branch: "7"}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register() ошибка: %v", err)
	}
	ctx := context.Background()

	e, err := r.Resolve(ctx, "equipment", "1")
	if err != nil {
		t.Fatalf("Resolve() ошибка: %v", err)
	}
	scoped, ok := e.(model.BranchScoped)
	if !ok || scoped.BranchID() != "7" {
		t.Errorf("Resolve() = %+v, ожидается сущность с филиалом 7", e)
	}

	if _, err := r.Resolve(ctx, "equipment", "missing"); err == nil {
		t.Error("Resolve(missing) должен вернуть ошибку")
	}

	e, err = r.Resolve(ctx, "vehicle", "2")
	if err != nil {
		t.Fatalf("Resolve(незарегистрированный) ошибка: %v", err)
	}
	if e != (model.EntityRef{Type: "vehicle", ID: "2"}) {
		t.Errorf("Resolve() = %+v, ожидается EntityRef", e)
	}

	var nilRegistry *Registry
	if _, err := nilRegistry.Resolve(ctx, "equipment", "1"); err != nil {
		t.Errorf("Resolve() на nil-реестре: %v", err)
	}
}

func TestHooks_Run(t *testing.T) {
	h := NewHooks()
	ctx := context.Background()

	var order []string
	h.On(PhaseAfterSave, func(context.Context, model.Entity) error { order = append(order, "a"); return nil })
	h.On(PhaseAfterSave, func(context.Context, model.Entity) error { return errors.New("сбой") })
	h.On(PhaseAfterSave, func(context.Context, model.Entity) error { order = append(order, "c"); return nil })

	err := h.Run(ctx, PhaseAfterSave, model.EntityRef{Type: "equipment", ID: "1"})
	if err == nil || !strings.Contains(err.Error(), "after_save") {
		t.Errorf("Run() ошибка = %v, ожидается ошибка с фазой after_save", err)
	}
	if strings.Join(order, ",") != "a" {
		t.Errorf("вызваны %v, ожидается только [a]", order)
	}

	if err := h.Run(ctx, PhaseBeforeSave, model.EntityRef{}); err != nil {
		t.Errorf("Run() без обработчиков: %v", err)
	}
	if h.Count(PhaseAfterSave) != 3 || h.Count(PhaseAfterDelete) != 0 {
		t.Errorf("Count() = %d/%d, ожидается 3/0", h.Count(PhaseAfterSave), h.Count(PhaseAfterDelete))
	}
}

func TestParsePhase(t *testing.T) {
	for _, s := range []string{"before_save", "after_save", "before_delete", "after_delete"} {
		if p, ok := ParsePhase(s); !ok || string(p) != s {
			t.Errorf("ParsePhase(%q) = %q, %v", s, p, ok)
		}
	}
	if _, ok := ParsePhase("saving"); ok {
		t.Error("ParsePhase(saving) должен вернуть false")
	}
}
