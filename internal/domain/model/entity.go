package model

// Entity — сущность, которой может быть присвоен тег.
// Реализуется доменными объектами внешнего слоя персистентности.
type Entity interface {
	// EntityType возвращает зарегистрированное имя типа сущности.
	EntityType() string
	// EntityID возвращает идентификатор сохранённой сущности.
	EntityID() string
}

// BranchScoped — сущность, привязанная к филиалу.
// Требуется для формата branch_based.
type BranchScoped interface {
	BranchID() string
}

// EntityRef — ссылка на сущность по типу и идентификатору.
type EntityRef struct {
	Type string `json:"type" yaml:"type"`
	ID   string `json:"id" yaml:"id"`
}

// EntityType реализует Entity.
func (r EntityRef) EntityType() string { return r.Type }

// EntityID реализует Entity.
func (r EntityRef) EntityID() string { return r.ID }

// BranchEntity — ссылка на сущность с филиалом.
type BranchEntity struct {
	EntityRef
	Branch string `json:"branch" yaml:"branch"`
}

// BranchID реализует BranchScoped.
func (b BranchEntity) BranchID() string { return b.Branch }
