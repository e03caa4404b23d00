package model

import "time"

// Tag — тег, присвоенный экземпляру сущности.
// Хранится в таблице tags; пара (OwnerType, OwnerID) уникальна.
type Tag struct {
	// ID — суррогатный ключ (BIGSERIAL)
	ID int64 `json:"id" yaml:"id"`
	// Value — значение тега, например "EQ-001"
	Value string `json:"value" yaml:"value"`
	// OwnerType — тип сущности-владельца
	OwnerType string `json:"ownerType" yaml:"owner_type"`
	// OwnerID — идентификатор сущности-владельца
	OwnerID string `json:"ownerId" yaml:"owner_id"`
	// CreatedAt — время создания записи
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at"`
}

// Owner возвращает ссылку на владельца тега.
func (t *Tag) Owner() EntityRef {
	return EntityRef{Type: t.OwnerType, ID: t.OwnerID}
}
