// Пакет events — доменные события жизненного цикла тегов
// и их доставка подписчикам внутри процесса.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goarttag/internal/domain/model"
)

// Kind — тип события.
type Kind string

const (
	KindTagCreated       Kind = "tag.created"
	KindTagUpdated       Kind = "tag.updated"
	KindTagDeleted       Kind = "tag.deleted"
	KindGenerationFailed Kind = "tag.generation_failed"
)

// Event — общее для всех событий.
type Event interface {
	Kind() Kind
	Metadata() Meta
}

// Meta — идентификатор и время события.
type Meta struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurredAt"`
}

func newMeta() Meta {
	return Meta{ID: uuid.NewString(), OccurredAt: time.Now().UTC()}
}

// TagCreated — тег создан и сохранён.
type TagCreated struct {
	Meta   Meta             `json:"meta"`
	Tag    *model.Tag       `json:"tag"`
	Owner  model.EntityRef  `json:"owner"`
	Config *model.TagConfig `json:"config,omitempty"`
}

// NewTagCreated создаёт событие создания тега. cfg может быть nil (резервный тег).
func NewTagCreated(tag *model.Tag, cfg *model.TagConfig) *TagCreated {
	return &TagCreated{Meta: newMeta(), Tag: tag, Owner: tag.Owner(), Config: cfg}
}

func (e *TagCreated) Kind() Kind { return KindTagCreated }
func (e *TagCreated) Metadata() Meta { return e.Meta }

// TagUpdated — значение тега изменено.
type TagUpdated struct {
	Meta     Meta            `json:"meta"`
	Tag      *model.Tag      `json:"tag"`
	Owner    model.EntityRef `json:"owner"`
	OldValue string          `json:"oldValue"`
}

// NewTagUpdated создаёт событие изменения тега.
func NewTagUpdated(tag *model.Tag, oldValue string) *TagUpdated {
	return &TagUpdated{Meta: newMeta(), Tag: tag, Owner: tag.Owner(), OldValue: oldValue}
}

func (e *TagUpdated) Kind() Kind { return KindTagUpdated }
func (e *TagUpdated) Metadata() Meta { return e.Meta }

// TagDeleted — тег удалён.
type TagDeleted struct {
	Meta      Meta   `json:"meta"`
	TagID     int64  `json:"tagId"`
	TagValue  string `json:"tagValue"`
	OwnerType string `json:"ownerType"`
	OwnerID   string `json:"ownerId"`
}

// NewTagDeleted создаёт событие удаления по удалённой записи.
func NewTagDeleted(tag *model.Tag) *TagDeleted {
	return &TagDeleted{
		Meta:      newMeta(),
		TagID:     tag.ID,
		TagValue:  tag.Value,
		OwnerType: tag.OwnerType,
		OwnerID:   tag.OwnerID,
	}
}

func (e *TagDeleted) Kind() Kind { return KindTagDeleted }
func (e *TagDeleted) Metadata() Meta { return e.Meta }

// GenerationFailed — генерация не удалась, владельцу выдан резервный тег
// (или ошибка проброшена в debug-режиме, тогда FallbackValue пуст).
type GenerationFailed struct {
	Meta          Meta            `json:"meta"`
	Owner         model.EntityRef `json:"owner"`
	Error         string          `json:"error"`
	FallbackValue string          `json:"fallbackValue,omitempty"`
}

// NewGenerationFailed создаёт событие ошибки генерации.
func NewGenerationFailed(owner model.EntityRef, err error, fallback string) *GenerationFailed {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &GenerationFailed{Meta: newMeta(), Owner: owner, Error: msg, FallbackValue: fallback}
}

func (e *GenerationFailed) Kind() Kind { return KindGenerationFailed }
func (e *GenerationFailed) Metadata() Meta { return e.Meta }
