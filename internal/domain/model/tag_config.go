package model

import "time"

// Format — стратегия генерации тегов.
type Format string

const (
	// FormatSequential — строго возрастающая нумерация через атомарный счётчик.
	FormatSequential Format = "sequential"
	// FormatRandom — префикс + unix timestamp, без блокировок.
	FormatRandom Format = "random"
	// FormatBranchBased — нумерация в разрезе филиала сущности.
	FormatBranchBased Format = "branch_based"
)

// Значения по умолчанию для новой конфигурации.
const (
	DefaultSeparator     = "-"
	DefaultPaddingLength = 3
)

// IsValid проверяет, что формат входит в перечисление.
func (f Format) IsValid() bool {
	switch f {
	case FormatSequential, FormatRandom, FormatBranchBased:
		return true
	}
	return false
}

// Formats возвращает все допустимые форматы.
func Formats() []Format {
	return []Format{FormatSequential, FormatRandom, FormatBranchBased}
}

// TagConfig — настройки генерации тегов для одного типа сущностей.
// Хранится в таблице tag_configs, одна строка на entity_type.
type TagConfig struct {
	// ID — UUID записи
	ID string `json:"id" yaml:"id"`
	// EntityType — тип сущности-владельца (уникален)
	EntityType string `json:"entityType" yaml:"entity_type"`
	// Prefix — префикс тега (например, "EQ")
	Prefix string `json:"prefix" yaml:"prefix"`
	// Separator — разделитель между частями тега
	Separator string `json:"separator" yaml:"separator"`
	// Format — стратегия генерации
	Format Format `json:"format" yaml:"format"`
	// AutoGenerate — генерировать тег автоматически при сохранении сущности
	AutoGenerate bool `json:"autoGenerate" yaml:"auto_generate"`
	// CurrentNumber — последний выданный номер (только растёт)
	CurrentNumber uint64 `json:"currentNumber" yaml:"current_number"`
	// PaddingLength — количество цифр с ведущими нулями
	PaddingLength int `json:"paddingLength" yaml:"padding_length"`
	// Description — произвольное описание (может быть nil)
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
	// CreatedAt — время создания записи
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at"`
}

// Clone возвращает независимую копию конфигурации.
func (c *TagConfig) Clone() *TagConfig {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Description != nil {
		d := *c.Description
		cp.Description = &d
	}
	return &cp
}
