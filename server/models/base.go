package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DEFAULT_LIST_LIMIT = 10
	MAX_LIST_LIMIT     = 1000
)

type BaseModel struct {
	ID        string    `json:"id" gorm:"primarykey;type:varchar(36)"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EnsureID assigns a fresh id to records that don't have one yet.
func (m *BaseModel) EnsureID() {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
}

// Touch stamps CreatedAt (first time only) & UpdatedAt.
func (m *BaseModel) Touch(now time.Time) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	m.EnsureID()
	return nil
}

// ClampLimit returns a list size within (0, MAX_LIST_LIMIT], falling back to 'fallback'.
func ClampLimit(limit, fallback int) int {
	switch {
	case limit <= 0:
		return fallback
	case limit > MAX_LIST_LIMIT:
		return MAX_LIST_LIMIT
	}
	return limit
}
