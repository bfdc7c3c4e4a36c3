package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UUIDModel is an embeddable primary key generated client-side, so the row
// identity is known before the INSERT runs. It carries no soft-delete column:
// deleting a row removes it.
type UUIDModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// BeforeCreate generates a UUID if not already set.
func (b *UUIDModel) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
