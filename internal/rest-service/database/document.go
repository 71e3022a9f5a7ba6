package database

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:(gen_random_uuid())"`
	Filename   string    `gorm:"size:255;not null"`
	Path       string    `gorm:"size:255;not null"`
	OwnerP2PID string    `gorm:"column:owner_p2p_id;size:36;index;not null"`
	Owner      *User     `gorm:"foreignKey:OwnerP2PID;references:P2PID"`
	Size       int64
	CreatedAt  time.Time `gorm:"index"`
}
