package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:(gen_random_uuid())"`
	Username  string    `gorm:"size:100;uniqueIndex;not null"`
	Email     string    `gorm:"size:100;uniqueIndex;not null"`
	Password  string    `gorm:"size:100;not null"`
	P2PID     string    `gorm:"column:p2p_id;size:36;uniqueIndex;not null"`
	IsAdmin   bool      `gorm:"not null;default:false"`
	CreatedAt time.Time
}

// BeforeCreate assigns the peer id once; it is never rewritten afterwards.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.P2PID == "" {
		u.P2PID = uuid.NewString()
	}
	return nil
}
