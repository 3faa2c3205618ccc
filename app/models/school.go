package models

import "time"

// School is the organization that owns memberships and payments. Its CRUD
// lives outside this service; the engine only needs the row for referential
// integrity (cascade on school delete).
type School struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(200);not null" json:"name"`
	Email     string    `gorm:"type:varchar(200);default:''" json:"email"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
