package domain

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:255;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:512;not null" json:"-"`
	Roles        []string  `gorm:"serializer:json" json:"roles"`
	Permissions  []string  `gorm:"serializer:json" json:"permissions"`
	Active       bool      `gorm:"default:true" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
