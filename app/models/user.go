package models

import "time"

// User is the slim account reference the settlement core needs: the fraud
// scorer reads account age, payment initialization reads the payer contact.
// Authentication and profile management live outside this core.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"type:varchar(200);not null;uniqueIndex" json:"email"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
