package models

import (
	"time"
)

type User struct {
	ID        int       `json:"id" db:"id"`
	LastName  string    `json:"lastName" db:"last_name"`
	FirstName string    `json:"firstName" db:"first_name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	Role      string    `json:"role" db:"role"`
	ChatID    *int64    `json:"chatId" db:"chat_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type UserRequest struct {
	LastName  *string `json:"lastName"`
	FirstName *string `json:"firstName"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Role      *string `json:"role"`
	ChatID    *int64  `json:"chatId"`
}

// PortalAccount is a client-facing login, separate from team users.
type PortalAccount struct {
	ID           int       `json:"id" db:"id"`
	ClientID     int       `json:"clientId" db:"client_id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
