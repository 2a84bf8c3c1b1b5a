package models

import (
	"time"
)

// Account is the slice of the account record the authentication core needs
type Account struct {
	ID                string
	Username          string
	Email             string
	PasswordHash      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PasswordChangedAt *time.Time
}

// Identity is what a successful authentication hands back to the caller
type Identity struct {
	AccountID string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
}

// IdentityOf projects an account onto its public identity
func IdentityOf(a *Account) *Identity {
	return &Identity{
		AccountID: a.ID,
		Username:  a.Username,
		Email:     a.Email,
	}
}
