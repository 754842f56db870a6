package models

import (
	"time"
)

// User represents a registered account. The user ID is the participant ID
// used inside events.
type User struct {
	// ID is the handle chosen at registration (unique).
	ID string

	// DisplayName is the default participant display name.
	DisplayName string

	// PasswordHash is the bcrypt hash of the password.
	PasswordHash string

	// WalletAddress is the default TON address copied into events on join.
	WalletAddress string

	CreatedAt int64
	UpdatedAt int64
}

// NewUser builds a user with creation timestamps set.
func NewUser(id, displayName, passwordHash string) *User {
	now := time.Now().UnixMilli()
	return &User{
		ID:           id,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
