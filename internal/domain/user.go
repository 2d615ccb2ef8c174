package domain

import "time"

// User is a registered account. PasswordHash holds the bcrypt output only.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}
