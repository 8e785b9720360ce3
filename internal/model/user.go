package model

import "time"

// User is a registered test-taker or administrator.
type User struct {
	ID           int       `json:"id"`
	LastName     string    `json:"last_name"`
	FirstName    string    `json:"first_name"`
	MiddleName   *string   `json:"middle_name,omitempty"`
	Phone        string    `json:"phone"`
	Faculty      string    `json:"faculty"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// RegisterRequest is the payload for test-taker self-registration.
type RegisterRequest struct {
	LastName   string  `json:"last_name" binding:"required,min=1,max=100"`
	FirstName  string  `json:"first_name" binding:"required,min=1,max=100"`
	MiddleName *string `json:"middle_name" binding:"omitempty,max=100"`
	Phone      string  `json:"phone" binding:"required,phone"`
	Faculty    string  `json:"faculty" binding:"required,max=255"`
}

// LoginRequest is the payload for test-taker authentication.
type LoginRequest struct {
	Phone string `json:"phone" binding:"required,phone"`
}

// TokenResponse is returned after successful registration or login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
