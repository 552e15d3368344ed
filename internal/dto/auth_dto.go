package dto

import "github.com/noah-isme/gema-evalsync/internal/models"

// LoginRequest is used by both /auth/login and /auth/register.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name,omitempty"`
}

// AuthResponse returns the session material after a successful login.
type AuthResponse struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}
