package accounts

import "time"

type Account struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
}

// ===== Requests =====

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Account   Account   `json:"account"`
}

type ProfileUpdate struct {
	Name     *string `json:"name,omitempty" binding:"omitempty,max=255"`
	Email    *string `json:"email,omitempty" binding:"omitempty,email,max=255"`
	Password *string `json:"password,omitempty" binding:"omitempty,min=8,max=72"`
}

type CreateRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Role     string `json:"role" binding:"omitempty,oneof=user admin superadmin"`
}

type UpdateRequest struct {
	Name     *string `json:"name,omitempty" binding:"omitempty,max=255"`
	Email    *string `json:"email,omitempty" binding:"omitempty,email,max=255"`
	Role     *string `json:"role,omitempty" binding:"omitempty,oneof=user admin superadmin"`
	Disabled *bool   `json:"disabled,omitempty"`
}

type ListResult struct {
	Items      []Account `json:"items"`
	Total      int64     `json:"total"`
	NextOffset int       `json:"next_offset"`
}
