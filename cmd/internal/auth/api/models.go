package authapi

import (
	"time"

	"tdp/cmd/identity"
	"tdp/cmd/internal/auth/session"
)

type registerRequest struct {
	Email       string  `json:"email" validate:"required,max=254"`
	Password    string  `json:"password" validate:"required"`
	DisplayName *string `json:"displayName,omitempty" validate:"omitempty,max=100"`
}

type loginRequest struct {
	Email      string  `json:"email" validate:"required,max=254"`
	Password   string  `json:"password" validate:"required"`
	DeviceInfo *string `json:"deviceInfo,omitempty"`
}

type refreshRequest struct {
	RefreshToken string  `json:"refreshToken" validate:"required"`
	DeviceInfo   *string `json:"deviceInfo,omitempty"`
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type registerResponse struct {
	UserID string `json:"userId"`
}

type tokensResponse struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"displayName,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

type meResponse struct {
	userResponse
	Permissions []string `json:"permissions"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
	}
}

func toTokensResponse(t session.Tokens) tokensResponse {
	return tokensResponse{
		AccessToken:      t.AccessToken,
		RefreshToken:     t.RefreshToken,
		ExpiresInSeconds: t.ExpiresIn,
	}
}
