package service

import (
	"fmt"
	"time"

	"hexanote-sync-server/internal/domain"
	"hexanote-sync-server/pkg/hash"
	"hexanote-sync-server/pkg/jwt"
)

// OwnerID is the subject of every token; the server has a single user.
const OwnerID = "owner"

type AuthService struct {
	passwordHash  string
	jwtSecret     string
	jwtExpiration time.Duration
}

// NewAuthService hashes password once so that logins compare against bcrypt
// rather than the plain configured value.
func NewAuthService(password, jwtSecret string, jwtExp time.Duration) (*AuthService, error) {
	hashed, err := hash.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return &AuthService{
		passwordHash:  hashed,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExp,
	}, nil
}

func (s *AuthService) Login(req *domain.LoginRequest) (*domain.LoginResponse, error) {
	if !hash.Matches(s.passwordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	accessToken, err := jwt.GenerateToken(OwnerID, s.jwtExpiration, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &domain.LoginResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.jwtExpiration.Seconds()),
	}, nil
}

func (s *AuthService) ValidateToken(token string) (*jwt.Claims, error) {
	claims, err := jwt.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// IssueDeviceToken returns a token bound to deviceID, handed out when a device
// registers so it can open its live channel without resending the password.
func (s *AuthService) IssueDeviceToken(deviceID string) (string, error) {
	token, err := jwt.GenerateDeviceToken(OwnerID, deviceID, s.jwtExpiration, s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate device token: %w", err)
	}
	return token, nil
}
