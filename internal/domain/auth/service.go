package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"parkcore/internal/core/apperror"
	"parkcore/pkg/logger"
)

// Service verifies operator credentials and issues access tokens.
// Operators are provisioned through configuration as name -> bcrypt hash;
// there is no self-service registration.
type Service struct {
	credentials map[string]string
	jwtService  *JWTService
}

// NewService creates an auth service over a static credential set.
func NewService(credentials map[string]string, jwtService *JWTService) *Service {
	return &Service{
		credentials: credentials,
		jwtService:  jwtService,
	}
}

// dummyHash is a throwaway bcrypt digest compared against when the
// operator is unknown.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// HashPassword produces a bcrypt hash for seeding operator credentials.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Login verifies the operator's password and returns a signed token.
func (s *Service) Login(ctx context.Context, operator, password string) (string, time.Time, error) {
	hash, ok := s.credentials[operator]
	if !ok {
		// Burn a comparison anyway so unknown operators take the same time
		// as a wrong password.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", time.Time{}, apperror.NewUnauthorized("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		logger.Warn(ctx, "failed login attempt", "operator", operator)
		return "", time.Time{}, apperror.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := s.jwtService.GenerateAccessToken(operator)
	if err != nil {
		return "", time.Time{}, apperror.NewInternal(err)
	}

	logger.Info(ctx, "operator logged in", "operator", operator)
	return token, expiresAt, nil
}
