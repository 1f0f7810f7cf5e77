package service

import (
	"context"
	"crypto/subtle"
	"time"

	"content-fulfillment-service/internal/core/ports"
	"content-fulfillment-service/pkg/apperror"

	"github.com/rs/zerolog"
)

// AuthServiceImpl implements ports.AuthService for the single configured
// operator account. The password is stored as an Argon2id hash in config.
type AuthServiceImpl struct {
	username     string
	passwordHash string
	hashSvc      ports.HashService
	tokenSvc     ports.TokenService
	log          zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(username, passwordHash string, hashSvc ports.HashService, tokenSvc ports.TokenService, log zerolog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		username:     username,
		passwordHash: passwordHash,
		hashSvc:      hashSvc,
		tokenSvc:     tokenSvc,
		log:          log,
	}
}

// Login verifies operator credentials and issues a session token.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	usernameOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1

	// Verify the hash even on a wrong username to keep timing uniform.
	passwordOK, err := s.hashSvc.Verify(password, s.passwordHash)
	if err != nil {
		s.log.Warn().Err(err).Msg("password hash verification failed")
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	if !usernameOK || !passwordOK {
		s.log.Warn().Str("username", username).Msg("rejected operator login")
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiresAt, err := s.tokenSvc.Generate(username)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(err)
	}

	s.log.Info().Str("username", username).Msg("operator logged in")
	return token, expiresAt, nil
}
