// Package crypto issues and verifies the bearer tokens that carry a caller's
// account address.
package crypto

import (
	"errors"
	"fmt"
	"lc_escrow/pkg/validator"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "lc-escrow"

var ErrInvalidToken = errors.New("invalid token")

type Signer struct {
	secretKey []byte
	now       func() time.Time
	logger    *slog.Logger
}

func NewSigner(secretKey string, logger *slog.Logger) (*Signer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes")
	}
	return &Signer{
		secretKey: []byte(secretKey),
		now:       time.Now,
		logger:    logger,
	}, nil
}

// IssueToken returns an HS256 token whose subject is account.
func (s *Signer) IssueToken(account string, ttl time.Duration) (string, error) {
	if err := validator.ValidateAccount(account); err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    issuer,
		Subject:   account,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(s.secretKey)
}

// VerifyToken checks signature, expiry and issuer and returns the caller
// account from the subject claim.
func (s *Signer) VerifyToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(30*time.Second))
	if err != nil {
		s.logger.Warn("Token verification failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}
	if err := validator.ValidateAccount(claims.Subject); err != nil {
		return "", fmt.Errorf("%w: subject: %v", ErrInvalidToken, err)
	}
	return claims.Subject, nil
}
