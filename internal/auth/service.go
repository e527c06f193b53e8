package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vantage-market/vantage-market/internal/authz"
	"github.com/vantage-market/vantage-market/internal/shared"
)

// tokenPrefix marks vantage API tokens so they are recognizable in
// secret scanners and log redaction rules.
const tokenPrefix = "vmk_"

// Service wraps token authentication business rules.
type Service struct {
	repo   Repository
	logger *slog.Logger

	// Now is swappable in tests.
	Now func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, Now: time.Now}
}

// IssuedToken carries the one-time raw credential alongside the stored record.
type IssuedToken struct {
	Token APIToken
	Raw   string
}

// Issue mints a token for a principal. The raw value is returned exactly
// once; only its bcrypt hash is persisted.
func (s *Service) Issue(ctx context.Context, principalID int64, name string, ttl time.Duration) (IssuedToken, error) {
	if _, err := s.repo.FindPrincipal(ctx, principalID); err != nil {
		return IssuedToken{}, fmt.Errorf("issue token: %w", err)
	}

	secret := make([]byte, 24)
	if _, err := rand.Read(secret); err != nil {
		return IssuedToken{}, fmt.Errorf("issue token: %w", err)
	}
	secretHex := hex.EncodeToString(secret)

	hash, err := bcrypt.GenerateFromPassword([]byte(secretHex), bcrypt.DefaultCost)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("issue token: %w", err)
	}

	now := s.Now().UTC()
	token := APIToken{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		Name:        name,
		SecretHash:  string(hash),
		IsActive:    true,
		CreatedAt:   now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		token.ExpiresAt = &expires
	}
	if err := s.repo.CreateToken(ctx, token); err != nil {
		return IssuedToken{}, fmt.Errorf("issue token: %w", err)
	}

	return IssuedToken{
		Token: token,
		Raw:   tokenPrefix + token.ID + "." + secretHex,
	}, nil
}

// Revoke permanently deactivates a token.
func (s *Service) Revoke(ctx context.Context, id string) error {
	return s.repo.RevokeToken(ctx, id)
}

// Authenticate validates a raw bearer token and resolves its principal.
// Every failure mode maps to the same error so callers cannot distinguish
// an unknown token from a revoked one.
func (s *Service) Authenticate(ctx context.Context, raw string) (authz.Principal, error) {
	id, secret, ok := splitToken(raw)
	if !ok {
		return authz.Principal{}, shared.ErrAuthenticationMissing
	}

	token, err := s.repo.FindToken(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return authz.Principal{}, shared.ErrAuthenticationMissing
		}
		return authz.Principal{}, fmt.Errorf("authenticate: %w", err)
	}
	if !token.IsActive || token.Expired(s.Now()) {
		return authz.Principal{}, shared.ErrAuthenticationMissing
	}
	if err := bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)); err != nil {
		return authz.Principal{}, shared.ErrAuthenticationMissing
	}

	principal, err := s.repo.FindPrincipal(ctx, token.PrincipalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return authz.Principal{}, shared.ErrAuthenticationMissing
		}
		return authz.Principal{}, fmt.Errorf("authenticate: %w", err)
	}

	if err := s.repo.TouchToken(ctx, token.ID, s.Now()); err != nil {
		// Accounting only; the credential already checked out.
		s.logger.Warn("touch token", slog.String("token_id", token.ID), slog.Any("error", err))
	}
	return principal, nil
}

func splitToken(raw string) (id, secret string, ok bool) {
	body, found := strings.CutPrefix(raw, tokenPrefix)
	if !found {
		return "", "", false
	}
	id, secret, found = strings.Cut(body, ".")
	if !found || id == "" || secret == "" {
		return "", "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", "", false
	}
	return id, secret, true
}
