package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/mediahaus/studiocrm/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const revokedPrefix = `revoked:`

func (s *CRMService) RegisterPortalAccount(ctx context.Context, clientID int, email, password string) (models.PortalAccount, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.PortalAccount{}, fmt.Errorf("err hashing password: %w", err)
	}
	account, err := s.store.CreatePortalAccount(ctx, models.PortalAccount{
		ClientID:     clientID,
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return models.PortalAccount{}, fmt.Errorf("err creating portal account: %w", err)
	}
	return account, nil
}

// PortalLogin verifies portal credentials and issues an RS256 token.
// Unknown emails and wrong passwords both map to ErrInvalidCredentials so
// the response does not leak which half failed.
func (s *CRMService) PortalLogin(ctx context.Context, email, password string) (models.TokenResponse, error) {
	account, err := s.store.PortalAccountByEmail(ctx, email)
	if err != nil {
		return models.TokenResponse{}, models.ErrInvalidCredentials
	}
	if err = bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return models.TokenResponse{}, models.ErrInvalidCredentials
	}
	now := time.Now()
	claims := models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
		AccountID: account.ID,
		ClientID:  account.ClientID,
		Role:      models.RolePortal,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.signKey)
	if err != nil {
		return models.TokenResponse{}, fmt.Errorf("err signing token: %w", err)
	}
	return models.TokenResponse{Token: token}, nil
}

// PortalLogout revokes the token by caching its id until expiry. The
// revocation list lives in the injected cache store, so its sharing
// semantics follow the wiring (redis is cross-process, memory is not).
func (s *CRMService) PortalLogout(ctx context.Context, claims *models.Claims) error {
	if claims == nil || claims.ID == "" {
		return fmt.Errorf("missing token id")
	}
	ttl := s.tokenTTL
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.cache.Set(ctx, revokedPrefix+claims.ID, "1", ttl); err != nil {
		return fmt.Errorf("err revoking token: %w", err)
	}
	return nil
}

func (s *CRMService) TokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, found, err := s.cache.Get(ctx, revokedPrefix+tokenID)
	if err != nil {
		return false, fmt.Errorf("err checking revocation: %w", err)
	}
	return found, nil
}
