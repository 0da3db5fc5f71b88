// Package auth validates bearer tokens and turns them into caller context.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	appctx "seqnum/internal/core/context"
	"seqnum/internal/core/id"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	Leeway         time.Duration
	Clock          clockwork.Clock // nil means the real clock
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:         secret,
		Issuer:         "seqnum",
		AccessTokenTTL: 15 * time.Minute,
		Leeway:         30 * time.Second,
	}
}

// Claims carry the caller fields a sequence call resolves against.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string   `json:"uid"`
	CompanyID string   `json:"cid,omitempty"`
	Timezone  string   `json:"tz,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

// JWTService signs and validates HS256 tokens.
type JWTService struct {
	config JWTConfig
	clock  clockwork.Clock
	parser *jwt.Parser
}

func NewJWTService(config JWTConfig) *JWTService {
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &JWTService{
		config: config,
		clock:  clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(config.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(config.Leeway),
			jwt.WithTimeFunc(clock.Now),
		),
	}
}

// GenerateAccessToken signs a token carrying caller.
func (s *JWTService) GenerateAccessToken(caller appctx.CallerContext) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.config.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.New().String(),
			Issuer:    s.config.Issuer,
			Subject:   caller.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:    caller.UserID,
		CompanyID: caller.CompanyID,
		Timezone:  caller.Timezone,
		Roles:     caller.Roles,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken checks signature, issuer and expiry and returns the caller.
func (s *JWTService) ValidateToken(tokenString string) (*appctx.CallerContext, error) {
	var claims Claims
	_, err := s.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.UserID == "" {
		return nil, errors.New("token carries no user id")
	}

	return &appctx.CallerContext{
		UserID:    claims.UserID,
		CompanyID: claims.CompanyID,
		Timezone:  claims.Timezone,
		Roles:     claims.Roles,
	}, nil
}
