package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/digiurban/billing/internal/clock"
	"github.com/digiurban/billing/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 12 * time.Hour

var (
	ErrMissingSecret = errors.New("auth_secret_not_configured")
	ErrInvalidToken  = errors.New("invalid_token")
	ErrMissingRole   = errors.New("token_missing_role")
)

// Claims carries the operator identity signed into a bearer token.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the verified caller of an API request.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

// Subject is the casbin subject for the principal.
func (p Principal) Subject() string {
	return "user:" + p.UserID
}

type TokenService struct {
	secret []byte
	issuer string
	clock  clock.Clock
}

func NewTokenService(cfg config.Config, clk clock.Clock) (*TokenService, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &TokenService{
		secret: []byte(secret),
		issuer: cfg.AuthJWTIssuer,
		clock:  clk,
	}, nil
}

// Issue signs an HS256 token for the given operator.
func (s *TokenService) Issue(p Principal, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	if strings.TrimSpace(p.Role) == "" {
		return "", time.Time{}, ErrMissingRole
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := s.clock.Now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		Role:  p.Role,
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses a bearer token and returns its principal.
func (s *TokenService) Verify(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Principal{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Role) == "" {
		return Principal{}, ErrMissingRole
	}

	return Principal{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}
