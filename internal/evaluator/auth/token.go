package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"neurojudge/internal/common/http/middleware"
	appErr "neurojudge/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"

	accessTokenType = "access"
)

type tokenClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 operator tokens for the admin API.
type TokenService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenService(secret, issuer string) *TokenService {
	return &TokenService{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token naming operator. A zero ttl produces a token without expiry.
func (s *TokenService) Issue(operator, role string, ttl time.Duration) (string, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return "", appErr.ValidationError("operator", "required")
	}
	if len(s.secret) == 0 {
		return "", appErr.ConfigError("server.auth.secret", "required to issue tokens")
	}
	if role == "" {
		role = RoleAdmin
	}
	now := s.now()
	claims := tokenClaims{
		Role:      role,
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			Subject:  operator,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "sign token failed")
	}
	return signed, nil
}

// Authenticate implements middleware.Authenticator.
func (s *TokenService) Authenticate(_ context.Context, raw string) (middleware.Principal, error) {
	if raw == "" {
		return middleware.Principal{}, appErr.New(appErr.TokenInvalid)
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		return middleware.Principal{}, err
	}
	return middleware.Principal{Name: claims.Subject, Role: claims.Role}, nil
}

func (s *TokenService) parseToken(raw string) (*tokenClaims, error) {
	if len(s.secret) == 0 {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErr.New(appErr.TokenExpired)
		}
		return nil, appErr.New(appErr.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	if claims.TokenType != accessTokenType || claims.Subject == "" {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	return claims, nil
}
