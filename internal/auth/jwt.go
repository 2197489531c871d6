// Package auth issues and checks the bearer tokens used by admin clients
// and RFID devices.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"tapntrack/internal/access"
	"tapntrack/internal/model"
)

// RoleDevice is the role carried by RFID reader tokens.
const RoleDevice = "DEVICE"

// Token kinds.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	RefreshID    string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// Identity is what a token vouches for.
type Identity struct {
	Subject string
	Role    string
	Email   string
}

// Claims represents JWT payload.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	Kind  string `json:"kind"`
	jwt.RegisteredClaims
}

// Caller maps user claims onto an access caller.
func (c Claims) Caller() access.Caller {
	role, _ := model.ParseRole(c.Role)
	return access.Caller{ID: c.Subject, Role: role}
}

// Issue issues signed access and refresh tokens.
func Issue(id Identity, issuer, key string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	now := time.Now()
	accessExp := now.Add(accessTTL)
	refreshExp := now.Add(refreshTTL)
	refreshID := uuid.NewString()

	claims := func(kind, jti string, exp time.Time) Claims {
		return Claims{
			Role:  id.Role,
			Email: id.Email,
			Kind:  kind,
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        jti,
				Issuer:    issuer,
				Subject:   id.Subject,
				ExpiresAt: jwt.NewNumericDate(exp),
				IssuedAt:  jwt.NewNumericDate(now),
			},
		}
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims(KindAccess, "", accessExp)).SignedString([]byte(key))
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims(KindRefresh, refreshID, refreshExp)).SignedString([]byte(key))
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		RefreshID:    refreshID,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}

// ParseKind is Parse restricted to one token kind.
func ParseKind(tokenStr, key, issuer, kind string) (Claims, error) {
	claims, err := Parse(tokenStr, key, issuer)
	if err != nil {
		return Claims{}, err
	}
	if claims.Kind != kind {
		return Claims{}, errors.New("wrong token kind")
	}
	return claims, nil
}
