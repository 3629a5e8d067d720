package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// defaultTTLMinutes applies when GenerateAccessToken is given no TTL.
const defaultTTLMinutes = 15

// CustomClaims extends JWT standard claims with State Store fields.
type CustomClaims struct {
	jwt.RegisteredClaims
	Role  Role     `json:"role"`
	Rooms []string `json:"rooms,omitempty"`
}

// CanAccessRoom reports whether the token may be used against roomID.
// An empty room list grants every room.
func (c *CustomClaims) CanAccessRoom(roomID string) bool {
	if len(c.Rooms) == 0 {
		return true
	}
	for _, r := range c.Rooms {
		if r == roomID {
			return true
		}
	}
	return false
}

// Authorize checks that the claims grant perm in roomID.
func (c *CustomClaims) Authorize(roomID string, perm Permission) error {
	if !c.CanAccessRoom(roomID) {
		return ErrRoomDenied
	}
	if !HasPermission(c.Role, perm) {
		return fmt.Errorf("%w: %s requires %s", ErrForbidden, c.Role, perm)
	}
	return nil
}

// GenerateAccessToken creates a signed JWT for subject.
//
// Parameters:
//   - subject: Who the token identifies (panel, controller, operator)
//   - role: Authorisation tier
//   - rooms: Rooms the token is valid for; nil for all
//   - secret: HS256 signing secret
//   - ttlMinutes: Lifetime; zero or negative uses 15 minutes
func GenerateAccessToken(subject string, role Role, rooms []string, secret string, ttlMinutes int) (string, error) {
	if !IsValidRole(role) {
		return "", fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, role)
	}
	if ttlMinutes <= 0 {
		ttlMinutes = defaultTTLMinutes
	}

	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
			ID:        uuid.NewString(),
		},
		Role:  role,
		Rooms: rooms,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken validates and parses a JWT access token, returning the custom claims.
// It checks the signature, expiry, and required fields.
func ParseToken(tokenString, secret string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: invalid role %q", ErrTokenInvalid, claims.Role)
	}

	return claims, nil
}
