package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("token invalid")
	ErrTokenMalformed = errors.New("token claims malformed")
)

// Claims is the signed identity credential: user id, privilege level, a
// unique nonce and an expiry. It is verified cryptographically, never
// looked up in storage.
type Claims struct {
	UID   uint64 `json:"uid"`
	Level int    `json:"level"`
	Nonce string `json:"uuid"`
	jwt.RegisteredClaims
}

func SignToken(uid uint64, level int, secret string, ttl time.Duration) (string, error) {
	claims := Claims{
		UID:   uid,
		Level: level,
		Nonce: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies the signature and expiry and returns (uid, level).
func ParseToken(token, secret string) (uint64, int, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return 0, 0, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenMalformed):
			return 0, 0, ErrTokenInvalid
		default:
			return 0, 0, ErrTokenMalformed
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UID == 0 {
		return 0, 0, ErrTokenMalformed
	}
	return claims.UID, claims.Level, nil
}
