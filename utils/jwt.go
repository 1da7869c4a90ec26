package utils

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "linguachat"

func GenerateJWT(secret, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"uname": username,
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
		"iss":   issuer,
		"sub":   username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseJWT validates tokenStr and returns the username it was issued for.
// A "Bearer " prefix is accepted.
func ParseJWT(secret, tokenStr string) (string, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenStr), "Bearer "))
	if tokenStr == "" {
		return "", errors.New("token is empty")
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())

	if err != nil {
		return "", errors.New("invalid token")
	}

	if !token.Valid {
		return "", errors.New("token is invalid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	uname, ok := claims["uname"].(string)
	if !ok || uname == "" {
		return "", errors.New("bad claims")
	}

	return uname, nil
}
