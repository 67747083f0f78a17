package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrInvalidToken   = errors.New("invalid token")
)

const secretBytes = 24

// Tokens looks up the bcrypt hash stored for a profile. An empty hash means
// the profile does not exist.
type Tokens interface {
	TokenHash(profileID int64) (string, error)
}

// NewSecret returns a random secret and its bcrypt hash.
func NewSecret() (secret, hash string, err error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("read random: %w", err)
	}
	secret = base64.RawURLEncoding.EncodeToString(buf)

	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash secret: %w", err)
	}
	return secret, string(h), nil
}

// FormatToken joins a profile id and secret into a bearer token.
func FormatToken(profileID int64, secret string) string {
	return strconv.FormatInt(profileID, 10) + "." + secret
}

// ParseToken splits a bearer token into profile id and secret.
func ParseToken(token string) (int64, string, error) {
	idPart, secret, ok := strings.Cut(token, ".")
	if !ok || secret == "" {
		return 0, "", ErrMalformedToken
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", ErrMalformedToken
	}
	return id, secret, nil
}

// Verify checks token against the stored hash and returns the profile id.
func Verify(tokens Tokens, token string) (int64, error) {
	id, secret, err := ParseToken(token)
	if err != nil {
		return 0, err
	}
	hash, err := tokens.TokenHash(id)
	if err != nil {
		return 0, fmt.Errorf("look up token: %w", err)
	}
	if hash == "" {
		return 0, ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}
