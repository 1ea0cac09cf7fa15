package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const guestTokenBytes = 32

// GuestTokens issues opaque guest tokens and keeps only their bcrypt hash.
type GuestTokens struct {
	cost int
}

// NewGuestTokens creates an issuer hashing with the given bcrypt cost.
func NewGuestTokens(cost int) *GuestTokens {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &GuestTokens{cost: cost}
}

// Issue returns a new token and the hash to store for it.
func (g *GuestTokens) Issue() (string, string, error) {
	buf := make([]byte, guestTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate guest token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), g.cost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash guest token: %w", err)
	}
	return token, string(hash), nil
}

// Matches reports whether token was issued for hash.
func (g *GuestTokens) Matches(hash, token string) bool {
	if hash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
