// Package token, bearer token'ı imza doğrulamadan inceler.
//
// Token opak kabul edilir: login akışı dışarıda, burada sadece claims
// okunur. Token JWT değilse (bazı sunucular rastgele string verir)
// ErrOpaque döner ve çağıran taraf config'teki kullanıcı adını kullanır.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akinalp/mqvi-client/models"
)

// ErrOpaque, token JWT olarak çözümlenemedi.
var ErrOpaque = errors.New("token is not a JWT")

// Inspect, token'ın claims'ini imzasız parse eder.
func Inspect(raw string) (*models.TokenClaims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrOpaque)
	}

	claims := &models.TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpaque, err)
	}
	return claims, nil
}

// Username, token'dan kullanıcı adını okur. Okunamazsa fallback döner.
func Username(raw, fallback string) string {
	claims, err := Inspect(raw)
	if err != nil {
		return fallback
	}
	if id := claims.Identity(); id != "" {
		return id
	}
	return fallback
}

// Expired, token'ın exp claim'i now'dan önceyse true döner.
// exp yoksa veya token opaksa süresiz kabul edilir.
func Expired(raw string, now time.Time) bool {
	claims, err := Inspect(raw)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}
