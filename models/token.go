package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims, sunucunun verdiği bearer token'ın payload'ı.
//
// Client imzayı doğrulayamaz (secret sunucuda); claims sadece yerel
// kararlar için okunur: kendi kullanıcı adını bilmek (arama hedef
// listesinden kendini çıkarmak) ve token süresi dolmuşsa erkenden uyarmak.
type TokenClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Identity, claims'ten okunabilen kullanıcı adı.
// username yoksa sub'a düşer.
func (c *TokenClaims) Identity() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Subject
}
