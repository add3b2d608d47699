package account

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	SessionCookieName = "token"

	sessionExp = 24 * time.Hour
	resetExp   = time.Hour

	userIdClaim      = "user-id"
	expClaim         = "exp"
	iatClaim         = "iat"
	purposeClaim     = "purpose"
	fingerprintClaim = "pwh"

	purposeReset = "password-reset"
)

func (s *Service) createSessionToken(accountId string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: accountId,
		expClaim:    s.now().Add(sessionExp).Unix(),
	})

	return token.SignedString(s.signingKey)
}

// createResetToken binds the token to the current password hash so it
// stops verifying once the password changes.
func (s *Service) createResetToken(accountId, passwordHash string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim:      accountId,
		purposeClaim:     purposeReset,
		fingerprintClaim: fingerprint(passwordHash),
		iatClaim:         now.Unix(),
		expClaim:         now.Add(resetExp).Unix(),
	})

	return token.SignedString(s.signingKey)
}

func fingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}

func (s *Service) parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// VerifySessionToken returns the account id carried by a session token.
func (s *Service) VerifySessionToken(tokenString string) (string, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return "", err
	}

	if _, ok := claims[purposeClaim]; ok {
		return "", fmt.Errorf("not a session token")
	}

	accountId, ok := claims[userIdClaim].(string)
	if !ok || accountId == "" {
		return "", fmt.Errorf("invalid user id claim")
	}

	return accountId, nil
}

func SessionCookie(tokenString string) *http.Cookie {
	return newCookie(tokenString, time.Now().Add(sessionExp))
}

// ExpiredSessionCookie instructs the browser to delete the session cookie.
func ExpiredSessionCookie() *http.Cookie {
	c := newCookie("", time.Unix(0, 0))
	c.MaxAge = -1
	return c
}

func newCookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}
