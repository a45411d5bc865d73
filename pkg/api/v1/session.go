package apiv1

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/beam-cloud/toolshelf/pkg/common"
)

const (
	cookieName      = "toolshelf_session"
	sessionDuration = 24 * time.Hour
)

// Claims contains the JWT claims for a browser session
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionManager signs and validates the session cookie
type SessionManager struct {
	secret []byte
}

// NewSessionManager creates a new session manager
func NewSessionManager(secret string) *SessionManager {
	if secret == "" {
		// Generate random key (sessions won't persist across restarts)
		b := make([]byte, 32)
		rand.Read(b)
		secret = hex.EncodeToString(b)
	}
	return &SessionManager{secret: []byte(secret)}
}

// Create generates a new JWT session token
func (s *SessionManager) Create(sessionID string) (string, error) {
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(sessionDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "toolshelf",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate parses and validates a JWT token
func (s *SessionManager) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.SessionID != "" {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// Get retrieves and validates the session from request cookies
func (s *SessionManager) Get(c echo.Context) *Claims {
	cookie, err := c.Cookie(cookieName)
	if err != nil {
		return nil
	}
	claims, err := s.Validate(cookie.Value)
	if err != nil {
		return nil
	}
	return claims
}

// Ensure returns the session id from the request, starting a new session
// and setting its cookie when there is none.
func (s *SessionManager) Ensure(c echo.Context) (string, error) {
	if claims := s.Get(c); claims != nil {
		return claims.SessionID, nil
	}

	sessionID := common.GenerateSessionID()
	token, err := s.Create(sessionID)
	if err != nil {
		return "", err
	}
	s.Set(c, token)
	return sessionID, nil
}

// Set stores the session token in a cookie
func (s *SessionManager) Set(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Request().TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionDuration.Seconds()),
	})
}

// Clear removes the session cookie
func (s *SessionManager) Clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:   cookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}
