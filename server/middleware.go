package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ghiac/vaultcoach/config"
	"github.com/ghiac/vaultcoach/log"
	"github.com/ghiac/vaultcoach/model"
)

const userIDKey = "vaultcoach.userID"

// RequestLogger logs one line per request into the global logger
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		log.Log.Slog().LogAttrs(c.Request.Context(), level, "[HTTP] request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("user", c.GetString(userIDKey)),
		)
	}
}

// Auth verifies an HS256 bearer token and stores its subject as the caller's
// user id. The subject is read from "sub", falling back to "user_id".
func Auth(cfg config.AuthConfig) gin.HandlerFunc {
	if cfg.JWTSecret == "" {
		log.Log.Warnf("[Server] ⚠️  No JWT secret configured; authenticated routes will reject every request")
	}
	return func(c *gin.Context) {
		userID, err := authenticate(cfg, c.GetHeader("Authorization"))
		if err != nil {
			log.Log.Debugf("[Server] 🔒 Rejected token: %v", err)
			RespondError(c, model.WrapError(model.CodeUnauthenticated, "You must be signed in", err))
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated caller, or "" on public routes
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func authenticate(cfg config.AuthConfig, header string) (string, error) {
	if cfg.JWTSecret == "" {
		return "", errors.New("authentication is not configured")
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", errors.New("missing bearer token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...); err != nil {
		return "", err
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		sub, _ = claims["user_id"].(string)
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// IssueToken signs a token for userID, valid for ttl
func IssueToken(cfg config.AuthConfig, userID string, ttl time.Duration) (string, error) {
	if cfg.JWTSecret == "" {
		return "", errors.New("JWT secret is not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
