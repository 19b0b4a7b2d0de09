package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"devplan/internal/api/auth"

	"github.com/gin-gonic/gin"
)

// ErrUnauthorized is returned for a missing, malformed, invalid or revoked credential.
var ErrUnauthorized = errors.New("unauthorized")

// RevocationChecker reports whether a token id was revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Guard verifies bearer credentials.
type Guard struct {
	tokens  *auth.TokenService
	revoked RevocationChecker
	logger  *slog.Logger
}

// NewGuard creates a Guard. revoked may be nil.
func NewGuard(tokens *auth.TokenService, revoked RevocationChecker, logger *slog.Logger) *Guard {
	return &Guard{tokens: tokens, revoked: revoked, logger: logger}
}

// Authenticate returns the user id carried by the request's bearer token.
func (g *Guard) Authenticate(r *http.Request) (string, error) {
	claims, err := g.claims(r)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (g *Guard) claims(r *http.Request) (*auth.Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrUnauthorized
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return nil, ErrUnauthorized
	}

	claims, err := g.tokens.Verify(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, ErrUnauthorized
	}

	if g.revoked != nil && claims.ID != "" {
		revoked, err := g.revoked.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			// fail open: revocation is best effort
			if g.logger != nil {
				g.logger.Warn("revocation lookup failed", slog.String("error", err.Error()))
			}
		} else if revoked {
			return nil, ErrUnauthorized
		}
	}
	return claims, nil
}

// Middleware rejects unauthenticated requests with 401 and stores the
// caller's identity in the gin context.
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := g.claims(c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(auth.ContextUserID, claims.Subject)
		c.Set(auth.ContextEmail, claims.Email)
		c.Set(auth.ContextTokenID, claims.ID)
		if claims.ExpiresAt != nil {
			c.Set(auth.ContextTokenExpiry, claims.ExpiresAt.Time)
		}
		c.Next()
	}
}
