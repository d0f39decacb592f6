package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ticketloop/purchases-service/internal/auth"
	"github.com/ticketloop/purchases-service/internal/helpers"
)

const identityKey = "identity"

// RequireAuth validates the bearer token and stores the caller identity in
// the request context.
func RequireAuth(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			helpers.RespondWithError(c, http.StatusUnauthorized, helpers.CodeTokenMissing, "Authorization header required.")
			c.Abort()
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			helpers.RespondWithError(c, http.StatusUnauthorized, helpers.CodeTokenMissing, "Invalid authorization format.")
			c.Abort()
			return
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				helpers.RespondWithError(c, http.StatusUnauthorized, helpers.CodeTokenExpired, "Token expired.")
			default:
				helpers.RespondWithError(c, http.StatusUnauthorized, helpers.CodeTokenInvalid, "Invalid token.")
			}
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in the allowed set. It must
// run after RequireAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			helpers.RespondWithError(c, http.StatusUnauthorized, helpers.CodeTokenMissing, "User not authenticated.")
			c.Abort()
			return
		}
		for _, role := range roles {
			if identity.Role == role {
				c.Next()
				return
			}
		}
		helpers.RespondWithError(c, http.StatusForbidden, helpers.CodeForbidden, "Access denied for this role.")
		c.Abort()
	}
}

// CurrentIdentity returns the identity stored by RequireAuth.
func CurrentIdentity(c *gin.Context) (*auth.Identity, bool) {
	value, exists := c.Get(identityKey)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*auth.Identity)
	return identity, ok
}

// SetIdentity stores an identity directly; used by tests.
func SetIdentity(c *gin.Context, identity *auth.Identity) {
	c.Set(identityKey, identity)
}
