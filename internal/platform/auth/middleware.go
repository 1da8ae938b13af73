package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"storeroom-backend/internal/platform/apperr"
)

const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

func ValidRole(r string) bool {
	return r == RoleUser || r == RoleAdmin || r == RoleSuperAdmin
}

const ctxActorKey = "actor"

// Actor is the authenticated caller, taken from the token claims.
type Actor struct {
	ID    string
	Role  string
	Name  string
	Email string
}

func (a Actor) Is(roles ...string) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// FromContext returns the actor RequireAuth stored. ok is false on routes
// without the middleware.
func FromContext(c *gin.Context) (Actor, bool) {
	v, ok := c.Get(ctxActorKey)
	if !ok {
		return Actor{}, false
	}
	a, ok := v.(Actor)
	return a, ok
}

// WithActor stores a directly; tests use it to skip token handling.
func WithActor(c *gin.Context, a Actor) { c.Set(ctxActorKey, a) }

func abort(c *gin.Context, err *apperr.Error) {
	c.Abort()
	apperr.Render(c, err)
}

// RequireAuth checks "Authorization: Bearer <token>" and puts the Actor on
// the context.
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			abort(c, apperr.Unauthorized("missing Authorization header"))
			return
		}

		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, apperr.Unauthorized("invalid Authorization header"))
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			abort(c, apperr.Unauthorized("empty token"))
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
			// pin the algorithm so "none" and RS/HS confusion are rejected
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil || token == nil || !token.Valid {
			abort(c, apperr.Unauthorized("invalid token"))
			return
		}

		if claims.Subject == "" {
			abort(c, apperr.Unauthorized("missing sub"))
			return
		}

		WithActor(c, Actor{
			ID:    claims.Subject,
			Role:  claims.Role,
			Name:  claims.Name,
			Email: claims.Email,
		})
		c.Next()
	}
}

// RequireRole lets the request through only for the listed roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{})
	for _, r := range roles {
		if r == "" {
			continue
		}
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		a, ok := FromContext(c)
		if !ok || a.Role == "" {
			abort(c, apperr.Forbidden("missing role"))
			return
		}

		if _, allowed := roleSet[a.Role]; !allowed {
			abort(c, apperr.Forbidden("forbidden"))
			return
		}

		c.Next()
	}
}
