package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"crmsync/internal/config"
)

const claimsKey = "auth.claims"

type Claims struct {
	Role string `json:"role,omitempty"`

	jwt.RegisteredClaims
}

// ErrNoCredentials means auth is enabled but neither a static token nor a JWT
// secret is configured, so any bearer string passes.
var ErrNoCredentials = errors.New("auth enabled without auth.token or auth.jwt_secret: any bearer token is accepted")

// Validate reports configurations that leave /api/* effectively open.
func Validate(cfg config.AuthConfig) error {
	if cfg.Disabled {
		return nil
	}
	if strings.TrimSpace(cfg.Token) == "" && strings.TrimSpace(cfg.JWTSecret) == "" {
		return ErrNoCredentials
	}
	return nil
}

// RequireBearer protects /api/* and /swagger. A request passes with the
// configured static token or an HS256 JWT signed with jwt_secret. With neither
// configured only the presence of a bearer token is checked.
func RequireBearer(cfg config.AuthConfig) gin.HandlerFunc {
	staticToken := strings.TrimSpace(cfg.Token)
	secret := []byte(strings.TrimSpace(cfg.JWTSecret))

	return func(c *gin.Context) {
		if cfg.Disabled {
			c.Next()
			return
		}
		p := c.Request.URL.Path
		if p == "/healthz" || p == "/readyz" {
			c.Next()
			return
		}
		if !strings.HasPrefix(p, "/api/") && !strings.HasPrefix(p, "/swagger") {
			c.Next()
			return
		}
		tok := bearerToken(c.GetHeader("Authorization"))
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if staticToken == "" && len(secret) == 0 {
			c.Next()
			return
		}
		if staticToken != "" && subtle.ConstantTimeCompare([]byte(tok), []byte(staticToken)) == 1 {
			c.Next()
			return
		}
		if len(secret) > 0 {
			claims, err := Verify(secret, tok)
			if err == nil {
				c.Set(claimsKey, claims)
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	}
}

func Verify(secret []byte, token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	return *claims, nil
}

func ClaimsFromGin(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

func bearerToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
