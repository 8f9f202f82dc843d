package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/belgiumluv/docker-cont/pkg/logger"
)

// JWTAuthConfig contains bearer token authentication configuration.
// Only HS256 tokens signed with Secret are accepted.
type JWTAuthConfig struct {
	Secret    string        `yaml:"secret"`
	ClockSkew time.Duration `yaml:"clock_skew"`
}

// JWTAuthMiddleware validates HS256 bearer tokens
type JWTAuthMiddleware struct {
	config JWTAuthConfig
	parser *jwt.Parser
	logger *logger.Logger
}

// NewJWTAuthMiddleware creates the middleware. It returns nil when no secret
// is configured, meaning the API is open.
func NewJWTAuthMiddleware(config JWTAuthConfig, log *logger.Logger) *JWTAuthMiddleware {
	if config.Secret == "" {
		return nil
	}
	if log == nil {
		log = logger.NewNop()
	}

	jm := &JWTAuthMiddleware{
		config: config,
		// exp and nbf are checked by hand so ClockSkew applies
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
		logger: log.MiddlewareLogger("jwt_auth"),
	}

	jm.logger.WithField("clock_skew", config.ClockSkew.String()).Info("JWT authentication enabled")
	return jm
}

// JWTAuth returns the authentication middleware
func (jm *JWTAuthMiddleware) JWTAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				jm.logger.WithFields(map[string]interface{}{
					"path":   r.URL.Path,
					"method": r.Method,
					"ip":     r.RemoteAddr,
				}).Warn("JWT token missing")
				writeJWTError(w, "Authentication required")
				return
			}

			claims, err := jm.validateToken(token, time.Now())
			if err != nil {
				jm.logger.WithFields(map[string]interface{}{
					"error":  err.Error(),
					"path":   r.URL.Path,
					"method": r.Method,
					"ip":     r.RemoteAddr,
				}).Warn("JWT validation failed")
				writeJWTError(w, "Invalid token")
				return
			}

			jm.logger.WithFields(map[string]interface{}{
				"subject": claims.Subject,
				"path":    r.URL.Path,
			}).Debug("JWT authentication successful")

			next.ServeHTTP(w, r)
		})
	}
}

// extractBearer reads the token from the Authorization header
func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// validateToken checks the signature, then expiry and not-before with skew
func (jm *JWTAuthMiddleware) validateToken(tokenString string, now time.Time) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jm.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jm.config.Secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("token has no expiry")
	}
	if now.Add(-jm.config.ClockSkew).After(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("token expired")
	}
	if claims.NotBefore != nil && now.Add(jm.config.ClockSkew).Before(claims.NotBefore.Time) {
		return nil, fmt.Errorf("token not yet valid")
	}

	return claims, nil
}

// IssueToken signs an HS256 token for subject that expires after ttl
func IssueToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret is empty")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func writeJWTError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   "authentication_failed",
		"message": message,
		"status":  http.StatusUnauthorized,
	})
}
