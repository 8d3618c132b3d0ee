package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"trellis-backend/infrastructure/config"
	"trellis-backend/pkg/auth"
)

// Authenticator resolves the owner of every request. With a JWT secret
// configured it validates bearer tokens; without one (development only)
// every request runs as the configured dev user.
type Authenticator struct {
	validator   *auth.JWTValidator
	ipLimiter   *auth.IPRateLimiter
	userLimiter *auth.UserRateLimiter
	devUserID   string
	logger      *zap.Logger
}

// NewAuthenticator builds the authenticator from auth configuration.
// allowDevFallback must only be true outside production; config
// validation guarantees a secret is present there.
func NewAuthenticator(cfg config.AuthConfig, allowDevFallback bool, logger *zap.Logger) (*Authenticator, error) {
	a := &Authenticator{
		ipLimiter:   auth.NewIPRateLimiter(100),
		userLimiter: auth.NewUserRateLimiter(200),
		logger:      logger,
	}

	if cfg.JWTSecret == "" {
		if !allowDevFallback {
			return nil, errors.New("jwt secret is required")
		}
		a.devUserID = cfg.DevUserID
		logger.Warn("JWT secret not configured, all requests run as the dev user",
			zap.String("devUserID", cfg.DevUserID),
		)
		return a, nil
	}

	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
	})
	if err != nil {
		return nil, err
	}
	a.validator = validator
	return a, nil
}

// Middleware authenticates the request and stores the user in its context
func (a *Authenticator) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, _ := a.ipLimiter.Allow(r.Context(), getClientIP(r))
			if !allowed {
				respondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			user, ok := a.resolveUser(w, r)
			if !ok {
				return
			}

			allowed, _ = a.userLimiter.Allow(r.Context(), user.UserID)
			if !allowed {
				respondWithError(w, http.StatusTooManyRequests, "User rate limit exceeded")
				return
			}

			ctx := auth.SetUserInContext(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) resolveUser(w http.ResponseWriter, r *http.Request) (*auth.UserContext, bool) {
	if a.validator == nil {
		return &auth.UserContext{UserID: a.devUserID}, true
	}

	token := extractToken(r)
	if token == "" {
		respondUnauthorized(w, "Missing authentication token")
		return nil, false
	}

	claims, err := a.validator.ValidateToken(token)
	if err != nil {
		a.logger.Warn("token rejected",
			zap.Error(err),
			zap.String("ip", getClientIP(r)),
			zap.String("path", r.URL.Path),
		)
		switch err {
		case auth.ErrExpiredToken:
			respondUnauthorized(w, "Token has expired")
		case auth.ErrInvalidSignature:
			respondUnauthorized(w, "Invalid token signature")
		default:
			respondUnauthorized(w, "Invalid token")
		}
		return nil, false
	}

	return &auth.UserContext{UserID: claims.UserID, Email: claims.Email}, true
}

// extractToken pulls the JWT from the Authorization header or the
// auth_token cookie
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
		return authHeader
	}

	if cookie, err := r.Cookie("auth_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// getClientIP extracts the client IP address
func getClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

// respondUnauthorized sends an unauthorized response
func respondUnauthorized(w http.ResponseWriter, message string) {
	respondWithError(w, http.StatusUnauthorized, message)
}

// respondWithError sends an error response with a specific status code
func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    code,
	})
}
