package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kamikazebr/ssh-api/internal/logging"
	"github.com/kamikazebr/ssh-api/pkg/utils"
)

type contextKey string

const (
	userClaimsKey contextKey = "userClaims"
	apiKeyAuthKey contextKey = "apiKeyAuth"
)

// AuthMiddleware accepts either a valid HS256 bearer token or a static API
// key from X-API-Key / "Authorization: ApiKey <key>".
func AuthMiddleware(secret string, apiKeys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logging.FromContext(r.Context())

			if claims := bearerClaims(r, secret, log); claims != nil {
				ctx := context.WithValue(r.Context(), userClaimsKey, claims)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "ApiKey ") {
					key = strings.TrimPrefix(auth, "ApiKey ")
				}
			}
			if key != "" && len(apiKeys) > 0 {
				if utils.MatchAPIKey(key, apiKeys) {
					log.Debug().Msg("valid API key authentication")
					ctx := context.WithValue(r.Context(), apiKeyAuthKey, true)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				log.Warn().Str("remote_addr", r.RemoteAddr).Msg("invalid API key attempted")
			}

			log.Warn().Str("remote_addr", r.RemoteAddr).Msg("unauthorized access attempt")
			respondError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func bearerClaims(r *http.Request, secret string, log zerolog.Logger) *utils.Claims {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil
	}
	claims, err := utils.ValidateJWT(strings.TrimPrefix(auth, "Bearer "), secret)
	if err != nil {
		log.Warn().Err(err).Msg("invalid JWT token")
		return nil
	}
	log.Debug().Str("sub", claims.Subject).Msg("valid JWT token")
	return claims
}

// GetUserClaims returns the JWT claims of a bearer-authenticated request.
func GetUserClaims(r *http.Request) *utils.Claims {
	claims, ok := r.Context().Value(userClaimsKey).(*utils.Claims)
	if !ok {
		return nil
	}
	return claims
}

// Principal names the authenticated caller for logs.
func Principal(r *http.Request) string {
	if claims := GetUserClaims(r); claims != nil {
		if claims.Subject != "" {
			return "jwt:" + claims.Subject
		}
		return "jwt"
	}
	if ok, _ := r.Context().Value(apiKeyAuthKey).(bool); ok {
		return "api-key"
	}
	return ""
}

// SecurityHeaders sets hardening headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// BodyLimit rejects declared oversized bodies with 413 and caps the rest.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				log := logging.FromContext(r.Context())
				log.Warn().
					Int64("content_length", r.ContentLength).
					Str("remote_addr", r.RemoteAddr).
					Msg("request too large")
				respondError(w, http.StatusRequestEntityTooLarge, "Request too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger attaches a request-scoped zerolog logger to the context and
// logs one line per request.
func RequestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := base.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(logging.WithContext(r.Context(), log)))

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("http request")
		})
	}
}
