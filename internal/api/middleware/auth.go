package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/docsage/docsage/internal/api"
	"github.com/docsage/docsage/internal/domain"
)

type contextKey string

const OwnerIDKey contextKey = "owner_id"

type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (string, error)
}

// StaticKeyValidator resolves API keys to owner IDs from a fixed map
// loaded at startup.
type StaticKeyValidator struct {
	keys map[string]string
}

func NewStaticKeyValidator(keys map[string]string) *StaticKeyValidator {
	return &StaticKeyValidator{keys: keys}
}

func (v *StaticKeyValidator) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	ownerID, ok := v.keys[token]
	if !ok {
		return "", domain.ErrInvalidAPIKey
	}
	return ownerID, nil
}

func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			ownerID, err := validator.ValidateAPIKey(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), OwnerIDKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetOwnerID(ctx context.Context) string {
	ownerID, _ := ctx.Value(OwnerIDKey).(string)
	return ownerID
}
