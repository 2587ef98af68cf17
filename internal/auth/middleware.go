package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const vendorIDKey contextKey = "vendor_id"

// VendorFromContext retrieves the authenticated vendor ID from the request
// context. Returns uuid.Nil if no vendor is set.
func VendorFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(vendorIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// WithVendorID stores the vendor ID in the request context.
func WithVendorID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, vendorIDKey, id)
}

// VendorLookupFunc resolves an API key to the owning vendor.
// It returns ErrInvalidAPIKey when no vendor matches.
type VendorLookupFunc func(ctx context.Context, apiKey string) (uuid.UUID, error)

// BearerAuth returns an HTTP middleware that validates Bearer token
// authentication. It extracts the API key from the Authorization header and
// looks up the vendor. On success, the vendor ID is stored in the request
// context.
func BearerAuth(lookup VendorLookupFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, "invalid authorization format, expected Bearer <token>")
				return
			}

			apiKey := parts[1]
			if apiKey == "" {
				unauthorized(w, "empty API key")
				return
			}

			vendorID, err := lookup(r.Context(), apiKey)
			if err != nil {
				unauthorized(w, "invalid API key")
				return
			}

			ctx := WithVendorID(r.Context(), vendorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
