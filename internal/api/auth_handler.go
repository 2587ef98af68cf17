package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/haneul/wadispatch/internal/auth"
)

// IssueTokenHandler handles POST /api/v1/auth/token. An API-key
// authenticated caller receives a short-lived JWT so dashboard sessions do
// not hold the long-lived key in browser storage.
func IssueTokenHandler(jwtSvc *auth.JWTService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID := auth.VendorFromContext(r.Context())
		if vendorID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		token, err := jwtSvc.GenerateAccessToken(vendorID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   int64(jwtSvc.AccessTokenExpiry().Seconds()),
		})
	}
}
