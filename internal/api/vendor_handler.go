package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/haneul/wadispatch/internal/auth"
	"github.com/haneul/wadispatch/internal/storage"
)

// vendorResponse is the JSON representation of a vendor. The API key hash and
// encrypted access token are intentionally excluded.
type vendorResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	PhoneNumberID  string    `json:"phone_number_id"`
	WhatsappStatus string    `json:"whatsapp_status"`
	LastError      *string   `json:"last_error"`
	CreatedAt      string    `json:"created_at"`
}

func toVendorResponse(v storage.Vendor) vendorResponse {
	return vendorResponse{
		ID:             v.ID,
		Name:           v.Name,
		PhoneNumberID:  v.PhoneNumberID,
		WhatsappStatus: string(v.WhatsappStatus),
		LastError:      v.LastError,
		CreatedAt:      v.CreatedAt.Format(time.RFC3339),
	}
}

// CreateVendorHandler handles POST /api/v1/vendors. The generated API key is
// returned exactly once; only its prefix and bcrypt hash are stored.
func CreateVendorHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Name == "" {
			respondValidationErrors(w, []string{"name is required"})
			return
		}

		apiKey, err := auth.GenerateAPIKey()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		hash, err := auth.HashAPIKey(apiKey)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		vendor, err := store.CreateVendor(r.Context(), storage.CreateVendorParams{
			Name:         req.Name,
			APIKeyPrefix: auth.KeyPrefix(apiKey),
			APIKeyHash:   hash,
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		respondJSON(w, http.StatusCreated, map[string]interface{}{
			"vendor":  toVendorResponse(*vendor),
			"api_key": apiKey,
		})
	}
}

// GetVendorHandler handles GET /api/v1/vendors/me.
func GetVendorHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID := auth.VendorFromContext(r.Context())

		vendor, err := store.GetVendor(r.Context(), vendorID)
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "vendor not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		respondJSON(w, http.StatusOK, toVendorResponse(*vendor))
	}
}

// HealthChecker verifies a WhatsApp credential against the provider before
// it is stored.
type HealthChecker interface {
	HealthCheck(ctx context.Context, phoneNumberID, accessToken string) error
}

// integrationRequest is the JSON body for connecting a WhatsApp integration.
type integrationRequest struct {
	PhoneNumberID string `json:"phone_number_id"`
	AccessToken   string `json:"access_token"`
}

// UpdateVendorIntegrationHandler handles PUT /api/v1/vendors/me/integration.
// The credential is verified against the provider when a checker is
// configured, then vault-encrypted before it touches the database.
func UpdateVendorIntegrationHandler(store Store, vault Encrypter, checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID := auth.VendorFromContext(r.Context())
		if vendorID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req integrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var errs []string
		if req.PhoneNumberID == "" {
			errs = append(errs, "phone_number_id is required")
		}
		if req.AccessToken == "" {
			errs = append(errs, "access_token is required")
		}
		if len(errs) > 0 {
			respondValidationErrors(w, errs)
			return
		}

		if checker != nil {
			if err := checker.HealthCheck(r.Context(), req.PhoneNumberID, req.AccessToken); err != nil {
				respondError(w, http.StatusUnprocessableEntity, "credential verification failed")
				return
			}
		}

		tokenEnc, err := vault.Encrypt(req.AccessToken)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		vendor, err := store.UpdateVendorIntegration(r.Context(), vendorID, req.PhoneNumberID, tokenEnc)
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "vendor not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		respondJSON(w, http.StatusOK, toVendorResponse(*vendor))
	}
}
