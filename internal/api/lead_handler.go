package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/haneul/wadispatch/internal/auth"
	"github.com/haneul/wadispatch/internal/storage"
)

// CreateLeadHandler handles POST /api/v1/leads.
func CreateLeadHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID := auth.VendorFromContext(r.Context())
		if vendorID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req struct {
			Name  string `json:"name"`
			Phone string `json:"phone"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Phone == "" {
			respondValidationErrors(w, []string{"phone is required"})
			return
		}

		lead, err := store.CreateLead(r.Context(), vendorID, req.Name, req.Phone)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		respondJSON(w, http.StatusCreated, map[string]interface{}{
			"id":    lead.ID,
			"name":  lead.Name,
			"phone": lead.Phone,
		})
	}
}

// CreateConversationHandler handles POST /api/v1/conversations.
func CreateConversationHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID := auth.VendorFromContext(r.Context())
		if vendorID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req struct {
			LeadID uuid.UUID `json:"lead_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.LeadID == uuid.Nil {
			respondValidationErrors(w, []string{"lead_id is required"})
			return
		}

		conv, err := store.CreateConversation(r.Context(), vendorID, req.LeadID)
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "lead not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		respondJSON(w, http.StatusCreated, map[string]interface{}{
			"id":      conv.ID,
			"lead_id": conv.LeadID,
		})
	}
}
