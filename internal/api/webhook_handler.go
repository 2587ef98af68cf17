package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/haneul/wadispatch/internal/logger"
	"github.com/haneul/wadispatch/internal/metrics"
	"github.com/haneul/wadispatch/internal/storage"
)

// whatsappStatusUpdate is one status entry in a Meta webhook notification.
type whatsappStatusUpdate struct {
	ID        string `json:"id"` // provider message id (wamid)
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Errors    []struct {
		Code    int    `json:"code"`
		Title   string `json:"title"`
		Message string `json:"message"`
	} `json:"errors"`
}

// whatsappWebhookPayload matches the Meta webhook envelope, reduced to the
// fields the status consumer reads.
type whatsappWebhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Statuses []whatsappStatusUpdate `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// webhookStatusMap translates Meta status strings to delivery statuses.
var webhookStatusMap = map[string]storage.DeliveryStatus{
	"sent":      storage.DeliveryStatusSent,
	"delivered": storage.DeliveryStatusDelivered,
	"read":      storage.DeliveryStatusRead,
	"failed":    storage.DeliveryStatusFailed,
}

// VerifyWebhookHandler handles GET /api/v1/webhooks/whatsapp, Meta's
// subscription handshake: echo hub.challenge when the verify token matches.
func VerifyWebhookHandler(verifyToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != verifyToken {
			respondError(w, http.StatusForbidden, "verification failed")
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
	}
}

// WhatsAppWebhookHandler handles POST /api/v1/webhooks/whatsapp: it applies
// provider delivery receipts (sent/delivered/read/failed) to the matching
// delivery rows. Unknown message ids and unknown statuses are skipped, not
// errors: Meta retries on non-2xx, and a receipt for a message this system
// never sent cannot be applied by retrying.
func WhatsAppWebhookHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var payload whatsappWebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			respondError(w, http.StatusBadRequest, "invalid payload")
			return
		}

		for _, entry := range payload.Entry {
			for _, change := range entry.Changes {
				for _, update := range change.Value.Statuses {
					status, ok := webhookStatusMap[update.Status]
					if !ok {
						metrics.WebhookEventsTotal.WithLabelValues("skipped").Inc()
						continue
					}

					delivery, err := store.GetDeliveryByProviderMessageID(r.Context(), update.ID)
					if errors.Is(err, storage.ErrNotFound) {
						metrics.WebhookEventsTotal.WithLabelValues("unmatched").Inc()
						log.Warn().Str("provider_message_id", update.ID).Msg("webhook status for unknown delivery")
						continue
					}
					if err != nil {
						respondError(w, http.StatusInternalServerError, "internal server error")
						return
					}

					if err := store.UpdateDeliveryStatus(r.Context(), delivery.ID, status); err != nil {
						respondError(w, http.StatusInternalServerError, "internal server error")
						return
					}
					metrics.WebhookEventsTotal.WithLabelValues(update.Status).Inc()
				}
			}
		}

		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
