package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/haneul/wadispatch/internal/auth"
	"github.com/haneul/wadispatch/internal/metrics"
	"github.com/haneul/wadispatch/internal/storage"
)

// messageMediaRequest is the optional media attachment of an enqueue request.
type messageMediaRequest struct {
	MimeType  string `json:"mime_type"`
	SourceURL string `json:"source_url"`
	Caption   string `json:"caption"`
}

// messageRequest is the JSON body for enqueueing an outbound message.
type messageRequest struct {
	ConversationID uuid.UUID            `json:"conversation_id"`
	Type           string               `json:"type"`
	Body           string               `json:"body"`
	TemplateName   string               `json:"template_name"`
	TemplateLang   string               `json:"template_lang"`
	TemplateParams []string             `json:"template_params"`
	Media          *messageMediaRequest `json:"media"`
}

// messageResponse is the JSON representation of a message.
type messageResponse struct {
	ID             uuid.UUID `json:"id"`
	VendorID       uuid.UUID `json:"vendor_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Direction      string    `json:"direction"`
	Channel        string    `json:"channel"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	RetryCount     int       `json:"retry_count"`
	ErrorCode      *string   `json:"error_code"`
	CreatedAt      string    `json:"created_at"`
}

func toMessageResponse(m storage.Message) messageResponse {
	return messageResponse{
		ID:             m.ID,
		VendorID:       m.VendorID,
		ConversationID: m.ConversationID,
		Direction:      m.Direction,
		Channel:        m.Channel,
		Type:           string(m.Type),
		Status:         string(m.Status),
		RetryCount:     m.RetryCount,
		ErrorCode:      m.ErrorCode,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
}

func validateMessageRequest(req *messageRequest) []string {
	var errs []string
	if req.ConversationID == uuid.Nil {
		errs = append(errs, "conversation_id is required")
	}

	switch storage.MessageType(req.Type) {
	case storage.MessageTypeImage:
		if req.Media == nil || req.Media.SourceURL == "" {
			errs = append(errs, "media.source_url is required for image messages")
		}
	case storage.MessageTypeTemplate:
		if req.TemplateName == "" {
			errs = append(errs, "template_name is required for template messages")
		}
	case storage.MessageTypeText:
		if req.Body == "" {
			errs = append(errs, "body is required for text messages")
		}
	default:
		errs = append(errs, "type must be one of image, template, text")
	}
	return errs
}

// CreateMessageHandler handles POST /api/v1/messages: it inserts the message
// with its delivery record (and media row for images) in queued state and
// nudges the delivery worker.
func CreateMessageHandler(store Store, notifier Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID := auth.VendorFromContext(r.Context())
		if vendorID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if errs := validateMessageRequest(&req); len(errs) > 0 {
			respondValidationErrors(w, errs)
			return
		}

		conv, err := store.GetConversation(r.Context(), req.ConversationID)
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if conv.VendorID != vendorID {
			respondError(w, http.StatusNotFound, "conversation not found")
			return
		}

		params := storage.CreateOutboundParams{
			VendorID:       vendorID,
			ConversationID: req.ConversationID,
			Type:           storage.MessageType(req.Type),
			Body:           req.Body,
			TemplateName:   req.TemplateName,
			TemplateLang:   req.TemplateLang,
			TemplateParams: req.TemplateParams,
		}
		if req.Media != nil {
			params.Media = &storage.OutboundMediaParams{
				MediaType: "image",
				MimeType:  req.Media.MimeType,
				SourceURL: req.Media.SourceURL,
				Caption:   req.Media.Caption,
			}
		}

		msg, err := store.CreateOutbound(r.Context(), params)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		metrics.MessagesEnqueuedTotal.Inc()
		if notifier != nil {
			notifier.Notify(r.Context())
		}

		respondJSON(w, http.StatusCreated, toMessageResponse(*msg))
	}
}

// GetMessageHandler handles GET /api/v1/messages/{id}.
func GetMessageHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID := auth.VendorFromContext(r.Context())

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid message id")
			return
		}

		msg, err := store.GetMessage(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "message not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if msg.VendorID != vendorID {
			respondError(w, http.StatusNotFound, "message not found")
			return
		}

		respondJSON(w, http.StatusOK, toMessageResponse(*msg))
	}
}

// ListMessagesHandler handles GET /api/v1/messages with optional status,
// limit, and offset query parameters.
func ListMessagesHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID := auth.VendorFromContext(r.Context())

		params := storage.ListMessagesParams{
			VendorID: vendorID,
			Limit:    50,
		}

		if s := r.URL.Query().Get("status"); s != "" {
			status := storage.MessageStatus(s)
			switch status {
			case storage.MessageStatusQueued, storage.MessageStatusProcessing,
				storage.MessageStatusSent, storage.MessageStatusFailed:
				params.Status = &status
			default:
				respondError(w, http.StatusBadRequest, "invalid status filter")
				return
			}
		}
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > 200 {
				respondError(w, http.StatusBadRequest, "limit must be between 1 and 200")
				return
			}
			params.Limit = n
		}
		if s := r.URL.Query().Get("offset"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				respondError(w, http.StatusBadRequest, "invalid offset")
				return
			}
			params.Offset = n
		}

		msgs, err := store.ListMessages(r.Context(), params)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		out := make([]messageResponse, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, toMessageResponse(m))
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"messages": out})
	}
}

// RequeueMessageHandler handles POST /api/v1/messages/{id}/requeue. Only
// terminally failed messages can be requeued; the retry budget is reset.
func RequeueMessageHandler(store Store, notifier Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID := auth.VendorFromContext(r.Context())

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid message id")
			return
		}

		msg, err := store.GetMessage(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "message not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if msg.VendorID != vendorID {
			respondError(w, http.StatusNotFound, "message not found")
			return
		}

		requeued, err := store.RequeueFailed(r.Context(), id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !requeued {
			respondError(w, http.StatusConflict, "only failed messages can be requeued")
			return
		}

		if notifier != nil {
			notifier.Notify(r.Context())
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "queued"})
	}
}
