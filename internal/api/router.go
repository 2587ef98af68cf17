package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/haneul/wadispatch/internal/auth"
	"github.com/haneul/wadispatch/internal/media"
	"github.com/haneul/wadispatch/internal/storage"
)

// RouterConfig bundles the dependencies of the HTTP surface. Notifier and
// HealthChecker are optional.
type RouterConfig struct {
	Store              Store
	DB                 *storage.DB
	Vault              Encrypter
	Media              media.Store
	JWT                *auth.JWTService
	Notifier           Notifier
	HealthChecker      HealthChecker
	WebhookVerifyToken string
	Log                zerolog.Logger
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(RecoverMiddleware(cfg.Log))

	// Operational endpoints (no auth required)
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(cfg.DB))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Vendor onboarding (no auth required; the response carries the key)
	r.Post("/api/v1/vendors", CreateVendorHandler(cfg.Store))

	// Webhook endpoints (no auth required - called by Meta)
	r.Get("/api/v1/webhooks/whatsapp", VerifyWebhookHandler(cfg.WebhookVerifyToken))
	r.Post("/api/v1/webhooks/whatsapp", WhatsAppWebhookHandler(cfg.Store))

	// API routes (auth required). The bearer credential is either the
	// vendor's API key or a JWT previously issued via /auth/token.
	vendorLookup := func(ctx context.Context, token string) (uuid.UUID, error) {
		if cfg.JWT != nil && strings.Count(token, ".") == 2 {
			claims, err := cfg.JWT.ValidateAccessToken(token)
			if err != nil {
				return uuid.Nil, err
			}
			return uuid.Parse(claims.VendorID)
		}

		vendors, err := cfg.Store.ListVendorsByAPIKeyPrefix(ctx, auth.KeyPrefix(token))
		if err != nil {
			return uuid.Nil, err
		}
		for _, v := range vendors {
			if auth.VerifyAPIKey(v.APIKeyHash, token) {
				return v.ID, nil
			}
		}
		return uuid.Nil, auth.ErrInvalidAPIKey
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.BearerAuth(vendorLookup))

		if cfg.JWT != nil {
			r.Post("/auth/token", IssueTokenHandler(cfg.JWT))
		}

		r.Get("/vendors/me", GetVendorHandler(cfg.Store))
		r.Put("/vendors/me/integration", UpdateVendorIntegrationHandler(cfg.Store, cfg.Vault, cfg.HealthChecker))

		r.Post("/leads", CreateLeadHandler(cfg.Store))
		r.Post("/conversations", CreateConversationHandler(cfg.Store))

		r.Post("/messages", CreateMessageHandler(cfg.Store, cfg.Notifier))
		r.Get("/messages", ListMessagesHandler(cfg.Store))
		r.Get("/messages/{id}", GetMessageHandler(cfg.Store))
		r.Post("/messages/{id}/requeue", RequeueMessageHandler(cfg.Store, cfg.Notifier))

		r.Post("/media", UploadMediaHandler(cfg.Media))
	})

	return r
}
