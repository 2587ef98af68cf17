// Package worker implements the outbound delivery loop: it drains the
// message queue oldest-first, claims one message at a time with a
// conditional update, delivers it through the WhatsApp Cloud API, and
// reconciles the outcome atomically.
//
// Multiple worker processes may run this loop against the same database;
// the claim update is the only mutual exclusion between them.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haneul/wadispatch/internal/gateway"
	"github.com/haneul/wadispatch/internal/metrics"
	"github.com/haneul/wadispatch/internal/storage"
)

// Error codes recorded on messages that fail before any gateway call.
// Gateway failures record gateway.ErrorCode instead.
const (
	errCodeVendorUnconfigured  = "vendor_unconfigured"
	errCodeVendorTokenDecrypt  = "vendor_token_decrypt"
	errCodeMediaMissing        = "media_missing"
	errCodeMediaCardinality    = "media_cardinality"
	errCodeDeliveryMissing     = "delivery_missing"
	errCodeDeliveryCardinality = "delivery_cardinality"
	errCodeTemplateMissing     = "template_missing"
	errCodeUnsupportedType     = "unsupported_type"
)

// Store is the persistence surface the delivery loop needs.
type Store interface {
	FindOldestEligible(ctx context.Context, types []storage.MessageType, maxRetries int) (*storage.Message, error)
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	LoadSendContext(ctx context.Context, messageID uuid.UUID) (*storage.SendContext, error)
	MarkSent(ctx context.Context, messageID, deliveryID uuid.UUID, providerMessageID string) error
	MarkFailed(ctx context.Context, p storage.MarkFailedParams) error
	ReclaimStuck(ctx context.Context, lease time.Duration) (int64, error)
	CountQueued(ctx context.Context, types []storage.MessageType, maxRetries int) (int64, error)
}

// Gateway sends messages through the provider API.
type Gateway interface {
	SendImage(ctx context.Context, p gateway.ImageSend) (*gateway.SendResult, error)
	SendTemplate(ctx context.Context, p gateway.TemplateSend) (*gateway.SendResult, error)
	SendText(ctx context.Context, p gateway.TextSend) (*gateway.SendResult, error)
}

// Decrypter recovers a vendor's plaintext access token.
type Decrypter interface {
	Decrypt(encoded string) (string, error)
}

// Waiter blocks between polls when the queue is drained. Optional; without
// one the worker sleeps out the idle delay.
type Waiter interface {
	Wait(ctx context.Context, timeout time.Duration) error
}

// Worker drains the outbound message queue.
type Worker struct {
	store   Store
	gateway Gateway
	vault   Decrypter
	waiter  Waiter
	opts    Options
	log     zerolog.Logger

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration)
}

// New creates a Worker. waiter may be nil.
func New(store Store, gw Gateway, vault Decrypter, waiter Waiter, opts Options, log zerolog.Logger) *Worker {
	return &Worker{
		store:   store,
		gateway: gw,
		vault:   vault,
		waiter:  waiter,
		opts:    opts.withDefaults(),
		log:     log.With().Str("component", "delivery-worker").Logger(),
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// outcome drives the pacing decision after one loop iteration.
type outcome int

const (
	outcomeIdle outcome = iota
	outcomeSent
	outcomeFailed
	outcomeConflict
	outcomeStoreError
)

// Run executes the delivery loop until ctx is cancelled. Cancellation is
// checked before every poll and every sleep; a send already in flight is
// bounded by the per-send timeout.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().
		Int("max_retries", w.opts.MaxRetries).
		Dur("idle_delay", w.opts.IdleDelay).
		Str("country_prefix", w.opts.CountryPrefix).
		Msg("delivery worker started")

	nextSweep := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			w.log.Info().Msg("delivery worker stopping")
			return err
		}

		if !time.Now().Before(nextSweep) {
			w.sweep(ctx)
			nextSweep = time.Now().Add(w.opts.SweepInterval)
		}

		switch w.processNext(ctx) {
		case outcomeIdle:
			w.idle(ctx)
		case outcomeSent:
			w.sleep(ctx, w.opts.SendDelay)
		case outcomeFailed, outcomeStoreError:
			w.sleep(ctx, w.opts.FailureDelay)
		case outcomeConflict:
			// Another worker won the claim; re-poll immediately.
		}
	}
}

// idle blocks until the next poll is due, or earlier when a producer nudge
// arrives.
func (w *Worker) idle(ctx context.Context) {
	if w.waiter != nil {
		if err := w.waiter.Wait(ctx, w.opts.IdleDelay); err != nil && ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("idle wait degraded to polling")
		}
		return
	}
	w.sleep(ctx, w.opts.IdleDelay)
}

// sweep returns stale processing claims to the queue and refreshes the
// queue-depth gauge.
func (w *Worker) sweep(ctx context.Context) {
	n, err := w.store.ReclaimStuck(ctx, w.opts.LeaseTimeout)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to reclaim stuck messages")
	} else if n > 0 {
		metrics.StuckMessagesReclaimedTotal.Add(float64(n))
		w.log.Warn().Int64("count", n).Msg("reclaimed stuck messages")
	}

	depth, err := w.store.CountQueued(ctx, w.opts.MessageTypes, w.opts.MaxRetries)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to count queued messages")
		return
	}
	metrics.QueueDepth.Set(float64(depth))
}

// processNext runs one iteration: select, claim, load, attempt.
func (w *Worker) processNext(ctx context.Context) outcome {
	msg, err := w.store.FindOldestEligible(ctx, w.opts.MessageTypes, w.opts.MaxRetries)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("failed to poll for eligible message")
		}
		return outcomeStoreError
	}
	if msg == nil {
		return outcomeIdle
	}

	claimed, err := w.store.Claim(ctx, msg.ID)
	if err != nil {
		w.log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("claim failed")
		return outcomeStoreError
	}
	if !claimed {
		metrics.ClaimConflictsTotal.Inc()
		w.log.Debug().Str("message_id", msg.ID.String()).Msg("lost claim to another worker")
		return outcomeConflict
	}

	sc, err := w.store.LoadSendContext(ctx, msg.ID)
	if err != nil {
		// The claim stands; the sweeper returns the message to the queue
		// once the lease expires.
		w.log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("failed to load send context")
		return outcomeStoreError
	}

	return w.attempt(ctx, sc)
}

// attempt delivers one claimed message and reconciles the outcome.
func (w *Worker) attempt(ctx context.Context, sc *storage.SendContext) outcome {
	msg := &sc.Message
	log := w.log.With().
		Str("message_id", msg.ID.String()).
		Str("vendor_id", msg.VendorID.String()).
		Str("type", string(msg.Type)).
		Int("retry_count", msg.RetryCount).
		Logger()

	var deliveryID *uuid.UUID
	switch len(sc.Deliveries) {
	case 1:
		deliveryID = &sc.Deliveries[0].ID
	case 0:
		return w.failLocal(ctx, log, sc, nil, errCodeDeliveryMissing, "message has no delivery record")
	default:
		return w.failLocal(ctx, log, sc, nil, errCodeDeliveryCardinality, "message has multiple delivery records")
	}

	if sc.Vendor.PhoneNumberID == "" || sc.Vendor.AccessTokenEnc == "" {
		return w.failLocal(ctx, log, sc, deliveryID, errCodeVendorUnconfigured, "vendor integration is not configured")
	}

	accessToken, err := w.vault.Decrypt(sc.Vendor.AccessTokenEnc)
	if err != nil {
		return w.failLocal(ctx, log, sc, deliveryID, errCodeVendorTokenDecrypt, "vendor access token could not be decrypted")
	}

	recipient := NormalizePhone(sc.LeadPhone, w.opts.CountryPrefix)

	sendCtx, cancel := context.WithTimeout(ctx, w.opts.SendTimeout)
	defer cancel()

	var result *gateway.SendResult
	start := time.Now()

	switch msg.Type {
	case storage.MessageTypeImage:
		switch len(sc.Media) {
		case 1:
		case 0:
			return w.failLocal(ctx, log, sc, deliveryID, errCodeMediaMissing, "image message has no media record")
		default:
			return w.failLocal(ctx, log, sc, deliveryID, errCodeMediaCardinality, "image message has multiple media records")
		}
		result, err = w.gateway.SendImage(sendCtx, gateway.ImageSend{
			PhoneNumberID: sc.Vendor.PhoneNumberID,
			AccessToken:   accessToken,
			Recipient:     recipient,
			ImageURL:      sc.Media[0].SourceURL,
			Caption:       sc.Media[0].Caption,
		})
	case storage.MessageTypeTemplate:
		if msg.TemplateName == "" {
			return w.failLocal(ctx, log, sc, deliveryID, errCodeTemplateMissing, "template message has no template name")
		}
		result, err = w.gateway.SendTemplate(sendCtx, gateway.TemplateSend{
			PhoneNumberID: sc.Vendor.PhoneNumberID,
			AccessToken:   accessToken,
			Recipient:     recipient,
			TemplateName:  msg.TemplateName,
			LanguageCode:  msg.TemplateLang,
			BodyParams:    msg.TemplateParams,
		})
	case storage.MessageTypeText:
		result, err = w.gateway.SendText(sendCtx, gateway.TextSend{
			PhoneNumberID: sc.Vendor.PhoneNumberID,
			AccessToken:   accessToken,
			Recipient:     recipient,
			Body:          msg.Body,
		})
	default:
		return w.failLocal(ctx, log, sc, deliveryID, errCodeUnsupportedType, "unsupported message type")
	}

	metrics.SendDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		return w.failSend(ctx, log, sc, deliveryID, err)
	}

	if err := w.store.MarkSent(ctx, msg.ID, *deliveryID, result.ProviderMessageID); err != nil {
		// Sent but not recorded: leave the message in processing so the
		// sweeper requeues it after the lease. Double-send risk is accepted
		// over losing the message.
		log.Error().Err(err).Str("provider_message_id", result.ProviderMessageID).
			Msg("sent but failed to record outcome")
		return outcomeStoreError
	}

	metrics.MessagesProcessedTotal.WithLabelValues("sent").Inc()
	log.Info().Str("provider_message_id", result.ProviderMessageID).Msg("message delivered")
	return outcomeSent
}

// failLocal records a precondition failure. No gateway call was made; the
// attempt still consumes retry budget because the cause will not resolve on
// its own.
func (w *Worker) failLocal(ctx context.Context, log zerolog.Logger, sc *storage.SendContext, deliveryID *uuid.UUID, code, detail string) outcome {
	return w.recordFailure(ctx, log, sc, deliveryID, code, detail, false)
}

// failSend records a gateway failure, disabling the vendor integration when
// the provider reported an invalid credential.
func (w *Worker) failSend(ctx context.Context, log zerolog.Logger, sc *storage.SendContext, deliveryID *uuid.UUID, sendErr error) outcome {
	return w.recordFailure(ctx, log, sc, deliveryID, gateway.ErrorCode(sendErr), sendErr.Error(), gateway.IsAuthError(sendErr))
}

func (w *Worker) recordFailure(ctx context.Context, log zerolog.Logger, sc *storage.SendContext, deliveryID *uuid.UUID, code, detail string, authFailure bool) outcome {
	exhausted := sc.Message.RetryCount+1 >= w.opts.MaxRetries

	err := w.store.MarkFailed(ctx, storage.MarkFailedParams{
		MessageID:     sc.Message.ID,
		DeliveryID:    deliveryID,
		ErrorCode:     code,
		ErrorText:     detail,
		Exhausted:     exhausted,
		DisableVendor: authFailure,
		VendorID:      sc.Vendor.ID,
		VendorError:   detail,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to record failure")
		return outcomeStoreError
	}

	if authFailure {
		metrics.VendorsDisabledTotal.Inc()
		log.Warn().Str("error_code", code).Msg("vendor integration disabled after auth failure")
	}

	if exhausted {
		metrics.MessagesProcessedTotal.WithLabelValues("failed").Inc()
		log.Warn().Str("error_code", code).Str("detail", detail).Msg("message failed, retries exhausted")
	} else {
		metrics.MessagesProcessedTotal.WithLabelValues("requeued").Inc()
		log.Info().Str("error_code", code).Str("detail", detail).Msg("message requeued for retry")
	}

	return outcomeFailed
}
