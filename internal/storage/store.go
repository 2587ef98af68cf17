package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

// Store provides the query layer over the delivery data model.
type Store struct {
	db *DB
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

const messageColumns = `id, vendor_id, conversation_id, direction, channel, type, status, retry_count, error_code, body, template_name, template_lang, template_params, claimed_at, created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.VendorID, &m.ConversationID, &m.Direction, &m.Channel,
		&m.Type, &m.Status, &m.RetryCount, &m.ErrorCode,
		&m.Body, &m.TemplateName, &m.TemplateLang, &m.TemplateParams,
		&m.ClaimedAt, &m.CreatedAt)
	return m, err
}

func typeStrings(types []MessageType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// FindOldestEligible returns the oldest queued message of one of the given
// types with retry budget remaining, or nil when the queue is drained.
func (s *Store) FindOldestEligible(ctx context.Context, types []MessageType, maxRetries int) (*Message, error) {
	row := s.db.Pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE status = 'queued' AND type = ANY($1) AND retry_count < $2
		ORDER BY created_at
		LIMIT 1
	`, typeStrings(types), maxRetries)

	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find eligible message: %w", err)
	}
	return &m, nil
}

// Claim transitions a message from queued to processing. Returns false when
// zero rows were affected, meaning another worker claimed it first. This
// conditional update is the only mutual exclusion between worker processes.
func (s *Store) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE messages SET status = 'processing', claimed_at = now()
		WHERE id = $1 AND status = 'queued'
	`, id)
	if err != nil {
		return false, fmt.Errorf("claim message %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// LoadSendContext loads the claimed message with its vendor, lead phone,
// media, and delivery rows. All media/delivery rows are returned so the
// caller can verify the one-media/one-delivery cardinality.
func (s *Store) LoadSendContext(ctx context.Context, messageID uuid.UUID) (*SendContext, error) {
	sc := &SendContext{}

	row := s.db.Pool.QueryRow(ctx, `
		SELECT m.id, m.vendor_id, m.conversation_id, m.direction, m.channel, m.type,
		       m.status, m.retry_count, m.error_code,
		       m.body, m.template_name, m.template_lang, m.template_params,
		       m.claimed_at, m.created_at,
		       v.id, v.name, v.phone_number_id, v.access_token_enc, v.whatsapp_status,
		       v.last_error, v.api_key_prefix, v.api_key_hash, v.created_at,
		       l.phone
		FROM messages m
		JOIN vendors v ON v.id = m.vendor_id
		JOIN conversations c ON c.id = m.conversation_id
		JOIN leads l ON l.id = c.lead_id
		WHERE m.id = $1
	`, messageID)

	m := &sc.Message
	v := &sc.Vendor
	err := row.Scan(&m.ID, &m.VendorID, &m.ConversationID, &m.Direction, &m.Channel, &m.Type,
		&m.Status, &m.RetryCount, &m.ErrorCode,
		&m.Body, &m.TemplateName, &m.TemplateLang, &m.TemplateParams,
		&m.ClaimedAt, &m.CreatedAt,
		&v.ID, &v.Name, &v.PhoneNumberID, &v.AccessTokenEnc, &v.WhatsappStatus,
		&v.LastError, &v.APIKeyPrefix, &v.APIKeyHash, &v.CreatedAt,
		&sc.LeadPhone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load send context %s: %w", messageID, err)
	}

	mediaRows, err := s.db.Pool.Query(ctx, `
		SELECT id, message_id, media_type, mime_type, source_url, caption
		FROM message_media WHERE message_id = $1 ORDER BY id
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("load media %s: %w", messageID, err)
	}
	defer mediaRows.Close()
	for mediaRows.Next() {
		var md MessageMedia
		if err := mediaRows.Scan(&md.ID, &md.MessageID, &md.MediaType, &md.MimeType, &md.SourceURL, &md.Caption); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		sc.Media = append(sc.Media, md)
	}
	if err := mediaRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}

	deliveryRows, err := s.db.Pool.Query(ctx, `
		SELECT id, message_id, media_id, conversation_id, status, provider_message_id, error_text
		FROM message_deliveries WHERE message_id = $1 ORDER BY id
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("load deliveries %s: %w", messageID, err)
	}
	defer deliveryRows.Close()
	for deliveryRows.Next() {
		var d MessageDelivery
		if err := deliveryRows.Scan(&d.ID, &d.MessageID, &d.MediaID, &d.ConversationID, &d.Status, &d.ProviderMessageID, &d.ErrorText); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		sc.Deliveries = append(sc.Deliveries, d)
	}
	if err := deliveryRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}

	return sc, nil
}

// MarkSent records a successful delivery: message and delivery flip to sent
// with the provider message id attached, in one transaction.
func (s *Store) MarkSent(ctx context.Context, messageID, deliveryID uuid.UUID, providerMessageID string) error {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin mark sent: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE messages SET status = 'sent', error_code = NULL WHERE id = $1
	`, messageID); err != nil {
		return fmt.Errorf("mark message sent: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE message_deliveries SET status = 'sent', provider_message_id = $2, error_text = NULL
		WHERE id = $1
	`, deliveryID, providerMessageID); err != nil {
		return fmt.Errorf("mark delivery sent: %w", err)
	}

	return tx.Commit(ctx)
}

// MarkFailedParams carries the outcome of a failed delivery attempt.
type MarkFailedParams struct {
	MessageID uuid.UUID
	// DeliveryID is nil when no delivery row exists for the message.
	DeliveryID *uuid.UUID
	ErrorCode  string
	ErrorText  string
	// Exhausted marks the message terminally failed instead of requeuing it.
	Exhausted bool
	// DisableVendor flips the vendor integration to error in the same
	// transaction (gateway reported an invalid credential).
	DisableVendor bool
	VendorID      uuid.UUID
	VendorError   string
}

// MarkFailed records a failed attempt: the retry counter is incremented and
// the message either requeued or terminally failed, the delivery updated, and
// optionally the vendor disabled, all atomically.
func (s *Store) MarkFailed(ctx context.Context, p MarkFailedParams) error {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin mark failed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status := MessageStatusQueued
	if p.Exhausted {
		status = MessageStatusFailed
	}

	if _, err := tx.Exec(ctx, `
		UPDATE messages SET status = $2, retry_count = retry_count + 1, error_code = $3, claimed_at = NULL
		WHERE id = $1
	`, p.MessageID, string(status), p.ErrorCode); err != nil {
		return fmt.Errorf("mark message failed: %w", err)
	}

	if p.DeliveryID != nil {
		deliveryStatus := DeliveryStatusQueued
		if p.Exhausted {
			deliveryStatus = DeliveryStatusFailed
		}
		if _, err := tx.Exec(ctx, `
			UPDATE message_deliveries SET status = $2, error_text = $3 WHERE id = $1
		`, *p.DeliveryID, string(deliveryStatus), p.ErrorText); err != nil {
			return fmt.Errorf("mark delivery failed: %w", err)
		}
	}

	if p.DisableVendor {
		if _, err := tx.Exec(ctx, `
			UPDATE vendors SET whatsapp_status = 'error', last_error = $2 WHERE id = $1
		`, p.VendorID, p.VendorError); err != nil {
			return fmt.Errorf("disable vendor: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ReclaimStuck requeues messages stuck in processing longer than the lease
// duration, e.g. after a worker crash between claim and reconcile. Returns
// the number of reclaimed messages.
func (s *Store) ReclaimStuck(ctx context.Context, lease time.Duration) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE messages SET status = 'queued', claimed_at = NULL
		WHERE status = 'processing' AND claimed_at < now() - $1::interval
	`, lease.String())
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountQueued returns the number of messages currently eligible for delivery.
func (s *Store) CountQueued(ctx context.Context, types []MessageType, maxRetries int) (int64, error) {
	var n int64
	err := s.db.Pool.QueryRow(ctx, `
		SELECT count(*) FROM messages
		WHERE status = 'queued' AND type = ANY($1) AND retry_count < $2
	`, typeStrings(types), maxRetries).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count queued: %w", err)
	}
	return n, nil
}

// OutboundMediaParams describes the media attachment of an image message.
type OutboundMediaParams struct {
	MediaType string
	MimeType  string
	SourceURL string
	Caption   string
}

// CreateOutboundParams carries the producer-side insert of one outbound
// message with its delivery record and optional media.
type CreateOutboundParams struct {
	VendorID       uuid.UUID
	ConversationID uuid.UUID
	Type           MessageType
	Body           string
	TemplateName   string
	TemplateLang   string
	TemplateParams []string
	Media          *OutboundMediaParams
}

// CreateOutbound inserts the message, its optional media row, and its
// delivery record in one transaction, all in queued state.
func (s *Store) CreateOutbound(ctx context.Context, p CreateOutboundParams) (*Message, error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin create outbound: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	templateParams := p.TemplateParams
	if templateParams == nil {
		templateParams = []string{}
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO messages (vendor_id, conversation_id, type, body, template_name, template_lang, template_params)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+messageColumns+`
	`, p.VendorID, p.ConversationID, string(p.Type), p.Body, p.TemplateName, p.TemplateLang, templateParams)
	m, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	var mediaID *uuid.UUID
	if p.Media != nil {
		var id uuid.UUID
		err = tx.QueryRow(ctx, `
			INSERT INTO message_media (message_id, media_type, mime_type, source_url, caption)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, m.ID, p.Media.MediaType, p.Media.MimeType, p.Media.SourceURL, p.Media.Caption).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert media: %w", err)
		}
		mediaID = &id
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO message_deliveries (message_id, media_id, conversation_id)
		VALUES ($1, $2, $3)
	`, m.ID, mediaID, p.ConversationID); err != nil {
		return nil, fmt.Errorf("insert delivery: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create outbound: %w", err)
	}
	return &m, nil
}

// GetMessage returns one message by id.
func (s *Store) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return &m, nil
}

// ListMessagesParams filters the message listing.
type ListMessagesParams struct {
	VendorID uuid.UUID
	Status   *MessageStatus
	Limit    int
	Offset   int
}

// ListMessages returns a vendor's messages, newest first.
func (s *Store) ListMessages(ctx context.Context, p ListMessagesParams) ([]Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages WHERE vendor_id = $1`
	args := []any{p.VendorID}
	if p.Status != nil {
		q += ` AND status = $2`
		args = append(args, string(*p.Status))
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RequeueFailed resets a terminally failed message for another delivery pass.
// Returns false when the message is not in failed state.
func (s *Store) RequeueFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE messages SET status = 'queued', retry_count = 0, error_code = NULL, claimed_at = NULL
		WHERE id = $1 AND status = 'failed'
	`, id)
	if err != nil {
		return false, fmt.Errorf("requeue message %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

const vendorColumns = `id, name, phone_number_id, access_token_enc, whatsapp_status, last_error, api_key_prefix, api_key_hash, created_at`

func scanVendor(row pgx.Row) (Vendor, error) {
	var v Vendor
	err := row.Scan(&v.ID, &v.Name, &v.PhoneNumberID, &v.AccessTokenEnc, &v.WhatsappStatus,
		&v.LastError, &v.APIKeyPrefix, &v.APIKeyHash, &v.CreatedAt)
	return v, err
}

// CreateVendorParams carries a new tenant registration.
type CreateVendorParams struct {
	Name         string
	APIKeyPrefix string
	APIKeyHash   string
}

// CreateVendor inserts a vendor in pending state.
func (s *Store) CreateVendor(ctx context.Context, p CreateVendorParams) (*Vendor, error) {
	row := s.db.Pool.QueryRow(ctx, `
		INSERT INTO vendors (name, api_key_prefix, api_key_hash)
		VALUES ($1, $2, $3)
		RETURNING `+vendorColumns+`
	`, p.Name, p.APIKeyPrefix, p.APIKeyHash)
	v, err := scanVendor(row)
	if err != nil {
		return nil, fmt.Errorf("create vendor: %w", err)
	}
	return &v, nil
}

// GetVendor returns one vendor by id.
func (s *Store) GetVendor(ctx context.Context, id uuid.UUID) (*Vendor, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = $1`, id)
	v, err := scanVendor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vendor %s: %w", id, err)
	}
	return &v, nil
}

// ListVendorsByAPIKeyPrefix returns the vendors sharing a key prefix. The
// caller compares the full key against each bcrypt hash.
func (s *Store) ListVendorsByAPIKeyPrefix(ctx context.Context, prefix string) ([]Vendor, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE api_key_prefix = $1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list vendors by prefix: %w", err)
	}
	defer rows.Close()

	var out []Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateVendorIntegration stores a tenant's WhatsApp credentials (token
// already vault-encrypted) and marks the integration connected.
func (s *Store) UpdateVendorIntegration(ctx context.Context, id uuid.UUID, phoneNumberID, accessTokenEnc string) (*Vendor, error) {
	row := s.db.Pool.QueryRow(ctx, `
		UPDATE vendors
		SET phone_number_id = $2, access_token_enc = $3, whatsapp_status = 'connected', last_error = NULL
		WHERE id = $1
		RETURNING `+vendorColumns+`
	`, id, phoneNumberID, accessTokenEnc)
	v, err := scanVendor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update vendor integration %s: %w", id, err)
	}
	return &v, nil
}

// UpdateVendorStatus sets the integration health of a vendor.
func (s *Store) UpdateVendorStatus(ctx context.Context, id uuid.UUID, status VendorStatus, errorText string) error {
	var lastError *string
	if errorText != "" {
		lastError = &errorText
	}
	_, err := s.db.Pool.Exec(ctx, `
		UPDATE vendors SET whatsapp_status = $2, last_error = $3 WHERE id = $1
	`, id, string(status), lastError)
	if err != nil {
		return fmt.Errorf("update vendor status %s: %w", id, err)
	}
	return nil
}

// CreateLead inserts a lead for a vendor.
func (s *Store) CreateLead(ctx context.Context, vendorID uuid.UUID, name, phone string) (*Lead, error) {
	var l Lead
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO leads (vendor_id, name, phone) VALUES ($1, $2, $3)
		RETURNING id, vendor_id, name, phone
	`, vendorID, name, phone).Scan(&l.ID, &l.VendorID, &l.Name, &l.Phone)
	if err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	return &l, nil
}

// GetConversation returns one conversation by id.
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	var c Conversation
	err := s.db.Pool.QueryRow(ctx, `
		SELECT id, vendor_id, lead_id FROM conversations WHERE id = $1
	`, id).Scan(&c.ID, &c.VendorID, &c.LeadID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return &c, nil
}

// CreateConversation links a vendor and a lead.
func (s *Store) CreateConversation(ctx context.Context, vendorID, leadID uuid.UUID) (*Conversation, error) {
	var c Conversation
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO conversations (vendor_id, lead_id) VALUES ($1, $2)
		RETURNING id, vendor_id, lead_id
	`, vendorID, leadID).Scan(&c.ID, &c.VendorID, &c.LeadID)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &c, nil
}

// GetDeliveryByProviderMessageID resolves a delivery from the provider's
// message id, used by status webhooks.
func (s *Store) GetDeliveryByProviderMessageID(ctx context.Context, providerMessageID string) (*MessageDelivery, error) {
	var d MessageDelivery
	err := s.db.Pool.QueryRow(ctx, `
		SELECT id, message_id, media_id, conversation_id, status, provider_message_id, error_text
		FROM message_deliveries WHERE provider_message_id = $1
	`, providerMessageID).Scan(&d.ID, &d.MessageID, &d.MediaID, &d.ConversationID, &d.Status, &d.ProviderMessageID, &d.ErrorText)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery by provider id: %w", err)
	}
	return &d, nil
}

// UpdateDeliveryStatus applies a provider webhook status to a delivery.
func (s *Store) UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status DeliveryStatus) error {
	_, err := s.db.Pool.Exec(ctx, `
		UPDATE message_deliveries SET status = $2 WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("update delivery status %s: %w", id, err)
	}
	return nil
}
