package storage

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus is the worker-owned lifecycle state of an outbound message.
// Allowed transitions: queued -> processing -> {sent | queued | failed}.
type MessageStatus string

const (
	MessageStatusQueued     MessageStatus = "queued"
	MessageStatusProcessing MessageStatus = "processing"
	MessageStatusSent       MessageStatus = "sent"
	MessageStatusFailed     MessageStatus = "failed"
)

// MessageType identifies the payload shape of an outbound message.
type MessageType string

const (
	MessageTypeImage    MessageType = "image"
	MessageTypeTemplate MessageType = "template"
	MessageTypeText     MessageType = "text"
)

// DeliveryStatus tracks the provider-side receipt for one recipient.
// queued/sent/failed are worker-owned; delivered/read arrive via webhooks.
type DeliveryStatus string

const (
	DeliveryStatusQueued    DeliveryStatus = "queued"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusRead      DeliveryStatus = "read"
)

// VendorStatus is the health of a tenant's WhatsApp integration.
type VendorStatus string

const (
	VendorStatusConnected VendorStatus = "connected"
	VendorStatusPending   VendorStatus = "pending"
	VendorStatusError     VendorStatus = "error"
)

// Message is one outbound communication unit. Created queued by the producer
// side; mutated only by the delivery worker afterwards, never deleted.
type Message struct {
	ID             uuid.UUID
	VendorID       uuid.UUID
	ConversationID uuid.UUID
	Direction      string
	Channel        string
	Type           MessageType
	Status         MessageStatus
	RetryCount     int
	ErrorCode      *string
	// Body is the text for type text; TemplateName/Lang/Params are the
	// template reference for type template. Unused fields are empty.
	Body           string
	TemplateName   string
	TemplateLang   string
	TemplateParams []string
	ClaimedAt      *time.Time
	CreatedAt      time.Time
}

// MessageMedia is the attachment of an image message. Exactly one row per
// image message is a producer-side invariant; the worker rejects violations.
type MessageMedia struct {
	ID        uuid.UUID
	MessageID uuid.UUID
	MediaType string
	MimeType  string
	SourceURL string
	Caption   string
}

// MessageDelivery is the per-recipient provider receipt for a message. Its
// status is updated in the same transaction as the parent message.
type MessageDelivery struct {
	ID                uuid.UUID
	MessageID         uuid.UUID
	MediaID           *uuid.UUID
	ConversationID    uuid.UUID
	Status            DeliveryStatus
	ProviderMessageID *string
	ErrorText         *string
}

// Vendor holds one tenant's WhatsApp Cloud API integration.
type Vendor struct {
	ID             uuid.UUID
	Name           string
	PhoneNumberID  string
	AccessTokenEnc string
	WhatsappStatus VendorStatus
	LastError      *string
	APIKeyPrefix   string
	APIKeyHash     string
	CreatedAt      time.Time
}

// Lead is the end recipient of a conversation. The phone number is stored as
// entered by the tenant; the worker normalizes it before sending.
type Lead struct {
	ID       uuid.UUID
	VendorID uuid.UUID
	Name     string
	Phone    string
}

// Conversation links a vendor to a lead.
type Conversation struct {
	ID       uuid.UUID
	VendorID uuid.UUID
	LeadID   uuid.UUID
}

// SendContext is everything the worker needs to attempt delivery of one
// claimed message. Media and Deliveries carry all rows found so the worker
// can detect cardinality violations instead of silently indexing.
type SendContext struct {
	Message    Message
	Vendor     Vendor
	LeadPhone  string
	Media      []MessageMedia
	Deliveries []MessageDelivery
}
