package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/haneul/wadispatch/internal/storage"
)

// Store is the persistence surface the API handlers need. *storage.Store
// satisfies it; tests substitute a mock.
type Store interface {
	CreateOutbound(ctx context.Context, p storage.CreateOutboundParams) (*storage.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*storage.Message, error)
	ListMessages(ctx context.Context, p storage.ListMessagesParams) ([]storage.Message, error)
	RequeueFailed(ctx context.Context, id uuid.UUID) (bool, error)

	CreateVendor(ctx context.Context, p storage.CreateVendorParams) (*storage.Vendor, error)
	GetVendor(ctx context.Context, id uuid.UUID) (*storage.Vendor, error)
	ListVendorsByAPIKeyPrefix(ctx context.Context, prefix string) ([]storage.Vendor, error)
	UpdateVendorIntegration(ctx context.Context, id uuid.UUID, phoneNumberID, accessTokenEnc string) (*storage.Vendor, error)

	CreateLead(ctx context.Context, vendorID uuid.UUID, name, phone string) (*storage.Lead, error)
	CreateConversation(ctx context.Context, vendorID, leadID uuid.UUID) (*storage.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*storage.Conversation, error)

	GetDeliveryByProviderMessageID(ctx context.Context, providerMessageID string) (*storage.MessageDelivery, error)
	UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status storage.DeliveryStatus) error
}

// Notifier wakes the delivery worker after an enqueue. Optional.
type Notifier interface {
	Notify(ctx context.Context)
}

// Encrypter seals vendor access tokens for at-rest storage.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}
