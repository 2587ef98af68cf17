package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/haneul/wadispatch/internal/storage"
)

// mockStore implements Store with overridable function fields.
type mockStore struct {
	createOutboundFunc func(ctx context.Context, p storage.CreateOutboundParams) (*storage.Message, error)
	getMessageFunc     func(ctx context.Context, id uuid.UUID) (*storage.Message, error)
	listMessagesFunc   func(ctx context.Context, p storage.ListMessagesParams) ([]storage.Message, error)
	requeueFailedFunc  func(ctx context.Context, id uuid.UUID) (bool, error)

	createVendorFunc      func(ctx context.Context, p storage.CreateVendorParams) (*storage.Vendor, error)
	getVendorFunc         func(ctx context.Context, id uuid.UUID) (*storage.Vendor, error)
	listVendorsFunc       func(ctx context.Context, prefix string) ([]storage.Vendor, error)
	updateIntegrationFunc func(ctx context.Context, id uuid.UUID, phoneNumberID, accessTokenEnc string) (*storage.Vendor, error)

	createLeadFunc         func(ctx context.Context, vendorID uuid.UUID, name, phone string) (*storage.Lead, error)
	createConversationFunc func(ctx context.Context, vendorID, leadID uuid.UUID) (*storage.Conversation, error)
	getConversationFunc    func(ctx context.Context, id uuid.UUID) (*storage.Conversation, error)

	getDeliveryFunc          func(ctx context.Context, providerMessageID string) (*storage.MessageDelivery, error)
	updateDeliveryStatusFunc func(ctx context.Context, id uuid.UUID, status storage.DeliveryStatus) error
}

func (m *mockStore) CreateOutbound(ctx context.Context, p storage.CreateOutboundParams) (*storage.Message, error) {
	return m.createOutboundFunc(ctx, p)
}

func (m *mockStore) GetMessage(ctx context.Context, id uuid.UUID) (*storage.Message, error) {
	return m.getMessageFunc(ctx, id)
}

func (m *mockStore) ListMessages(ctx context.Context, p storage.ListMessagesParams) ([]storage.Message, error) {
	return m.listMessagesFunc(ctx, p)
}

func (m *mockStore) RequeueFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	return m.requeueFailedFunc(ctx, id)
}

func (m *mockStore) CreateVendor(ctx context.Context, p storage.CreateVendorParams) (*storage.Vendor, error) {
	return m.createVendorFunc(ctx, p)
}

func (m *mockStore) GetVendor(ctx context.Context, id uuid.UUID) (*storage.Vendor, error) {
	return m.getVendorFunc(ctx, id)
}

func (m *mockStore) ListVendorsByAPIKeyPrefix(ctx context.Context, prefix string) ([]storage.Vendor, error) {
	return m.listVendorsFunc(ctx, prefix)
}

func (m *mockStore) UpdateVendorIntegration(ctx context.Context, id uuid.UUID, phoneNumberID, accessTokenEnc string) (*storage.Vendor, error) {
	return m.updateIntegrationFunc(ctx, id, phoneNumberID, accessTokenEnc)
}

func (m *mockStore) CreateLead(ctx context.Context, vendorID uuid.UUID, name, phone string) (*storage.Lead, error) {
	return m.createLeadFunc(ctx, vendorID, name, phone)
}

func (m *mockStore) CreateConversation(ctx context.Context, vendorID, leadID uuid.UUID) (*storage.Conversation, error) {
	return m.createConversationFunc(ctx, vendorID, leadID)
}

func (m *mockStore) GetConversation(ctx context.Context, id uuid.UUID) (*storage.Conversation, error) {
	return m.getConversationFunc(ctx, id)
}

func (m *mockStore) GetDeliveryByProviderMessageID(ctx context.Context, providerMessageID string) (*storage.MessageDelivery, error) {
	return m.getDeliveryFunc(ctx, providerMessageID)
}

func (m *mockStore) UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status storage.DeliveryStatus) error {
	return m.updateDeliveryStatusFunc(ctx, id, status)
}

// mockNotifier counts nudges.
type mockNotifier struct {
	calls int
}

func (m *mockNotifier) Notify(ctx context.Context) { m.calls++ }

// mockEncrypter marks ciphertext recognizably without real crypto.
type mockEncrypter struct{}

func (mockEncrypter) Encrypt(plaintext string) (string, error) {
	return "enc(" + plaintext + ")", nil
}
