package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haneul/wadispatch/internal/gateway"
	"github.com/haneul/wadispatch/internal/storage"
)

type mockStore struct {
	findFunc     func(ctx context.Context, types []storage.MessageType, maxRetries int) (*storage.Message, error)
	claimFunc    func(ctx context.Context, id uuid.UUID) (bool, error)
	loadFunc     func(ctx context.Context, messageID uuid.UUID) (*storage.SendContext, error)
	markSentFunc func(ctx context.Context, messageID, deliveryID uuid.UUID, providerMessageID string) error
	markFailFunc func(ctx context.Context, p storage.MarkFailedParams) error

	sentCalls   []sentCall
	failedCalls []storage.MarkFailedParams
}

type sentCall struct {
	MessageID         uuid.UUID
	DeliveryID        uuid.UUID
	ProviderMessageID string
}

func (m *mockStore) FindOldestEligible(ctx context.Context, types []storage.MessageType, maxRetries int) (*storage.Message, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, types, maxRetries)
	}
	return nil, nil
}

func (m *mockStore) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.claimFunc != nil {
		return m.claimFunc(ctx, id)
	}
	return true, nil
}

func (m *mockStore) LoadSendContext(ctx context.Context, messageID uuid.UUID) (*storage.SendContext, error) {
	if m.loadFunc != nil {
		return m.loadFunc(ctx, messageID)
	}
	return nil, storage.ErrNotFound
}

func (m *mockStore) MarkSent(ctx context.Context, messageID, deliveryID uuid.UUID, providerMessageID string) error {
	m.sentCalls = append(m.sentCalls, sentCall{messageID, deliveryID, providerMessageID})
	if m.markSentFunc != nil {
		return m.markSentFunc(ctx, messageID, deliveryID, providerMessageID)
	}
	return nil
}

func (m *mockStore) MarkFailed(ctx context.Context, p storage.MarkFailedParams) error {
	m.failedCalls = append(m.failedCalls, p)
	if m.markFailFunc != nil {
		return m.markFailFunc(ctx, p)
	}
	return nil
}

func (m *mockStore) ReclaimStuck(ctx context.Context, lease time.Duration) (int64, error) {
	return 0, nil
}

func (m *mockStore) CountQueued(ctx context.Context, types []storage.MessageType, maxRetries int) (int64, error) {
	return 0, nil
}

type mockGateway struct {
	imageFunc    func(ctx context.Context, p gateway.ImageSend) (*gateway.SendResult, error)
	templateFunc func(ctx context.Context, p gateway.TemplateSend) (*gateway.SendResult, error)
	textFunc     func(ctx context.Context, p gateway.TextSend) (*gateway.SendResult, error)

	imageCalls    []gateway.ImageSend
	templateCalls []gateway.TemplateSend
	textCalls     []gateway.TextSend
}

func (m *mockGateway) SendImage(ctx context.Context, p gateway.ImageSend) (*gateway.SendResult, error) {
	m.imageCalls = append(m.imageCalls, p)
	if m.imageFunc != nil {
		return m.imageFunc(ctx, p)
	}
	return &gateway.SendResult{ProviderMessageID: "wamid.123"}, nil
}

func (m *mockGateway) SendTemplate(ctx context.Context, p gateway.TemplateSend) (*gateway.SendResult, error) {
	m.templateCalls = append(m.templateCalls, p)
	if m.templateFunc != nil {
		return m.templateFunc(ctx, p)
	}
	return &gateway.SendResult{ProviderMessageID: "wamid.123"}, nil
}

func (m *mockGateway) SendText(ctx context.Context, p gateway.TextSend) (*gateway.SendResult, error) {
	m.textCalls = append(m.textCalls, p)
	if m.textFunc != nil {
		return m.textFunc(ctx, p)
	}
	return &gateway.SendResult{ProviderMessageID: "wamid.123"}, nil
}

func (m *mockGateway) totalCalls() int {
	return len(m.imageCalls) + len(m.templateCalls) + len(m.textCalls)
}

type mockVault struct {
	decryptFunc func(encoded string) (string, error)
}

func (m *mockVault) Decrypt(encoded string) (string, error) {
	if m.decryptFunc != nil {
		return m.decryptFunc(encoded)
	}
	return "decrypted-" + encoded, nil
}

func newTestWorker(store *mockStore, gw *mockGateway, vault *mockVault) *Worker {
	w := New(store, gw, vault, nil, Options{MaxRetries: 2, CountryPrefix: "91"}, zerolog.Nop())
	w.sleep = func(ctx context.Context, d time.Duration) {}
	return w
}

// imageSendContext builds a fully valid claimed image message.
func imageSendContext(retryCount int) *storage.SendContext {
	msgID := uuid.New()
	vendorID := uuid.New()
	return &storage.SendContext{
		Message: storage.Message{
			ID:         msgID,
			VendorID:   vendorID,
			Type:       storage.MessageTypeImage,
			Status:     storage.MessageStatusProcessing,
			RetryCount: retryCount,
		},
		Vendor: storage.Vendor{
			ID:             vendorID,
			PhoneNumberID:  "1055123",
			AccessTokenEnc: "enc-token",
			WhatsappStatus: storage.VendorStatusConnected,
		},
		LeadPhone: "98765 43210",
		Media: []storage.MessageMedia{{
			ID:        uuid.New(),
			MessageID: msgID,
			MediaType: "image",
			MimeType:  "image/jpeg",
			SourceURL: "https://cdn.example.com/photo.jpg",
			Caption:   "hello",
		}},
		Deliveries: []storage.MessageDelivery{{
			ID:        uuid.New(),
			MessageID: msgID,
			Status:    storage.DeliveryStatusQueued,
		}},
	}
}

func TestAttempt_HappyPath(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{}
	sc := imageSendContext(0)

	got := newTestWorker(store, gw, &mockVault{}).attempt(context.Background(), sc)

	if got != outcomeSent {
		t.Fatalf("attempt() = %v, want outcomeSent", got)
	}
	if len(gw.imageCalls) != 1 {
		t.Fatalf("image sends = %d, want 1", len(gw.imageCalls))
	}

	call := gw.imageCalls[0]
	if call.PhoneNumberID != "1055123" {
		t.Errorf("PhoneNumberID = %q, want %q", call.PhoneNumberID, "1055123")
	}
	if call.AccessToken != "decrypted-enc-token" {
		t.Errorf("AccessToken = %q, want the decrypted token", call.AccessToken)
	}
	if call.Recipient != "919876543210" {
		t.Errorf("Recipient = %q, want %q", call.Recipient, "919876543210")
	}
	if call.ImageURL != "https://cdn.example.com/photo.jpg" || call.Caption != "hello" {
		t.Errorf("media fields = (%q, %q), want media row values", call.ImageURL, call.Caption)
	}

	if len(store.sentCalls) != 1 {
		t.Fatalf("MarkSent calls = %d, want 1", len(store.sentCalls))
	}
	sent := store.sentCalls[0]
	if sent.MessageID != sc.Message.ID || sent.DeliveryID != sc.Deliveries[0].ID {
		t.Error("MarkSent called with wrong message/delivery ids")
	}
	if sent.ProviderMessageID != "wamid.123" {
		t.Errorf("ProviderMessageID = %q, want %q", sent.ProviderMessageID, "wamid.123")
	}
	if len(store.failedCalls) != 0 {
		t.Errorf("MarkFailed calls = %d, want 0", len(store.failedCalls))
	}
}

func TestAttempt_ExhaustedRetries(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{
		imageFunc: func(ctx context.Context, p gateway.ImageSend) (*gateway.SendResult, error) {
			return nil, &gateway.APIError{StatusCode: 500, Message: "server error"}
		},
	}
	sc := imageSendContext(1) // one attempt already consumed, MaxRetries=2

	got := newTestWorker(store, gw, &mockVault{}).attempt(context.Background(), sc)

	if got != outcomeFailed {
		t.Fatalf("attempt() = %v, want outcomeFailed", got)
	}
	if len(store.failedCalls) != 1 {
		t.Fatalf("MarkFailed calls = %d, want 1", len(store.failedCalls))
	}
	p := store.failedCalls[0]
	if !p.Exhausted {
		t.Error("Exhausted = false, want true when retry budget is used up")
	}
	if p.ErrorCode != "http_500" {
		t.Errorf("ErrorCode = %q, want %q", p.ErrorCode, "http_500")
	}
	if p.DisableVendor {
		t.Error("DisableVendor = true for a transient error")
	}
	if p.DeliveryID == nil || *p.DeliveryID != sc.Deliveries[0].ID {
		t.Error("DeliveryID not set to the message's delivery record")
	}
}

func TestAttempt_OneRetryRemaining(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{
		imageFunc: func(ctx context.Context, p gateway.ImageSend) (*gateway.SendResult, error) {
			return nil, &gateway.APIError{StatusCode: 503, Message: "unavailable"}
		},
	}
	sc := imageSendContext(0)

	got := newTestWorker(store, gw, &mockVault{}).attempt(context.Background(), sc)

	if got != outcomeFailed {
		t.Fatalf("attempt() = %v, want outcomeFailed", got)
	}
	p := store.failedCalls[0]
	if p.Exhausted {
		t.Error("Exhausted = true with retry budget remaining, want requeue")
	}
}

func TestAttempt_AuthFailureDisablesVendor(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{
		imageFunc: func(ctx context.Context, p gateway.ImageSend) (*gateway.SendResult, error) {
			return nil, &gateway.APIError{StatusCode: 400, Code: 190, Message: "Invalid OAuth access token"}
		},
	}
	sc := imageSendContext(0)

	newTestWorker(store, gw, &mockVault{}).attempt(context.Background(), sc)

	if len(store.failedCalls) != 1 {
		t.Fatalf("MarkFailed calls = %d, want 1", len(store.failedCalls))
	}
	p := store.failedCalls[0]
	if !p.DisableVendor {
		t.Error("DisableVendor = false for an invalid-token error")
	}
	if p.VendorID != sc.Vendor.ID {
		t.Error("VendorID not set on vendor disable")
	}
	if p.VendorError == "" {
		t.Error("VendorError empty, want the provider error text persisted")
	}
	if p.ErrorCode != "graph_190" {
		t.Errorf("ErrorCode = %q, want %q", p.ErrorCode, "graph_190")
	}
	// Vendor disable is independent of the message's retry outcome.
	if p.Exhausted {
		t.Error("Exhausted = true on first attempt")
	}
}

func TestAttempt_MissingMediaFailsWithoutGatewayCall(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{}
	sc := imageSendContext(0)
	sc.Media = nil

	got := newTestWorker(store, gw, &mockVault{}).attempt(context.Background(), sc)

	if got != outcomeFailed {
		t.Fatalf("attempt() = %v, want outcomeFailed", got)
	}
	if gw.totalCalls() != 0 {
		t.Errorf("gateway calls = %d, want 0", gw.totalCalls())
	}
	if store.failedCalls[0].ErrorCode != errCodeMediaMissing {
		t.Errorf("ErrorCode = %q, want %q", store.failedCalls[0].ErrorCode, errCodeMediaMissing)
	}
}

func TestAttempt_MediaCardinalityViolation(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{}
	sc := imageSendContext(0)
	sc.Media = append(sc.Media, sc.Media[0])

	newTestWorker(store, gw, &mockVault{}).attempt(context.Background(), sc)

	if gw.totalCalls() != 0 {
		t.Errorf("gateway calls = %d, want 0", gw.totalCalls())
	}
	if store.failedCalls[0].ErrorCode != errCodeMediaCardinality {
		t.Errorf("ErrorCode = %q, want %q", store.failedCalls[0].ErrorCode, errCodeMediaCardinality)
	}
}

func TestAttempt_MissingDelivery(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{}
	sc := imageSendContext(0)
	sc.Deliveries = nil

	newTestWorker(store, gw, &mockVault{}).attempt(context.Background(), sc)

	if gw.totalCalls() != 0 {
		t.Errorf("gateway calls = %d, want 0", gw.totalCalls())
	}
	p := store.failedCalls[0]
	if p.ErrorCode != errCodeDeliveryMissing {
		t.Errorf("ErrorCode = %q, want %q", p.ErrorCode, errCodeDeliveryMissing)
	}
	if p.DeliveryID != nil {
		t.Error("DeliveryID set despite no delivery record")
	}
}

func TestAttempt_VendorUnconfigured(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{}
	decryptCalled := false
	vault := &mockVault{decryptFunc: func(string) (string, error) {
		decryptCalled = true
		return "", nil
	}}
	sc := imageSendContext(0)
	sc.Vendor.PhoneNumberID = ""

	newTestWorker(store, gw, vault).attempt(context.Background(), sc)

	if decryptCalled {
		t.Error("token decrypted for an unconfigured vendor")
	}
	if gw.totalCalls() != 0 {
		t.Errorf("gateway calls = %d, want 0", gw.totalCalls())
	}
	if store.failedCalls[0].ErrorCode != errCodeVendorUnconfigured {
		t.Errorf("ErrorCode = %q, want %q", store.failedCalls[0].ErrorCode, errCodeVendorUnconfigured)
	}
}

func TestAttempt_TokenDecryptFailure(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{}
	vault := &mockVault{decryptFunc: func(string) (string, error) {
		return "", errors.New("cipher: message authentication failed")
	}}

	newTestWorker(store, gw, vault).attempt(context.Background(), imageSendContext(0))

	if gw.totalCalls() != 0 {
		t.Errorf("gateway calls = %d, want 0", gw.totalCalls())
	}
	if store.failedCalls[0].ErrorCode != errCodeVendorTokenDecrypt {
		t.Errorf("ErrorCode = %q, want %q", store.failedCalls[0].ErrorCode, errCodeVendorTokenDecrypt)
	}
}

func TestAttempt_TemplateSend(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{}
	sc := imageSendContext(0)
	sc.Message.Type = storage.MessageTypeTemplate
	sc.Message.TemplateName = "order_update"
	sc.Message.TemplateLang = "en_US"
	sc.Message.TemplateParams = []string{"#1042"}
	sc.Media = nil

	got := newTestWorker(store, gw, &mockVault{}).attempt(context.Background(), sc)

	if got != outcomeSent {
		t.Fatalf("attempt() = %v, want outcomeSent", got)
	}
	if len(gw.templateCalls) != 1 {
		t.Fatalf("template sends = %d, want 1", len(gw.templateCalls))
	}
	call := gw.templateCalls[0]
	if call.TemplateName != "order_update" || call.LanguageCode != "en_US" {
		t.Errorf("template ref = (%q, %q), want message values", call.TemplateName, call.LanguageCode)
	}
	if len(call.BodyParams) != 1 || call.BodyParams[0] != "#1042" {
		t.Errorf("BodyParams = %v, want [#1042]", call.BodyParams)
	}
}

func TestAttempt_TemplateWithoutName(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{}
	sc := imageSendContext(0)
	sc.Message.Type = storage.MessageTypeTemplate
	sc.Media = nil

	newTestWorker(store, gw, &mockVault{}).attempt(context.Background(), sc)

	if gw.totalCalls() != 0 {
		t.Errorf("gateway calls = %d, want 0", gw.totalCalls())
	}
	if store.failedCalls[0].ErrorCode != errCodeTemplateMissing {
		t.Errorf("ErrorCode = %q, want %q", store.failedCalls[0].ErrorCode, errCodeTemplateMissing)
	}
}

func TestAttempt_MarkSentFailureLeavesClaim(t *testing.T) {
	store := &mockStore{
		markSentFunc: func(ctx context.Context, messageID, deliveryID uuid.UUID, providerMessageID string) error {
			return errors.New("connection reset")
		},
	}
	gw := &mockGateway{}

	got := newTestWorker(store, gw, &mockVault{}).attempt(context.Background(), imageSendContext(0))

	if got != outcomeStoreError {
		t.Fatalf("attempt() = %v, want outcomeStoreError", got)
	}
	if len(store.failedCalls) != 0 {
		t.Error("MarkFailed called after a successful send")
	}
}

func TestProcessNext_ClaimConflictAbandonsSilently(t *testing.T) {
	msg := &storage.Message{ID: uuid.New(), Type: storage.MessageTypeImage}
	loadCalled := false
	store := &mockStore{
		findFunc: func(ctx context.Context, types []storage.MessageType, maxRetries int) (*storage.Message, error) {
			return msg, nil
		},
		claimFunc: func(ctx context.Context, id uuid.UUID) (bool, error) {
			return false, nil
		},
		loadFunc: func(ctx context.Context, messageID uuid.UUID) (*storage.SendContext, error) {
			loadCalled = true
			return nil, storage.ErrNotFound
		},
	}

	got := newTestWorker(store, &mockGateway{}, &mockVault{}).processNext(context.Background())

	if got != outcomeConflict {
		t.Fatalf("processNext() = %v, want outcomeConflict", got)
	}
	if loadCalled {
		t.Error("send context loaded after losing the claim")
	}
}

func TestProcessNext_EmptyQueueIsIdle(t *testing.T) {
	store := &mockStore{}

	got := newTestWorker(store, &mockGateway{}, &mockVault{}).processNext(context.Background())

	if got != outcomeIdle {
		t.Fatalf("processNext() = %v, want outcomeIdle", got)
	}
}

func TestProcessNext_ClaimedMessageIsDelivered(t *testing.T) {
	sc := imageSendContext(0)
	store := &mockStore{
		findFunc: func(ctx context.Context, types []storage.MessageType, maxRetries int) (*storage.Message, error) {
			return &sc.Message, nil
		},
		loadFunc: func(ctx context.Context, messageID uuid.UUID) (*storage.SendContext, error) {
			return sc, nil
		},
	}
	gw := &mockGateway{}

	got := newTestWorker(store, gw, &mockVault{}).processNext(context.Background())

	if got != outcomeSent {
		t.Fatalf("processNext() = %v, want outcomeSent", got)
	}
	if len(store.sentCalls) != 1 {
		t.Errorf("MarkSent calls = %d, want 1", len(store.sentCalls))
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := &mockStore{}
	w := newTestWorker(store, &mockGateway{}, &mockVault{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}
}
