package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/haneul/wadispatch/internal/auth"
	"github.com/haneul/wadispatch/internal/storage"
)

func TestCreateVendorHandler_ReturnsKeyOnce(t *testing.T) {
	var captured storage.CreateVendorParams
	store := &mockStore{
		createVendorFunc: func(ctx context.Context, p storage.CreateVendorParams) (*storage.Vendor, error) {
			captured = p
			return &storage.Vendor{
				ID:             uuid.New(),
				Name:           p.Name,
				WhatsappStatus: storage.VendorStatusPending,
				APIKeyPrefix:   p.APIKeyPrefix,
				APIKeyHash:     p.APIKeyHash,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vendors", strings.NewReader(`{"name":"Acme Estates"}`))
	rec := httptest.NewRecorder()
	CreateVendorHandler(store)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var resp struct {
		Vendor vendorResponse `json:"vendor"`
		APIKey string         `json:"api_key"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(resp.APIKey) != 64 {
		t.Errorf("api_key length = %d, want 64", len(resp.APIKey))
	}
	if captured.APIKeyPrefix != auth.KeyPrefix(resp.APIKey) {
		t.Error("stored prefix does not match the returned key")
	}
	if !auth.VerifyAPIKey(captured.APIKeyHash, resp.APIKey) {
		t.Error("stored hash does not verify against the returned key")
	}
	if captured.APIKeyHash == resp.APIKey {
		t.Error("plaintext key stored as hash")
	}
	if resp.Vendor.WhatsappStatus != "pending" {
		t.Errorf("whatsapp_status = %q, want pending", resp.Vendor.WhatsappStatus)
	}
}

func TestCreateVendorHandler_NameRequired(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vendors", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	CreateVendorHandler(&mockStore{})(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

type mockHealthChecker struct {
	err   error
	calls int
}

func (m *mockHealthChecker) HealthCheck(ctx context.Context, phoneNumberID, accessToken string) error {
	m.calls++
	return m.err
}

func TestUpdateVendorIntegrationHandler_EncryptsToken(t *testing.T) {
	vendorID := uuid.New()
	var storedToken string
	store := &mockStore{
		updateIntegrationFunc: func(ctx context.Context, id uuid.UUID, phoneNumberID, accessTokenEnc string) (*storage.Vendor, error) {
			storedToken = accessTokenEnc
			return &storage.Vendor{
				ID:             id,
				PhoneNumberID:  phoneNumberID,
				AccessTokenEnc: accessTokenEnc,
				WhatsappStatus: storage.VendorStatusConnected,
			}, nil
		},
	}
	checker := &mockHealthChecker{}

	body := `{"phone_number_id":"1055123","access_token":"EAAG-secret"}`
	rec := httptest.NewRecorder()
	handler := UpdateVendorIntegrationHandler(store, mockEncrypter{}, checker)
	handler(rec, authedRequest(http.MethodPut, "/api/v1/vendors/me/integration", body, vendorID))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if storedToken != "enc(EAAG-secret)" {
		t.Errorf("stored token = %q, want it encrypted", storedToken)
	}
	if checker.calls != 1 {
		t.Errorf("health checks = %d, want 1", checker.calls)
	}
	if strings.Contains(rec.Body.String(), "EAAG-secret") || strings.Contains(rec.Body.String(), storedToken) {
		t.Error("response leaks the access token")
	}
}

func TestUpdateVendorIntegrationHandler_BadCredential(t *testing.T) {
	store := &mockStore{
		updateIntegrationFunc: func(ctx context.Context, id uuid.UUID, phoneNumberID, accessTokenEnc string) (*storage.Vendor, error) {
			t.Fatal("integration stored despite failed verification")
			return nil, nil
		},
	}
	checker := &mockHealthChecker{err: errors.New("graph api: code 190")}

	body := `{"phone_number_id":"1055123","access_token":"expired"}`
	rec := httptest.NewRecorder()
	handler := UpdateVendorIntegrationHandler(store, mockEncrypter{}, checker)
	handler(rec, authedRequest(http.MethodPut, "/api/v1/vendors/me/integration", body, uuid.New()))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestUpdateVendorIntegrationHandler_Validation(t *testing.T) {
	rec := httptest.NewRecorder()
	handler := UpdateVendorIntegrationHandler(&mockStore{}, mockEncrypter{}, nil)
	handler(rec, authedRequest(http.MethodPut, "/api/v1/vendors/me/integration", `{"phone_number_id":""}`, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
