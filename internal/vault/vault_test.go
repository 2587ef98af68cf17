package vault

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

const testKeyHex = "6368616e676520746869732070617373776f726420746f206120736563726574" // "change this password to a secret"

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(testKeyHex)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	v := newTestVault(t)

	token := "EAABwzLixnjYBO7rZCZBq0example-access-token"
	enc, err := v.Encrypt(token)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := v.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != token {
		t.Errorf("round trip mismatch: got %q, want %q", got, token)
	}
}

func TestEncrypt_WireFormatLayout(t *testing.T) {
	v := newTestVault(t)

	enc, err := v.Encrypt("abc")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		t.Fatalf("ciphertext is not valid base64: %v", err)
	}
	// iv(12) + tag(16) + ciphertext(len("abc"))
	if len(raw) != 12+16+3 {
		t.Errorf("expected payload of 31 bytes, got %d", len(raw))
	}
}

func TestEncrypt_NoncesDiffer(t *testing.T) {
	v := newTestVault(t)

	a, _ := v.Encrypt("same")
	b, _ := v.Encrypt("same")
	if a == b {
		t.Error("expected distinct ciphertexts for repeated plaintext")
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	v := newTestVault(t)

	enc, _ := v.Encrypt("secret")
	raw, _ := base64.StdEncoding.DecodeString(enc)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := v.Decrypt(tampered); err == nil {
		t.Fatal("expected authentication failure for tampered ciphertext")
	}
}

func TestDecrypt_TooShort(t *testing.T) {
	v := newTestVault(t)

	short := base64.StdEncoding.EncodeToString([]byte("short"))
	_, err := v.Decrypt(short)
	if !errors.Is(err, ErrMalformedCiphertext) {
		t.Fatalf("expected ErrMalformedCiphertext, got %v", err)
	}
}

func TestDecrypt_InvalidBase64(t *testing.T) {
	v := newTestVault(t)
	if _, err := v.Decrypt("not-base64!!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestNew_BadKeys(t *testing.T) {
	if _, err := New("zz"); err == nil {
		t.Error("expected error for non-hex key")
	}
	if _, err := New(strings.Repeat("ab", 16)); err == nil {
		t.Error("expected error for 16-byte key")
	}
}
