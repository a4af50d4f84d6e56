package wallet

import (
	"strings"
	"testing"
)

const testPassword = "this-is-a-password-of-32-plus-chars"

func TestEncryptDecryptKeyBlobRoundTrip(t *testing.T) {
	plaintext := "ENV:HOT_WALLET_BSC_KEY"
	blob, err := EncryptKeyBlob(plaintext, testPassword)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if strings.Count(blob, ":") != 2 {
		t.Fatalf("expected salt:iv:ciphertext format, got %s", blob)
	}

	got, err := decryptKeyBlob(blob, testPassword)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != plaintext {
		t.Fatalf("roundtrip mismatch: got %q want %q", got, plaintext)
	}
}

func TestDecryptKeyBlobLegacyFormat(t *testing.T) {
	// Build a legacy iv:ciphertext blob manually using the fixed legacy salt
	// by encrypting then dropping the salt segment.
	blob, err := EncryptKeyBlob("deadbeef", testPassword)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	parts := strings.SplitN(blob, ":", 3)
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}
	// This is a new-format blob (random salt), so decrypting it as legacy
	// (fixed salt) must not recover the original plaintext — legacy blobs
	// are only ever produced with the fixed salt baked in at encryption
	// time, so a different salt derives a different key.
	legacyBlob := parts[1] + ":" + parts[2]
	got, err := decryptKeyBlob(legacyBlob, testPassword)
	if err == nil && got == "deadbeef" {
		t.Fatal("expected legacy-format decrypt with mismatched salt to not recover plaintext")
	}
}

func TestDecryptKeyBlobRejectsShortPassword(t *testing.T) {
	if _, err := decryptKeyBlob("aa:bb:cc", "short"); err == nil {
		t.Fatal("expected error for password under 32 characters")
	}
}

func TestDecryptKeyBlobRejectsMalformedBlob(t *testing.T) {
	if _, err := decryptKeyBlob("not-a-valid-blob", testPassword); err == nil {
		t.Fatal("expected error for malformed blob")
	}
}
