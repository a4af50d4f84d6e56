package wallet

import (
	"testing"

	"github.com/kriptapay/payout-engine/internal/model"
)

func TestNormalizeAddressEVMChecksums(t *testing.T) {
	got, err := NormalizeAddress(model.ChainTypeEVM, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Fatalf("expected checksummed address, got %s", got)
	}
}

func TestNormalizeAddressEVMRejectsInvalid(t *testing.T) {
	if _, err := NormalizeAddress(model.ChainTypeEVM, "not-an-address"); err == nil {
		t.Fatal("expected error for invalid evm address")
	}
}

func TestNormalizeAddressEVMRejectsWrongChecksum(t *testing.T) {
	// Same address as TestNormalizeAddressEVMChecksums but with one
	// letter's case flipped (E -> e in "435E7").
	if _, err := NormalizeAddress(model.ChainTypeEVM, "0x5aAeb6053F3E94C9b9A09f33669435e7Ef1BeAed"); err == nil {
		t.Fatal("expected error for mixed-case address with wrong checksum")
	}
}

func TestNormalizeAddressTONRejectsShort(t *testing.T) {
	if _, err := NormalizeAddress(model.ChainTypeTON, "short"); err == nil {
		t.Fatal("expected error for short ton address")
	}
}
