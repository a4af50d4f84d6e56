package httputil

import "testing"

func TestParseIDRDotThousands(t *testing.T) {
	n, err := ParseIDR("100.000")
	if err != nil || n != 100000 {
		t.Fatalf("got (%d, %v), want (100000, nil)", n, err)
	}
}

func TestParseIDRCommaThousands(t *testing.T) {
	n, err := ParseIDR("100,000")
	if err != nil || n != 100000 {
		t.Fatalf("got (%d, %v), want (100000, nil)", n, err)
	}
}

func TestParseIDRPlain(t *testing.T) {
	n, err := ParseIDR("100000")
	if err != nil || n != 100000 {
		t.Fatalf("got (%d, %v), want (100000, nil)", n, err)
	}
}

func TestParseIDRPrefixedWithCents(t *testing.T) {
	n, err := ParseIDR("Rp 50.000,50")
	if err != nil || n != 50000 {
		t.Fatalf("got (%d, %v), want (50000, nil)", n, err)
	}
}

func TestParseIDRRejectsGarbage(t *testing.T) {
	if _, err := ParseIDR("abc"); err == nil {
		t.Fatal("expected error for non-numeric input")
	}
}

func TestParseIDRRejectsNonPositive(t *testing.T) {
	if _, err := ParseIDR("0"); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if _, err := ParseIDR("-100"); err == nil {
		t.Fatal("expected error for negative amount")
	}
}

func TestParseIDRRejectsAboveCeiling(t *testing.T) {
	if _, err := ParseIDR("1000000000001"); err == nil {
		t.Fatal("expected error above 10^12")
	}
}

func TestParseIDRIDRPrefix(t *testing.T) {
	n, err := ParseIDR("IDR100000")
	if err != nil || n != 100000 {
		t.Fatalf("got (%d, %v), want (100000, nil)", n, err)
	}
}
