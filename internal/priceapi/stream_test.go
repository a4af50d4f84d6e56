package priceapi

import (
	"strings"
	"testing"
	"time"
)

func TestTickerEventSymbolTrim(t *testing.T) {
	cases := map[string]string{
		"BNBUSDT": "BNB",
		"ETHUSDT": "ETH",
		"TONUSDT": "TON",
	}
	for raw, want := range cases {
		got := strings.TrimSuffix(strings.ToUpper(raw), "USDT")
		if got != want {
			t.Fatalf("trim(%s) = %s, want %s", raw, got, want)
		}
	}
}

func TestStreamWriterTracksConfiguredSymbolsOnly(t *testing.T) {
	w := NewStreamWriter("wss://example.invalid/ws", nil, []string{"bnb", "eth"}, time.Minute, time.Second, nil)
	if !w.symbols["BNB"] {
		t.Fatal("expected BNB to be tracked")
	}
	if w.symbols["SOL"] {
		t.Fatal("did not expect SOL to be tracked")
	}
}
