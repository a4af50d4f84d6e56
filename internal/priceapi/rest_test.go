package priceapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRESTFetcherFetchOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BNBUSDT" {
			t.Fatalf("unexpected symbol query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"symbol":"BNBUSDT","price":"512.34000000"}`))
	}))
	defer srv.Close()

	f := NewRESTFetcher(srv.URL, zap.NewNop())
	price, err := f.FetchOne(context.Background(), "BNB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(mustDecimal("512.34")) {
		t.Fatalf("expected 512.34, got %s", price)
	}
}

func TestRESTFetcherRejectsNonPositivePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"0"}`))
	}))
	defer srv.Close()

	f := NewRESTFetcher(srv.URL, zap.NewNop())
	if _, err := f.FetchOne(context.Background(), "ETH"); err == nil {
		t.Fatal("expected error for non-positive price")
	}
}

func TestRESTFetcherRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewRESTFetcher(srv.URL, zap.NewNop())
	if _, err := f.FetchOne(context.Background(), "ETH"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
