package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kriptapay/payout-engine/internal/config"
	"github.com/kriptapay/payout-engine/internal/model"
)

// GatewayClient talks to the Midtrans-shaped payment gateway named in §4.5
// create_payment / §4.10. It is a thin http.Get/json.Decode-style HTTP
// client, generalized to POST with basic-auth-style server key headers.
type GatewayClient struct {
	cfg    config.GatewayConfig
	client *http.Client
}

func NewGatewayClient(cfg config.GatewayConfig) *GatewayClient {
	return &GatewayClient{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

type ChargeRequest struct {
	OrderID string
	Amount  decimal.Decimal
	Method  model.PaymentMethod
}

type ChargeResponse struct {
	MidtransID string
	PaymentURL string
}

// Charge creates a fresh payment instrument. The gateway's own order id is
// generated per attempt, so regenerating payment on an existing order
// intentionally orphans the prior id (§4.5 create_payment).
func (g *GatewayClient) Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	body := map[string]interface{}{
		"transaction_details": map[string]interface{}{
			"order_id":     req.OrderID,
			"gross_amount": req.Amount.IntPart(),
		},
		"payment_type": gatewayPaymentType(req.Method),
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/charge", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(g.cfg.ServerKey, "")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("charge request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway charge returned status %d", resp.StatusCode)
	}

	var out struct {
		OrderID        string `json:"order_id"`
		RedirectURL    string `json:"redirect_url"`
		TransactionID  string `json:"transaction_id"`
		PermataVANo    string `json:"permata_va_number"`
		TransactionURL string `json:"actions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode charge response: %w", err)
	}

	return &ChargeResponse{MidtransID: out.TransactionID, PaymentURL: out.RedirectURL}, nil
}

// GatewayStatus is the subset of a status query the expiry sweep needs.
type GatewayStatus struct {
	TransactionStatus string
	FraudStatus       string
}

func (g *GatewayClient) Status(ctx context.Context, midtransID string) (*GatewayStatus, error) {
	url := fmt.Sprintf("%s/%s/status", g.cfg.BaseURL, midtransID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(g.cfg.ServerKey, "")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway status returned status %d", resp.StatusCode)
	}

	var out struct {
		TransactionStatus string `json:"transaction_status"`
		FraudStatus       string `json:"fraud_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &GatewayStatus{TransactionStatus: out.TransactionStatus, FraudStatus: out.FraudStatus}, nil
}

func gatewayPaymentType(method model.PaymentMethod) string {
	if method == model.PaymentMethodVA {
		return "bank_transfer"
	}
	return "qris"
}

// GatewayFee returns the flat fee (in IDR) for a payment method per §4.5
// create_payment: 0 for QRIS, 4000 for VA.
func GatewayFee(method model.PaymentMethod) decimal.Decimal {
	if method == model.PaymentMethodVA {
		return decimal.NewFromInt(4000)
	}
	return decimal.Zero
}
