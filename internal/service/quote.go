package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kriptapay/payout-engine/internal/model"
	"github.com/kriptapay/payout-engine/internal/priceapi"
	"github.com/kriptapay/payout-engine/internal/repository"
)

type InventoryStatus string

const (
	InventoryStatusAvailable  InventoryStatus = "AVAILABLE"
	InventoryStatusLimited    InventoryStatus = "LIMITED"
	InventoryStatusOutOfStock InventoryStatus = "OUT_OF_STOCK"
)

type Quote struct {
	Chain           model.Chain
	Symbol          string
	AmountIDR       decimal.Decimal
	TokenAmount     decimal.Decimal
	PriceUSD        decimal.Decimal
	FXRate          decimal.Decimal
	MarkupPercent   decimal.Decimal
	InventoryStatus InventoryStatus
	MaxBuyIDR       decimal.Decimal
}

// QuoteService computes the token amount conversion of §4.6, priced off the
// Price Feed cache and FX rate.
type QuoteService struct {
	repo   *repository.Repository
	prices *priceapi.Cache
	fx     *priceapi.FXRate
	markup decimal.Decimal
}

func NewQuoteService(repo *repository.Repository, prices *priceapi.Cache, fx *priceapi.FXRate, globalMarkupPercent decimal.Decimal) *QuoteService {
	return &QuoteService{repo: repo, prices: prices, fx: fx, markup: globalMarkupPercent}
}

// Quote resolves the chain's native token, reads price/FX/markup and
// inventory, and computes the token amount for amountIDR per §4.6.
func (s *QuoteService) Quote(ctx context.Context, chain model.Chain, amountIDR decimal.Decimal) (*Quote, error) {
	token, err := s.repo.GetNativeToken(ctx, chain.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve native token for chain %s: %w", chain.Slug, err)
	}

	priceUSD, err := s.prices.Get(ctx, token.Symbol)
	if err != nil {
		return nil, fmt.Errorf("read price for %s: %w", token.Symbol, err)
	}
	fxRate := s.fx.Get(ctx)

	markup := s.markup
	if !token.MarkupPercent.IsZero() {
		markup = token.MarkupPercent
	}

	tokenAmount := computeTokenAmount(amountIDR, fxRate, priceUSD, markup)

	inv, err := s.repo.GetInventory(ctx, s.repo.DB(), chain.ID, token.Symbol)
	if err != nil {
		return nil, fmt.Errorf("read inventory for %s: %w", token.Symbol, err)
	}
	available := inv.Available()

	status := InventoryStatusAvailable
	switch {
	case tokenAmount.GreaterThan(available):
		status = InventoryStatusOutOfStock
	case available.LessThan(tokenAmount.Mul(decimal.NewFromInt(2))):
		status = InventoryStatusLimited
	}

	maxBuyIDR := available.Mul(priceUSD).Mul(fxRate).Floor()

	return &Quote{
		Chain:           chain,
		Symbol:          token.Symbol,
		AmountIDR:       amountIDR,
		TokenAmount:     tokenAmount,
		PriceUSD:        priceUSD,
		FXRate:          fxRate,
		MarkupPercent:   markup,
		InventoryStatus: status,
		MaxBuyIDR:       maxBuyIDR,
	}, nil
}

// computeTokenAmount = amount_idr / fx_rate / price_usd * (1 - markup/100).
func computeTokenAmount(amountIDR, fxRate, priceUSD, markupPercent decimal.Decimal) decimal.Decimal {
	if fxRate.IsZero() || priceUSD.IsZero() {
		return decimal.Zero
	}
	factor := decimal.NewFromInt(1).Sub(markupPercent.Div(decimal.NewFromInt(100)))
	return amountIDR.Div(fxRate).Div(priceUSD).Mul(factor)
}
