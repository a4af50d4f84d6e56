package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Inventory is the per-(chain, symbol) hot-wallet ledger row. Invariant:
// 0 <= reserved <= balance at every atomic boundary (§4.3).
type Inventory struct {
	ID        int64           `json:"id" db:"id"`
	ChainID   int64           `json:"chain_id" db:"chain_id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Reserved  decimal.Decimal `json:"reserved" db:"reserved"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

func (i *Inventory) Available() decimal.Decimal {
	return i.Balance.Sub(i.Reserved)
}
