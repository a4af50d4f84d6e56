package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ChainType string

const (
	ChainTypeEVM ChainType = "EVM"
	ChainTypeTON ChainType = "TON"
)

// Chain is a hot-wallet-bearing network. SigningKeyBlob is the encrypted
// key material in "salt:iv:ciphertext" (or legacy "iv:ciphertext") form;
// it is decrypted once at process start by the Hot Wallet Manager and never
// persisted in plaintext. Slug is immutable once created.
type Chain struct {
	ID             int64     `json:"id" db:"id"`
	Slug           string    `json:"slug" db:"slug"`
	Type           ChainType `json:"type" db:"type"`
	ChainID        int64     `json:"chain_id" db:"chain_id"`
	RPCURL         string    `json:"rpc_url" db:"rpc_url"`
	ExplorerURL    string    `json:"explorer_url" db:"explorer_url"`
	SigningKeyBlob string          `json:"-" db:"signing_key_blob"`
	Active         bool            `json:"active" db:"active"`
	MinAmountIDR   decimal.Decimal `json:"min_amount_idr" db:"min_amount_idr"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

func (c *Chain) Confirmations(defaults map[string]uint64) uint64 {
	if n, ok := defaults[c.Slug]; ok {
		return n
	}
	return 1
}

// Token is (chain, symbol) unique. At most one native token per chain.
type Token struct {
	ID            int64           `json:"id" db:"id"`
	ChainID       int64           `json:"chain_id" db:"chain_id"`
	Symbol        string          `json:"symbol" db:"symbol"`
	IsNative      bool            `json:"is_native" db:"is_native"`
	Decimals      int             `json:"decimals" db:"decimals"`
	MarkupPercent decimal.Decimal `json:"markup_percent" db:"markup_percent"`
	Active        bool            `json:"active" db:"active"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
