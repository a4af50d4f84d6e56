package wallet

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
)

// tonAdapter sends native TON from the hot wallet, built on the same
// liteclient connection bootstrap used for inbound-payment verification,
// extended with tonutils-go's wallet package for outbound transfers.
type tonAdapter struct {
	api ton.APIClientWrapped
	w   *wallet.Wallet
}

func dialTON(ctx context.Context, testnet bool, seedHex string) (*tonAdapter, error) {
	pool := liteclient.NewConnectionPool()

	configURL := "https://ton.org/global.config.json"
	if testnet {
		configURL = "https://ton.org/testnet-global.config.json"
	}
	if err := pool.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
		return nil, fmt.Errorf("connect to ton network: %w", err)
	}

	api := ton.NewAPIClient(pool).WithRetry()

	words := splitSeedWords(seedHex)
	w, err := wallet.FromSeed(api, words, wallet.V4R2)
	if err != nil {
		return nil, fmt.Errorf("load ton wallet from seed: %w", err)
	}

	return &tonAdapter{api: api, w: w}, nil
}

func (a *tonAdapter) addressStr() string {
	return a.w.Address().String()
}

func (a *tonAdapter) balance(ctx context.Context) (uint64, error) {
	block, err := a.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch masterchain info: %w", err)
	}
	acc, err := a.api.GetAccount(ctx, block, a.w.Address())
	if err != nil {
		return 0, fmt.Errorf("fetch account state: %w", err)
	}
	if acc == nil || !acc.IsActive {
		return 0, nil
	}
	return acc.State.Balance.NanoTON().Uint64(), nil
}

// send transfers nanoTON to the destination address and then locates the
// resulting outgoing transaction by scanning recent transactions
// (ListTransactions against LastTxLT/LastTxHash), since the wallet send
// call itself does not hand back a settled tx hash.
func (a *tonAdapter) send(ctx context.Context, to string, amountNano uint64) (string, error) {
	dest, err := address.ParseAddr(to)
	if err != nil {
		return "", fmt.Errorf("parse destination address: %w", err)
	}

	amount := tlb.FromNanoTON(new(big.Int).SetUint64(amountNano))
	if err := a.w.Send(ctx, wallet.SimpleMessage(dest, amount, nil), true); err != nil {
		return "", fmt.Errorf("send ton transfer: %w", err)
	}

	hash, err := a.findOutgoingHash(ctx, amountNano)
	if err != nil {
		return "", &ErrTxBroadcasted{TxHash: ""}
	}
	return hash, nil
}

func (a *tonAdapter) findOutgoingHash(ctx context.Context, amountNano uint64) (string, error) {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		block, err := a.api.CurrentMasterchainInfo(ctx)
		if err == nil {
			acc, err := a.api.GetAccount(ctx, block, a.w.Address())
			if err == nil && acc != nil && acc.IsActive {
				txs, err := a.api.ListTransactions(ctx, a.w.Address(), 5, acc.LastTxLT, acc.LastTxHash)
				if err == nil {
					for _, tx := range txs {
						if tx.IO.Out == nil {
							continue
						}
						return fmtTxHash(tx.Hash), nil
					}
				}
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return "", fmt.Errorf("outgoing transaction not observed within timeout")
}

func fmtTxHash(hash []byte) string {
	return fmt.Sprintf("%x", hash)
}

// splitSeedWords parses the space-joined 24-word TON seed phrase stored as
// the decrypted key blob plaintext, mirroring how EVM chains store a hex
// private key in the same field.
func splitSeedWords(seed string) []string {
	words := make([]string, 0, 24)
	word := ""
	for _, r := range seed {
		if r == ' ' {
			if word != "" {
				words = append(words, word)
				word = ""
			}
			continue
		}
		word += string(r)
	}
	if word != "" {
		words = append(words, word)
	}
	return words
}
