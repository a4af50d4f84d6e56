package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrTxBroadcasted is the distinguished error described in §4.2: the
// submission succeeded and a hash exists, but the confirmation wait itself
// failed. The caller must treat the funds as possibly in flight.
type ErrTxBroadcasted struct {
	TxHash string
}

func (e *ErrTxBroadcasted) Error() string {
	return fmt.Sprintf("transaction %s broadcast but confirmation wait failed", e.TxHash)
}

// evmAdapter sends the chain's native asset using a plain value transfer,
// grounded on the key-loading shape of kms.go's EnvKMSSigner and the
// receipt-polling shape of evm_confirm.go's EVMVerifier.Confirm.
type evmAdapter struct {
	client        *ethclient.Client
	privateKey    *ecdsa.PrivateKey
	fromAddress   common.Address
	chainID       *big.Int
	confirmations uint64
}

func dialEVM(rpcURL string, chainID int64, keyHex string, confirmations uint64) (*evmAdapter, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}

	keyHex = strings.TrimPrefix(strings.TrimSpace(keyHex), "0x")
	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse evm private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("derive public key: unexpected type")
	}

	return &evmAdapter{
		client:        client,
		privateKey:    privateKey,
		fromAddress:   crypto.PubkeyToAddress(*publicKey),
		chainID:       big.NewInt(chainID),
		confirmations: confirmations,
	}, nil
}

func (a *evmAdapter) address() string {
	return a.fromAddress.Hex()
}

func (a *evmAdapter) balance(ctx context.Context) (*big.Int, error) {
	return a.client.BalanceAt(ctx, a.fromAddress, nil)
}

// send submits a native value transfer and waits for the configured number
// of confirmations. Per §4.2: refetch nonce at latest, fetch fee data, boost
// legacy gas price by 10%, submit, await confirmations.
func (a *evmAdapter) send(ctx context.Context, to common.Address, amountWei *big.Int) (string, error) {
	nonce, err := a.client.NonceAt(ctx, a.fromAddress, nil)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}

	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch gas price: %w", err)
	}
	gasPrice = boostByTenPercent(gasPrice)

	gasLimit := uint64(21000)

	tx := types.NewTransaction(nonce, to, amountWei, gasLimit, gasPrice, nil)
	signer := types.LatestSignerForChainID(a.chainID)
	signedTx, err := types.SignTx(tx, signer, a.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	if err := a.client.SendTransaction(ctx, signedTx); err != nil {
		return "", classifySubmitError(err)
	}

	txHash := signedTx.Hash().Hex()
	if err := a.awaitConfirmations(ctx, signedTx.Hash()); err != nil {
		return txHash, &ErrTxBroadcasted{TxHash: txHash}
	}
	return txHash, nil
}

func (a *evmAdapter) awaitConfirmations(ctx context.Context, txHash common.Hash) error {
	const pollInterval = 3 * time.Second
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			receipt, err := a.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				if errors.Is(err, ethereum.NotFound) {
					continue
				}
				return fmt.Errorf("fetch receipt: %w", err)
			}
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted", txHash.Hex())
			}

			if a.confirmations == 0 {
				return nil
			}
			header, err := a.client.HeaderByNumber(ctx, nil)
			if err != nil {
				return fmt.Errorf("fetch head: %w", err)
			}
			confirmed := new(big.Int).Sub(header.Number, receipt.BlockNumber)
			confirmed.Add(confirmed, big.NewInt(1))
			if confirmed.Cmp(new(big.Int).SetUint64(a.confirmations)) >= 0 {
				return nil
			}
		}
	}
}

func boostByTenPercent(price *big.Int) *big.Int {
	boosted := new(big.Int).Mul(price, big.NewInt(110))
	return boosted.Div(boosted, big.NewInt(100))
}

// safeSendErrors lists the substrings that classify a submission error as
// safe-to-fail per §4.2: the order can move to FAILED and release inventory
// without risk of a double spend.
var safeSendErrors = []string{
	"insufficient funds",
	"gas limit",
	"reverted",
	"nonce too low",
	"replacement transaction underpriced",
	"replacement fee too low",
}

// IsSafeSendError reports whether err's text matches one of the known
// pre-broadcast failure modes.
func IsSafeSendError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range safeSendErrors {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func classifySubmitError(err error) error {
	return fmt.Errorf("submit transaction: %w", err)
}
