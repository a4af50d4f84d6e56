// Package wallet implements the Hot Wallet Manager (§4.2): decrypts and
// holds per-chain signing keys in memory, exposes balance/gas queries, and
// serializes send_native by chain via a Redis distributed lock.
package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kriptapay/payout-engine/internal/config"
	"github.com/kriptapay/payout-engine/internal/model"
)

// Manager holds one decrypted adapter per active chain, keyed by slug. Keys
// are decrypted once at load time and never written back to disk.
type Manager struct {
	mu       sync.RWMutex
	evm      map[string]*evmAdapter
	ton      map[string]*tonAdapter
	decimals map[string]int
	lock     *chainLock
	log      *zap.Logger
}

func NewManager(rdb *redis.Client, cfg config.WalletConfig, log *zap.Logger) *Manager {
	return &Manager{
		evm:      make(map[string]*evmAdapter),
		ton:      make(map[string]*tonAdapter),
		decimals: make(map[string]int),
		lock:     newChainLock(rdb, cfg.ChainLockTTL, cfg.ChainLockRetries, cfg.ChainLockCap),
		log:      log,
	}
}

// LoadChain decrypts chain's signing key and boots the appropriate adapter.
// It is called once per active chain at process start.
func (m *Manager) LoadChain(ctx context.Context, chain model.Chain, nativeDecimals int, keyPassword string) error {
	keyMaterial, err := resolveSigningKey(chain.SigningKeyBlob, keyPassword)
	if err != nil {
		return fmt.Errorf("resolve signing key for chain %s: %w", chain.Slug, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch chain.Type {
	case model.ChainTypeEVM:
		adapter, err := dialEVM(chain.RPCURL, chain.ChainID, keyMaterial, 0)
		if err != nil {
			return fmt.Errorf("init evm adapter for chain %s: %w", chain.Slug, err)
		}
		m.evm[chain.Slug] = adapter
	case model.ChainTypeTON:
		adapter, err := dialTON(ctx, chain.ChainID != 1, keyMaterial)
		if err != nil {
			return fmt.Errorf("init ton adapter for chain %s: %w", chain.Slug, err)
		}
		m.ton[chain.Slug] = adapter
	default:
		return fmt.Errorf("unsupported chain type %s", chain.Type)
	}
	m.decimals[chain.Slug] = nativeDecimals
	return nil
}

// HotWalletAddress returns the configured chain's signing address.
func (m *Manager) HotWalletAddress(slug string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.evm[slug]; ok {
		return a.address(), nil
	}
	if a, ok := m.ton[slug]; ok {
		return a.addressStr(), nil
	}
	return "", fmt.Errorf("chain %s not loaded", slug)
}

// Balance returns the hot wallet's on-chain native balance for slug,
// converted from the chain's smallest unit to whole-token units.
func (m *Manager) Balance(ctx context.Context, slug string) (decimal.Decimal, error) {
	m.mu.RLock()
	evmAdapter, isEVM := m.evm[slug]
	tonAdapter, isTON := m.ton[slug]
	decimals := m.decimals[slug]
	m.mu.RUnlock()

	switch {
	case isEVM:
		wei, err := evmAdapter.balance(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		return fromSmallestUnit(wei, decimals), nil
	case isTON:
		nano, err := tonAdapter.balance(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		return fromSmallestUnit(new(big.Int).SetUint64(nano), decimals), nil
	default:
		return decimal.Zero, fmt.Errorf("chain %s not loaded", slug)
	}
}

// SendNative implements send_native(chain, to, amount) -> tx_hash per §4.2:
// acquire the per-chain lock, refetch nonce/fee data inside it, submit, and
// await confirmations. On a confirmation-wait failure after a successful
// broadcast, propagates *ErrTxBroadcasted unchanged so callers can treat the
// order as "money may be in flight".
func (m *Manager) SendNative(ctx context.Context, chain model.Chain, to string, amount decimal.Decimal, confirmations uint64) (string, error) {
	token, err := m.lock.acquire(ctx, chain.Slug)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrLockAcquisition, chain.Slug)
	}
	defer m.lock.release(context.Background(), chain.Slug, token)

	m.mu.RLock()
	evmAdapter, isEVM := m.evm[chain.Slug]
	tonAdapter, isTON := m.ton[chain.Slug]
	decimals := m.decimals[chain.Slug]
	m.mu.RUnlock()

	switch {
	case isEVM:
		evmAdapter.confirmations = confirmations
		toAddr := common.HexToAddress(to)
		wei := toSmallestUnit(amount, decimals)
		return evmAdapter.send(ctx, toAddr, wei)
	case isTON:
		nano := toSmallestUnit(amount, decimals)
		return tonAdapter.send(ctx, to, nano.Uint64())
	default:
		return "", fmt.Errorf("chain %s not loaded", chain.Slug)
	}
}

func toSmallestUnit(amount decimal.Decimal, decimals int) *big.Int {
	scale := decimal.New(1, int32(decimals))
	scaled := amount.Mul(scale)
	return scaled.BigInt()
}

func fromSmallestUnit(raw *big.Int, decimals int) decimal.Decimal {
	scale := decimal.New(1, int32(decimals))
	return decimal.NewFromBigInt(raw, 0).Div(scale)
}

// NormalizeAddress checksums an EVM address and lower-cases/validates a TON
// address. All-lowercase or all-uppercase EVM input is auto-normalized to
// EIP-55 checksum case, but mixed-case input must already match the
// checksum exactly: a wrong-case typo is rejected rather than silently
// corrected.
func NormalizeAddress(chainType model.ChainType, addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	switch chainType {
	case model.ChainTypeEVM:
		if !common.IsHexAddress(addr) {
			return "", fmt.Errorf("invalid evm address: %s", addr)
		}
		checksummed := common.HexToAddress(addr).Hex()
		hexPart := strings.TrimPrefix(addr, "0x")
		if hexPart == strings.ToLower(hexPart) || hexPart == strings.ToUpper(hexPart) {
			return checksummed, nil
		}
		if addr != checksummed {
			return "", fmt.Errorf("evm address checksum mismatch: %s", addr)
		}
		return checksummed, nil
	case model.ChainTypeTON:
		if len(addr) < 48 {
			return "", fmt.Errorf("invalid ton address: %s", addr)
		}
		return addr, nil
	default:
		return "", fmt.Errorf("unsupported chain type %s", chainType)
	}
}
