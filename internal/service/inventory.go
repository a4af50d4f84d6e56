package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kriptapay/payout-engine/internal/model"
	"github.com/kriptapay/payout-engine/internal/repository"
	"github.com/kriptapay/payout-engine/internal/wallet"
)

// InventoryService is the Inventory Ledger (§4.3): per-(chain, symbol) rows
// with reserve/release/deduct/sync, wrapping the repository's row-locked
// conditional updates.
type InventoryService struct {
	repo   *repository.Repository
	wallet *wallet.Manager
	log    *zap.Logger
}

func NewInventoryService(repo *repository.Repository, wm *wallet.Manager, log *zap.Logger) *InventoryService {
	return &InventoryService{repo: repo, wallet: wm, log: log}
}

func (s *InventoryService) Get(ctx context.Context, chainID int64, symbol string) (*model.Inventory, error) {
	return s.repo.GetInventory(ctx, s.repo.DB(), chainID, symbol)
}

// Reserve delegates to the repository using the given Querier so callers can
// couple it with order creation in one transaction.
func (s *InventoryService) Reserve(ctx context.Context, q repository.Querier, chainID int64, symbol string, amount decimal.Decimal) (bool, error) {
	return s.repo.ReserveInventory(ctx, q, chainID, symbol, amount)
}

// Release floors at zero in the database; this wrapper additionally watches
// for the anomaly case described in §4.3 and fatal-logs it, since a negative
// reserved value after release means two releases raced without a matching
// reservation.
func (s *InventoryService) Release(ctx context.Context, chainID int64, symbol string, amount decimal.Decimal) error {
	if err := s.repo.ReleaseInventory(ctx, s.repo.DB(), chainID, symbol, amount); err != nil {
		return err
	}
	inv, err := s.Get(ctx, chainID, symbol)
	if err != nil {
		return nil
	}
	if inv.Reserved.IsNegative() {
		s.log.Error("inventory reserved went negative after release",
			zap.Int64("chain_id", chainID), zap.String("symbol", symbol),
			zap.String("reserved", inv.Reserved.String()))
	}
	return nil
}

// Deduct decrements balance and reserved after a confirmed send. It never
// rolls back on anomaly since money is already on-chain; a negative balance
// or reserved is fatal-logged for manual reconciliation.
func (s *InventoryService) Deduct(ctx context.Context, q repository.Querier, chainID int64, symbol string, amount decimal.Decimal) error {
	inv, err := s.repo.DeductInventory(ctx, q, chainID, symbol, amount)
	if err != nil {
		return err
	}
	if inv.Balance.IsNegative() || inv.Reserved.IsNegative() {
		s.log.Error("inventory went negative after deduct — manual reconciliation required",
			zap.Int64("chain_id", chainID), zap.String("symbol", symbol),
			zap.String("balance", inv.Balance.String()), zap.String("reserved", inv.Reserved.String()))
	}
	return nil
}

// Sync reads the hot wallet's on-chain native balance and overwrites the
// corresponding inventory row's balance. Invoked from the scheduler on a
// 60s tick, or on demand.
func (s *InventoryService) Sync(ctx context.Context, chain model.Chain, symbol string) error {
	balance, err := s.wallet.Balance(ctx, chain.Slug)
	if err != nil {
		return err
	}
	return s.repo.SyncBalance(ctx, chain.ID, symbol, balance)
}
