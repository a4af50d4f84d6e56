package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kriptapay/payout-engine/internal/model"
	"github.com/kriptapay/payout-engine/internal/repository"
)

var ErrTxHashMismatch = errors.New("order already has a different tx_hash recorded")

// AdminService wraps the Order Engine with the two operator controls of
// §6's admin surface, grounded on payoutd's AdminServer wrapping its
// Processor rather than reaching into order state directly.
type AdminService struct {
	repo      *repository.Repository
	inventory *InventoryService
	orders    *OrderService
}

func NewAdminService(repo *repository.Repository, inventory *InventoryService, orders *OrderService) *AdminService {
	return &AdminService{repo: repo, inventory: inventory, orders: orders}
}

// RetryPayout re-invokes the payout executor directly (§4.5 step 2: "The
// executor is invoked from (a) the webhook success path and (b) an admin
// retry"). It is safe to call on any order — the executor's own
// conditional lock acquisition rejects anything not eligible.
func (s *AdminService) RetryPayout(ctx context.Context, orderID uuid.UUID) error {
	return s.orders.ProcessOrder(ctx, orderID)
}

// MarkSuccess is the operator override for a stuck order: the payout was
// confirmed by out-of-band means (explorer lookup, manual send) and the
// order must be promoted to SUCCESS with the given tx_hash without routing
// through send_native again. It reuses RecoverFinalize, the same
// idempotent promotion path the executor's own lock-recovery branch uses,
// so a concurrent automatic retry can never double-finalize or double-send.
func (s *AdminService) MarkSuccess(ctx context.Context, orderID uuid.UUID, txHash string) error {
	order, err := s.repo.GetOrder(ctx, s.repo.DB(), orderID)
	if err != nil {
		return err
	}
	if order.Status == model.OrderStatusSuccess {
		return nil
	}
	if order.TxHash == nil {
		if err := s.repo.SetBroadcastHash(ctx, orderID, txHash); err != nil {
			return fmt.Errorf("record tx hash: %w", err)
		}
	} else if *order.TxHash != txHash {
		return ErrTxHashMismatch
	}

	return s.repo.WithTx(ctx, func(tx repository.Querier) error {
		ok, err := s.repo.RecoverFinalize(ctx, tx, orderID, txHash)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return s.inventory.Deduct(ctx, tx, order.ChainID, order.Symbol, order.AmountToken)
	})
}
