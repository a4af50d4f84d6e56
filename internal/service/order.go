package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kriptapay/payout-engine/internal/config"
	"github.com/kriptapay/payout-engine/internal/model"
	"github.com/kriptapay/payout-engine/internal/repository"
	"github.com/kriptapay/payout-engine/internal/wallet"
)

var (
	ErrOrderPendingExists = errors.New("user already has a pending order")
	ErrOrderNotFound      = repository.ErrNotFound
	ErrOrderNotPending    = errors.New("order is not pending")
	ErrInventoryExhausted = errors.New("insufficient inventory for this order")
	ErrCancelNotAllowed   = errors.New("order cannot be cancelled in its current state")
	ErrBelowMinimumAmount = errors.New("amount is below this chain's minimum order amount")
)

// OrderService is the Order Engine (§4.5), the central state machine that
// ties inventory, vouchers, the payment gateway, and the hot wallet
// manager together: create/pay/send/finalize around a status column, with
// the payout executor's lock acquisition, send, and finalize each running
// inside their own conditional transition or transaction.
type OrderService struct {
	repo          *repository.Repository
	inventory     *InventoryService
	voucher       *VoucherService
	quote         *QuoteService
	wallet        *wallet.Manager
	gateway       *GatewayClient
	queue         *JobQueue
	notifier      Notifier
	cfg           config.OrderConfig
	confirmations map[string]uint64
	log           *zap.Logger
}

func NewOrderService(
	repo *repository.Repository,
	inventory *InventoryService,
	voucher *VoucherService,
	quote *QuoteService,
	wm *wallet.Manager,
	gateway *GatewayClient,
	queue *JobQueue,
	notifier Notifier,
	cfg config.OrderConfig,
	walletCfg config.WalletConfig,
	log *zap.Logger,
) *OrderService {
	return &OrderService{
		repo:      repo,
		inventory: inventory,
		voucher:   voucher,
		quote:     quote,
		wallet:    wm,
		gateway:   gateway,
		queue:     queue,
		notifier:  notifier,
		cfg:       cfg,
		confirmations: map[string]uint64{
			"bsc":      walletCfg.ConfirmationsBSC,
			"base":     walletCfg.ConfirmationsBase,
			"polygon":  walletCfg.ConfirmationsPoly,
			"ethereum": walletCfg.ConfirmationsEth,
		},
		log: log,
	}
}

// SetNotifier wires the Telegram bot in after construction, since the bot
// itself depends on OrderService.
func (s *OrderService) SetNotifier(n Notifier) {
	s.notifier = n
}

// CreateOrder implements §4.5 create_order: reject if the user has a
// pending order, reserve inventory, validate-and-reserve an optional
// voucher, and insert PENDING — all inside one transaction so any failure
// releases every reservation via rollback.
func (s *OrderService) CreateOrder(ctx context.Context, chain model.Chain, userID int64, amountIDR decimal.Decimal, walletAddress, voucherCode string) (*model.Order, error) {
	if amountIDR.LessThan(chain.MinAmountIDR) {
		return nil, fmt.Errorf("%w: %s minimum is %s", ErrBelowMinimumAmount, chain.Slug, chain.MinAmountIDR.String())
	}

	normalizedAddr, err := wallet.NormalizeAddress(chain.Type, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("normalize wallet address: %w", err)
	}

	q, err := s.quote.Quote(ctx, chain, amountIDR)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	if q.InventoryStatus == InventoryStatusOutOfStock {
		return nil, ErrInventoryExhausted
	}

	var order *model.Order
	err = s.repo.WithTx(ctx, func(tx repository.Querier) error {
		if _, err := s.repo.GetPendingOrderForUser(ctx, tx, userID); err == nil {
			return ErrOrderPendingExists
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		ok, err := s.inventory.Reserve(ctx, tx, chain.ID, q.Symbol, q.TokenAmount)
		if err != nil {
			return fmt.Errorf("reserve inventory: %w", err)
		}
		if !ok {
			return ErrInventoryExhausted
		}

		finalAmountIDR := amountIDR
		var voucherID *int64
		if voucherCode != "" {
			v, err := s.voucher.ValidateAndReserve(ctx, tx, voucherCode, userID, amountIDR)
			if err != nil {
				return err
			}
			finalAmountIDR = applyVoucherDiscount(amountIDR, v)
			voucherID = &v.ID
		}

		order = &model.Order{
			UserID:        userID,
			ChainID:       chain.ID,
			Symbol:        q.Symbol,
			AmountIDR:     finalAmountIDR,
			AmountToken:   q.TokenAmount,
			MarkupPercent: q.MarkupPercent,
			WalletAddress: normalizedAddr,
			VoucherID:     voucherID,
		}
		return s.repo.CreateOrder(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	if err := s.queue.EnqueueOrderExpiry(ctx, order.ID, order.CreatedAt.Add(s.cfg.PendingTTL)); err != nil {
		s.log.Warn("create_order: failed to schedule per-order expiry job, batch sweep will still catch it",
			zap.String("order_id", order.ID.String()), zap.Error(err))
	}
	return order, nil
}

// applyVoucherDiscount subtracts the voucher's flat value_idr, floored at
// zero; the result is the post-discount payable named by §4.5 create_order.
func applyVoucherDiscount(amountIDR decimal.Decimal, v *model.Voucher) decimal.Decimal {
	discounted := amountIDR.Sub(v.ValueIDR)
	if discounted.IsNegative() {
		discounted = decimal.Zero
	}
	return discounted
}

// CreatePayment implements §4.5 create_payment: charge the gateway once and
// attach its identifiers. Only valid while PENDING.
func (s *OrderService) CreatePayment(ctx context.Context, orderID uuid.UUID, method model.PaymentMethod) (*model.Order, error) {
	order, err := s.repo.GetOrder(ctx, s.repo.DB(), orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusPending {
		return nil, ErrOrderNotPending
	}

	fee := GatewayFee(method)
	totalPay := order.AmountIDR.Add(fee)

	resp, err := s.gateway.Charge(ctx, ChargeRequest{OrderID: order.ID.String(), Amount: totalPay, Method: method})
	if err != nil {
		return nil, fmt.Errorf("gateway charge: %w", err)
	}

	ok, err := s.repo.AttachPayment(ctx, orderID, resp.MidtransID, resp.PaymentURL, method, fee, totalPay)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderNotPending
	}
	return s.repo.GetOrder(ctx, s.repo.DB(), orderID)
}

// CancelOrder implements §4.5 cancel_order: conditional PENDING -> CANCELLED,
// then release inventory and any voucher reservation.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repo.GetOrder(ctx, s.repo.DB(), orderID)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		return nil
	}
	if order.Status != model.OrderStatusPending {
		return ErrCancelNotAllowed
	}

	ok, err := s.repo.CancelPending(ctx, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.releaseOrderHolds(ctx, order)
}

func (s *OrderService) releaseOrderHolds(ctx context.Context, order *model.Order) error {
	if err := s.inventory.Release(ctx, order.ChainID, order.Symbol, order.AmountToken); err != nil {
		return fmt.Errorf("release inventory: %w", err)
	}
	if order.VoucherID != nil {
		if err := s.voucher.Release(ctx, *order.VoucherID); err != nil {
			return fmt.Errorf("release voucher: %w", err)
		}
	}
	return nil
}

// ExpireSweep implements §4.5 expire_sweep. It runs every
// cfg.ExpirySweepInterval against PENDING orders older than cfg.PendingTTL.
func (s *OrderService) ExpireSweep(ctx context.Context) (expired int, err error) {
	cutoff := time.Now().Add(-s.cfg.PendingTTL)
	candidates, err := s.repo.ListExpiryCandidates(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for _, order := range candidates {
		if s.sweepOne(ctx, &order) {
			expired++
		}
	}
	return expired, nil
}

func (s *OrderService) sweepOne(ctx context.Context, order *model.Order) bool {
	expired, err := s.expireOne(ctx, order)
	if err != nil {
		s.log.Warn("expire sweep: expire attempt failed, leaving for next tick",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		return false
	}
	return expired
}

// expireOne is the single-order expiry transition shared by the batch sweep
// and the per-order delayed job: gateway reconciliation first (an order that
// already settled is promoted, not expired), then the grace period, then the
// conditional PENDING -> EXPIRED transition and hold release. Errors here are
// the ones worth retrying (gateway flakiness, a failed transition query);
// "not yet due" and "already handled" are reported as a plain false, not an
// error.
func (s *OrderService) expireOne(ctx context.Context, order *model.Order) (bool, error) {
	if order.MidtransID != nil {
		status, err := s.gateway.Status(ctx, *order.MidtransID)
		if err != nil {
			return false, fmt.Errorf("gateway status query: %w", err)
		}
		if isGatewaySettled(status) {
			if err := s.HandlePaymentSuccess(ctx, order.ID); err != nil {
				return false, fmt.Errorf("handle_payment_success: %w", err)
			}
			return false, nil
		}
		if time.Since(order.CreatedAt) < s.cfg.ExpiryGracePeriod {
			return false, nil
		}
	}

	ok, err := s.repo.TransitionToExpired(ctx, order.ID)
	if err != nil {
		return false, fmt.Errorf("transition to expired: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := s.releaseOrderHolds(ctx, order); err != nil {
		return true, fmt.Errorf("release holds after expiry: %w", err)
	}
	return true, nil
}

// ExpireOne is the per-order single-expiry job (§4.9): fired once, delayed
// to the order's own PendingTTL deadline, instead of waiting for the next
// batch sweep tick. A terminal or already-processed order is a no-op, not
// an error, so the delayed-job consumer doesn't retry it needlessly.
func (s *OrderService) ExpireOne(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repo.GetOrder(ctx, s.repo.DB(), orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if order.Status != model.OrderStatusPending {
		return nil
	}
	_, err = s.expireOne(ctx, order)
	return err
}

func isGatewaySettled(st *GatewayStatus) bool {
	switch strings.ToLower(st.TransactionStatus) {
	case "settlement", "capture":
		return st.FraudStatus == "" || strings.EqualFold(st.FraudStatus, "accept")
	}
	return false
}

// SyncOrder is the on-demand counterpart to the expiry sweep's gateway
// check (§6 POST /orders/:id/sync): re-query the gateway for a PENDING
// order with a midtrans_id and promote it if settlement already happened,
// instead of waiting for the sweep or the webhook.
func (s *OrderService) SyncOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.repo.GetOrder(ctx, s.repo.DB(), orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusPending || order.MidtransID == nil {
		return order, nil
	}

	status, err := s.gateway.Status(ctx, *order.MidtransID)
	if err != nil {
		return order, fmt.Errorf("gateway status: %w", err)
	}
	if isGatewaySettled(status) {
		if err := s.HandlePaymentSuccess(ctx, orderID); err != nil {
			return order, err
		}
		return s.repo.GetOrder(ctx, s.repo.DB(), orderID)
	}
	return order, nil
}

// RequeueOrphanedPayouts re-enqueues PAID orders with no tx_hash that have
// sat longer than olderThan, covering the case where the payout job was
// lost between the PAID transition and the enqueue call (§9's open-question
// recovery path). ProcessOrder's own lock acquisition makes a duplicate
// enqueue harmless if the original job is merely slow rather than lost.
func (s *OrderService) RequeueOrphanedPayouts(ctx context.Context, olderThan time.Duration) (int, error) {
	orphans, err := s.repo.ListUnqueuedPaid(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	requeued := 0
	for _, order := range orphans {
		if err := s.queue.EnqueuePayout(ctx, order.ID); err != nil {
			s.log.Warn("requeue orphaned payout: enqueue failed",
				zap.String("order_id", order.ID.String()), zap.Error(err))
			continue
		}
		requeued++
	}
	return requeued, nil
}

// HandlePaymentSuccess implements §4.5 handle_payment_success: conditional
// PENDING -> PAID, then enqueue the payout job exactly once (the
// conditional update itself is the at-most-once barrier against the
// webhook and the sweep both calling in).
func (s *OrderService) HandlePaymentSuccess(ctx context.Context, orderID uuid.UUID) error {
	ok, err := s.repo.TransitionToPaid(ctx, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.queue.EnqueuePayout(ctx, orderID)
}

// ProcessOrder is the payout executor (§4.5 process_order), by far the
// most sensitive routine in the system, grounded step-for-step on
// nhbchain's payoutd Processor.Process: acquire the exclusive lock
// (retrying a zombie steal up to 3 times), send, then finalize.
func (s *OrderService) ProcessOrder(ctx context.Context, orderID uuid.UUID) error {
	locked, err := s.acquireLock(ctx, orderID)
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}

	order, err := s.repo.GetOrder(ctx, s.repo.DB(), orderID)
	if err != nil {
		return err
	}
	chain, err := s.repo.GetChain(ctx, order.ChainID)
	if err != nil {
		return err
	}

	txHash, err := s.wallet.SendNative(ctx, *chain, order.WalletAddress, order.AmountToken, chain.Confirmations(s.confirmations))
	if err != nil {
		var broadcasted *wallet.ErrTxBroadcasted
		if errors.As(err, &broadcasted) {
			if setErr := s.repo.SetBroadcastHash(ctx, orderID, broadcasted.TxHash); setErr != nil {
				s.log.Error("process_order: failed to record broadcast hash after ambiguous send",
					zap.String("order_id", orderID.String()), zap.Error(setErr))
			}
			txHash = broadcasted.TxHash
		} else if wallet.IsSafeSendError(err) {
			return s.failSafely(ctx, orderID, order, err)
		} else {
			s.log.Error("process_order: ambiguous send error, order left in PROCESSING",
				zap.String("order_id", orderID.String()), zap.String("risk", "double_spend"), zap.Error(err))
			_ = s.repo.LogAudit(ctx, strPtr(orderID.String()), "critical", "ambiguous send error", map[string]string{"error": err.Error()})
			return err
		}
	}

	if err := s.finalize(ctx, orderID, order, txHash); err != nil {
		return err
	}

	if err := s.queue.EnqueueReferralValidation(ctx, order.UserID); err != nil {
		s.log.Warn("process_order: referral enqueue failed", zap.Int64("user_id", order.UserID), zap.Error(err))
	}
	s.notifier.NotifyOrderSuccess(ctx, order.UserID, order.ID.String(), txHash, chain.ExplorerURL)
	return nil
}

func (s *OrderService) failSafely(ctx context.Context, orderID uuid.UUID, order *model.Order, sendErr error) error {
	err := s.repo.WithTx(ctx, func(tx repository.Querier) error {
		ok, err := s.repo.FailProcessingTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return s.repo.ReleaseInventory(ctx, tx, order.ChainID, order.Symbol, order.AmountToken)
	})
	if err != nil {
		return fmt.Errorf("fail order %s after safe send error: %w", orderID, err)
	}
	s.notifier.NotifyOrderFailed(ctx, order.UserID, order.ID.String(), sendErr.Error())
	return nil
}

func (s *OrderService) finalize(ctx context.Context, orderID uuid.UUID, order *model.Order, txHash string) error {
	finalizeOnce := func() error {
		return s.repo.WithTx(ctx, func(tx repository.Querier) error {
			ok, err := s.repo.FinalizeSuccess(ctx, tx, orderID, txHash)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			return s.inventory.Deduct(ctx, tx, order.ChainID, order.Symbol, order.AmountToken)
		})
	}

	if err := finalizeOnce(); err != nil {
		s.log.Error("process_order: finalize failed, retrying once in 1s",
			zap.String("order_id", orderID.String()), zap.String("tx_hash", txHash), zap.Error(err))
		time.Sleep(time.Second)
		if err := finalizeOnce(); err != nil {
			s.log.Error("process_order: finalize retry failed — manual reconciliation required",
				zap.String("order_id", orderID.String()), zap.String("tx_hash", txHash), zap.Error(err))
			_ = s.repo.LogAudit(ctx, strPtr(orderID.String()), "critical", "finalize failed after send", map[string]string{"tx_hash": txHash, "error": err.Error()})
			return fmt.Errorf("finalize order %s after successful send (tx %s): %w", orderID, txHash, err)
		}
	}
	return nil
}

// acquireLock implements §4.5 step 1, including the SUCCESS/tx_hash
// recovery branches and the zombie-steal path, retried up to 3 times.
func (s *OrderService) acquireLock(ctx context.Context, orderID uuid.UUID) (bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		ok, err := s.repo.AcquireProcessingLock(ctx, orderID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		order, err := s.repo.GetOrder(ctx, s.repo.DB(), orderID)
		if err != nil {
			return false, err
		}

		switch {
		case order.Status == model.OrderStatusSuccess:
			return false, nil
		case order.TxHash != nil:
			err := s.repo.WithTx(ctx, func(tx repository.Querier) error {
				ok, err := s.repo.RecoverFinalize(ctx, tx, orderID, *order.TxHash)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				return s.inventory.Deduct(ctx, tx, order.ChainID, order.Symbol, order.AmountToken)
			})
			return false, err
		case order.Status == model.OrderStatusProcessing:
			if time.Since(order.UpdatedAt) > s.cfg.ZombieLockAge {
				stole, err := s.repo.StealProcessingLock(ctx, orderID, order.UpdatedAt)
				if err != nil {
					return false, err
				}
				if stole {
					return true, nil
				}
			}
			return false, nil
		default:
			return false, nil
		}
	}
	return false, nil
}

func strPtr(s string) *string { return &s }
