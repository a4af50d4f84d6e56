// Package telegram is the chat-bot surface of the Conversation State
// purchase flow (§4.8). Every step here reads and writes convstate.Store
// rather than driving off a single stateless request.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"github.com/kriptapay/payout-engine/internal/config"
	"github.com/kriptapay/payout-engine/internal/convstate"
	"github.com/kriptapay/payout-engine/internal/httputil"
	"github.com/kriptapay/payout-engine/internal/model"
	"github.com/kriptapay/payout-engine/internal/repository"
	"github.com/kriptapay/payout-engine/internal/service"
)

var presetAmountsIDR = []int64{100_000, 500_000, 1_000_000, 5_000_000}

type Bot struct {
	bot      *tele.Bot
	cfg      *config.Config
	state    *convstate.Store
	users    *service.UserService
	orders   *service.OrderService
	quote    *service.QuoteService
	referral *service.ReferralService
	repo     *repository.Repository
}

func NewBot(
	cfg *config.Config,
	state *convstate.Store,
	users *service.UserService,
	orders *service.OrderService,
	quote *service.QuoteService,
	referral *service.ReferralService,
	repo *repository.Repository,
) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Telegram.BotToken,
		Poller: &tele.LongPoller{Timeout: 60 * time.Second},
	}
	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{bot: bot, cfg: cfg, state: state, users: users, orders: orders, quote: quote, referral: referral, repo: repo}
	b.registerHandlers()
	return b, nil
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/buy", b.handleBuy)
	b.bot.Handle("/cancel", b.handleCancel)
	b.bot.Handle("/status", b.handleStatus)
	b.bot.Handle("/help", b.handleHelp)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
	b.bot.Handle(tele.OnText, b.handleText)
}

func (b *Bot) StartPolling(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.bot.Start()
}

func (b *Bot) handleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()

	var referredBy *int64
	if payload := c.Message().Payload; strings.HasPrefix(payload, "ref_") {
		code := strings.TrimPrefix(payload, "ref_")
		if referrer, err := b.users.GetUserByReferralCode(ctx, code); err == nil {
			referredBy = &referrer.ID
		}
	}

	user, isNew, err := b.users.GetOrCreateByChatID(ctx, sender.ID, referredBy)
	if err != nil {
		return c.Send("Something went wrong, please try again later.")
	}
	if isNew && referredBy != nil {
		_ = b.referral.CreateReferral(ctx, *referredBy, user.ID)
	} else if !isNew {
		go func() {
			_ = b.referral.Validate(context.Background(), user.ID)
		}()
	}

	text := fmt.Sprintf("Welcome, %s!\n\nBuy crypto with IDR straight to your own wallet.\n\nUse /buy to start an order, /status to check a pending one, /cancel to abort.", sender.FirstName)
	return c.Send(text)
}

func (b *Bot) handleHelp(c tele.Context) error {
	return c.Send("/buy — start a purchase\n/status — check your pending order\n/cancel — cancel the in-progress flow or a pending order")
}

func (b *Bot) handleBuy(c tele.Context) error {
	ctx := context.Background()
	chains, err := b.repo.ListActiveChains(ctx)
	if err != nil || len(chains) == 0 {
		return c.Send("No chains are available for purchase right now.")
	}

	if err := b.state.Update(ctx, c.Sender().ID, func(st *convstate.State) error {
		*st = convstate.State{Step: convstate.StepAwaitingChain, CreatedAt: time.Now()}
		return nil
	}); err != nil {
		return c.Send("Operation already in progress, please try again in a moment.")
	}

	kb := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, chain := range chains {
		rows = append(rows, kb.Row(kb.Data(strings.ToUpper(chain.Slug), "chain:"+chain.Slug)))
	}
	kb.Inline(rows...)
	return c.Send("Pick a chain to receive your crypto on:", kb)
}

func (b *Bot) handleCancel(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Sender().ID

	st, err := b.state.Get(ctx, chatID)
	if err == nil && st.OrderID != "" {
		if orderID, err := uuid.Parse(st.OrderID); err == nil {
			if err := b.orders.CancelOrder(ctx, orderID); err != nil && !errors.Is(err, service.ErrCancelNotAllowed) {
				return c.Send("Failed to cancel: " + err.Error())
			}
		}
	}
	_ = b.state.Reset(ctx, chatID)
	return c.Send("Cancelled.")
}

func (b *Bot) handleStatus(c tele.Context) error {
	ctx := context.Background()
	st, err := b.state.Get(ctx, c.Sender().ID)
	if err != nil || st.OrderID == "" {
		return c.Send("You have no order in progress. Use /buy to start one.")
	}

	orderID, err := uuid.Parse(st.OrderID)
	if err != nil {
		return c.Send("You have no order in progress. Use /buy to start one.")
	}
	order, err := b.repo.GetOrder(ctx, b.repo.DB(), orderID)
	if err != nil {
		return c.Send("Could not look up that order.")
	}
	return c.Send(fmt.Sprintf("Order %s is %s.", order.ID, order.Status))
}

func (b *Bot) handleCallback(c tele.Context) error {
	defer c.Respond()
	data := strings.TrimPrefix(c.Callback().Data, "\f")

	switch {
	case strings.HasPrefix(data, "chain:"):
		return b.onChainChosen(c, strings.TrimPrefix(data, "chain:"))
	case data == "amount:custom":
		return b.promptCustomAmount(c)
	case strings.HasPrefix(data, "amount:"):
		return b.onAmountChosen(c, strings.TrimPrefix(data, "amount:"))
	case data == "voucher:skip":
		return b.onVoucherChosen(c, "")
	case data == "confirm":
		return b.onConfirm(c)
	case strings.HasPrefix(data, "pay:"):
		return b.onPaymentMethodChosen(c, strings.TrimPrefix(data, "pay:"))
	default:
		return nil
	}
}

func (b *Bot) onChainChosen(c tele.Context, slug string) error {
	ctx := context.Background()
	chatID := c.Sender().ID

	if err := b.state.Update(ctx, chatID, func(st *convstate.State) error {
		if st.Step != convstate.StepAwaitingChain {
			return errors.New("not awaiting a chain right now")
		}
		st.Chain = slug
		st.Step = convstate.StepAwaitingAmount
		return nil
	}); err != nil {
		return c.Send(err.Error())
	}

	kb := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, amt := range presetAmountsIDR {
		rows = append(rows, kb.Row(kb.Data(formatIDR(amt), fmt.Sprintf("amount:%d", amt))))
	}
	rows = append(rows, kb.Row(kb.Data("Custom amount", "amount:custom")))
	kb.Inline(rows...)
	return c.Edit("How much IDR do you want to spend?", kb)
}

func (b *Bot) promptCustomAmount(c tele.Context) error {
	ctx := context.Background()
	if err := b.state.Update(ctx, c.Sender().ID, func(st *convstate.State) error {
		if st.Step != convstate.StepAwaitingAmount {
			return errors.New("not awaiting an amount right now")
		}
		st.Step = convstate.StepAwaitingCustomAmount
		return nil
	}); err != nil {
		return c.Send(err.Error())
	}
	return c.Send("Send the IDR amount you want to spend, e.g. 250.000 or Rp 250000.")
}

func (b *Bot) onAmountChosen(c tele.Context, raw string) error {
	var amountIDR int64
	if _, err := fmt.Sscanf(raw, "%d", &amountIDR); err != nil || amountIDR <= 0 {
		return c.Send("Invalid amount.")
	}
	return b.advanceToWallet(c, amountIDR)
}

func (b *Bot) advanceToWallet(c tele.Context, amountIDR int64) error {
	ctx := context.Background()
	amt := decimal.NewFromInt(amountIDR)
	if err := b.state.Update(ctx, c.Sender().ID, func(st *convstate.State) error {
		st.AmountIDR = &amt
		st.Step = convstate.StepAwaitingWallet
		return nil
	}); err != nil {
		return c.Send(err.Error())
	}
	return c.Send("Send the wallet address that should receive the crypto.")
}

func (b *Bot) onVoucherChosen(c tele.Context, code string) error {
	ctx := context.Background()
	chatID := c.Sender().ID

	var st *convstate.State
	if err := b.state.Update(ctx, chatID, func(s *convstate.State) error {
		if s.Step != convstate.StepAwaitingVoucher {
			return errors.New("not awaiting a voucher right now")
		}
		s.VoucherCode = code
		s.Step = convstate.StepAwaitingConfirmation
		st = s
		return nil
	}); err != nil {
		return c.Send(err.Error())
	}

	chain, err := b.repo.GetChainBySlug(ctx, st.Chain)
	if err != nil {
		return c.Send("That chain is no longer available, use /buy to start over.")
	}
	q, err := b.quote.Quote(ctx, *chain, *st.AmountIDR)
	if err != nil {
		return c.Send("Could not price this order right now, please try again.")
	}

	if err := b.state.Update(ctx, chatID, func(s *convstate.State) error {
		s.TokenAmount = &q.TokenAmount
		return nil
	}); err != nil {
		return c.Send(err.Error())
	}

	kb := &tele.ReplyMarkup{}
	kb.Inline(kb.Row(kb.Data("Confirm", "confirm")))
	return c.Send(fmt.Sprintf("You will receive ~%s %s on %s for %s IDR to %s.\n\nConfirm?",
		q.TokenAmount.StringFixed(8), q.Symbol, strings.ToUpper(st.Chain), st.AmountIDR.StringFixed(0), st.WalletAddress), kb)
}

func (b *Bot) onConfirm(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Sender().ID

	st, err := b.state.Get(ctx, chatID)
	if err != nil || st.Step != convstate.StepAwaitingConfirmation {
		return c.Send("There is nothing to confirm, use /buy to start over.")
	}

	user, _, err := b.users.GetOrCreateByChatID(ctx, chatID, nil)
	if err != nil {
		return c.Send("Something went wrong, please try again later.")
	}

	release, err := b.state.AcquireCriticalSection(ctx, user.ID)
	if err != nil {
		return c.Send("Operation already in progress, please try again in a moment.")
	}
	defer release()

	chain, err := b.repo.GetChainBySlug(ctx, st.Chain)
	if err != nil {
		return c.Send("That chain is no longer available, use /buy to start over.")
	}

	fresh, err := b.quote.Quote(ctx, *chain, *st.AmountIDR)
	if err != nil {
		return c.Send("Could not reprice this order, please try again.")
	}
	if st.TokenAmount != nil {
		if err := convstate.CheckSlippage(*st.TokenAmount, fresh.TokenAmount); err != nil {
			return c.Send("Price moved too much since you confirmed, please start over with /buy.")
		}
	}

	order, err := b.orders.CreateOrder(ctx, *chain, user.ID, *st.AmountIDR, st.WalletAddress, st.VoucherCode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderPendingExists):
			return c.Send("You already have a pending order, use /status to check it or /cancel to abort it.")
		case errors.Is(err, service.ErrInventoryExhausted):
			return c.Send("This chain is out of stock right now, please try another one.")
		case errors.Is(err, service.ErrBelowMinimumAmount):
			return c.Send("That amount is below the minimum for " + chain.Slug + ", use /buy to pick a larger amount.")
		default:
			return c.Send("Could not create the order: " + err.Error())
		}
	}

	if err := b.state.Update(ctx, chatID, func(s *convstate.State) error {
		s.OrderID = order.ID.String()
		s.Step = convstate.StepAwaitingPaymentMethod
		return nil
	}); err != nil {
		return c.Send(err.Error())
	}

	kb := &tele.ReplyMarkup{}
	kb.Inline(
		kb.Row(kb.Data("QRIS", "pay:QRIS")),
		kb.Row(kb.Data("Virtual Account", "pay:VA")),
	)
	return c.Send("Order created. Choose a payment method:", kb)
}

func (b *Bot) onPaymentMethodChosen(c tele.Context, methodStr string) error {
	ctx := context.Background()
	chatID := c.Sender().ID

	st, err := b.state.Get(ctx, chatID)
	if err != nil || st.Step != convstate.StepAwaitingPaymentMethod || st.OrderID == "" {
		return c.Send("There is no order awaiting payment, use /buy to start over.")
	}

	orderID, err := uuid.Parse(st.OrderID)
	if err != nil {
		return c.Send("Could not find that order.")
	}

	var method model.PaymentMethod
	switch methodStr {
	case string(model.PaymentMethodQRIS):
		method = model.PaymentMethodQRIS
	case string(model.PaymentMethodVA):
		method = model.PaymentMethodVA
	default:
		return c.Send("Unknown payment method.")
	}

	order, err := b.orders.CreatePayment(ctx, orderID, method)
	if err != nil {
		return c.Send("Could not start payment: " + err.Error())
	}

	_ = b.state.Reset(ctx, chatID)

	msg := fmt.Sprintf("Total to pay: %s IDR.", order.TotalPay.StringFixed(0))
	if order.PaymentURL != nil {
		msg += "\n\nPay here: " + *order.PaymentURL
	}
	msg += "\n\nUse /status to check progress once you've paid."
	return c.Send(msg)
}

func (b *Bot) handleText(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Sender().ID
	text := strings.TrimSpace(c.Text())

	st, err := b.state.Get(ctx, chatID)
	if err != nil {
		return nil
	}

	switch st.Step {
	case convstate.StepAwaitingCustomAmount:
		n, err := httputil.ParseIDR(text)
		if err != nil {
			return c.Send("That doesn't look like a valid IDR amount, try again.")
		}
		return b.advanceToWallet(c, n)
	case convstate.StepAwaitingWallet:
		if err := b.state.Update(ctx, chatID, func(s *convstate.State) error {
			s.WalletAddress = text
			s.Step = convstate.StepAwaitingVoucher
			return nil
		}); err != nil {
			return c.Send(err.Error())
		}
		kb := &tele.ReplyMarkup{}
		kb.Inline(kb.Row(kb.Data("No voucher", "voucher:skip")))
		return c.Send("Have a voucher code? Send it now, or skip.", kb)
	case convstate.StepAwaitingVoucher:
		return b.onVoucherChosen(c, text)
	default:
		return nil
	}
}

// NotifyOrderSuccess implements service.Notifier.
func (b *Bot) NotifyOrderSuccess(ctx context.Context, userID int64, orderID, txHash, explorerURL string) {
	chatID, ok := b.chatIDFor(ctx, userID)
	if !ok {
		return
	}
	msg := fmt.Sprintf("Order %s completed. Tx: %s", orderID, txHash)
	if explorerURL != "" {
		msg += "\n" + strings.TrimSuffix(explorerURL, "/") + "/" + txHash
	}
	_, _ = b.bot.Send(&tele.User{ID: chatID}, msg)
}

// NotifyOrderFailed implements service.Notifier.
func (b *Bot) NotifyOrderFailed(ctx context.Context, userID int64, orderID, reason string) {
	chatID, ok := b.chatIDFor(ctx, userID)
	if !ok {
		return
	}
	_, _ = b.bot.Send(&tele.User{ID: chatID}, fmt.Sprintf("Order %s failed: %s. You have not been charged for the payout.", orderID, reason))
}

// NotifyReferralReward implements service.Notifier.
func (b *Bot) NotifyReferralReward(ctx context.Context, userID int64, voucherCode string) {
	chatID, ok := b.chatIDFor(ctx, userID)
	if !ok {
		return
	}
	_, _ = b.bot.Send(&tele.User{ID: chatID}, fmt.Sprintf("You earned a referral reward! Use code %s on your next order.", voucherCode))
}

func (b *Bot) chatIDFor(ctx context.Context, userID int64) (int64, bool) {
	user, err := b.repo.GetUser(ctx, userID)
	if err != nil || user.ChatID == nil {
		return 0, false
	}
	return *user.ChatID, true
}

func formatIDR(n int64) string {
	s := fmt.Sprintf("%d", n)
	var out []byte
	for i, d := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, d)
	}
	return "Rp " + string(out)
}
