package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kriptapay/payout-engine/internal/config"
	"github.com/kriptapay/payout-engine/internal/convstate"
	"github.com/kriptapay/payout-engine/internal/handler"
	"github.com/kriptapay/payout-engine/internal/middleware"
	"github.com/kriptapay/payout-engine/internal/priceapi"
	"github.com/kriptapay/payout-engine/internal/repository"
	"github.com/kriptapay/payout-engine/internal/scheduler"
	"github.com/kriptapay/payout-engine/internal/service"
	"github.com/kriptapay/payout-engine/internal/telegram"
	"github.com/kriptapay/payout-engine/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zlog.Sync()

	repo, err := repository.New(cfg.Database.DSN())
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer repo.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		zlog.Fatal("failed to connect to redis", zap.Error(err))
	}

	chains, err := repo.ListActiveChains(ctx)
	if err != nil {
		zlog.Fatal("failed to load active chains", zap.Error(err))
	}

	walletMgr := wallet.NewManager(rdb, cfg.Wallet, zlog)
	symbolSet := map[string]struct{}{}
	for _, chain := range chains {
		token, err := repo.GetNativeToken(ctx, chain.ID)
		if err != nil {
			zlog.Fatal("failed to resolve native token", zap.String("chain", chain.Slug), zap.Error(err))
		}
		if err := walletMgr.LoadChain(ctx, chain, token.Decimals, cfg.Wallet.KeyPassword); err != nil {
			zlog.Fatal("failed to load chain into hot wallet manager", zap.String("chain", chain.Slug), zap.Error(err))
		}
		symbolSet[token.Symbol] = struct{}{}
	}
	symbols := make([]string, 0, len(symbolSet))
	for sym := range symbolSet {
		symbols = append(symbols, sym)
	}

	fetcher := priceapi.NewRESTFetcher(cfg.Price.RESTURL, zlog)
	priceCache := priceapi.NewCache(rdb, fetcher, cfg.Price.SWRWindow, cfg.Price.HardTTL, cfg.Price.SingleLockTTL, zlog)

	defaultFX, err := decimal.NewFromString(cfg.Price.DefaultFXRate)
	if err != nil {
		zlog.Fatal("invalid DEFAULT_FX_RATE", zap.Error(err))
	}
	fxRate := priceapi.NewFXRate(rdb, cfg.Price.FXEndpoint, defaultFX, zlog)

	streamWriter := priceapi.NewStreamWriter(cfg.Price.StreamURL, priceCache, symbols, cfg.Price.WatchdogIdle, cfg.Price.ReconnectBase, zlog)

	globalMarkup, err := decimal.NewFromString(cfg.Price.DefaultMarkup)
	if err != nil {
		zlog.Fatal("invalid DEFAULT_MARKUP_PERCENT", zap.Error(err))
	}

	inventorySvc := service.NewInventoryService(repo, walletMgr, zlog)
	voucherSvc := service.NewVoucherService(repo)
	quoteSvc := service.NewQuoteService(repo, priceCache, fxRate, globalMarkup)
	gatewayClient := service.NewGatewayClient(cfg.Gateway)
	jobQueue := service.NewJobQueue(rdb, zlog)

	convStore := convstate.NewStore(rdb, zlog)
	userSvc := service.NewUserService(repo)

	// Notifier starts as a no-op and is swapped for the Telegram bot below
	// once it exists, to avoid a circular dependency between OrderService
	// and the bot.
	referralSvc := service.NewReferralService(repo, voucherSvc, service.NoopNotifier{}, cfg.Order)
	orderSvc := service.NewOrderService(repo, inventorySvc, voucherSvc, quoteSvc, walletMgr, gatewayClient, jobQueue, service.NoopNotifier{}, cfg.Order, cfg.Wallet, zlog)
	webhookSvc := service.NewWebhookService(repo, orderSvc, cfg.Gateway, zlog)
	adminSvc := service.NewAdminService(repo, inventorySvc, orderSvc)

	var bot *telegram.Bot
	if cfg.Telegram.BotToken != "" {
		bot, err = telegram.NewBot(cfg, convStore, userSvc, orderSvc, quoteSvc, referralSvc, repo)
		if err != nil {
			zlog.Warn("failed to create telegram bot", zap.Error(err))
		} else {
			orderSvc.SetNotifier(bot)
			referralSvc.SetNotifier(bot)
		}
	}

	h := handler.New(cfg, repo, orderSvc, quoteSvc, webhookSvc, adminSvc, referralSvc, zlog)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Telegram-Init-Data",
	}))

	app.Get("/health", h.Health)
	app.Get("/internal/health", h.Health)

	quoteLimiter := limiter.New(limiter.Config{Max: 30, Expiration: time.Minute})
	orderLimiter := limiter.New(limiter.Config{Max: 10, Expiration: time.Hour})
	webhookLimiter := limiter.New(limiter.Config{Max: 120, Expiration: time.Minute})

	app.Get("/pricing/quote", quoteLimiter, h.GetQuote)

	orders := app.Group("/orders", orderLimiter, middleware.TelegramAuth(cfg, userSvc, referralSvc))
	orders.Post("/", h.CreateOrder)
	orders.Post("/:id/pay", h.Pay)
	orders.Post("/:id/sync", h.Sync)
	orders.Post("/:id/cancel", h.Cancel)

	app.Post("/payments/webhook", webhookLimiter, h.Webhook)

	admin := app.Group("/admin", middleware.TelegramAuth(cfg, userSvc, referralSvc), middleware.AdminAuth(repo))
	admin.Post("/orders/:id/retry", h.RetryPayout)
	admin.Post("/orders/:id/mark-success", h.MarkSuccess)

	sched := scheduler.New(zlog)
	sched.Register(scheduler.Job{
		Name:     "price-refresh",
		Interval: 60 * time.Second,
		Run: func(ctx context.Context) error {
			fetcher.Sweep(ctx, priceCache, symbols)
			return nil
		},
	})
	sched.Register(scheduler.Job{
		Name:     "inventory-sync",
		Interval: 60 * time.Second,
		Run: func(ctx context.Context) error {
			for _, chain := range chains {
				token, err := repo.GetNativeToken(ctx, chain.ID)
				if err != nil {
					continue
				}
				if err := inventorySvc.Sync(ctx, chain, token.Symbol); err != nil {
					zlog.Warn("inventory sync failed", zap.String("chain", chain.Slug), zap.Error(err))
				}
			}
			return nil
		},
	})
	sched.Register(scheduler.Job{
		Name:     "expiry-sweep",
		Interval: cfg.Order.ExpirySweepInterval,
		Run: func(ctx context.Context) error {
			_, err := orderSvc.ExpireSweep(ctx)
			return err
		},
	})
	sched.Register(scheduler.Job{
		Name:     "paid-orphan-sweep",
		Interval: cfg.Order.ZombieLockAge,
		Run: func(ctx context.Context) error {
			_, err := orderSvc.RequeueOrphanedPayouts(ctx, cfg.Order.ZombieLockAge)
			return err
		},
	})
	sched.Register(scheduler.Job{
		Name:     "referral-sweep",
		Interval: 10 * time.Minute,
		Run: func(ctx context.Context) error {
			_, err := referralSvc.SweepPending(ctx)
			return err
		},
	})
	sched.Register(scheduler.Job{
		Name:     "voucher-expiry-sweep",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			_, err := voucherSvc.ExpireSweep(ctx)
			return err
		},
	})

	go sched.Start(ctx)
	go streamWriter.Run(ctx)
	go jobQueue.RunPayoutConsumers(ctx, cfg.Order.PayoutMaxConcurrent, orderSvc.ProcessOrder)
	go jobQueue.RunReferralConsumer(ctx, referralSvc.Validate)
	go jobQueue.RunOrderExpiryConsumer(ctx, orderSvc.ExpireOne)

	if bot != nil {
		go bot.StartPolling(ctx)
		zlog.Info("telegram bot started with long polling")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zlog.Info("shutting down")
		cancel()
		_ = app.Shutdown()
	}()

	zlog.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		zlog.Fatal("failed to start server", zap.Error(err))
	}
}
