package main

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/aislide/aislide-bot/internal/bot"
	"github.com/aislide/aislide-bot/internal/config"
	"github.com/aislide/aislide-bot/internal/domain/account"
	"github.com/aislide/aislide-bot/internal/domain/admin"
	"github.com/aislide/aislide-bot/internal/domain/conversation"
	"github.com/aislide/aislide-bot/internal/domain/ledger"
	"github.com/aislide/aislide-bot/internal/domain/pricing"
	"github.com/aislide/aislide-bot/internal/domain/subscription"
	"github.com/aislide/aislide-bot/internal/domain/task"
	"github.com/aislide/aislide-bot/internal/domain/theme"
	"github.com/aislide/aislide-bot/internal/middleware"
	"github.com/aislide/aislide-bot/internal/pkg/database"
	"github.com/aislide/aislide-bot/internal/pkg/imaging"
	"github.com/aislide/aislide-bot/internal/pkg/jwt"
	"github.com/aislide/aislide-bot/internal/pkg/locker"
	"github.com/aislide/aislide-bot/internal/pkg/logger"
	"github.com/aislide/aislide-bot/internal/pkg/metrics"
	"github.com/aislide/aislide-bot/internal/pkg/migrations"
	pkgresponse "github.com/aislide/aislide-bot/internal/pkg/response"
	"github.com/aislide/aislide-bot/internal/pkg/storage"
	"github.com/aislide/aislide-bot/internal/pkg/telegram"
)

const webhookPath = "/telegram/webhook/"

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("mode", cfg.BotMode).
		Msg("Starting AISlide bot")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	if err := migrations.Up(db.DB); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	tg, err := telegram.New(telegram.Config{
		Token:         cfg.BotToken,
		WebhookSecret: cfg.WebhookSecret,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram client")
	}

	// ---------- Repositories ----------
	accountRepo := account.NewRepository(db)
	ledgerRepo := ledger.NewRepository(db)
	priceRepo := pricing.NewRepository(db)
	taskRepo := task.NewRepository(db)
	channelRepo := subscription.NewRepository(db)

	// ---------- Services ----------
	themes := theme.NewRegistry()
	limits := cfg.OrderLimits()

	accountSvc := account.NewService(accountRepo, cfg.FreeQuotaDefault)
	ledgerSvc := ledger.NewService(ledgerRepo)
	catalog := pricing.NewCatalog(priceRepo, pricing.Config{
		Defaults: cfg.PriceDefaults,
		Fallback: cfg.DefaultPrice,
		CacheTTL: cfg.PriceCacheTTL,
	})
	taskSvc := task.NewService(taskRepo, ledgerSvc, task.Config{
		Attempts: cfg.TaskAdmissionAttempts,
		Backoff:  cfg.TaskAdmissionBackoff,
	})

	// ---------- Admin feed ----------
	hub := admin.NewHub(redisClient)
	go hub.Run()
	defer hub.Shutdown()

	relay := admin.NewRelay(tg, ledgerSvc, hub, cfg.AdminIDs, cfg.SupportContact)

	gate := subscription.NewGate(channelRepo, tg, subscription.GateConfig{
		AdminIDs:         cfg.AdminIDs,
		AllowedCommands:  cfg.AllowedCommands,
		AllowedCallbacks: cfg.AllowedCallbacks,
		CheckTimeout:     cfg.GateCheckTimeout,
	})

	store, userLocker := conversationBackend(redisClient, cfg.StateTTL, cfg.LockTTL)

	deps := conversation.Deps{
		Accounts: accountSvc,
		Ledger:   ledgerSvc,
		Prices:   catalog,
		Tasks:    taskSvc,
		Relay:    relay,
		Store:    store,
		Locker:   userLocker,
		Sender:   tg,
		Themes:   themes,
	}
	if cfg.ReceiptArchiveEnabled {
		deps.Archiver = newArchiver(cfg, tg, ledgerSvc)
	}

	controller := conversation.NewController(deps, conversation.Config{
		WebAppURL:        cfg.WebAppURL,
		CourseWorkAppURL: cfg.CourseWorkAppURL,
		SupportContact:   cfg.SupportContact,
		DepositMin:       cfg.DepositMin,
		DepositMax:       cfg.DepositMax,
		CardNumber:       cfg.PaymentCardNumber,
		CardHolder:       cfg.PaymentCardHolder,
		Limits:           limits,
	})

	events := bot.New(controller, gate, relay, tg, bot.Config{
		Workers:       cfg.BotWorkers,
		UserRate:      cfg.BotUserRate,
		UserBurst:     cfg.BotUserBurst,
		HandleTimeout: cfg.HandleTimeout,
	})
	tg.OnEvent(events.OnEvent)

	// ---------- Handlers ----------
	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	adminHandler := admin.NewHandler(relay, ledgerSvc, channelRepo, jwtService, hub, admin.Credentials{
		Username:     cfg.AdminUsername,
		PasswordHash: cfg.AdminPasswordHash,
	}, cfg.AllowedOrigins)
	catalogHandler := pricing.NewHandler(catalog, themes, limits)

	var webhook http.Handler
	if cfg.BotMode == "webhook" {
		webhook = tg.WebhookHandler()
	}

	r := newRouter(routes{
		db:             db,
		catalog:        catalogHandler.Routes(),
		admin:          adminHandler.Routes(),
		webhook:        webhook,
		webhookSecret:  cfg.WebhookSecret,
		allowedOrigins: cfg.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	botCtx, stopBot := context.WithCancel(context.Background())
	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		if cfg.BotMode == "webhook" {
			url := strings.TrimRight(cfg.WebhookURL, "/") + webhookPath + cfg.WebhookSecret
			if err := tg.StartWebhook(botCtx, url, cfg.WebhookSecret); err != nil {
				log.Fatal().Err(err).Msg("Failed to register webhook")
			}
			return
		}
		tg.StartPolling(botCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down bot...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}
	stopBot()
	<-botDone

	if err := events.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("In-flight events did not finish")
	}
	if err := controller.Wait(ctx); err != nil {
		log.Error().Err(err).Msg("Receipt archiving did not finish")
	}

	log.Info().Msg("Bot exited properly")
}

// conversationBackend picks Redis for state and locks when available so that
// several instances can share users; otherwise both stay in-process.
func conversationBackend(client *redis.Client, stateTTL, lockTTL time.Duration) (conversation.Store, locker.Locker) {
	if client == nil {
		return conversation.NewMemoryStore(stateTTL), locker.NewLocal()
	}
	return conversation.NewRedisStore(client, stateTTL), locker.NewRedis(client, lockTTL)
}

func newArchiver(cfg *config.Config, tg *telegram.Client, ledgerSvc *ledger.Service) conversation.Archiver {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bucket, err := storage.NewS3Storage(ctx, storage.Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create receipt storage")
	}
	log.Info().Str("bucket", cfg.S3Bucket).Msg("Receipt archive enabled")
	return admin.NewReceiptArchiver(tg, imaging.NewProcessor(imaging.DefaultConfig()), bucket, ledgerSvc)
}

type routes struct {
	db             *sqlx.DB
	catalog        http.Handler
	admin          http.Handler
	webhook        http.Handler
	webhookSecret  string
	allowedOrigins []string
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if rt.db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := rt.db.PingContext(ctx); err != nil {
				status = "degraded"
			}
		}
		pkgresponse.OK(w, map[string]string{
			"status":  status,
			"version": "1.0.0",
		})
	})
	r.Handle("/metrics", metrics.Handler())

	if rt.webhook != nil {
		r.Post(webhookPath+"{secret}", func(w http.ResponseWriter, r *http.Request) {
			secret := chi.URLParam(r, "secret")
			if subtle.ConstantTimeCompare([]byte(secret), []byte(rt.webhookSecret)) != 1 {
				pkgresponse.NotFound(w, "Not found")
				return
			}
			rt.webhook.ServeHTTP(w, r)
		})
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORSHandler(rt.allowedOrigins))
		r.Mount("/catalog", rt.catalog)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.CORSHandler(rt.allowedOrigins))
		r.Mount("/", rt.admin)
	})

	return r
}
