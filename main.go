package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"membership-portal/config"
	"membership-portal/database"
	adminapi "membership-portal/internal/api/admin"
	authapi "membership-portal/internal/api/auth"
	billingapi "membership-portal/internal/api/billing"
	cartapi "membership-portal/internal/api/cart"
	checkoutapi "membership-portal/internal/api/checkout"
	contentapi "membership-portal/internal/api/content"
	pagesapi "membership-portal/internal/api/pages"
	plansapi "membership-portal/internal/api/plans"
	registrationsapi "membership-portal/internal/api/registrations"
	stripewebhooks "membership-portal/internal/api/stripewebhook"
	usersapi "membership-portal/internal/api/users"
	routes "membership-portal/internal/app/http"
	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/cache"
	"membership-portal/internal/domain/billing"
	"membership-portal/internal/domain/cart"
	"membership-portal/internal/domain/checkout"
	"membership-portal/internal/domain/content"
	"membership-portal/internal/domain/pages"
	"membership-portal/internal/domain/preview"
	"membership-portal/internal/domain/progress"
	"membership-portal/internal/domain/registrations"
	"membership-portal/internal/domain/users"
	stripeinfra "membership-portal/internal/infra/stripe"
	"membership-portal/internal/logging"
	"membership-portal/internal/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.MustLoad()

	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBURL)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	if err := database.Migrate(db, log); err != nil {
		log.Fatal("database", zap.Error(err))
	}

	rdb, err := cache.New(ctx, cache.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		User:        cfg.RedisUser,
		DB:          cfg.RedisDB,
		MaxRetries:  cfg.RedisMaxRetries,
		DialTimeout: cfg.RedisDialTimeout,
		Timeout:     cfg.RedisTimeout,
	})
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	gateway := stripeinfra.New(cfg.StripeSecretKey, log.Named("stripe"))
	if cfg.StripeSecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY not set, payments will fail")
	} else if err := checkout.AwaitReady(ctx, gateway.Ready, cfg.StripeReadyTimeout); err != nil {
		log.Fatal("stripe not reachable", zap.Error(err))
	}

	rec := metrics.Recorder{}
	userStore := users.NewStore(db)
	tokens := users.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	orders := billing.NewOrders(db, log.Named("orders"))
	grants := registrations.NewWriter(db, log.Named("registrations")).WithRecorder(rec)
	catalog := content.NewStore(db, rdb, log.Named("content"))
	carts := cart.NewService(cart.NewRepository(db), cfg.Currency, rec, log.Named("cart"))
	previews := preview.NewSessions(rdb, cfg.PreviewEnforce, log.Named("preview"))

	orchestrator := checkout.New(checkout.Deps{
		Gateway:  gateway,
		Catalog:  catalog,
		Carts:    carts,
		Orders:   orders,
		Grants:   grants,
		Locker:   rdb,
		Recorder: rec,
		Log:      log.Named("checkout"),
	}, checkout.Config{
		Timeout:          cfg.CheckoutTimeout,
		Currency:         cfg.Currency,
		ConfirmationPath: "/checkout/confirmation/",
	})

	handlers := routes.Handlers{
		Auth:    authapi.NewHandler(db, userStore, tokens, authapi.NewSMTPMailer(cfg.SMTP, log.Named("mail")), cfg, log.Named("auth")),
		Users:   usersapi.NewHandler(db, grants),
		Plans:   plansapi.NewHandler(db, gateway, cfg.StripeMembershipProductID, cfg.Currency, log.Named("plans")),
		Billing: billingapi.NewHandler(db, userStore, orders, gateway, cfg.AppURL, cfg.Env, log.Named("billing")),
		Webhook: stripewebhooks.NewHandler(stripewebhooks.Deps{
			Secret:   cfg.StripeWebhookSecret,
			DB:       db,
			Users:    userStore,
			Orders:   orders,
			Sessions: gateway,
			Fulfil:   orchestrator,
			Recorder: rec,
			Log:      log.Named("webhook"),
		}),
		Content:       contentapi.NewHandler(catalog, grants, previews, progress.NewService(db), rec, log.Named("content")),
		Pages:         pagesapi.NewHandler(pages.NewStore(db), log.Named("pages")),
		Cart:          cartapi.NewHandler(carts),
		Checkout:      checkoutapi.NewHandler(orchestrator, orders),
		Registrations: registrationsapi.NewHandler(grants, catalog),
		Admin:         adminapi.NewHandler(userStore, orders, grants, log.Named("admin")),
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(log), metrics.Middleware())

	// CORS runs before any route so preflights are answered.
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)
	go limiter.Run(ctx)
	r.Use(limiter.Middleware())

	routes.RegisterRoutes(r, handlers, middleware.NewAuth(tokens, userStore, log.Named("auth")))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}
