package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sudo-init-do/skillmarket/internal/admin"
	"github.com/sudo-init-do/skillmarket/internal/alerts"
	"github.com/sudo-init-do/skillmarket/internal/auth"
	"github.com/sudo-init-do/skillmarket/internal/config"
	"github.com/sudo-init-do/skillmarket/internal/marketplace"
	"github.com/sudo-init-do/skillmarket/internal/messaging"
	"github.com/sudo-init-do/skillmarket/internal/metrics"
	mware "github.com/sudo-init-do/skillmarket/internal/middleware"
	"github.com/sudo-init-do/skillmarket/internal/user"
	"github.com/sudo-init-do/skillmarket/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisConfig.Addr, Password: cfg.RedisConfig.Password, DB: cfg.RedisConfig.DB})
	defer rdb.Close()
	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisConfig.Addr, Password: cfg.RedisConfig.Password, DB: cfg.RedisConfig.DB}
	queue := asynq.NewClient(redisOpt)
	defer queue.Close()

	collectors := metrics.New(prometheus.DefaultRegisterer)
	notifier := alerts.NewNotifier(queue, logger)
	profiles := user.NewService(st.profiles, logger)
	rail := wallet.NewClient(wallet.ClientConfig{
		BaseURL:       cfg.RailURL,
		Token:         cfg.RailToken,
		EscrowAccount: cfg.EscrowAccount,
		Currency:      cfg.Currency,
		Timeout:       cfg.RailTimeout,
	}, logger)

	market, err := marketplace.NewService(st.listings, rail, profiles, logger,
		marketplace.WithReferenceRegistry(wallet.NewRefRegistry(rdb, logger)),
		marketplace.WithNotifier(notifier),
		marketplace.WithRecorder(collectors),
		marketplace.WithCurrency(cfg.Currency),
		marketplace.WithFeeBPS(cfg.FeeBPS),
		marketplace.WithQueryLimits(cfg.DefaultLimit, cfg.MaxLimit),
	)
	if err != nil {
		return err
	}

	hub := messaging.NewHub(logger)
	messages := messaging.NewService(st.messages, market, logger,
		messaging.WithHub(hub),
		messaging.WithNotifier(notifier),
		messaging.WithPolling(cfg.PollInterval, cfg.PageLimit),
	)

	issuer, err := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.JWTTTL, cfg.AdminWallets)
	if err != nil {
		return err
	}

	// The memory driver cannot share notifications with a separate worker
	// process, so the processor runs in-process.
	if cfg.StoreDriver == config.StoreDriverMemory {
		worker := alerts.NewServer(redisOpt, cfg.WorkerConcurrency, logger)
		if err := worker.Start(alerts.NewServeMux(alerts.NewProcessor(st.notifications, logger))); err != nil {
			return err
		}
		defer worker.Shutdown()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = mware.NewRequestValidator()
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(mware.RequestLogger(logger))
	e.Use(collectors.Middleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		rctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := st.ping(rctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		if err := rdb.Ping(rctx).Err(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "redis unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	secret := []byte(cfg.JWTSecret)
	pub := e.Group("")
	api := e.Group("")
	api.Use(mware.JWTMiddleware(secret), mware.RequireRoles(mware.RoleMember, mware.RoleAdmin))

	auth.NewHandler(issuer, profiles, cfg.AllowDevTokens).Register(pub, api)
	marketplace.NewHandler(market).Register(pub, api)
	messaging.NewHandler(messages, hub).Register(api)
	user.NewHandler(profiles).Register(pub, api)
	alerts.NewHandler(st.notifications).Register(api)

	adminGroup := e.Group("/admin")
	adminGroup.Use(mware.JWTMiddleware(secret))
	adminGroup.Use(mware.AdminGuard)
	admin.NewHandler(market).Register(adminGroup)

	if cfg.AllowDevTokens {
		logger.Warn("dev token issuance is enabled")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.ServerAddress), zap.String("store", cfg.StoreDriver))
		if err := e.Start(cfg.ServerAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
