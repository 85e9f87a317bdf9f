// Package app wires configuration, storage and transport into the running
// API server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/promo-quoter/internal/domain/auth"
	"github.com/xenking/promo-quoter/internal/domain/cart"
	"github.com/xenking/promo-quoter/internal/domain/order"
	"github.com/xenking/promo-quoter/internal/domain/product"
	"github.com/xenking/promo-quoter/internal/domain/promotion"
	"github.com/xenking/promo-quoter/internal/events/kafka"
	"github.com/xenking/promo-quoter/internal/handler"
	"github.com/xenking/promo-quoter/internal/storage/memory"
	"github.com/xenking/promo-quoter/internal/storage/postgres"
	"github.com/xenking/promo-quoter/internal/storage/redis"
	"github.com/xenking/promo-quoter/pkg/health"
	"github.com/xenking/promo-quoter/pkg/httpmiddleware"
)

// stores groups the repositories of one storage backend.
type stores struct {
	products   product.Repository
	promotions promotion.Repository
	orders     order.Repository
	apikeys    auth.Repository
	uow        cart.UnitOfWork

	// ready is nil when the backend has nothing to probe.
	ready health.CheckFunc
	close func()
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("storage", cfg.Storage))

	st, err := openStores(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	// Health check service.
	healthSvc := health.New(lg.Named("health"))
	healthSvc.Add(health.Liveness, "goroutines", health.GoroutineCountCheck(10000), health.WithTimeout(time.Second))
	if st.ready != nil {
		healthSvc.Add(health.Readiness, cfg.Storage, st.ready, health.WithTimeout(5*time.Second))
	}

	cartOpts := []cart.Option{
		cart.WithTracerProvider(m.TracerProvider()),
		cart.WithMeterProvider(m.MeterProvider()),
	}

	if cfg.Redis.Addr != "" {
		rdb, err := redis.Connect(ctx, cfg.Redis.Addr)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		cartOpts = append(cartOpts, cart.WithReplayCache(redis.NewIdempotencyCache(rdb, cfg.Redis.TTL)))
		healthSvc.Add(health.Readiness, "redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		lg.Info("Replay cache enabled", zap.String("redis", cfg.Redis.Addr))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		pub := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, lg.Named("kafka"))
		defer func() {
			if err := pub.Close(); err != nil {
				lg.Error("Close kafka publisher", zap.Error(err))
			}
		}()

		cartOpts = append(cartOpts, cart.WithNotifier(pub))
		lg.Info("Order events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	cartService, err := cart.NewService(st.products, st.promotions, st.orders, st.uow, cartOpts...)
	if err != nil {
		return errors.Wrap(err, "create cart service")
	}

	var confirmLimit httpmiddleware.Middleware
	if cfg.RateLimit.Rate > 0 {
		confirmLimit = httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Rate:  cfg.RateLimit.Rate,
			Burst: cfg.RateLimit.Burst,
		})
	}

	h := handler.New(
		handler.Config{
			APIKeyPepper: []byte(cfg.APIKeyPepper),
			ConfirmLimit: confirmLimit,
		},
		cartService,
		st.products,
		st.promotions,
		st.orders,
		st.apikeys,
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Router())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			otelhttp.NewHandler(mux, "promo-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return r.Method + " " + r.URL.Path
				}),
			),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.LogRequests(),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func openStores(ctx context.Context, lg *zap.Logger, cfg *Config) (*stores, error) {
	if cfg.Storage == StorageMemory {
		return openMemory(lg, cfg), nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	return &stores{
		products:   postgres.NewProductRepository(pool),
		promotions: postgres.NewPromotionRepository(pool),
		orders:     postgres.NewOrderRepository(pool),
		apikeys:    postgres.NewAPIKeyRepository(pool),
		uow:        postgres.NewUnitOfWork(pool),
		ready:      health.PingCheck(pool),
		close:      pool.Close,
	}, nil
}

// openMemory builds an empty in-process store. The only way in is the admin
// key, which gets every management scope.
func openMemory(lg *zap.Logger, cfg *Config) *stores {
	s := memory.New()
	apikeys := s.APIKeys()
	if cfg.AdminAPIKey != "" {
		apikeys.Put(auth.APIKeyInfo{
			ID:      "admin",
			KeyHash: auth.HashKey(cfg.AdminAPIKey, []byte(cfg.APIKeyPepper)),
			Name:    "Bootstrap admin key",
			Scopes:  []string{auth.ScopeManageCatalog, auth.ScopeManagePromotions},
		})
	} else {
		lg.Warn("No admin API key configured, management endpoints are unreachable")
	}
	lg.Warn("Using in-memory storage, data is lost on restart")

	return &stores{
		products:   s.Products(),
		promotions: s.Promotions(),
		orders:     s.Orders(),
		apikeys:    apikeys,
		uow:        s,
		close:      func() {},
	}
}
