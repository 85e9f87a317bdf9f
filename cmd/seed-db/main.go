package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/promo-quoter/internal/domain/auth"
	"github.com/xenking/promo-quoter/internal/domain/product"
	"github.com/xenking/promo-quoter/internal/domain/promotion"
	"github.com/xenking/promo-quoter/internal/storage/postgres"
)

type options struct {
	databaseURL    string
	productsFile   string
	promotionsFile string
	apiKey         string
	apiKeyPepper   string
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file, optionally gzipped")
	flag.StringVar(&opts.promotionsFile, "promotions-file", "db/seed/promotions.json", "path to promotions JSON file, optionally gzipped")
	flag.StringVar(&opts.apiKey, "api-key", "", "management API key to seed (or PROMO_ADMIN_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PROMO_API_KEY_PEPPER env)")
	flag.Parse()

	lg := zap.Must(zap.NewProduction())
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("PROMO_ADMIN_API_KEY")
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("PROMO_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}

	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	var (
		products []product.Product
		promos   []promotion.Promotion
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = loadProducts(gctx, opts.productsFile)
		return errors.Wrap(err, "load products")
	})
	g.Go(func() error {
		var err error
		promos, err = loadPromotions(gctx, opts.promotionsFile, time.Now())
		return errors.Wrap(err, "load promotions")
	})
	if err := g.Wait(); err != nil {
		return err
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := postgres.NewProductRepository(pool).Upsert(ctx, products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	lg.Info("Upserted products", zap.Int("count", len(products)))

	if err := postgres.NewPromotionRepository(pool).Upsert(ctx, promos); err != nil {
		return errors.Wrap(err, "seed promotions")
	}
	lg.Info("Upserted promotions", zap.Int("count", len(promos)))

	if opts.apiKey == "" {
		lg.Warn("No API key given, skipping")
		return nil
	}
	if err := postgres.NewAPIKeyRepository(pool).Put(ctx, auth.APIKeyInfo{
		ID:      "admin",
		KeyHash: auth.HashKey(opts.apiKey, []byte(opts.apiKeyPepper)),
		Name:    "Seeded admin key",
		Scopes:  []string{auth.ScopeManageCatalog, auth.ScopeManagePromotions},
	}); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	lg.Info("Upserted API key", zap.String("id", "admin"))

	return nil
}
