package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-quoter/internal/domain/product"
	"github.com/xenking/promo-quoter/internal/domain/promotion"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
}

type promotionJSON struct {
	ID               string              `json:"id"`
	Type             string              `json:"type"`
	TargetCategory   string              `json:"targetCategory"`
	DiscountFraction decimal.NullDecimal `json:"discountFraction"`
	TargetProductID  string              `json:"targetProductId"`
	BuyQuantity      int                 `json:"buyQuantity"`
	GetQuantity      int                 `json:"getQuantity"`
	Priority         *int                `json:"priority"`
	Active           *bool               `json:"active"`
}

// readJSON decodes a JSON array from path into v. Files ending in .gz are
// decompressed on the fly.
func readJSON(ctx context.Context, path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}

func loadProducts(ctx context.Context, path string) ([]product.Product, error) {
	var raw []productJSON
	if err := readJSON(ctx, path, &raw); err != nil {
		return nil, err
	}

	products := make([]product.Product, 0, len(raw))
	for i, r := range raw {
		if r.ID == "" {
			return nil, errors.Errorf("product at index %d has no id", i)
		}
		p := product.Product{
			ID:       r.ID,
			Name:     r.Name,
			Category: product.Category(r.Category),
			Price:    r.Price,
			Stock:    r.Stock,
		}
		if err := p.Validate(); err != nil {
			return nil, errors.Wrapf(err, "product %q", r.ID)
		}
		products = append(products, p)
	}
	return products, nil
}

// loadPromotions converts seed entries into promotions. Priority defaults to
// 100 and promotions are active unless stated otherwise. Entries are spaced
// a millisecond apart so file order breaks priority ties.
func loadPromotions(ctx context.Context, path string, now time.Time) ([]promotion.Promotion, error) {
	var raw []promotionJSON
	if err := readJSON(ctx, path, &raw); err != nil {
		return nil, err
	}

	promos := make([]promotion.Promotion, 0, len(raw))
	for i, r := range raw {
		p := promotion.Promotion{
			ID:               r.ID,
			Type:             promotion.Type(r.Type),
			TargetCategory:   product.Category(r.TargetCategory),
			DiscountFraction: r.DiscountFraction,
			TargetProductID:  r.TargetProductID,
			BuyQuantity:      r.BuyQuantity,
			GetQuantity:      r.GetQuantity,
			Priority:         100,
			Active:           true,
			CreatedAt:        now.Add(time.Duration(i) * time.Millisecond),
		}
		if r.Priority != nil {
			p.Priority = *r.Priority
		}
		if r.Active != nil {
			p.Active = *r.Active
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		promos = append(promos, p)
	}
	return promos, nil
}
