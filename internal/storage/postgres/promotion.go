package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-quoter/internal/domain/product"
	"github.com/xenking/promo-quoter/internal/domain/promotion"
)

const (
	promotionColumns = `id, type, target_category, discount_fraction, target_product_id,
		buy_quantity, get_quantity, priority, active, created_at`

	listActivePromotionsSQL = `SELECT ` + promotionColumns + ` FROM promotions
		WHERE active ORDER BY priority, created_at, id`

	listPromotionsSQL = `SELECT ` + promotionColumns + ` FROM promotions ORDER BY created_at, id`

	insertPromotionSQL = `INSERT INTO promotions (id, type, target_category, discount_fraction,
		target_product_id, buy_quantity, get_quantity, priority, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10::timestamptz, now()))`

	setPromotionActiveSQL = `UPDATE promotions SET active = $2 WHERE id = $1`

	upsertPromotionSQL = insertPromotionSQL + `
		ON CONFLICT (id) DO UPDATE
		SET type = EXCLUDED.type, target_category = EXCLUDED.target_category,
			discount_fraction = EXCLUDED.discount_fraction, target_product_id = EXCLUDED.target_product_id,
			buy_quantity = EXCLUDED.buy_quantity, get_quantity = EXCLUDED.get_quantity,
			priority = EXCLUDED.priority, active = EXCLUDED.active`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// ListActive returns active promotions in evaluation order.
func (r *PromotionRepository) ListActive(ctx context.Context) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, listActivePromotionsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}
	return pgx.CollectRows(rows, scanPromotion)
}

// List returns every promotion, active or not.
func (r *PromotionRepository) List(ctx context.Context) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, listPromotionsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}
	return pgx.CollectRows(rows, scanPromotion)
}

// Create inserts all promotions in a single transaction.
func (r *PromotionRepository) Create(ctx context.Context, promos []promotion.Promotion) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, promotionBatch(insertPromotionSQL, promos))
		for _, p := range promos {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				if isUniqueViolation(err, "promotions_pkey") {
					return errors.Wrapf(promotion.ErrAlreadyExists, "create promotion %s", p.ID)
				}
				return fmt.Errorf("inserting promotion %q: %w", p.ID, err)
			}
		}
		return br.Close()
	})
}

// SetActive toggles whether a promotion takes part in evaluation.
func (r *PromotionRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, setPromotionActiveSQL, id, active)
	if err != nil {
		return fmt.Errorf("updating promotion %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrNotFound
	}
	return nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p         promotion.Promotion
		typ       string
		category  *string
		fraction  decimal.NullDecimal
		productID *string
		buy, get  *int32
		priority  int32
		createdAt time.Time
	)
	err := row.Scan(&p.ID, &typ, &category, &fraction, &productID,
		&buy, &get, &priority, &p.Active, &createdAt)
	if err != nil {
		return p, err
	}

	p.Type = promotion.Type(typ)
	p.TargetCategory = product.Category(derefString(category))
	p.DiscountFraction = fraction
	p.TargetProductID = derefString(productID)
	p.BuyQuantity = derefInt(buy)
	p.GetQuantity = derefInt(get)
	p.Priority = int(priority)
	p.CreatedAt = createdAt.UTC()
	return p, nil
}

// Upsert inserts promotions or overwrites the existing rows with the same ID.
// Creation time of an existing row is kept so evaluation order is stable.
func (r *PromotionRepository) Upsert(ctx context.Context, promos []promotion.Promotion) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, promotionBatch(upsertPromotionSQL, promos))
		for _, p := range promos {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("upserting promotion %q: %w", p.ID, err)
			}
		}
		return br.Close()
	})
}

func promotionBatch(sql string, promos []promotion.Promotion) *pgx.Batch {
	b := &pgx.Batch{}
	for _, p := range promos {
		var fraction, created any
		if p.DiscountFraction.Valid {
			fraction = p.DiscountFraction.Decimal
		}
		if !p.CreatedAt.IsZero() {
			created = p.CreatedAt
		}
		b.Queue(sql,
			p.ID, string(p.Type), nullString(string(p.TargetCategory)), fraction,
			nullString(p.TargetProductID), nullInt(p.BuyQuantity), nullInt(p.GetQuantity),
			p.Priority, p.Active, created,
		)
	}
	return b
}
