package cart

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/promo-quoter/internal/domain/order"
	"github.com/xenking/promo-quoter/internal/domain/product"
	"github.com/xenking/promo-quoter/internal/domain/promotion"
)

const (
	instrumentationName = "github.com/xenking/promo-quoter/internal/domain/cart"

	maxIdempotencyKeyLen = 255
)

// Confirmation outcomes reported on the confirm counter.
const (
	outcomeCreated           = "created"
	outcomeReplayed          = "replayed"
	outcomeNotFound          = "not_found"
	outcomeInsufficientStock = "insufficient_stock"
	outcomeInvalid           = "invalid"
	outcomeConflict          = "conflict"
	outcomeError             = "error"
)

// Option configures optional Service collaborators.
type Option func(*Service)

// WithReplayCache sets the idempotency fast path.
func WithReplayCache(c ReplayCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithNotifier sets the receiver of order confirmed notifications.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithClock overrides the order timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service quotes carts and confirms them into orders.
type Service struct {
	products   product.Repository
	promotions promotion.Repository
	orders     order.Repository
	uow        UnitOfWork

	cache    ReplayCache
	notifier Notifier
	now      func() time.Time

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	confirms       metric.Int64Counter
}

// NewService creates a cart Service.
func NewService(
	products product.Repository,
	promotions promotion.Repository,
	orders order.Repository,
	uow UnitOfWork,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		products:       products,
		promotions:     promotions,
		orders:         orders,
		uow:            uow,
		cache:          nopCache{},
		notifier:       nopNotifier{},
		now:            time.Now,
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	confirms, err := s.meterProvider.Meter(instrumentationName).Int64Counter("cart.confirms",
		metric.WithDescription("Cart confirmations by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create confirms counter")
	}
	s.confirms = confirms

	return s, nil
}

// Quote prices the cart with the active promotions without reserving
// anything. Stock is checked against the current catalog but may change
// before the cart is confirmed.
func (s *Service) Quote(ctx context.Context, req Request) (_ *Quote, rerr error) {
	ctx, span := s.tracer.Start(ctx, "cart.Quote",
		trace.WithAttributes(attribute.Int("cart.lines", len(req.Items))),
	)
	defer func() { endSpan(span, rerr) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	fetched, err := s.products.GetByIDs(ctx, req.productIDs())
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}
	if err := checkFound(req, byID); err != nil {
		return nil, err
	}
	if err := checkStock(req, byID); err != nil {
		return nil, err
	}

	promos, err := s.promotions.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active promotions")
	}

	priced, err := evaluate(req, byID, promos)
	if err != nil {
		return nil, err
	}

	q := quoteFromContext(priced)
	return &q, nil
}

// Confirm turns the cart into an order and reserves its stock.
//
// A non-empty key makes the call idempotent: when an order with that key
// exists it is returned unchanged and nothing is reserved. Stock is
// validated and decremented while every product in the cart is held, and
// all writes happen in one unit of work.
func (s *Service) Confirm(ctx context.Context, req Request, key string) (_ *Confirmation, rerr error) {
	ctx, span := s.tracer.Start(ctx, "cart.Confirm",
		trace.WithAttributes(
			attribute.Int("cart.lines", len(req.Items)),
			attribute.Bool("cart.idempotent", key != ""),
		),
	)
	defer func() { endSpan(span, rerr) }()

	if err := req.Validate(); err != nil {
		s.count(ctx, outcomeInvalid)
		return nil, err
	}
	if len(key) > maxIdempotencyKeyLen {
		s.count(ctx, outcomeInvalid)
		return nil, ErrIdempotencyKeyLen
	}

	if key != "" {
		existing, err := s.lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.count(ctx, outcomeReplayed)
			return replay(existing), nil
		}
	}

	promos, err := s.promotions.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active promotions")
	}

	var (
		placed   *order.Order
		replayed bool
	)
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := lockProducts(ctx, tx, req)
		if err != nil {
			return err
		}

		// A concurrent confirm with the same key may have committed while we
		// were waiting for the holds.
		if key != "" {
			existing, err := tx.OrderByIdempotencyKey(ctx, key)
			switch {
			case err == nil:
				placed, replayed = existing, true
				return nil
			case !errors.Is(err, order.ErrNotFound):
				return errors.Wrap(err, "check idempotency key")
			}
		}

		if err := checkStock(req, locked); err != nil {
			return err
		}
		priced, err := evaluate(req, locked, promos)
		if err != nil {
			return err
		}

		if err := tx.SaveProducts(ctx, reserve(req, locked)); err != nil {
			return errors.Wrap(err, "save products")
		}
		o := s.assemble(priced, key)
		if err := tx.CreateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		placed = o
		return nil
	})
	if err != nil && key != "" && errors.Is(err, order.ErrDuplicateIdempotencyKey) {
		// Lost the race on the unique key to a cart that held other products.
		existing, lookupErr := s.orders.GetByIdempotencyKey(ctx, key)
		if lookupErr == nil {
			placed, replayed, err = existing, true, nil
		}
	}
	if err != nil {
		s.count(ctx, outcomeOf(err))
		return nil, err
	}

	lg := zctx.From(ctx)
	if key != "" {
		if err := s.cache.Put(ctx, placed); err != nil {
			lg.Warn("Replay cache store failed", zap.String("order_id", placed.ID), zap.Error(err))
		}
	}
	if replayed {
		s.count(ctx, outcomeReplayed)
		return replay(placed), nil
	}

	if err := s.notifier.OrderConfirmed(ctx, placed); err != nil {
		lg.Warn("Order confirmed notification failed", zap.String("order_id", placed.ID), zap.Error(err))
	}
	s.count(ctx, outcomeCreated)
	lg.Info("Order confirmed",
		zap.String("order_id", placed.ID),
		zap.Stringer("total", placed.Total),
		zap.Int("lines", len(placed.Items)),
		zap.Int("promotions", len(placed.Promotions)),
	)

	c := confirmationFromOrder(placed)
	return &c, nil
}

// lookup finds an order by idempotency key, trying the cache first. Orders
// found only in the store are written back to the cache.
func (s *Service) lookup(ctx context.Context, key string) (*order.Order, error) {
	lg := zctx.From(ctx)

	o, err := s.cache.Get(ctx, key)
	if err != nil {
		lg.Warn("Replay cache lookup failed", zap.Error(err))
	} else if o != nil {
		return o, nil
	}

	o, err = s.orders.GetByIdempotencyKey(ctx, key)
	if errors.Is(err, order.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get order by idempotency key")
	}
	if err := s.cache.Put(ctx, o); err != nil {
		lg.Warn("Replay cache store failed", zap.String("order_id", o.ID), zap.Error(err))
	}
	return o, nil
}

func (s *Service) assemble(priced promotion.Context, key string) *order.Order {
	items := make([]order.Item, len(priced.Lines))
	for i, l := range priced.Lines {
		items[i] = order.Item{
			ProductID:   l.Product.ID,
			ProductName: l.Product.Name,
			Quantity:    l.Quantity,
			UnitPrice:   l.Product.Price,
			TotalPrice:  l.FinalPrice(),
		}
	}

	applied := make([]order.AppliedPromotion, len(priced.Applied))
	for i, a := range priced.Applied {
		applied[i] = order.AppliedPromotion{
			PromotionID: a.PromotionID,
			Type:        a.Type,
			Description: a.Description,
			Amount:      a.Amount,
		}
	}

	return &order.Order{
		ID:             uuid.New().String(),
		IdempotencyKey: key,
		Total:          priced.FinalTotal(),
		Segment:        priced.Segment,
		CreatedAt:      s.now().UTC(),
		Items:          items,
		Promotions:     applied,
	}
}

func (s *Service) count(ctx context.Context, outcome string) {
	s.confirms.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// lockProducts takes holds on every requested product in ascending id order,
// so concurrent confirmations over overlapping carts cannot deadlock.
func lockProducts(ctx context.Context, tx Tx, req Request) (map[string]product.Product, error) {
	ids := req.productIDs()
	slices.Sort(ids)

	locked := make(map[string]product.Product, len(ids))
	for _, id := range ids {
		p, err := tx.LockProduct(ctx, id)
		if errors.Is(err, product.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "lock product %s", id)
		}
		locked[id] = *p
	}
	if err := checkFound(req, locked); err != nil {
		return nil, err
	}
	return locked, nil
}

// checkFound reports every requested product missing from byID, in request
// order.
func checkFound(req Request, byID map[string]product.Product) error {
	var missing []string
	for _, item := range req.Items {
		if _, ok := byID[item.ProductID]; !ok {
			missing = append(missing, item.ProductID)
		}
	}
	if len(missing) > 0 {
		return &ProductsNotFoundError{ProductIDs: missing}
	}
	return nil
}

func checkStock(req Request, byID map[string]product.Product) error {
	for _, item := range req.Items {
		p := byID[item.ProductID]
		if p.Stock < item.Quantity {
			return &InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Available:   p.Stock,
				Requested:   item.Quantity,
			}
		}
	}
	return nil
}

func evaluate(req Request, byID map[string]product.Product, promos []promotion.Promotion) (promotion.Context, error) {
	lines := make([]promotion.LineItem, len(req.Items))
	for i, item := range req.Items {
		lines[i] = promotion.NewLineItem(byID[item.ProductID], item.Quantity)
	}
	priced, err := promotion.Apply(promotion.NewContext(req.Segment, lines), promos)
	if err != nil {
		return promotion.Context{}, errors.Wrap(err, "apply promotions")
	}
	return priced, nil
}

// reserve returns the held products with the requested quantities taken off.
func reserve(req Request, locked map[string]product.Product) []product.Product {
	out := make([]product.Product, 0, len(req.Items))
	for _, item := range req.Items {
		p := locked[item.ProductID]
		p.Stock -= item.Quantity
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b product.Product) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func replay(o *order.Order) *Confirmation {
	c := confirmationFromOrder(o)
	c.Replayed = true
	return &c
}

func outcomeOf(err error) string {
	var (
		notFound *ProductsNotFoundError
		stock    *InsufficientStockError
	)
	switch {
	case errors.As(err, &notFound):
		return outcomeNotFound
	case errors.As(err, &stock):
		return outcomeInsufficientStock
	case errors.Is(err, order.ErrDuplicateIdempotencyKey):
		return outcomeConflict
	default:
		return outcomeError
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
