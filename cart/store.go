// cart/store.go

package cart

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/norun9/storefront-cart/cartstore"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrProductNotInCart is logged when remove or update targets a product the
// cart does not hold.
var ErrProductNotInCart = errors.New("product not in cart")

// StockService is the remote source of product availability and metadata.
type StockService interface {
	Stock(ctx context.Context, productID int) (Stock, error)
	Product(ctx context.Context, productID int) (Product, error)
}

// Persistence is the key-value surface the cart is saved to.
// Get must return cartstore.ErrNotFound for a missing key.
type Persistence interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Option configures a Store.
type Option func(*Store)

// WithKey sets the persistence key. Defaults to "@RocketShoes:cart".
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithLogger sets the logger used for failure causes and persistence errors.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) { s.log = log }
}

// WithMeterProvider sets where the cart counters are recorded. Defaults to
// the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Store) { s.meterProvider = mp }
}

// Store holds the cart of one shopping session.
//
// Reads and commits of the snapshot are synchronized, operations are not:
// two overlapping operations both start from the same snapshot and the later
// commit wins.
type Store struct {
	persistence Persistence
	stock       StockService
	notifier    Notifier
	key         string
	log         logrus.FieldLogger

	tracer        trace.Tracer
	meterProvider metric.MeterProvider
	commits       metric.Int64Counter
	notifications metric.Int64Counter

	mu        sync.RWMutex
	cart      []Product
	persisted []Product
}

// NewStore loads the persisted cart and returns a store seeded with it.
// A missing entry yields an empty cart.
func NewStore(ctx context.Context, persistence Persistence, stock StockService, notifier Notifier, opts ...Option) (*Store, error) {
	discard := logrus.New()
	discard.Out = io.Discard

	s := &Store{
		persistence: persistence,
		stock:       stock,
		notifier:    notifier,
		key:         cartstore.Key(cartstore.DefaultNamespace, cartstore.CartKey),
		log:         discard,
		tracer:      otel.Tracer("cart"),
	}
	s.meterProvider = otel.GetMeterProvider()
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = NotifierFunc(func(context.Context, Message) {})
	}

	meter := s.meterProvider.Meter("cart")
	var err error
	if s.commits, err = meter.Int64Counter("app.cart.commits",
		metric.WithDescription("Cart mutations committed")); err != nil {
		return nil, errors.Wrap(err, "create commits counter")
	}
	if s.notifications, err = meter.Int64Counter("app.cart.notifications",
		metric.WithDescription("Failure notifications emitted")); err != nil {
		return nil, errors.Wrap(err, "create notifications counter")
	}

	loaded, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.cart = loaded
	s.persisted = loaded

	if repaired, changed := repair(loaded); changed {
		s.log.WithFields(logrus.Fields{
			"key":      s.key,
			"loaded":   len(loaded),
			"repaired": len(repaired),
		}).Warn("persisted cart had duplicate or non-positive entries, repairing")
		s.commit(ctx, repaired)
	}
	s.log.WithField("products", len(s.cart)).Debug("cart loaded")
	return s, nil
}

func (s *Store) load(ctx context.Context) ([]Product, error) {
	data, err := s.persistence.Get(ctx, s.key)
	if errors.Is(err, cartstore.ErrNotFound) || (err == nil && len(data) == 0) {
		return []Product{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load cart %q", s.key)
	}
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, errors.Wrapf(err, "decode cart %q", s.key)
	}
	if products == nil {
		products = []Product{}
	}
	return products, nil
}

// Cart returns a copy of the current cart.
func (s *Store) Cart() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(make([]Product, 0, len(s.cart)), s.cart...)
}

// Totals summarizes the current cart.
func (s *Store) Totals() Summary {
	return Totals(s.Cart())
}

// AddProduct adds one unit of productID, fetching its metadata the first time
// it enters the cart.
func (s *Store) AddProduct(ctx context.Context, productID int) {
	ctx, span := s.tracer.Start(ctx, "cart.AddProduct")
	defer span.End()
	span.SetAttributes(attribute.Int("app.product_id", productID))

	updated := s.Cart()
	idx := indexOf(updated, productID)

	stock, err := s.stock.Stock(ctx, productID)
	if err != nil {
		s.fail(ctx, span, MessageAddFailed, err)
		return
	}

	amount := 1
	if idx >= 0 {
		amount = updated[idx].Amount + 1
	}
	span.SetAttributes(attribute.Int("app.amount", amount), attribute.Int("app.stock", stock.Amount))
	if amount > stock.Amount {
		s.notify(ctx, MessageStockExceeded)
		return
	}

	if idx >= 0 {
		updated[idx].Amount = amount
	} else {
		product, err := s.stock.Product(ctx, productID)
		if err != nil {
			s.fail(ctx, span, MessageAddFailed, err)
			return
		}
		product.ID = productID
		product.Amount = 1
		updated = append(updated, product)
	}
	s.commit(ctx, updated)
}

// RemoveProduct drops productID from the cart.
func (s *Store) RemoveProduct(ctx context.Context, productID int) {
	ctx, span := s.tracer.Start(ctx, "cart.RemoveProduct")
	defer span.End()
	span.SetAttributes(attribute.Int("app.product_id", productID))

	updated := s.Cart()
	idx := indexOf(updated, productID)
	if idx < 0 {
		s.fail(ctx, span, MessageRemoveFailed, errors.Wrapf(ErrProductNotInCart, "remove %d", productID))
		return
	}
	s.commit(ctx, append(updated[:idx], updated[idx+1:]...))
}

// UpdateProductAmount sets the amount of a product already in the cart.
// Non-positive amounts are ignored.
func (s *Store) UpdateProductAmount(ctx context.Context, req UpdateProductAmount) {
	if req.Amount <= 0 {
		return
	}

	ctx, span := s.tracer.Start(ctx, "cart.UpdateProductAmount")
	defer span.End()
	span.SetAttributes(attribute.Int("app.product_id", req.ProductID), attribute.Int("app.amount", req.Amount))

	stock, err := s.stock.Stock(ctx, req.ProductID)
	if err != nil {
		s.fail(ctx, span, MessageUpdateFailed, err)
		return
	}
	span.SetAttributes(attribute.Int("app.stock", stock.Amount))
	if req.Amount > stock.Amount {
		s.notify(ctx, MessageStockExceeded)
		return
	}

	updated := s.Cart()
	idx := indexOf(updated, req.ProductID)
	if idx < 0 {
		s.fail(ctx, span, MessageUpdateFailed, errors.Wrapf(ErrProductNotInCart, "update %d", req.ProductID))
		return
	}
	updated[idx].Amount = req.Amount
	s.commit(ctx, updated)
}

// Clear deletes the persisted cart and empties the session.
func (s *Store) Clear(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "cart.Clear")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistence.Delete(ctx, s.key); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrapf(err, "delete cart %q", s.key)
	}
	s.cart = []Product{}
	s.persisted = s.cart
	return nil
}

// commit replaces the snapshot and writes it when it differs from what was
// last persisted. Write failures are logged only.
func (s *Store) commit(ctx context.Context, updated []Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart = updated
	if equalProducts(updated, s.persisted) {
		return
	}
	s.commits.Add(ctx, 1)

	data, err := json.Marshal(updated)
	if err == nil {
		err = s.persistence.Set(ctx, s.key, data)
	}
	if err != nil {
		s.log.WithError(err).WithField("key", s.key).Error("failed to persist cart")
		return
	}
	s.persisted = updated
}

func (s *Store) fail(ctx context.Context, span trace.Span, msg Message, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(msg))
	s.log.WithError(err).WithField("notification", string(msg)).Warn("cart operation failed")
	s.notify(ctx, msg)
}

func (s *Store) notify(ctx context.Context, msg Message) {
	s.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("app.message", string(msg))))
	s.notifier.Notify(ctx, msg)
}
