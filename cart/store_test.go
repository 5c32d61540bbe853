package cart_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/norun9/storefront-cart/cart"
	"github.com/norun9/storefront-cart/cartstore"
	"github.com/norun9/storefront-cart/stock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const cartKey = "@RocketShoes:cart"

type fakeStock struct {
	stock    map[int]int
	products map[int]cart.Product

	stockErr   error
	productErr error

	stockCalls   int
	productCalls int
}

func (f *fakeStock) Stock(ctx context.Context, productID int) (cart.Stock, error) {
	f.stockCalls++
	if f.stockErr != nil {
		return cart.Stock{}, f.stockErr
	}
	return cart.Stock{ID: productID, Amount: f.stock[productID]}, nil
}

func (f *fakeStock) Product(ctx context.Context, productID int) (cart.Product, error) {
	f.productCalls++
	if f.productErr != nil {
		return cart.Product{}, f.productErr
	}
	p, ok := f.products[productID]
	if !ok {
		return cart.Product{}, errors.Errorf("product %d not found", productID)
	}
	return p, nil
}

// countingStore counts writes so tests can tell a skipped write from a
// rewrite of the same bytes.
type countingStore struct {
	*cartstore.LocalCartStore
	sets int
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	c.sets++
	return c.LocalCartStore.Set(ctx, key, value)
}

var sneaker = cart.Product{ID: 1, Title: "Tênis de Caminhada Leve Confortável", Price: 179.9, Image: "https://example.com/1.jpg"}

func seed(t *testing.T, products ...cart.Product) *countingStore {
	t.Helper()
	store := &countingStore{LocalCartStore: cartstore.NewLocalCartStore()}
	if products != nil {
		data, err := json.Marshal(products)
		require.NoError(t, err)
		require.NoError(t, store.LocalCartStore.Set(context.Background(), cartKey, data))
	}
	return store
}

func persisted(t *testing.T, store cartstore.ICartStore) []cart.Product {
	t.Helper()
	data, err := store.Get(context.Background(), cartKey)
	require.NoError(t, err)
	var out []cart.Product
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func withAmount(p cart.Product, amount int) cart.Product {
	p.Amount = amount
	return p
}

func newStore(t *testing.T, persistence cart.Persistence, stock cart.StockService) (*cart.Store, *cart.Recorder) {
	t.Helper()
	rec := &cart.Recorder{}
	s, err := cart.NewStore(context.Background(), persistence, stock, rec)
	require.NoError(t, err)
	return s, rec
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	t.Run("empty persistence", func(t *testing.T) {
		s, _ := newStore(t, seed(t), &fakeStock{})
		assert.Empty(t, s.Cart())
		assert.NotNil(t, s.Cart())
	})

	t.Run("loads persisted cart", func(t *testing.T) {
		s, _ := newStore(t, seed(t, withAmount(sneaker, 2)), &fakeStock{})
		assert.Equal(t, []cart.Product{withAmount(sneaker, 2)}, s.Cart())
	})

	t.Run("null and empty values", func(t *testing.T) {
		for _, raw := range []string{"", "null"} {
			store := cartstore.NewLocalCartStore()
			require.NoError(t, store.Set(ctx, cartKey, []byte(raw)))
			s, _ := newStore(t, store, &fakeStock{})
			assert.Empty(t, s.Cart(), "value %q", raw)
		}
	})

	t.Run("corrupt value", func(t *testing.T) {
		store := cartstore.NewLocalCartStore()
		require.NoError(t, store.Set(ctx, cartKey, []byte("{")))
		_, err := cart.NewStore(ctx, store, &fakeStock{}, nil)
		require.Error(t, err)
	})

	t.Run("repairs invalid entries", func(t *testing.T) {
		boot := withAmount(sneaker, 1)
		boot.ID, boot.Title = 2, "Bota"
		store := seed(t, withAmount(sneaker, 2), withAmount(boot, 0), withAmount(sneaker, 3), withAmount(boot, -1))

		s, _ := newStore(t, store, &fakeStock{})

		want := []cart.Product{withAmount(sneaker, 5)}
		assert.Equal(t, want, s.Cart())
		assert.Equal(t, want, persisted(t, store))
		assert.Equal(t, 1, store.sets)
	})

	t.Run("valid cart is not rewritten", func(t *testing.T) {
		store := seed(t, withAmount(sneaker, 2))
		newStore(t, store, &fakeStock{})
		assert.Zero(t, store.sets)
	})

	t.Run("custom key", func(t *testing.T) {
		store := cartstore.NewLocalCartStore()
		require.NoError(t, store.Set(ctx, "shop:cart", []byte(`[{"id":7,"amount":1}]`)))
		s, err := cart.NewStore(ctx, store, &fakeStock{}, nil, cart.WithKey("shop:cart"))
		require.NoError(t, err)
		assert.Equal(t, []cart.Product{{ID: 7, Amount: 1}}, s.Cart())
	})
}

func TestAddProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("new product", func(t *testing.T) {
		store := seed(t)
		stock := &fakeStock{stock: map[int]int{1: 5}, products: map[int]cart.Product{1: sneaker}}
		s, rec := newStore(t, store, stock)

		s.AddProduct(ctx, 1)

		want := []cart.Product{withAmount(sneaker, 1)}
		assert.Empty(t, rec.Messages())
		assert.Empty(t, cmp.Diff(want, s.Cart()))
		assert.Empty(t, cmp.Diff(want, persisted(t, store)))
	})

	t.Run("increments existing product", func(t *testing.T) {
		store := seed(t, withAmount(sneaker, 2))
		stock := &fakeStock{stock: map[int]int{1: 5}}
		s, rec := newStore(t, store, stock)

		s.AddProduct(ctx, 1)

		assert.Empty(t, rec.Messages())
		assert.Equal(t, []cart.Product{withAmount(sneaker, 3)}, s.Cart())
		assert.Equal(t, []cart.Product{withAmount(sneaker, 3)}, persisted(t, store))
		assert.Zero(t, stock.productCalls)
	})

	t.Run("stock exceeded", func(t *testing.T) {
		store := seed(t, withAmount(sneaker, 5))
		stock := &fakeStock{stock: map[int]int{1: 5}}
		s, rec := newStore(t, store, stock)

		s.AddProduct(ctx, 1)

		assert.Equal(t, []cart.Message{cart.MessageStockExceeded}, rec.Messages())
		assert.Equal(t, []cart.Product{withAmount(sneaker, 5)}, s.Cart())
		assert.Zero(t, store.sets)
	})

	t.Run("out of stock new product", func(t *testing.T) {
		store := seed(t)
		stock := &fakeStock{stock: map[int]int{1: 0}, products: map[int]cart.Product{1: sneaker}}
		s, rec := newStore(t, store, stock)

		s.AddProduct(ctx, 1)

		assert.Equal(t, []cart.Message{cart.MessageStockExceeded}, rec.Messages())
		assert.Empty(t, s.Cart())
		assert.Zero(t, stock.productCalls)
	})

	t.Run("stock lookup fails", func(t *testing.T) {
		store := seed(t, withAmount(sneaker, 1))
		s, rec := newStore(t, store, &fakeStock{stockErr: errors.New("connection refused")})

		s.AddProduct(ctx, 1)

		assert.Equal(t, []cart.Message{cart.MessageAddFailed}, rec.Messages())
		assert.Equal(t, []cart.Product{withAmount(sneaker, 1)}, s.Cart())
		assert.Zero(t, store.sets)
	})

	t.Run("product lookup fails", func(t *testing.T) {
		store := seed(t)
		stock := &fakeStock{stock: map[int]int{2: 3}}
		s, rec := newStore(t, store, stock)

		s.AddProduct(ctx, 2)

		assert.Equal(t, []cart.Message{cart.MessageAddFailed}, rec.Messages())
		assert.Empty(t, s.Cart())
		_, err := store.Get(ctx, cartKey)
		assert.ErrorIs(t, err, cartstore.ErrNotFound)
	})

	t.Run("entry keeps requested id", func(t *testing.T) {
		store := seed(t)
		mislabelled := sneaker
		mislabelled.ID = 42
		stock := &fakeStock{stock: map[int]int{1: 5}, products: map[int]cart.Product{1: mislabelled}}
		s, _ := newStore(t, store, stock)

		s.AddProduct(ctx, 1)
		s.AddProduct(ctx, 1)

		assert.Equal(t, []cart.Product{withAmount(sneaker, 2)}, s.Cart())
	})
}

func TestAddProductNeverDuplicates(t *testing.T) {
	ctx := context.Background()
	products := map[int]cart.Product{}
	stockLevels := map[int]int{}
	for id := 1; id <= 4; id++ {
		products[id] = cart.Product{ID: id, Title: "p", Price: float64(id)}
		stockLevels[id] = id + 1
	}
	s, _ := newStore(t, seed(t), &fakeStock{stock: stockLevels, products: products})

	for _, id := range []int{1, 2, 1, 3, 4, 4, 2, 1, 1, 3, 4, 4, 4, 4} {
		s.AddProduct(ctx, id)
	}

	seen := map[int]bool{}
	for _, p := range s.Cart() {
		assert.False(t, seen[p.ID], "duplicate entry for %d", p.ID)
		seen[p.ID] = true
		assert.LessOrEqual(t, p.Amount, stockLevels[p.ID])
		assert.Positive(t, p.Amount)
	}
	assert.Len(t, seen, 4)
}

func TestRemoveProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("present", func(t *testing.T) {
		other := cart.Product{ID: 2, Title: "other", Price: 10, Amount: 1}
		store := seed(t, withAmount(sneaker, 2), other)
		s, rec := newStore(t, store, &fakeStock{})

		s.RemoveProduct(ctx, 1)

		assert.Empty(t, rec.Messages())
		assert.Equal(t, []cart.Product{other}, s.Cart())
		assert.Equal(t, []cart.Product{other}, persisted(t, store))
	})

	t.Run("last product", func(t *testing.T) {
		store := seed(t, withAmount(sneaker, 2))
		s, _ := newStore(t, store, &fakeStock{})

		s.RemoveProduct(ctx, 1)

		assert.Empty(t, s.Cart())
		data, err := store.Get(ctx, cartKey)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(data))
	})

	t.Run("absent", func(t *testing.T) {
		store := seed(t, withAmount(sneaker, 2))
		s, rec := newStore(t, store, &fakeStock{})

		s.RemoveProduct(ctx, 2)

		assert.Equal(t, []cart.Message{cart.MessageRemoveFailed}, rec.Messages())
		assert.Equal(t, []cart.Product{withAmount(sneaker, 2)}, s.Cart())
		assert.Zero(t, store.sets)
	})
}

func TestUpdateProductAmount(t *testing.T) {
	ctx := context.Background()

	t.Run("within stock", func(t *testing.T) {
		store := seed(t, withAmount(sneaker, 2))
		s, rec := newStore(t, store, &fakeStock{stock: map[int]int{1: 10}})

		s.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 1, Amount: 7})

		assert.Empty(t, rec.Messages())
		assert.Equal(t, []cart.Product{withAmount(sneaker, 7)}, s.Cart())
		assert.Equal(t, []cart.Product{withAmount(sneaker, 7)}, persisted(t, store))
	})

	t.Run("non-positive amount is ignored", func(t *testing.T) {
		for _, amount := range []int{0, -1} {
			store := seed(t, withAmount(sneaker, 2))
			stock := &fakeStock{stock: map[int]int{1: 10}}
			s, rec := newStore(t, store, stock)

			s.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 1, Amount: amount})

			assert.Empty(t, rec.Messages())
			assert.Equal(t, []cart.Product{withAmount(sneaker, 2)}, s.Cart())
			assert.Zero(t, store.sets)
			assert.Zero(t, stock.stockCalls)
		}
	})

	t.Run("stock exceeded", func(t *testing.T) {
		store := seed(t, withAmount(sneaker, 2))
		s, rec := newStore(t, store, &fakeStock{stock: map[int]int{1: 3}})

		s.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 1, Amount: 4})

		assert.Equal(t, []cart.Message{cart.MessageStockExceeded}, rec.Messages())
		assert.Equal(t, []cart.Product{withAmount(sneaker, 2)}, s.Cart())
		assert.Zero(t, store.sets)
	})

	t.Run("absent product", func(t *testing.T) {
		store := seed(t, withAmount(sneaker, 2))
		s, rec := newStore(t, store, &fakeStock{stock: map[int]int{9: 3}})

		s.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 9, Amount: 1})

		assert.Equal(t, []cart.Message{cart.MessageUpdateFailed}, rec.Messages())
		assert.Equal(t, []cart.Product{withAmount(sneaker, 2)}, s.Cart())
	})

	t.Run("stock lookup fails", func(t *testing.T) {
		store := seed(t, withAmount(sneaker, 2))
		s, rec := newStore(t, store, &fakeStock{stockErr: errors.New("timeout")})

		s.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 1, Amount: 1})

		assert.Equal(t, []cart.Message{cart.MessageUpdateFailed}, rec.Messages())
		assert.Equal(t, []cart.Product{withAmount(sneaker, 2)}, s.Cart())
	})

	t.Run("same amount skips the write", func(t *testing.T) {
		store := seed(t, withAmount(sneaker, 2))
		s, rec := newStore(t, store, &fakeStock{stock: map[int]int{1: 10}})

		s.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 1, Amount: 2})

		assert.Empty(t, rec.Messages())
		assert.Zero(t, store.sets)
	})
}

func TestAddProductRejectsIncompleteCatalogResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stock/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"amount":5}`))
	})
	mux.HandleFunc("GET /products/1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})
	mux.HandleFunc("GET /products/2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := stock.NewClient(srv.URL)
	require.NoError(t, err)

	for _, id := range []int{1, 2} {
		store := seed(t)
		s, rec := newStore(t, store, client)

		s.AddProduct(context.Background(), id)

		assert.Equal(t, []cart.Message{cart.MessageAddFailed}, rec.Messages(), "product %d", id)
		assert.Empty(t, s.Cart(), "product %d", id)
		assert.Zero(t, store.sets, "product %d", id)
	}
}

func commitCount(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "app.cart.commits" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestCommitCounterSkipsUnchangedCarts(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	s, err := cart.NewStore(ctx, seed(t, withAmount(sneaker, 2)),
		&fakeStock{stock: map[int]int{1: 10}}, nil, cart.WithMeterProvider(mp))
	require.NoError(t, err)

	s.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 1, Amount: 2})
	assert.Zero(t, commitCount(t, reader))

	s.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: 1, Amount: 3})
	assert.Equal(t, int64(1), commitCount(t, reader))
}

func TestCartReturnsCopy(t *testing.T) {
	s, _ := newStore(t, seed(t, withAmount(sneaker, 2)), &fakeStock{stock: map[int]int{1: 10}})

	before := s.Cart()
	before[0].Amount = 99
	assert.Equal(t, 2, s.Cart()[0].Amount)

	snapshot := s.Cart()
	s.UpdateProductAmount(context.Background(), cart.UpdateProductAmount{ProductID: 1, Amount: 5})
	assert.Equal(t, 2, snapshot[0].Amount)
	assert.Equal(t, 5, s.Cart()[0].Amount)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := seed(t, withAmount(sneaker, 2))
	s, _ := newStore(t, store, &fakeStock{stock: map[int]int{1: 10}, products: map[int]cart.Product{1: sneaker}})

	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, s.Cart())
	_, err := store.Get(ctx, cartKey)
	assert.ErrorIs(t, err, cartstore.ErrNotFound)

	s.AddProduct(ctx, 1)
	assert.Equal(t, []cart.Product{withAmount(sneaker, 1)}, persisted(t, store))
}

type failingStore struct {
	*cartstore.LocalCartStore
}

func (failingStore) Set(context.Context, string, []byte) error { return errors.New("disk full") }

func TestCommitSurvivesWriteFailure(t *testing.T) {
	store := failingStore{cartstore.NewLocalCartStore()}
	s, rec := newStore(t, store, &fakeStock{stock: map[int]int{1: 10}, products: map[int]cart.Product{1: sneaker}})

	s.AddProduct(context.Background(), 1)

	assert.Empty(t, rec.Messages())
	assert.Equal(t, []cart.Product{withAmount(sneaker, 1)}, s.Cart())
}

func TestTotals(t *testing.T) {
	s, _ := newStore(t, seed(t,
		cart.Product{ID: 1, Price: 179.9, Amount: 3},
		cart.Product{ID: 2, Price: 0.1, Amount: 2},
	), &fakeStock{})

	summary := s.Totals()
	assert.Equal(t, 5, summary.Items)
	assert.Equal(t, "539.9", summary.Total.String())

	empty := cart.Totals(nil)
	assert.Zero(t, empty.Items)
	assert.True(t, empty.Total.IsZero())
}
