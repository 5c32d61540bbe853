// cartstore/cartstore.go

package cartstore

import (
	"context"

	"github.com/pkg/errors"
)

const (
	// DefaultNamespace prefixes every key written by the storefront.
	DefaultNamespace = "@RocketShoes"
	// CartKey names the entry holding the serialized cart.
	CartKey = "cart"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("cartstore: key not found")

// ICartStore is the durable key-value surface the cart is persisted to.
type ICartStore interface {
	Initialize(ctx context.Context) error

	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	Ping(ctx context.Context) bool
}

// Key joins namespace and name with ":".
func Key(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + ":" + name
}
