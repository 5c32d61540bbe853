// cart/notifier.go

package cart

import (
	"context"
	"sync"
)

// Message is a user-facing notification text.
type Message string

const (
	MessageStockExceeded Message = "Requested quantity is out of stock"
	MessageAddFailed     Message = "Failed to add product"
	MessageRemoveFailed  Message = "Failed to remove product"
	MessageUpdateFailed  Message = "Failed to update product quantity"
)

// Notifier reports messages to the shopper. Store operations never return
// errors; every failure reaches the caller through a Notifier.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message)

// Notify calls f(ctx, msg).
func (f NotifierFunc) Notify(ctx context.Context, msg Message) {
	f(ctx, msg)
}

// Recorder is a Notifier that keeps every message it receives.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Notify records msg.
func (r *Recorder) Notify(_ context.Context, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

// Messages returns the recorded messages in order.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

