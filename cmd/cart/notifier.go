// cmd/cart/notifier.go

package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/norun9/storefront-cart/cart"
)

// terminalNotifier prints notifications the way the web storefront shows a
// toast: one line, no detail.
type terminalNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

func (n *terminalNotifier) Notify(_ context.Context, msg cart.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, "! %s\n", msg)
}
