// stock/client.go

package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/norun9/storefront-cart/cart"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrUnexpectedStatus is returned for any non-2xx response.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Client talks to the storefront API that serves stock and product metadata.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its transport is used as is and the
// client itself is never modified. Nil keeps the default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each request. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient returns a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid stock service url %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid stock service url %q: scheme and host are required", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	c := &Client{
		baseURL: u,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c, nil
}

type stockPayload struct {
	ID     int  `json:"id"`
	Amount *int `json:"amount"`
}

// Stock returns the available amount of productID.
func (c *Client) Stock(ctx context.Context, productID int) (cart.Stock, error) {
	var payload stockPayload
	if err := c.get(ctx, "stock/"+strconv.Itoa(productID), &payload); err != nil {
		return cart.Stock{}, err
	}
	if payload.Amount == nil {
		return cart.Stock{}, errors.Errorf("stock %d: response has no amount", productID)
	}
	return cart.Stock{ID: productID, Amount: *payload.Amount}, nil
}

type productPayload struct {
	ID    *int     `json:"id"`
	Title *string  `json:"title"`
	Price *float64 `json:"price"`
	Image string   `json:"image"`
}

// Product returns the catalog metadata of productID. Amount is always zero.
func (c *Client) Product(ctx context.Context, productID int) (cart.Product, error) {
	var payload *productPayload
	if err := c.get(ctx, "products/"+strconv.Itoa(productID), &payload); err != nil {
		return cart.Product{}, err
	}
	switch {
	case payload == nil:
		return cart.Product{}, errors.Errorf("product %d: empty response", productID)
	case payload.ID == nil, payload.Title == nil, payload.Price == nil:
		return cart.Product{}, errors.Errorf("product %d: response lacks id, title or price", productID)
	}
	return cart.Product{
		ID:    *payload.ID,
		Title: *payload.Title,
		Price: *payload.Price,
		Image: payload.Image,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrapf(err, "build request for %s", u)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", u)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Wrap(ErrUnexpectedStatus, fmt.Sprintf("GET %s: %s", u, resp.Status))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s", u)
	}
	return nil
}
