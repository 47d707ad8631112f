// Package catalog looks up products from the catalog service so order
// lines can be snapshotted at checkout.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Product is the catalog view used to price an order line.
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

// Lookup resolves a product by id. Implementations return (nil, nil) when
// the product does not exist.
type Lookup interface {
	Product(ctx context.Context, id string) (*Product, error)
}

// Client calls the catalog service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Lookup = (*Client)(nil)

// NewClient returns a Client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Product fetches GET {baseURL}/products/{id}.
func (c *Client) Product(ctx context.Context, id string) (*Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/products/%s", c.baseURL, url.PathEscape(id)), nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog service returned status %d", resp.StatusCode)
	}

	var p Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}
