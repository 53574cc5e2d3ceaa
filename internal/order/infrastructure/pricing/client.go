// Package pricing resolves unit prices from the product catalog service.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type priceResp struct {
	SKU   string          `json:"sku"`
	Price decimal.Decimal `json:"price"`
}

// UnitPrice calls GET {base}/products/{sku}/price.
func (c *Client) UnitPrice(ctx context.Context, sku string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/products/%s/price", c.baseURL, url.PathEscape(sku))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price lookup for %s: %w", sku, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrProductNotFound, sku)
	case resp.StatusCode != http.StatusOK:
		return decimal.Zero, fmt.Errorf("price lookup for %s: unexpected status %d", sku, resp.StatusCode)
	}

	var body priceResp
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("price lookup for %s: %w", sku, err)
	}
	if !body.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s has no price", domain.ErrProductNotFound, sku)
	}
	return body.Price, nil
}
