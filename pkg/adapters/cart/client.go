package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/closemarketing/go-checkout-links/pkg/core/domain"
	"github.com/closemarketing/go-checkout-links/pkg/ports"
)

// Client talks to the storefront's cart and catalog API. The visitor's cart
// session is forwarded in a header; the storefront keys cart state on it.
type Client struct {
	baseURL     string
	checkoutURL string
	http        *http.Client
}

func NewClient(baseURL, checkoutURL string) *Client {
	return &Client{
		baseURL:     baseURL,
		checkoutURL: checkoutURL,
		http:        &http.Client{Timeout: 10 * time.Second},
	}
}

const sessionHeader = "X-Cart-Session"

func (c *Client) Clear(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/cart", nil)
	if err != nil {
		return err
	}
	req.Header.Set(sessionHeader, sessionID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("cart clear returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) Add(ctx context.Context, sessionID string, item domain.SelectionItem) (bool, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cart/items", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(sessionHeader, sessionID)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		// The cart declined the item (e.g. purchasability rules); not an
		// infrastructure failure.
		return false, nil
	default:
		return false, fmt.Errorf("cart add returned %d", resp.StatusCode)
	}
}

func (c *Client) CheckoutURL() string {
	return c.checkoutURL
}

// Item fetches a product or variation with its availability. A 404 maps to
// (nil, nil): the product does not exist.
func (c *Client) Item(ctx context.Context, productID, variationID int64) (*domain.CatalogItem, error) {
	id := productID
	if variationID != 0 {
		id = variationID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/products/%d", c.baseURL, id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("catalog lookup returned %d", resp.StatusCode)
	}

	var item domain.CatalogItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, err
	}
	return &item, nil
}

var (
	_ ports.CartService = (*Client)(nil)
	_ ports.Catalog     = (*Client)(nil)
)
