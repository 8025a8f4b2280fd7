package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/digital-fulfillment/pkg/config"
	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/digital-fulfillment/pkg/errors"
)

const (
	defaultBaseURL = "https://api.partner.market.yandex.ru"
	defaultTimeout = 30 * time.Second

	// responseBodyLimit caps how much of an error body is copied into the returned error.
	responseBodyLimit int64 = 16 << 10

	// maxCodesPerItem is what deliverDigitalGoods accepts for a single order item.
	maxCodesPerItem = 1
)

var (
	errCampaignRequired = errors.New("marketplace campaign id is required")
	errTokenRequired    = errors.New("marketplace oauth token is required")
)

// Client talks to the marketplace partner API on behalf of one campaign.
type Client struct {
	httpClient *http.Client
	baseURL    string
	campaignID string
	token      string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the partner API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds a client from the marketplace credentials.
func NewClient(cfg config.MarketplaceConfig, opts ...Option) (*Client, error) {
	campaign := strings.TrimSpace(cfg.CampaignID)
	if campaign == "" {
		return nil, errCampaignRequired
	}
	token := strings.TrimSpace(cfg.OAuthToken)
	if token == "" {
		return nil, errTokenRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		campaignID: campaign,
		token:      token,
	}
	WithBaseURL(cfg.BaseURL)(client)

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Order is the subset of the marketplace order document the fulfillment flow reads.
type Order struct {
	ID     json.Number                  `json:"id"`
	Status enums.MarketplaceOrderStatus `json:"status"`
	Items  []OrderItem                  `json:"items"`
}

// OrderItem is one order line.
type OrderItem struct {
	ID      json.Number               `json:"id"`
	OfferID string                    `json:"offerId"`
	Type    enums.MarketplaceItemType `json:"type"`
	Count   int                       `json:"count"`
}

// DeliveryItem carries the codes sent for one order item.
type DeliveryItem struct {
	ItemID       json.Number `json:"itemId"`
	DigitalCodes []string    `json:"digitalCodes"`
}

type orderResponse struct {
	Result struct {
		Order *Order `json:"order"`
	} `json:"result"`
}

type deliverRequest struct {
	Items []DeliveryItem `json:"items"`
}

// MaxCodesPerItem reports how many code texts the delivery endpoint accepts per item.
func (c *Client) MaxCodesPerItem() int {
	return maxCodesPerItem
}

// GetOrder fetches the order document. A 2xx answer without result.order is
// reported as NOT_FOUND; any non-2xx status is a DEPENDENCY_ERROR carrying the body.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "marketplace client not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.orderPath(orderID), nil)
	if err != nil {
		return nil, err
	}

	var decoded orderResponse
	if err := c.do(req, "get order", &decoded); err != nil {
		return nil, err
	}
	if decoded.Result.Order == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found in marketplace", orderID)
	}
	return decoded.Result.Order, nil
}

// DeliverDigitalGoods posts codes for a single order item.
func (c *Client) DeliverDigitalGoods(ctx context.Context, orderID string, item DeliveryItem) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "marketplace client not configured")
	}
	if strings.TrimSpace(orderID) == "" || item.ItemID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id and item id are required")
	}
	if len(item.DigitalCodes) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one digital code is required")
	}

	payload, err := json.Marshal(deliverRequest{Items: []DeliveryItem{item}})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal deliver request")
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.orderPath(orderID)+"/deliverDigitalGoods", payload)
	if err != nil {
		return err
	}
	return c.do(req, "deliver digital goods", nil)
}

func (c *Client) orderPath(orderID string) string {
	return fmt.Sprintf("%s/campaigns/%s/orders/%s",
		strings.TrimRight(c.baseURL, "/"),
		url.PathEscape(c.campaignID),
		url.PathEscape(strings.TrimSpace(orderID)),
	)
}

func (c *Client) newRequest(ctx context.Context, method, target string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build marketplace request")
	}
	req.Header.Set("Authorization", "OAuth "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op+" request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
		return pkgerrors.Wrap(
			pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			op+" returned non-2xx",
		).WithDetails(map[string]any{"status": resp.StatusCode})
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+op+" response")
	}
	return nil
}
