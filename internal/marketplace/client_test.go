package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/angelmondragon/digital-fulfillment/pkg/config"
	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/digital-fulfillment/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient(
		config.MarketplaceConfig{CampaignID: "42", OAuthToken: "tok"},
		WithBaseURL("http://market.test/"),
		WithHTTPClient(&http.Client{Transport: rt}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(config.MarketplaceConfig{OAuthToken: "tok"}); !errors.Is(err, errCampaignRequired) {
		t.Fatalf("expected campaign error, got %v", err)
	}
	if _, err := NewClient(config.MarketplaceConfig{CampaignID: "1"}); !errors.Is(err, errTokenRequired) {
		t.Fatalf("expected token error, got %v", err)
	}
}

func TestGetOrderRequest(t *testing.T) {
	var captured *http.Request
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(http.StatusOK, `{"result":{"order":{"id":777,"status":"PROCESSING","items":[{"id":5001,"offerId":"SKU-1","type":"DIGITAL","count":2}]}}}`), nil
	})

	order, err := client.GetOrder(context.Background(), "777")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if captured.URL.String() != "http://market.test/campaigns/42/orders/777" {
		t.Fatalf("unexpected url %s", captured.URL)
	}
	if captured.Header.Get("Authorization") != "OAuth tok" {
		t.Fatalf("unexpected auth header %q", captured.Header.Get("Authorization"))
	}
	if order.Status != enums.OrderStatusProcessing || len(order.Items) != 1 {
		t.Fatalf("unexpected order %+v", order)
	}
	item := order.Items[0]
	if item.ID.String() != "5001" || item.OfferID != "SKU-1" || !item.Type.IsDigital() || item.Count != 2 {
		t.Fatalf("unexpected item %+v", item)
	}
}

func TestGetOrderMissingResultIsNotFound(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"result":{}}`), nil
	})

	_, err := client.GetOrder(context.Background(), "1")
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetOrderNon2xxIsUpstreamError(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, `{"errors":[{"code":"BOOM"}]}`), nil
	})

	_, err := client.GetOrder(context.Background(), "1")
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if !strings.Contains(err.Error(), "status 500") || !strings.Contains(err.Error(), `"code":"BOOM"`) {
		t.Fatalf("expected status and body in error, got %q", err.Error())
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatal("upstream errors should be retryable")
	}
}

func TestGetOrderTransportErrorIsUpstreamError(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset")
	})

	_, err := client.GetOrder(context.Background(), "1")
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestDeliverDigitalGoodsRequest(t *testing.T) {
	var (
		captured *http.Request
		body     map[string]any
	)
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"status":"OK"}`), nil
	})

	err := client.DeliverDigitalGoods(context.Background(), "777", DeliveryItem{
		ItemID:       json.Number("5001"),
		DigitalCodes: []string{"AAAA-BBBB"},
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if captured.Method != http.MethodPost {
		t.Fatalf("unexpected method %s", captured.Method)
	}
	if captured.URL.Path != "/campaigns/42/orders/777/deliverDigitalGoods" {
		t.Fatalf("unexpected path %s", captured.URL.Path)
	}
	items, _ := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one item, got %v", body)
	}
	first := items[0].(map[string]any)
	if first["itemId"] != float64(5001) {
		t.Fatalf("expected numeric item id, got %v", first["itemId"])
	}
	codes := first["digitalCodes"].([]any)
	if len(codes) != 1 || codes[0] != "AAAA-BBBB" {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestDeliverDigitalGoodsSurfacesBody(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, "item already delivered"), nil
	})

	err := client.DeliverDigitalGoods(context.Background(), "777", DeliveryItem{ItemID: "1", DigitalCodes: []string{"X"}})
	if err == nil || !strings.Contains(err.Error(), "status 400: item already delivered") {
		t.Fatalf("expected verbatim body, got %v", err)
	}
}

func TestDeliverDigitalGoodsValidatesInput(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})

	err := client.DeliverDigitalGoods(context.Background(), "777", DeliveryItem{ItemID: "1"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if client.MaxCodesPerItem() != 1 {
		t.Fatalf("expected single code per item")
	}
}
