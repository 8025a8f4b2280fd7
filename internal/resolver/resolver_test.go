package resolver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/digital-fulfillment/internal/marketplace"
	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/digital-fulfillment/pkg/errors"
)

type fakeFetcher struct {
	order *marketplace.Order
	err   error
	calls []string
}

func (f *fakeFetcher) GetOrder(_ context.Context, orderID string) (*marketplace.Order, error) {
	f.calls = append(f.calls, orderID)
	return f.order, f.err
}

func TestResolveKeepsDigitalItems(t *testing.T) {
	fetcher := &fakeFetcher{order: &marketplace.Order{
		Status: enums.OrderStatusProcessing,
		Items: []marketplace.OrderItem{
			{ID: json.Number("1"), OfferID: "SKU-1", Type: enums.ItemTypeDigital, Count: 2},
			{ID: json.Number("2"), OfferID: "BOX", Type: "PHYSICAL", Count: 1},
			{ID: json.Number("3"), OfferID: " SKU-3 ", Type: enums.ItemTypeDigital},
		},
	}}
	r, err := New(fetcher)
	require.NoError(t, err)

	detail, err := r.Resolve(context.Background(), "A-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"A-1"}, fetcher.calls)
	assert.Equal(t, 1, detail.IgnoredItems)
	require.Len(t, detail.DigitalItems, 2)
	assert.Equal(t, Item{ID: "1", OfferID: "SKU-1", Quantity: 2}, detail.DigitalItems[0])
	assert.Equal(t, Item{ID: "3", OfferID: "SKU-3", Quantity: 1}, detail.DigitalItems[1])
	assert.Empty(t, detail.SkipReason())
}

func TestResolveSkipsNonFulfillableStatus(t *testing.T) {
	for _, status := range []enums.MarketplaceOrderStatus{enums.OrderStatusCancelled, enums.OrderStatusUnpaid, enums.OrderStatusDelivered, "SOMETHING_NEW"} {
		detail := Classify("A-1", &marketplace.Order{
			Status: status,
			Items:  []marketplace.OrderItem{{ID: "1", OfferID: "SKU", Type: enums.ItemTypeDigital, Count: 1}},
		})
		assert.NotEmpty(t, detail.SkipReason(), "status %s", status)
	}
}

func TestResolveSkipsOrdersWithoutDigitalItems(t *testing.T) {
	detail := Classify("A-1", &marketplace.Order{
		Status: enums.OrderStatusDelivery,
		Items:  []marketplace.OrderItem{{ID: "1", Type: "PHYSICAL"}},
	})
	assert.Equal(t, "order has no digital items", detail.SkipReason())
}

func TestResolvePassesThroughFetchErrors(t *testing.T) {
	upstream := pkgerrors.New(pkgerrors.CodeDependency, "boom")
	r, err := New(&fakeFetcher{err: upstream})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "A-1")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))

	r, err = New(&fakeFetcher{})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "A-1")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
