package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/digital-fulfillment/internal/marketplace"
	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/digital-fulfillment/pkg/errors"
)

// OrderFetcher reads an order document from the marketplace.
type OrderFetcher interface {
	GetOrder(ctx context.Context, orderID string) (*marketplace.Order, error)
}

// Item is a digital order line ready for reservation.
type Item struct {
	ID       string
	OfferID  string
	Quantity int
}

// OrderDetail is a classified marketplace order.
type OrderDetail struct {
	OrderID      string
	Status       enums.MarketplaceOrderStatus
	DigitalItems []Item
	// IgnoredItems counts non-digital lines.
	IgnoredItems int
}

// SkipReason explains why nothing should be fulfilled for the order, or
// returns "" when the order is actionable.
func (d *OrderDetail) SkipReason() string {
	switch {
	case d == nil:
		return "order missing"
	case len(d.DigitalItems) == 0:
		return "order has no digital items"
	case !d.Status.IsFulfillable():
		return fmt.Sprintf("order status %s is not fulfillable", d.Status)
	default:
		return ""
	}
}

type Resolver struct {
	orders OrderFetcher
}

func New(orders OrderFetcher) (*Resolver, error) {
	if orders == nil {
		return nil, fmt.Errorf("order fetcher required")
	}
	return &Resolver{orders: orders}, nil
}

// Resolve fetches and classifies the order. Errors from the fetcher are
// passed through so callers can distinguish NOT_FOUND from upstream failures.
func (r *Resolver) Resolve(ctx context.Context, orderID string) (*OrderDetail, error) {
	order, err := r.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found in marketplace", orderID)
	}
	return Classify(orderID, order), nil
}

// Classify keeps only DIGITAL lines. A missing or non-positive count means one unit.
func Classify(orderID string, order *marketplace.Order) *OrderDetail {
	detail := &OrderDetail{
		OrderID: orderID,
		Status:  enums.MarketplaceOrderStatus(strings.ToUpper(strings.TrimSpace(string(order.Status)))),
	}
	for _, line := range order.Items {
		if !line.Type.IsDigital() {
			detail.IgnoredItems++
			continue
		}
		qty := line.Count
		if qty <= 0 {
			qty = 1
		}
		detail.DigitalItems = append(detail.DigitalItems, Item{
			ID:       line.ID.String(),
			OfferID:  strings.TrimSpace(line.OfferID),
			Quantity: qty,
		})
	}
	return detail
}
