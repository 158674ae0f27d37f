package stream

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
	"github.com/go-playground/validator/v10"

	"tradestream/pkg/core"
	"tradestream/pkg/wire"
)

var orderValidate = validator.New()

// Order is a create-order request before it is put on the wire.
type Order struct {
	// QuoteID references the quote a market order executes against.
	QuoteID      string         `validate:"required_if=Type 0"`
	Asset        string         `validate:"required"`
	CounterAsset string         `validate:"required"`
	Side         core.OrderSide `validate:"oneof=0 1"`
	Type         core.OrderType `validate:"oneof=0 1"`
	Price        apd.Decimal    `validate:"-"`
	Quantity     apd.Decimal    `validate:"-"`
	ClientTag    string
}

// MarketOrder holds the arguments of Client.SubmitMarketOrder.
type MarketOrder struct {
	QuoteID      string
	Asset        string
	CounterAsset string
	Price        apd.Decimal
	// Side is matched case-insensitively against "BUY"; any other value sells.
	Side      string
	Quantity  apd.Decimal
	ClientTag string
}

// LimitOrder holds the arguments of Client.SubmitLimitOrder.
type LimitOrder struct {
	Asset        string
	CounterAsset string
	Price        apd.Decimal
	// Side is matched case-insensitively against "BUY"; any other value sells.
	Side      string
	Quantity  apd.Decimal
	ClientTag string
}

func (o MarketOrder) order() *Order {
	order := &Order{
		QuoteID:      o.QuoteID,
		Asset:        o.Asset,
		CounterAsset: o.CounterAsset,
		Side:         core.ParseSide(o.Side),
		Type:         core.TypeMarket,
		ClientTag:    o.ClientTag,
	}
	order.Price.Set(&o.Price)
	order.Quantity.Set(&o.Quantity)
	return order
}

func (o LimitOrder) order() *Order {
	order := &Order{
		Asset:        o.Asset,
		CounterAsset: o.CounterAsset,
		Side:         core.ParseSide(o.Side),
		Type:         core.TypeLimit,
		ClientTag:    o.ClientTag,
	}
	order.Price.Set(&o.Price)
	order.Quantity.Set(&o.Quantity)
	return order
}

func invalidOrder(format string, args ...any) *core.StreamError {
	return core.NewStreamError(core.ErrorTypeInvalidOrder, fmt.Sprintf(format, args...)).
		WithCode(core.ErrCodeInvalidOrder)
}

// Validate checks the order before it is sent.
func (o *Order) Validate() error {
	if err := orderValidate.Struct(o); err != nil {
		return invalidOrder("invalid order: %v", err).WithCause(err)
	}
	if o.Quantity.Form != apd.Finite || o.Quantity.IsZero() || o.Quantity.Negative {
		return invalidOrder("quantity must be positive")
	}
	if o.Price.Form != apd.Finite || o.Price.IsZero() || o.Price.Negative {
		return invalidOrder("price must be positive")
	}
	return nil
}

// request converts the order into its wire body. Market orders carry the quoted
// price in Price, limit orders in LimitPrice. Orders never expire.
func (o *Order) request() (*wire.CreateOrderRequest, error) {
	price, err := o.Price.Float64()
	if err != nil {
		return nil, invalidOrder("price out of range: %v", err).WithCause(err)
	}
	quantity, err := o.Quantity.Float64()
	if err != nil {
		return nil, invalidOrder("quantity out of range: %v", err).WithCause(err)
	}

	req := &wire.CreateOrderRequest{
		Asset:        o.Asset,
		CounterAsset: o.CounterAsset,
		Side:         o.Side,
		OrderType:    o.Type,
		Quantity:     quantity,
		ClientTag:    o.ClientTag,
		Expires:      core.NoExpiry,
	}
	if o.Type == core.TypeMarket {
		req.QuoteID = o.QuoteID
		req.Price = price
	} else {
		req.LimitPrice = price
	}
	return req, nil
}

// OrderBuilder provides a fluent interface for constructing orders.
// It accumulates the first parse error and reports it on Build.
//
// Example:
//
//	order, err := stream.NewOrderBuilder("BTC", "USD").
//	    Side("buy").
//	    Market(quoteID).
//	    Price("64000").
//	    Quantity("0.01").
//	    Build()
type OrderBuilder struct {
	order *Order
	err   error
}

// NewOrderBuilder creates a builder for a limit order on asset/counterAsset.
func NewOrderBuilder(asset, counterAsset string) *OrderBuilder {
	return &OrderBuilder{
		order: &Order{
			Asset:        asset,
			CounterAsset: counterAsset,
			Side:         core.SideSell,
			Type:         core.TypeLimit,
		},
	}
}

// Side sets the side from a caller supplied string, see core.ParseSide.
func (b *OrderBuilder) Side(side string) *OrderBuilder {
	if b.err != nil {
		return b
	}
	b.order.Side = core.ParseSide(side)
	return b
}

// Buy sets the order side to buy.
func (b *OrderBuilder) Buy() *OrderBuilder {
	return b.Side("BUY")
}

// Sell sets the order side to sell.
func (b *OrderBuilder) Sell() *OrderBuilder {
	return b.Side("SELL")
}

// Market makes this a market order against quoteID.
func (b *OrderBuilder) Market(quoteID string) *OrderBuilder {
	if b.err != nil {
		return b
	}
	b.order.Type = core.TypeMarket
	b.order.QuoteID = quoteID
	return b
}

// Limit makes this a limit order.
func (b *OrderBuilder) Limit() *OrderBuilder {
	if b.err != nil {
		return b
	}
	b.order.Type = core.TypeLimit
	b.order.QuoteID = ""
	return b
}

// Price sets the order price from a string representation.
func (b *OrderBuilder) Price(price string) *OrderBuilder {
	if b.err != nil {
		return b
	}
	if _, _, err := b.order.Price.SetString(price); err != nil {
		b.err = fmt.Errorf("parse price: %w", err)
	}
	return b
}

// PriceDecimal sets the order price from an apd.Decimal value.
func (b *OrderBuilder) PriceDecimal(price apd.Decimal) *OrderBuilder {
	if b.err != nil {
		return b
	}
	b.order.Price.Set(&price)
	return b
}

// Quantity sets the order quantity from a string representation.
func (b *OrderBuilder) Quantity(qty string) *OrderBuilder {
	if b.err != nil {
		return b
	}
	if _, _, err := b.order.Quantity.SetString(qty); err != nil {
		b.err = fmt.Errorf("parse quantity: %w", err)
	}
	return b
}

// QuantityDecimal sets the order quantity from an apd.Decimal value.
func (b *OrderBuilder) QuantityDecimal(qty apd.Decimal) *OrderBuilder {
	if b.err != nil {
		return b
	}
	b.order.Quantity.Set(&qty)
	return b
}

// ClientTag sets the caller's tag, echoed back in notifications.
func (b *OrderBuilder) ClientTag(tag string) *OrderBuilder {
	if b.err != nil {
		return b
	}
	b.order.ClientTag = tag
	return b
}

// Build validates and returns the constructed order.
func (b *OrderBuilder) Build() (*Order, error) {
	if b.err != nil {
		return nil, invalidOrder("%v", b.err).WithCause(b.err)
	}
	if err := b.order.Validate(); err != nil {
		return nil, err
	}
	return b.order, nil
}
