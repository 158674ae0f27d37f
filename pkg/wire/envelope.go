// Package wire defines the envelope exchanged over the trading stream and its
// binary codec. Frames use the protobuf wire format.
package wire

import (
	"strings"

	"tradestream/pkg/core"
)

// MessageType is the top-level envelope discriminator.
type MessageType int32

const (
	// TypeSubscribe marks subscription requests and pushed market data or notifications.
	TypeSubscribe MessageType = 0
	// TypeRequestResponse marks correlated requests and their responses.
	TypeRequestResponse MessageType = 1
)

// String returns the wire name of the message type.
func (t MessageType) String() string {
	switch t {
	case TypeSubscribe:
		return "subscribe"
	case TypeRequestResponse:
		return "request_response"
	default:
		return "unknown"
	}
}

// Subscription events and notification kinds.
const (
	EventLevels        = "levels"
	EventPrices        = "prices"
	EventNotifications = "notifications"

	TopicOrderFilled    = "ORDER_FILLED"
	TopicOrderCancelled = "ORDER_CANCELLED"
	TopicOrderOpened    = "ORDER_OPENED"
)

// Request kinds carried in the topic of request-response envelopes.
const (
	TopicCreateOrder       = "createorder"
	TopicLimits            = "limits"
	TopicError             = "error"
	TopicCancelOrderPrefix = "cancelorder/"
)

// CancelOrderTopic returns the request topic for cancelling orderID.
func CancelOrderTopic(orderID string) string {
	return TopicCancelOrderPrefix + orderID
}

// IsCancelOrderTopic reports whether topic is a cancel request topic.
func IsCancelOrderTopic(topic string) bool {
	return strings.HasPrefix(topic, TopicCancelOrderPrefix)
}

// Envelope is one message unit exchanged over the stream.
//
// For subscribe envelopes Event holds the subscription name (levels, prices,
// notifications) and Topic the symbol or notification kind. For request-response
// envelopes Event holds the correlation ID and Topic the request kind.
type Envelope struct {
	Type    MessageType
	Event   string
	Topic   string
	Payload Payload
}

// Kind returns the kind of the populated payload, KindNone if there is none.
func (e *Envelope) Kind() PayloadKind {
	if e.Payload == nil {
		return KindNone
	}
	return e.Payload.Kind()
}

// PayloadKind identifies the variant held by an Envelope.
type PayloadKind int

const (
	KindNone PayloadKind = iota
	KindLevelData
	KindPricesData
	KindNotification
	KindTradeStatus
	KindLimits
	KindError
	KindCreateOrder
)

// String returns the name of the payload kind.
func (k PayloadKind) String() string {
	names := [...]string{
		"none",
		"level_data",
		"prices_data",
		"notification",
		"trade_status_response",
		"limits_response",
		"error_message",
		"create_order_request",
	}
	if k < 0 || int(k) >= len(names) {
		return "unknown"
	}
	return names[k]
}

// Payload is the sum type of envelope bodies. It is implemented only by the
// pointer types in this package.
type Payload interface {
	Kind() PayloadKind
	marshal(b []byte) []byte
}

// Level is one rung of a quoted ladder.
type Level struct {
	BuyPrice    float64
	SellPrice   float64
	MaxQuantity float64
}

// LevelData is a full quote ladder for one market, pushed on the levels subscription.
type LevelData struct {
	Market    string
	QuoteID   string
	Levels    []Level
	Timestamp int64
}

// Kind implements Payload.
func (*LevelData) Kind() PayloadKind { return KindLevelData }

// Assets splits the market ("BTC/USD") into asset and counter asset.
func (d *LevelData) Assets() (asset, counterAsset string, ok bool) {
	asset, counterAsset, ok = strings.Cut(d.Market, "/")
	return asset, counterAsset, ok && asset != "" && counterAsset != ""
}

// PricesData is an indicative price update pushed on the prices subscription.
type PricesData struct {
	Market    string
	BuyPrice  float64
	SellPrice float64
	Timestamp int64
}

// Kind implements Payload.
func (*PricesData) Kind() PayloadKind { return KindPricesData }

// OrderUpdate carries the order fields shared by all order notifications.
type OrderUpdate struct {
	OrderID      string
	Asset        string
	CounterAsset string
	Side         core.OrderSide
	Price        float64
	Quantity     float64
	ClientTag    string
	Status       string
	Timestamp    int64
}

// OrderFilled is pushed when an order fills.
type OrderFilled struct{ OrderUpdate }

// OrderCancelled is pushed when an order is cancelled.
type OrderCancelled struct{ OrderUpdate }

// OrderOpened is pushed when a resting order is accepted.
type OrderOpened struct{ OrderUpdate }

// Notification holds exactly one order notification.
type Notification struct {
	Filled    *OrderFilled
	Cancelled *OrderCancelled
	Opened    *OrderOpened
}

// Kind implements Payload.
func (*Notification) Kind() PayloadKind { return KindNotification }

// Fill is one execution reported in a trade status response.
type Fill struct {
	TradeID  string
	Price    float64
	Quantity float64
	Side     core.OrderSide
}

// TradeStatusResponse answers createorder and cancelorder requests.
type TradeStatusResponse struct {
	OrderID string
	Status  string
	Message string
	Trades  []Fill
}

// Kind implements Payload.
func (*TradeStatusResponse) Kind() PayloadKind { return KindTradeStatus }

// AssetLimit is the trading headroom for one asset.
type AssetLimit struct {
	Asset    string
	MaxBuy   float64
	MaxSell  float64
	Position float64
}

// LimitsResponse answers a limits request.
type LimitsResponse struct {
	Limits []AssetLimit
}

// Kind implements Payload.
func (*LimitsResponse) Kind() PayloadKind { return KindLimits }

// ErrorMessage is returned by the venue instead of the expected response payload.
type ErrorMessage struct {
	Code    int32
	Message string
}

// Kind implements Payload.
func (*ErrorMessage) Kind() PayloadKind { return KindError }

// CreateOrderRequest is the body of an outbound createorder request.
type CreateOrderRequest struct {
	QuoteID      string
	Asset        string
	CounterAsset string
	Side         core.OrderSide
	OrderType    core.OrderType
	Price        float64
	LimitPrice   float64
	Quantity     float64
	ClientTag    string
	Expires      int64
}

// Kind implements Payload.
func (*CreateOrderRequest) Kind() PayloadKind { return KindCreateOrder }

// NewSubscribe builds a subscribe envelope for event and topic.
func NewSubscribe(event, topic string) *Envelope {
	return &Envelope{Type: TypeSubscribe, Event: event, Topic: topic}
}

// NewRequest builds a request-response envelope carrying correlation ID id.
func NewRequest(id, topic string, payload Payload) *Envelope {
	return &Envelope{Type: TypeRequestResponse, Event: id, Topic: topic, Payload: payload}
}
