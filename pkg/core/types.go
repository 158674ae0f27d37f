package core

import "strings"

// OrderSide represents the direction of an order (buy or sell).
type OrderSide int

// Order side constants define the direction of a trade.
const (
	// SideBuy indicates an order to purchase an asset.
	SideBuy OrderSide = iota
	// SideSell indicates an order to sell an asset.
	SideSell
)

// String returns the string representation of the order side ("BUY" or "SELL").
func (s OrderSide) String() string {
	if s == SideBuy {
		return "BUY"
	}
	return "SELL"
}

// MarshalJSON implements json.Marshaler for OrderSide.
func (s OrderSide) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderSide.
// It follows ParseSide, so anything other than "buy" decodes as a sell.
func (s *OrderSide) UnmarshalJSON(data []byte) error {
	*s = ParseSide(strings.Trim(string(data), `"`))
	return nil
}

// ParseSide normalizes a caller supplied side string.
// The value is trimmed and compared case-insensitively against "BUY"; every other
// value, including typos and the empty string, is treated as a sell. The venue
// protocol has no way to express an invalid side, so nothing is rejected here.
func ParseSide(side string) OrderSide {
	if strings.EqualFold(strings.TrimSpace(side), "BUY") {
		return SideBuy
	}
	return SideSell
}

// OrderType represents the type of order sent over the stream.
type OrderType int

// Order type constants define how an order is executed.
const (
	// TypeMarket executes against a quoted price.
	TypeMarket OrderType = iota
	// TypeLimit executes at a specified price or better.
	TypeLimit
)

// String returns the string representation of the order type.
func (t OrderType) String() string {
	if t == TypeLimit {
		return "LIMIT"
	}
	return "MARKET"
}

// MarshalJSON implements json.Marshaler for OrderType.
func (t OrderType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderType.
// It accepts both uppercase and lowercase formats.
func (t *OrderType) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"MARKET"`, `"market"`:
		*t = TypeMarket
	case `"LIMIT"`, `"limit"`:
		*t = TypeLimit
	}
	return nil
}

// NoExpiry is the expiry sent with orders that never expire.
const NoExpiry int64 = -1
