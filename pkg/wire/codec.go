package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"tradestream/pkg/core"
)

// Envelope field numbers, as declared in clientmessages.proto. Payload fields
// 4..10 form a oneof; when a frame carries several of them the last one decoded
// wins.
const (
	fieldType                protowire.Number = 1
	fieldEvent               protowire.Number = 2
	fieldTopic               protowire.Number = 3
	fieldLevelData           protowire.Number = 4
	fieldPricesData          protowire.Number = 5
	fieldNotification        protowire.Number = 6
	fieldTradeStatusResponse protowire.Number = 7
	fieldLimitsResponse      protowire.Number = 8
	fieldErrorMessage        protowire.Number = 9
	fieldCreateOrderRequest  protowire.Number = 10
)

var errWireType = errors.New("unexpected wire type")

// Marshal encodes env into a binary frame.
func Marshal(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, errors.New("wire: nil envelope")
	}

	b := make([]byte, 0, 64)
	b = appendVarint(b, fieldType, uint64(env.Type))
	b = appendString(b, fieldEvent, env.Event)
	b = appendString(b, fieldTopic, env.Topic)
	if env.Payload != nil {
		num, ok := payloadField(env.Payload.Kind())
		if !ok {
			return nil, fmt.Errorf("wire: unsupported payload %s", env.Payload.Kind())
		}
		b = appendMessage(b, num, env.Payload.marshal(nil))
	}
	return b, nil
}

// Unmarshal decodes a binary frame. The returned error wraps the protowire parse
// failure and identifies the offending field.
func Unmarshal(data []byte) (*Envelope, error) {
	env := &Envelope{}
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldType:
			v, n, err := decodeVarint(typ, b)
			env.Type = MessageType(int32(v))
			return n, err
		case fieldEvent:
			v, n, err := decodeString(typ, b)
			env.Event = v
			return n, err
		case fieldTopic:
			v, n, err := decodeString(typ, b)
			env.Topic = v
			return n, err
		case fieldLevelData:
			return decodePayload(typ, b, &LevelData{}, &env.Payload)
		case fieldPricesData:
			return decodePayload(typ, b, &PricesData{}, &env.Payload)
		case fieldNotification:
			return decodePayload(typ, b, &Notification{}, &env.Payload)
		case fieldTradeStatusResponse:
			return decodePayload(typ, b, &TradeStatusResponse{}, &env.Payload)
		case fieldLimitsResponse:
			return decodePayload(typ, b, &LimitsResponse{}, &env.Payload)
		case fieldErrorMessage:
			return decodePayload(typ, b, &ErrorMessage{}, &env.Payload)
		case fieldCreateOrderRequest:
			return decodePayload(typ, b, &CreateOrderRequest{}, &env.Payload)
		}
		return 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	return env, nil
}

// DecodeError wraps a frame decoding failure as a deserialization StreamError.
func DecodeError(err error) *core.StreamError {
	return core.NewStreamError(core.ErrorTypeDeserialization, err.Error()).
		WithCode(core.ErrCodeDecode).
		WithCause(err)
}

func payloadField(kind PayloadKind) (protowire.Number, bool) {
	switch kind {
	case KindLevelData:
		return fieldLevelData, true
	case KindPricesData:
		return fieldPricesData, true
	case KindNotification:
		return fieldNotification, true
	case KindTradeStatus:
		return fieldTradeStatusResponse, true
	case KindLimits:
		return fieldLimitsResponse, true
	case KindError:
		return fieldErrorMessage, true
	case KindCreateOrder:
		return fieldCreateOrderRequest, true
	default:
		return 0, false
	}
}

type unmarshaler interface {
	Payload
	unmarshal(b []byte) error
}

func decodePayload(typ protowire.Type, b []byte, msg unmarshaler, dst *Payload) (int, error) {
	raw, n, err := decodeBytes(typ, b)
	if err != nil {
		return n, err
	}
	if err := msg.unmarshal(raw); err != nil {
		return n, err
	}
	*dst = msg
	return n, nil
}

// walk iterates over the fields of one message. fn returns the number of bytes it
// consumed for a known field, or zero to have the field skipped.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(m))
			}
		}
		b = b[m:]
	}
	return nil
}

func decodeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, errWireType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func decodeString(typ protowire.Type, b []byte) (string, int, error) {
	if typ != protowire.BytesType {
		return "", 0, errWireType
	}
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func decodeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, errWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func decodeDouble(typ protowire.Type, b []byte) (float64, int, error) {
	if typ != protowire.Fixed64Type {
		return 0, 0, errWireType
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return math.Float64frombits(v), n, nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

// appendMessage always writes the field so that an empty message keeps its presence.
func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func (l *Level) marshal(b []byte) []byte {
	b = appendDouble(b, 1, l.BuyPrice)
	b = appendDouble(b, 2, l.SellPrice)
	return appendDouble(b, 3, l.MaxQuantity)
}

func (l *Level) unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			v   float64
			n   int
			err error
		)
		switch num {
		case 1:
			v, n, err = decodeDouble(typ, b)
			l.BuyPrice = v
		case 2:
			v, n, err = decodeDouble(typ, b)
			l.SellPrice = v
		case 3:
			v, n, err = decodeDouble(typ, b)
			l.MaxQuantity = v
		}
		return n, err
	})
}

func (d *LevelData) marshal(b []byte) []byte {
	b = appendString(b, 1, d.Market)
	b = appendString(b, 2, d.QuoteID)
	for i := range d.Levels {
		b = appendMessage(b, 3, d.Levels[i].marshal(nil))
	}
	return appendVarint(b, 4, uint64(d.Timestamp))
}

func (d *LevelData) unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := decodeString(typ, b)
			d.Market = v
			return n, err
		case 2:
			v, n, err := decodeString(typ, b)
			d.QuoteID = v
			return n, err
		case 3:
			raw, n, err := decodeBytes(typ, b)
			if err != nil {
				return n, err
			}
			var level Level
			if err := level.unmarshal(raw); err != nil {
				return n, err
			}
			d.Levels = append(d.Levels, level)
			return n, nil
		case 4:
			v, n, err := decodeVarint(typ, b)
			d.Timestamp = int64(v)
			return n, err
		}
		return 0, nil
	})
}

func (p *PricesData) marshal(b []byte) []byte {
	b = appendString(b, 1, p.Market)
	b = appendDouble(b, 2, p.BuyPrice)
	b = appendDouble(b, 3, p.SellPrice)
	return appendVarint(b, 4, uint64(p.Timestamp))
}

func (p *PricesData) unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := decodeString(typ, b)
			p.Market = v
			return n, err
		case 2:
			v, n, err := decodeDouble(typ, b)
			p.BuyPrice = v
			return n, err
		case 3:
			v, n, err := decodeDouble(typ, b)
			p.SellPrice = v
			return n, err
		case 4:
			v, n, err := decodeVarint(typ, b)
			p.Timestamp = int64(v)
			return n, err
		}
		return 0, nil
	})
}

func (u *OrderUpdate) marshal(b []byte) []byte {
	b = appendString(b, 1, u.OrderID)
	b = appendString(b, 2, u.Asset)
	b = appendString(b, 3, u.CounterAsset)
	b = appendVarint(b, 4, uint64(u.Side))
	b = appendDouble(b, 5, u.Price)
	b = appendDouble(b, 6, u.Quantity)
	b = appendString(b, 7, u.ClientTag)
	b = appendString(b, 8, u.Status)
	return appendVarint(b, 9, uint64(u.Timestamp))
}

func (u *OrderUpdate) unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1, 2, 3, 7, 8:
			v, n, err := decodeString(typ, b)
			switch num {
			case 1:
				u.OrderID = v
			case 2:
				u.Asset = v
			case 3:
				u.CounterAsset = v
			case 7:
				u.ClientTag = v
			case 8:
				u.Status = v
			}
			return n, err
		case 4:
			v, n, err := decodeVarint(typ, b)
			u.Side = core.OrderSide(v)
			return n, err
		case 5:
			v, n, err := decodeDouble(typ, b)
			u.Price = v
			return n, err
		case 6:
			v, n, err := decodeDouble(typ, b)
			u.Quantity = v
			return n, err
		case 9:
			v, n, err := decodeVarint(typ, b)
			u.Timestamp = int64(v)
			return n, err
		}
		return 0, nil
	})
}

func (m *Notification) marshal(b []byte) []byte {
	switch {
	case m.Filled != nil:
		b = appendMessage(b, 1, m.Filled.marshal(nil))
	case m.Cancelled != nil:
		b = appendMessage(b, 2, m.Cancelled.marshal(nil))
	case m.Opened != nil:
		b = appendMessage(b, 3, m.Opened.marshal(nil))
	}
	return b
}

func (m *Notification) unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num < 1 || num > 3 {
			return 0, nil
		}
		raw, n, err := decodeBytes(typ, b)
		if err != nil {
			return n, err
		}
		var update OrderUpdate
		if err := update.unmarshal(raw); err != nil {
			return n, err
		}
		m.Filled, m.Cancelled, m.Opened = nil, nil, nil
		switch num {
		case 1:
			m.Filled = &OrderFilled{update}
		case 2:
			m.Cancelled = &OrderCancelled{update}
		case 3:
			m.Opened = &OrderOpened{update}
		}
		return n, nil
	})
}

func (f *Fill) marshal(b []byte) []byte {
	b = appendString(b, 1, f.TradeID)
	b = appendDouble(b, 2, f.Price)
	b = appendDouble(b, 3, f.Quantity)
	return appendVarint(b, 4, uint64(f.Side))
}

func (f *Fill) unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := decodeString(typ, b)
			f.TradeID = v
			return n, err
		case 2:
			v, n, err := decodeDouble(typ, b)
			f.Price = v
			return n, err
		case 3:
			v, n, err := decodeDouble(typ, b)
			f.Quantity = v
			return n, err
		case 4:
			v, n, err := decodeVarint(typ, b)
			f.Side = core.OrderSide(v)
			return n, err
		}
		return 0, nil
	})
}

func (r *TradeStatusResponse) marshal(b []byte) []byte {
	b = appendString(b, 1, r.OrderID)
	b = appendString(b, 2, r.Status)
	for i := range r.Trades {
		b = appendMessage(b, 3, r.Trades[i].marshal(nil))
	}
	return appendString(b, 4, r.Message)
}

func (r *TradeStatusResponse) unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := decodeString(typ, b)
			r.OrderID = v
			return n, err
		case 2:
			v, n, err := decodeString(typ, b)
			r.Status = v
			return n, err
		case 3:
			raw, n, err := decodeBytes(typ, b)
			if err != nil {
				return n, err
			}
			var fill Fill
			if err := fill.unmarshal(raw); err != nil {
				return n, err
			}
			r.Trades = append(r.Trades, fill)
			return n, nil
		case 4:
			v, n, err := decodeString(typ, b)
			r.Message = v
			return n, err
		}
		return 0, nil
	})
}

func (l *AssetLimit) marshal(b []byte) []byte {
	b = appendString(b, 1, l.Asset)
	b = appendDouble(b, 2, l.MaxBuy)
	b = appendDouble(b, 3, l.MaxSell)
	return appendDouble(b, 4, l.Position)
}

func (l *AssetLimit) unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := decodeString(typ, b)
			l.Asset = v
			return n, err
		case 2:
			v, n, err := decodeDouble(typ, b)
			l.MaxBuy = v
			return n, err
		case 3:
			v, n, err := decodeDouble(typ, b)
			l.MaxSell = v
			return n, err
		case 4:
			v, n, err := decodeDouble(typ, b)
			l.Position = v
			return n, err
		}
		return 0, nil
	})
}

func (r *LimitsResponse) marshal(b []byte) []byte {
	for i := range r.Limits {
		b = appendMessage(b, 1, r.Limits[i].marshal(nil))
	}
	return b
}

func (r *LimitsResponse) unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		raw, n, err := decodeBytes(typ, b)
		if err != nil {
			return n, err
		}
		var limit AssetLimit
		if err := limit.unmarshal(raw); err != nil {
			return n, err
		}
		r.Limits = append(r.Limits, limit)
		return n, nil
	})
}

func (e *ErrorMessage) marshal(b []byte) []byte {
	b = appendString(b, 1, e.Message)
	return appendVarint(b, 2, uint64(e.Code))
}

func (e *ErrorMessage) unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := decodeString(typ, b)
			e.Message = v
			return n, err
		case 2:
			v, n, err := decodeVarint(typ, b)
			e.Code = int32(v)
			return n, err
		}
		return 0, nil
	})
}

func (r *CreateOrderRequest) marshal(b []byte) []byte {
	b = appendString(b, 1, r.QuoteID)
	b = appendString(b, 2, r.Asset)
	b = appendString(b, 3, r.CounterAsset)
	b = appendVarint(b, 4, uint64(r.Side))
	b = appendVarint(b, 5, uint64(r.OrderType))
	b = appendDouble(b, 6, r.Price)
	b = appendDouble(b, 7, r.LimitPrice)
	b = appendDouble(b, 8, r.Quantity)
	b = appendString(b, 9, r.ClientTag)
	return appendVarint(b, 10, uint64(r.Expires))
}

func (r *CreateOrderRequest) unmarshal(data []byte) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1, 2, 3, 9:
			v, n, err := decodeString(typ, b)
			switch num {
			case 1:
				r.QuoteID = v
			case 2:
				r.Asset = v
			case 3:
				r.CounterAsset = v
			case 9:
				r.ClientTag = v
			}
			return n, err
		case 4, 5, 10:
			v, n, err := decodeVarint(typ, b)
			switch num {
			case 4:
				r.Side = core.OrderSide(v)
			case 5:
				r.OrderType = core.OrderType(v)
			case 10:
				r.Expires = int64(v)
			}
			return n, err
		case 6, 7, 8:
			v, n, err := decodeDouble(typ, b)
			switch num {
			case 6:
				r.Price = v
			case 7:
				r.LimitPrice = v
			case 8:
				r.Quantity = v
			}
			return n, err
		}
		return 0, nil
	})
}
