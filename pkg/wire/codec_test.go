package wire

import (
	"os"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"tradestream/pkg/core"
)

func TestMarshal_Subscribe(t *testing.T) {
	data, err := Marshal(NewSubscribe(EventLevels, "BTC/USD"))
	require.NoError(t, err)

	env, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, TypeSubscribe, env.Type)
	assert.Equal(t, EventLevels, env.Event)
	assert.Equal(t, "BTC/USD", env.Topic)
	assert.Equal(t, KindNone, env.Kind())
}

func TestMarshal_CreateOrderRequest(t *testing.T) {
	req := &CreateOrderRequest{
		QuoteID:      "q-1",
		Asset:        "BTC",
		CounterAsset: "USD",
		Side:         core.SideSell,
		OrderType:    core.TypeLimit,
		LimitPrice:   64000.5,
		Quantity:     0.25,
		ClientTag:    "tag",
		Expires:      core.NoExpiry,
	}

	data, err := Marshal(NewRequest("id-1", TopicCreateOrder, req))
	require.NoError(t, err)

	env, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, TypeRequestResponse, env.Type)
	assert.Equal(t, "id-1", env.Event)
	assert.Equal(t, TopicCreateOrder, env.Topic)
	require.Equal(t, KindCreateOrder, env.Kind())
	assert.Equal(t, req, env.Payload)
}

func TestUnmarshal_LevelData(t *testing.T) {
	in := &LevelData{
		Market:  "ETH/USD",
		QuoteID: "quote-9",
		Levels: []Level{
			{BuyPrice: 3000, SellPrice: 2999, MaxQuantity: 5},
			{BuyPrice: 3001, SellPrice: 2998, MaxQuantity: 10},
		},
		Timestamp: 1700000000000,
	}
	data, err := Marshal(&Envelope{Type: TypeSubscribe, Event: EventLevels, Topic: "ETH/USD", Payload: in})
	require.NoError(t, err)

	env, err := Unmarshal(data)
	require.NoError(t, err)
	got, ok := env.Payload.(*LevelData)
	require.True(t, ok)
	assert.Equal(t, in, got)

	asset, counter, ok := got.Assets()
	assert.True(t, ok)
	assert.Equal(t, "ETH", asset)
	assert.Equal(t, "USD", counter)
}

func TestUnmarshal_Notification(t *testing.T) {
	in := &Notification{Cancelled: &OrderCancelled{OrderUpdate{OrderID: "o-1", Status: "Cancelled"}}}
	data, err := Marshal(&Envelope{Event: EventNotifications, Topic: TopicOrderCancelled, Payload: in})
	require.NoError(t, err)

	env, err := Unmarshal(data)
	require.NoError(t, err)
	got := env.Payload.(*Notification)
	assert.Nil(t, got.Filled)
	require.NotNil(t, got.Cancelled)
	assert.Equal(t, "o-1", got.Cancelled.OrderID)
}

func TestUnmarshal_EmptyPayloadKeepsPresence(t *testing.T) {
	data, err := Marshal(NewRequest("id", TopicLimits, &LimitsResponse{}))
	require.NoError(t, err)

	env, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, KindLimits, env.Kind())
}

func TestUnmarshal_LastPayloadWins(t *testing.T) {
	data, err := Marshal(NewRequest("id", TopicCreateOrder, &TradeStatusResponse{OrderID: "o"}))
	require.NoError(t, err)
	data = appendMessage(data, fieldErrorMessage, (&ErrorMessage{Message: "rejected"}).marshal(nil))

	env, err := Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, KindError, env.Kind())
	assert.Equal(t, "rejected", env.Payload.(*ErrorMessage).Message)
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	data, err := Marshal(NewSubscribe(EventPrices, "BTC/USD"))
	require.NoError(t, err)
	data = protowire.AppendTag(data, 99, protowire.VarintType)
	data = protowire.AppendVarint(data, 7)

	env, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "BTC/USD", env.Topic)
}

func TestUnmarshal_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated_tag", []byte{0x80}},
		{"truncated_string", []byte{0x12, 0x05, 'a'}},
		{"wrong_wire_type", protowire.AppendVarint(protowire.AppendTag(nil, fieldEvent, protowire.VarintType), 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Unmarshal(tt.data)
			assert.Nil(t, env)
			require.Error(t, err)

			streamErr := DecodeError(err)
			assert.Equal(t, core.ErrorTypeDeserialization, streamErr.Type)
			assert.ErrorIs(t, streamErr, err)
		})
	}
}

func TestMarshal_NilEnvelope(t *testing.T) {
	_, err := Marshal(nil)
	assert.Error(t, err)
}

func TestCancelOrderTopic(t *testing.T) {
	topic := CancelOrderTopic("abc")
	assert.Equal(t, "cancelorder/abc", topic)
	assert.True(t, IsCancelOrderTopic(topic))
	assert.False(t, IsCancelOrderTopic(TopicCreateOrder))
}

func TestEnvelopeFieldsMatchSchema(t *testing.T) {
	schema, err := os.ReadFile("clientmessages.proto")
	require.NoError(t, err)

	block := regexp.MustCompile(`(?s)message Envelope \{(.*?)\n\}`).FindSubmatch(schema)
	require.NotNil(t, block)

	declared := map[string]protowire.Number{}
	for _, m := range regexp.MustCompile(`(\w+) = (\d+);`).FindAllSubmatch(block[1], -1) {
		n, err := strconv.Atoi(string(m[2]))
		require.NoError(t, err)
		declared[string(m[1])] = protowire.Number(n)
	}

	want := map[string]protowire.Number{
		"type":                  fieldType,
		"event":                 fieldEvent,
		"topic":                 fieldTopic,
		"level_data":            fieldLevelData,
		"prices_data":           fieldPricesData,
		"notification":          fieldNotification,
		"trade_status_response": fieldTradeStatusResponse,
		"limits_response":       fieldLimitsResponse,
		"error_message":         fieldErrorMessage,
		"create_order_request":  fieldCreateOrderRequest,
	}
	assert.Equal(t, want, declared)
}
