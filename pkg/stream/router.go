package stream

import (
	"fmt"

	"github.com/rs/zerolog"

	"tradestream/pkg/core"
	"tradestream/pkg/pending"
	"tradestream/pkg/quote"
	"tradestream/pkg/wire"
)

// Router dispatches decoded envelopes to the quote store, the observer and the
// pending request table.
type Router struct {
	quotes   *quote.Store
	pending  *pending.Table
	observer Observer
	logger   zerolog.Logger
}

// NewRouter creates a router. A nil observer is replaced by NopObserver.
func NewRouter(quotes *quote.Store, table *pending.Table, observer Observer) *Router {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Router{
		quotes:   quotes,
		pending:  table,
		observer: observer,
		logger:   zerolog.Nop(),
	}
}

// SetLogger sets the logger.
func (r *Router) SetLogger(logger zerolog.Logger) {
	r.logger = logger
}

// Route forwards env to the raw observer and then dispatches it by type.
func (r *Router) Route(env *wire.Envelope) {
	r.observer.OnMessage(env)

	switch env.Type {
	case wire.TypeSubscribe:
		r.routeSubscription(env)
	case wire.TypeRequestResponse:
		r.routeResponse(env)
	default:
		r.logger.Warn().
			Int32("type", int32(env.Type)).
			Str("event", env.Event).
			Msg("ignoring envelope of unknown type")
	}
}

func (r *Router) routeSubscription(env *wire.Envelope) {
	switch env.Event {
	case wire.EventLevels:
		data, ok := env.Payload.(*wire.LevelData)
		if !ok {
			r.dropMismatch(env)
			return
		}
		r.quotes.Update(data)
		r.observer.OnLevels(data)

	case wire.EventPrices:
		data, ok := env.Payload.(*wire.PricesData)
		if !ok {
			r.dropMismatch(env)
			return
		}
		r.observer.OnPrices(data)

	case wire.EventNotifications:
		r.routeNotification(env)

	default:
		r.logger.Debug().
			Str("event", env.Event).
			Str("topic", env.Topic).
			Msg("ignoring unknown subscription event")
	}
}

func (r *Router) routeNotification(env *wire.Envelope) {
	n, ok := env.Payload.(*wire.Notification)
	if !ok {
		r.dropMismatch(env)
		return
	}

	switch env.Topic {
	case wire.TopicOrderFilled:
		if n.Filled == nil {
			r.dropMismatch(env)
			return
		}
		r.observer.OnOrderFilled(n.Filled)
	case wire.TopicOrderCancelled:
		if n.Cancelled == nil {
			r.dropMismatch(env)
			return
		}
		r.observer.OnOrderCancelled(n.Cancelled)
	case wire.TopicOrderOpened:
		if n.Opened == nil {
			r.dropMismatch(env)
			return
		}
		r.observer.OnOrderOpened(n.Opened)
	default:
		r.logger.Debug().Str("topic", env.Topic).Msg("ignoring unknown notification")
	}
}

func (r *Router) dropMismatch(env *wire.Envelope) {
	r.logger.Warn().
		Str("event", env.Event).
		Str("topic", env.Topic).
		Stringer("payload", env.Kind()).
		Msg("dropping envelope with mismatched payload")
}

// routeResponse completes the pending request named by env.Event. Each branch takes
// the entry out of the table, so a late or duplicate response finds nothing.
func (r *Router) routeResponse(env *wire.Envelope) {
	id, topic := env.Event, env.Topic

	if msg, isError := env.Payload.(*wire.ErrorMessage); isError || topic == wire.TopicError {
		message := "upstream error"
		if isError && msg.Message != "" {
			message = msg.Message
		}
		err := core.NewStreamError(core.ErrorTypeUpstream, message).
			WithCode(core.ErrCodeUpstream).
			WithRequest(id, topic)
		if r.pending.Fail(id, err) {
			r.logger.Warn().Str("correlation_id", id).Str("topic", topic).Str("error", message).Msg("request rejected")
		} else {
			r.dropUnknown(env)
		}
		return
	}

	var completed bool
	switch {
	case topic == wire.TopicCreateOrder || wire.IsCancelOrderTopic(topic):
		resp, ok := env.Payload.(*wire.TradeStatusResponse)
		if !ok {
			completed = r.failShape(env, fmt.Sprintf("expected trade status response, got %s", env.Kind()))
			break
		}
		completed = r.pending.Resolve(id, resp)

	case topic == wire.TopicLimits:
		resp, ok := env.Payload.(*wire.LimitsResponse)
		if !ok {
			completed = r.failShape(env, fmt.Sprintf("expected limits response, got %s", env.Kind()))
			break
		}
		completed = r.pending.Resolve(id, resp)

	default:
		completed = r.failShape(env, fmt.Sprintf("unexpected response topic %q", topic))
	}

	if !completed {
		r.dropUnknown(env)
		return
	}
	r.logger.Debug().Str("correlation_id", id).Str("topic", topic).Msg("request completed")
}

func (r *Router) failShape(env *wire.Envelope, message string) bool {
	code := core.ErrCodePayloadMismatch
	if env.Topic != wire.TopicCreateOrder && env.Topic != wire.TopicLimits && !wire.IsCancelOrderTopic(env.Topic) {
		code = core.ErrCodeUnexpectedResponse
	}
	err := core.NewStreamError(core.ErrorTypeUnexpectedResponse, message).
		WithCode(code).
		WithRequest(env.Event, env.Topic)

	if !r.pending.Fail(env.Event, err) {
		return false
	}
	r.logger.Error().Err(err).Msg("unexpected response shape")
	return true
}

func (r *Router) dropUnknown(env *wire.Envelope) {
	r.logger.Warn().
		Str("correlation_id", env.Event).
		Str("topic", env.Topic).
		Msg("no pending request for response")
}
