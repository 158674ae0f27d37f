package stream

import "tradestream/pkg/wire"

// Observer receives pushed data from the router. Every method is called
// synchronously on the receive goroutine; a slow observer delays response delivery.
type Observer interface {
	OnMessage(env *wire.Envelope)
	OnLevels(data *wire.LevelData)
	OnPrices(data *wire.PricesData)
	OnOrderFilled(n *wire.OrderFilled)
	OnOrderCancelled(n *wire.OrderCancelled)
	OnOrderOpened(n *wire.OrderOpened)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) OnMessage(*wire.Envelope) {}
func (NopObserver) OnLevels(*wire.LevelData) {}
func (NopObserver) OnPrices(*wire.PricesData) {}
func (NopObserver) OnOrderFilled(*wire.OrderFilled) {}
func (NopObserver) OnOrderCancelled(*wire.OrderCancelled) {}
func (NopObserver) OnOrderOpened(*wire.OrderOpened) {}

// ObserverFuncs adapts individual callbacks to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Message        func(env *wire.Envelope)
	Levels         func(data *wire.LevelData)
	Prices         func(data *wire.PricesData)
	OrderFilled    func(n *wire.OrderFilled)
	OrderCancelled func(n *wire.OrderCancelled)
	OrderOpened    func(n *wire.OrderOpened)
}

func (f ObserverFuncs) OnMessage(env *wire.Envelope) {
	if f.Message != nil {
		f.Message(env)
	}
}

func (f ObserverFuncs) OnLevels(data *wire.LevelData) {
	if f.Levels != nil {
		f.Levels(data)
	}
}

func (f ObserverFuncs) OnPrices(data *wire.PricesData) {
	if f.Prices != nil {
		f.Prices(data)
	}
}

func (f ObserverFuncs) OnOrderFilled(n *wire.OrderFilled) {
	if f.OrderFilled != nil {
		f.OrderFilled(n)
	}
}

func (f ObserverFuncs) OnOrderCancelled(n *wire.OrderCancelled) {
	if f.OrderCancelled != nil {
		f.OrderCancelled(n)
	}
}

func (f ObserverFuncs) OnOrderOpened(n *wire.OrderOpened) {
	if f.OrderOpened != nil {
		f.OrderOpened(n)
	}
}
