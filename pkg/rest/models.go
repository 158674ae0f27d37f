package rest

import (
	"fmt"
	"time"
)

// AuthResponse is the body of GET /api/v5/auth.
type AuthResponse struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

// Position is one asset row of the balances endpoint.
type Position struct {
	Asset    string  `json:"asset"`
	MaxSell  float64 `json:"maxSell"`
	MaxBuy   float64 `json:"maxBuy"`
	Position float64 `json:"position"`
}

// Positions is the body of GET /api/v4/balances.
type Positions struct {
	Assets      []Position `json:"assets"`
	CADBalance  float64    `json:"cadBalance"`
	USDBalance  float64    `json:"usdBalance"`
	USDCBalance float64    `json:"usdcBalance"`
	USDTBalance float64    `json:"usdtBalance"`
}

// NonZero returns the positions whose balance is not zero, in venue order.
func (p *Positions) NonZero() []Position {
	var out []Position
	for _, a := range p.Assets {
		if a.Position != 0 {
			out = append(out, a)
		}
	}
	return out
}

type User struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Trade is an executed trade as reported by GET /api/v4/trades.
type Trade struct {
	ID           string  `json:"_id"`
	CreatedAt    string  `json:"createdAt"`
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	Side         string  `json:"side"`
	TradeKey     string  `json:"tradeKey"`
	ClientTag    string  `json:"clientTag"`
	User         *User   `json:"user,omitempty"`
	Asset        string  `json:"asset"`
	CounterAsset string  `json:"counterAsset"`
	Status       string  `json:"status"`
}

// CreatedTime parses CreatedAt, an RFC 3339 timestamp with optional fraction.
func (t *Trade) CreatedTime() (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, t.CreatedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("trade %s: parse createdAt: %w", t.ID, err)
	}
	return ts, nil
}

// TradesResponse is one page of trades.
type TradesResponse struct {
	Data      []Trade `json:"data"`
	Total     int     `json:"total"`
	PageCount int     `json:"pageCount"`
}
