package models

// RawLevel is one [price, amount] entry as sent by the backend. Elements may be
// JSON strings or numbers and are not guaranteed to be numeric.
type RawLevel []interface{}

// RawOrderBook is the order book exactly as received, both sides in arbitrary order.
type RawOrderBook struct {
	Asks []RawLevel `json:"asks"`
	Bids []RawLevel `json:"bids"`
}

// Ticker carries the latest trade and top-of-book prices.
type Ticker struct {
	Last          float64 `json:"last"`
	LowestAsk     float64 `json:"lowest_ask"`
	HighestBid    float64 `json:"highest_bid"`
	PercentChange float64 `json:"percent_change"`
	BaseVolume    float64 `json:"base_volume"`
	QuoteVolume   float64 `json:"quote_volume"`
	High24h       float64 `json:"high_24h"`
	Low24h        float64 `json:"low_24h"`
}

// PairData is the market data payload of getPairData.
type PairData struct {
	OrderBook RawOrderBook `json:"orderbook"`
	Ticker    Ticker       `json:"ticker"`
}

// DepthRow is one display-ready order book row.
type DepthRow struct {
	Price      float64 `json:"price"`
	Amount     float64 `json:"amount"`
	Notional   float64 `json:"notional"`
	Cumulative float64 `json:"cumulative"`
}

// OrderBookView is the normalized depth view. Asks are ordered farthest from
// mid first; bids closest to mid first.
type OrderBookView struct {
	Asks    []DepthRow `json:"asks"`
	Bids    []DepthRow `json:"bids"`
	BestAsk *float64   `json:"best_ask,omitempty"`
	BestBid *float64   `json:"best_bid,omitempty"`
	Mid     *float64   `json:"mid,omitempty"`
	Dropped int        `json:"dropped"`
}

func (v OrderBookView) Empty() bool {
	return len(v.Asks) == 0 && len(v.Bids) == 0
}
