package models

// Step is one row of a break-even projection table.
type Step struct {
	Step                  int      `json:"step"`
	OrderbookLevel        *float64 `json:"orderbook_level,omitempty"`
	CumulativeDecreasePct float64  `json:"cumulative_decrease_pct"`
	DecreaseStepPct       float64  `json:"decrease_step_pct"`
	Rate                  float64  `json:"rate"`
	PurchaseUSD           float64  `json:"purchase_usd"`
	TotalInvested         float64  `json:"total_invested"`
	BreakevenPrice        float64  `json:"breakeven_price"`
	BreakevenPct          float64  `json:"breakeven_pct"`
	TargetDeltaPct        float64  `json:"target_delta_pct"`
}

// BreakEvenTable is an ordered sequence of steps.
type BreakEvenTable []Step

// AutotradeLevels describes the server-side accumulation cycle for a currency.
type AutotradeLevels struct {
	ActiveCycle        bool           `json:"active_cycle"`
	Table              BreakEvenTable `json:"table,omitempty"`
	StartPrice         float64        `json:"start_price"`
	SellPrice          float64        `json:"sell_price"`
	NextBuyPrice       float64        `json:"next_buy_price"`
	CurrentPrice       float64        `json:"current_price"`
	ActiveStep         int            `json:"active_step"`
	DiagnosticDecision string         `json:"diagnostic_decision"`
}

// TradeIndicators is the payload of getTradeIndicators.
type TradeIndicators struct {
	Indicators      map[string]interface{} `json:"indicators"`
	AutotradeLevels AutotradeLevels        `json:"autotrade_levels"`
}

// BreakEvenRequest asks the backend to compute a preview table. StartPrice is
// left nil so the backend substitutes its own last-known value.
type BreakEvenRequest struct {
	Currency       string   `json:"currency"`
	QuoteCurrency  string   `json:"quote_currency"`
	Steps          int      `json:"steps"`
	StartVolume    float64  `json:"start_volume"`
	StartPrice     *float64 `json:"start_price,omitempty"`
	Pprof          float64  `json:"pprof"`
	Kprof          float64  `json:"kprof"`
	TargetR        float64  `json:"target_r"`
	Rk             float64  `json:"rk"`
	GeomMultiplier float64  `json:"geom_multiplier"`
	RebuyMode      string   `json:"rebuy_mode"`
	OrderbookLevel float64  `json:"orderbook_level"`
}
