package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// TradeParams is the per-currency accumulation configuration.
type TradeParams struct {
	Currency       string  `json:"currency"`
	Steps          int     `json:"steps"`
	StartVolume    float64 `json:"start_volume"`
	StartPrice     float64 `json:"start_price"`
	Pprof          float64 `json:"pprof"`
	Kprof          float64 `json:"kprof"`
	TargetR        float64 `json:"target_r"`
	Rk             float64 `json:"rk"`
	GeomMultiplier float64 `json:"geom_multiplier"`
	RebuyMode      string  `json:"rebuy_mode"`
	Keep           float64 `json:"keep"`
	OrderbookLevel float64 `json:"orderbook_level"`
}

// Form field names, shared by TradeForm and TradeParams JSON.
const (
	FieldSteps          = "steps"
	FieldStartVolume    = "start_volume"
	FieldStartPrice     = "start_price"
	FieldPprof          = "pprof"
	FieldKprof          = "kprof"
	FieldTargetR        = "target_r"
	FieldRk             = "rk"
	FieldGeomMultiplier = "geom_multiplier"
	FieldRebuyMode      = "rebuy_mode"
	FieldKeep           = "keep"
	FieldOrderbookLevel = "orderbook_level"
)

// TradeForm holds the parameter form as the user typed it. Values are raw
// text and may not parse.
type TradeForm map[string]string

// Float parses a field; ok is false when the field is missing, unparseable or not finite.
func (f TradeForm) Float(field string) (float64, bool) {
	raw, exists := f[field]
	if !exists {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FloatOr returns the parsed field or def.
func (f TradeForm) FloatOr(field string, def float64) float64 {
	if v, ok := f.Float(field); ok {
		return v
	}
	return def
}

// IntOr parses an integer field, truncating decimals, or returns def. Values
// outside the int32 range count as unparseable.
func (f TradeForm) IntOr(field string, def int) int {
	if v, ok := f.Float(field); ok && v >= math.MinInt32 && v <= math.MaxInt32 {
		return int(v)
	}
	return def
}

// StringOr returns the trimmed field or def when it is empty.
func (f TradeForm) StringOr(field string, def string) string {
	if v := strings.TrimSpace(f[field]); v != "" {
		return v
	}
	return def
}

// Clone returns an independent copy.
func (f TradeForm) Clone() TradeForm {
	out := make(TradeForm, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// FormFromParams renders params into form text.
func FormFromParams(p TradeParams) TradeForm {
	ff := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return TradeForm{
		FieldSteps:          strconv.Itoa(p.Steps),
		FieldStartVolume:    ff(p.StartVolume),
		FieldStartPrice:     ff(p.StartPrice),
		FieldPprof:          ff(p.Pprof),
		FieldKprof:          ff(p.Kprof),
		FieldTargetR:        ff(p.TargetR),
		FieldRk:             ff(p.Rk),
		FieldGeomMultiplier: ff(p.GeomMultiplier),
		FieldRebuyMode:      p.RebuyMode,
		FieldKeep:           ff(p.Keep),
		FieldOrderbookLevel: ff(p.OrderbookLevel),
	}
}

// PairInfo carries exchange limits and precisions for a pair.
type PairInfo struct {
	MinQuoteAmount  float64 `json:"min_quote_amount"`
	MinBaseAmount   float64 `json:"min_base_amount"`
	AmountPrecision int     `json:"amount_precision"`
	PricePrecision  int     `json:"price_precision"`
}

// Balance is one currency's wallet balance.
type Balance struct {
	Currency  string  `json:"currency"`
	Available float64 `json:"available"`
	Locked    float64 `json:"locked"`
}

// SessionProfit summarises realised profit for the current session.
type SessionProfit struct {
	Profit    float64 `json:"profit"`
	ProfitPct float64 `json:"profit_pct"`
	Trades    int     `json:"trades"`
}

// Currency is one entry of the currency list.
type Currency struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol,omitempty"`
}

// UnmarshalJSON accepts either a bare code string or an object with code and symbol.
func (c *Currency) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err == nil {
		c.Code = CanonicalCode(code)
		c.Symbol = ""
		return nil
	}
	var obj struct {
		Code   string `json:"code"`
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	c.Code = CanonicalCode(obj.Code)
	c.Symbol = obj.Symbol
	return nil
}
