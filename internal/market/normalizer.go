// Package market turns raw order book and ticker payloads into display-ready data.
package market

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"tradedash/models"
)

type level struct {
	price  float64
	amount float64
}

// Normalize converts a raw snapshot into an OrderBookView. Rows whose price or
// amount is not a finite number are dropped before ordering.
func Normalize(raw models.RawOrderBook) models.OrderBookView {
	asks, droppedAsks := parseSide(raw.Asks)
	bids, droppedBids := parseSide(raw.Bids)

	view := models.OrderBookView{
		Asks:    []models.DepthRow{},
		Bids:    []models.DepthRow{},
		Dropped: droppedAsks + droppedBids,
	}
	if len(asks) == 0 && len(bids) == 0 {
		return view
	}

	var bestAsk, bestBid *float64
	for _, l := range asks {
		if bestAsk == nil || l.price < *bestAsk {
			p := l.price
			bestAsk = &p
		}
	}
	for _, l := range bids {
		if bestBid == nil || l.price > *bestBid {
			p := l.price
			bestBid = &p
		}
	}
	view.BestAsk = bestAsk
	view.BestBid = bestBid
	view.Mid = midPrice(bestAsk, bestBid)

	if view.Mid != nil {
		mid := *view.Mid
		sort.SliceStable(asks, func(i, j int) bool {
			return math.Abs(asks[i].price-mid) < math.Abs(asks[j].price-mid)
		})
		sort.SliceStable(bids, func(i, j int) bool {
			return math.Abs(bids[i].price-mid) < math.Abs(bids[j].price-mid)
		})
	} else {
		sort.SliceStable(asks, func(i, j int) bool { return asks[i].price < asks[j].price })
		sort.SliceStable(bids, func(i, j int) bool { return bids[i].price > bids[j].price })
	}

	// asks render farthest first so the closest ask sits next to the spread;
	// cumulative still grows outward from the spread
	view.Asks = make([]models.DepthRow, len(asks))
	var cumulative float64
	for i, l := range asks {
		cumulative += l.amount
		view.Asks[len(asks)-1-i] = row(l, cumulative)
	}

	view.Bids = make([]models.DepthRow, len(bids))
	cumulative = 0
	for i, l := range bids {
		cumulative += l.amount
		view.Bids[i] = row(l, cumulative)
	}

	return view
}

func row(l level, cumulative float64) models.DepthRow {
	return models.DepthRow{
		Price:      l.price,
		Amount:     l.amount,
		Notional:   l.price * l.amount,
		Cumulative: cumulative,
	}
}

func midPrice(bestAsk, bestBid *float64) *float64 {
	switch {
	case bestAsk != nil && bestBid != nil:
		m := (*bestAsk + *bestBid) / 2
		return &m
	case bestAsk != nil:
		m := *bestAsk
		return &m
	case bestBid != nil:
		m := *bestBid
		return &m
	default:
		return nil
	}
}

func parseSide(rows []models.RawLevel) ([]level, int) {
	out := make([]level, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		if len(r) < 2 {
			dropped++
			continue
		}
		price, ok := toFinite(r[0])
		if !ok {
			dropped++
			continue
		}
		amount, ok := toFinite(r[1])
		if !ok {
			dropped++
			continue
		}
		out = append(out, level{price: price, amount: amount})
	}
	return out, dropped
}

func toFinite(v interface{}) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Spread returns the absolute and percentage spread between the best levels.
// ok is false unless both sides have a best price.
func Spread(view models.OrderBookView) (abs float64, pct float64, ok bool) {
	if view.BestAsk == nil || view.BestBid == nil {
		return 0, 0, false
	}
	abs = *view.BestAsk - *view.BestBid
	if view.Mid != nil && *view.Mid != 0 {
		pct = abs / *view.Mid * 100
	}
	return abs, pct, true
}
