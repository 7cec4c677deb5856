package market

import (
	"encoding/json"
	"math"
	"testing"

	"tradedash/models"
)

func lvl(price, amount interface{}) models.RawLevel {
	return models.RawLevel{price, amount}
}

func prices(rows []models.DepthRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Price
	}
	return out
}

func cumulatives(rows []models.DepthRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Cumulative
	}
	return out
}

func equal(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func TestNormalizeOrdersAroundMid(t *testing.T) {
	view := Normalize(models.RawOrderBook{
		Asks: []models.RawLevel{lvl(101.0, 1.0), lvl(100.0, 2.0)},
		Bids: []models.RawLevel{lvl(98.0, 1.0), lvl(99.0, 3.0)},
	})

	if view.Mid == nil || *view.Mid != 99.5 {
		t.Fatalf("mid = %v, want 99.5", view.Mid)
	}
	if got := prices(view.Asks); !equal(got, []float64{101, 100}) {
		t.Fatalf("ask order = %v, want [101 100]", got)
	}
	// closest ask (100, amount 2) starts the running sum
	if got := cumulatives(view.Asks); !equal(got, []float64{3, 2}) {
		t.Fatalf("ask cumulative = %v, want [3 2]", got)
	}
	if got := prices(view.Bids); !equal(got, []float64{99, 98}) {
		t.Fatalf("bid order = %v, want [99 98]", got)
	}
	if got := cumulatives(view.Bids); !equal(got, []float64{3, 4}) {
		t.Fatalf("bid cumulative = %v, want [3 4]", got)
	}
	if view.Asks[0].Notional != 101 || view.Bids[0].Notional != 297 {
		t.Fatalf("unexpected notional: %+v %+v", view.Asks[0], view.Bids[0])
	}
}

func TestNormalizeDropsNonFiniteRows(t *testing.T) {
	view := Normalize(models.RawOrderBook{
		Asks: []models.RawLevel{lvl("abc", 1.0), lvl("100", "2"), lvl(102.0, math.NaN())},
		Bids: []models.RawLevel{lvl(99.0, math.Inf(1)), lvl("99", "3"), {98.0}},
	})

	if view.Dropped != 4 {
		t.Fatalf("dropped = %d, want 4", view.Dropped)
	}
	if len(view.Asks) != 1 || view.Asks[0].Cumulative != 2 {
		t.Fatalf("unexpected asks: %+v", view.Asks)
	}
	if len(view.Bids) != 1 || view.Bids[0].Cumulative != 3 {
		t.Fatalf("unexpected bids: %+v", view.Bids)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	view := Normalize(models.RawOrderBook{
		Asks: []models.RawLevel{lvl("x", "y")},
	})
	if !view.Empty() || view.Mid != nil {
		t.Fatalf("expected empty view, got %+v", view)
	}
	if view.Asks == nil || view.Bids == nil {
		t.Fatalf("empty view should carry empty slices for JSON rendering")
	}
}

func TestNormalizeSingleSideUsesBestAsMid(t *testing.T) {
	view := Normalize(models.RawOrderBook{
		Asks: []models.RawLevel{lvl(105.0, 1.0), lvl(103.0, 1.0), lvl(104.0, 1.0)},
	})
	if view.Mid == nil || *view.Mid != 103 {
		t.Fatalf("mid = %v, want best ask 103", view.Mid)
	}
	if got := prices(view.Asks); !equal(got, []float64{105, 104, 103}) {
		t.Fatalf("ask order = %v", got)
	}
	if got := cumulatives(view.Asks); !equal(got, []float64{3, 2, 1}) {
		t.Fatalf("ask cumulative = %v", got)
	}
}

func TestNormalizeAcceptsDecodedJSON(t *testing.T) {
	var raw models.RawOrderBook
	payload := `{"asks":[["100.5","1"],[101,2]],"bids":[["100","4"],["bad","1"]]}`
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	view := Normalize(raw)
	if view.Dropped != 1 {
		t.Fatalf("dropped = %d, want 1", view.Dropped)
	}
	if got := prices(view.Asks); !equal(got, []float64{101, 100.5}) {
		t.Fatalf("ask order = %v", got)
	}
	abs, pct, ok := Spread(view)
	if !ok || abs != 0.5 || pct <= 0 {
		t.Fatalf("spread = %v %v %v", abs, pct, ok)
	}
}

func TestPricePrecisionBands(t *testing.T) {
	cases := map[float64]int{
		15:      2,
		10:      2,
		5:       3,
		1:       3,
		0.5:     4,
		0.1:     4,
		0.00005: 5,
		0:       5,
	}
	for last, want := range cases {
		if got := PricePrecision(last); got != want {
			t.Errorf("PricePrecision(%v) = %d, want %d", last, got, want)
		}
	}
	if PricePrecision(math.NaN()) != DefaultPrecision {
		t.Errorf("NaN should fall back to default precision")
	}
}

func TestFormatters(t *testing.T) {
	if got := FormatPrice(1.23456, 3); got != "1.235" {
		t.Errorf("FormatPrice = %q", got)
	}
	if got := FormatLegacy(12345.678); got != "12345.68" {
		t.Errorf("FormatLegacy large = %q", got)
	}
	if got := FormatLegacy(0.00012340); got != "0.0001234" {
		t.Errorf("FormatLegacy small = %q", got)
	}
	if got := FormatLegacy(2.5); got != "2.5" {
		t.Errorf("FormatLegacy trim = %q", got)
	}
}
