package pairstate

import (
	"testing"

	"tradedash/models"
)

func TestNewState(t *testing.T) {
	s := New(" usdt")
	snap := s.Snapshot()
	if snap.Base != "" || snap.Quote != "USDT" {
		t.Fatalf("unexpected initial pair: %+v", snap)
	}
	if snap.PricePrecision != 5 || snap.UserOverride {
		t.Fatalf("unexpected defaults: %+v", snap)
	}
}

func TestOverrideIsSticky(t *testing.T) {
	s := New("USDT")
	s.Set(models.Pair{Base: "BTC", Quote: "USDT"}, true)
	s.Set(models.Pair{Base: "BTC", Quote: "USDC"}, false)
	if !s.Snapshot().UserOverride {
		t.Fatal("override cleared by a quote change")
	}
}

func TestSetPrecisionForIgnoresStalePair(t *testing.T) {
	s := New("USDT")
	btc := models.Pair{Base: "BTC", Quote: "USDT"}
	eth := models.Pair{Base: "ETH", Quote: "USDT"}
	s.Set(btc, true)
	if !s.SetPrecisionFor(btc, 2) {
		t.Fatal("precision for active pair rejected")
	}
	s.Set(eth, true)
	if s.Snapshot().PricePrecision != 5 {
		t.Fatal("precision should reset when the pair changes")
	}
	if s.SetPrecisionFor(btc, 3) {
		t.Fatal("precision for a stale pair accepted")
	}
	if s.Snapshot().PricePrecision != 5 {
		t.Fatal("stale precision leaked into the active pair")
	}
}

func TestPickFromCurrencies(t *testing.T) {
	s := New("USDT")
	if base, changed := s.PickFromCurrencies([]string{"BTC", "ETH"}); !changed || base != "BTC" {
		t.Fatalf("first load should pick BTC, got %q %v", base, changed)
	}

	s.Set(models.Pair{Base: "ETH", Quote: "USDT"}, false)
	if _, changed := s.PickFromCurrencies([]string{"BTC", "ETH"}); changed {
		t.Fatal("listed base must be kept")
	}
	if base, changed := s.PickFromCurrencies([]string{"SOL"}); !changed || base != "SOL" {
		t.Fatalf("unlisted automatic base should move, got %q %v", base, changed)
	}

	s.Set(models.Pair{Base: "DOGE", Quote: "USDT"}, true)
	if _, changed := s.PickFromCurrencies([]string{"BTC"}); changed {
		t.Fatal("user choice must survive a currency reload")
	}
	if _, changed := New("USDT").PickFromCurrencies(nil); changed {
		t.Fatal("empty list must not change anything")
	}
}
