package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedash/internal/breakeven"
	"tradedash/internal/market"
	"tradedash/models"
)

var (
	btc = models.Pair{Base: "BTC", Quote: "USDT"}
	eth = models.Pair{Base: "ETH", Quote: "USDT"}
)

func sampleView() models.OrderBookView {
	return market.Normalize(models.RawOrderBook{
		Asks: []models.RawLevel{{"101", "1"}, {"100", "2"}},
		Bids: []models.RawLevel{{"99", "3"}},
	})
}

func TestStoreDropsDataForInactivePair(t *testing.T) {
	s := NewStore()
	s.PairChanged(models.PairSnapshot{Pair: btc, PricePrecision: 2})

	s.OrderBook(eth, sampleView(), models.Ticker{Last: 10}, 2)
	s.Balances(eth, []models.Balance{{Currency: "ETH", Available: 1}})
	s.BreakEven(eth, breakeven.Result{Provenance: breakeven.ProvenanceCached})

	_, ok := s.Book()
	assert.False(t, ok)
	_, ok = s.BreakEvenTable()
	assert.False(t, ok)

	st := s.State()
	assert.Empty(t, st.Balances)
	assert.Equal(t, 3, st.StaleDrops)
}

func TestStoreClearsOnPairChange(t *testing.T) {
	s := NewStore()
	s.PairChanged(models.PairSnapshot{Pair: btc, PricePrecision: 2})
	s.OrderBook(btc, sampleView(), models.Ticker{Last: 100}, 2)
	s.TradeParams(btc, models.TradeForm{models.FieldSteps: "8"})
	s.SwitchingChanged(btc, true)

	// same pair keeps data
	s.PairChanged(models.PairSnapshot{Pair: btc, PricePrecision: 2, UserOverride: true})
	_, ok := s.Book()
	require.True(t, ok)
	assert.True(t, s.State().Switching)

	s.PairChanged(models.PairSnapshot{Pair: eth, PricePrecision: 2})
	_, ok = s.Book()
	assert.False(t, ok)

	st := s.State()
	assert.Equal(t, "ETH/USDT", st.Label)
	assert.Empty(t, st.TradeParams)
	assert.False(t, st.Switching)
}

func TestStoreBookFormatsRows(t *testing.T) {
	s := NewStore()
	s.PairChanged(models.PairSnapshot{Pair: btc})
	s.OrderBook(btc, sampleView(), models.Ticker{Last: 100.5}, 2)

	book, ok := s.Book()
	require.True(t, ok)
	require.Len(t, book.Asks, 2)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, "101.00", book.Asks[0].Price)
	assert.Equal(t, "100.00", book.Asks[1].Price)
	assert.Equal(t, "99.00", book.Bids[0].Price)
	assert.Equal(t, "99.50", book.Mid)
	assert.Equal(t, "1.00", book.Spread)

	st := s.State()
	assert.Equal(t, 2, st.PricePrecision)
	assert.Equal(t, "100.50", st.LastPrice)
}

func TestStoreSwitchingIgnoresOtherPair(t *testing.T) {
	s := NewStore()
	s.PairChanged(models.PairSnapshot{Pair: btc})
	s.SwitchingChanged(eth, true)

	assert.False(t, s.State().Switching)
}
