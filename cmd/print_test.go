package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedash/internal/breakeven"
	"tradedash/models"
)

func TestPrintBook(t *testing.T) {
	var buf bytes.Buffer
	data := models.PairData{
		OrderBook: models.RawOrderBook{
			Asks: []models.RawLevel{{"101", "1"}, {"100", "2"}, {"bad", "1"}},
			Bids: []models.RawLevel{{"99", "3"}},
		},
		Ticker: models.Ticker{Last: 100},
	}

	require.NoError(t, printBook(&buf, models.Pair{Base: "BTC", Quote: "USDT"}, data))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "BTC/USDT  last=100.00  spread=1.00"), lines[0])
	assert.Contains(t, lines[0], "dropped=1")
	// header, two asks, mid, one bid
	require.Len(t, lines, 6)
	assert.Contains(t, lines[2], "101.00")
	assert.Contains(t, lines[3], "100.00")
	assert.Contains(t, lines[4], "99.50")
	assert.Contains(t, lines[5], "99.00")
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	level := 3.0
	start := 0.5
	res := breakeven.Result{
		Table: models.BreakEvenTable{
			{Step: 1, OrderbookLevel: &level, BreakevenPrice: 0.48},
			{Step: 2, BreakevenPrice: 0.46},
		},
		Provenance: breakeven.ProvenanceCached,
		Outcome:    breakeven.OutcomeReturnCached,
		StartPrice: &start,
	}

	require.NoError(t, printTable(&buf, models.Pair{Base: "ADA", Quote: "USDT"}, res))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ADA/USDT  source=cached  outcome=RETURN_CACHED  start_price=0.5", lines[0])
	assert.Contains(t, lines[2], "0.48")
	assert.Contains(t, lines[3], "-")
}

func TestPrintEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	res := breakeven.Result{Table: models.BreakEvenTable{}, Provenance: breakeven.ProvenanceEmpty, Outcome: breakeven.OutcomeReturnEmpty}

	require.NoError(t, printTable(&buf, models.Pair{Base: "ADA", Quote: "USDT"}, res))
	assert.Contains(t, buf.String(), "no break-even table")
}
