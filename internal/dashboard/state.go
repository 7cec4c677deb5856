package dashboard

import (
	"sync"
	"time"

	"tradedash/internal/breakeven"
	"tradedash/internal/market"
	"tradedash/internal/metrics"
	"tradedash/logger"
	"tradedash/models"
)

// Store holds the latest data pushed for the active pair. It implements
// coordinator.Presenter and stream.Sink. Anything labelled with a pair other
// than the active one is discarded.
type Store struct {
	mu  sync.RWMutex
	log *logger.Log

	current    models.PairSnapshot
	switching  bool
	currencies []models.Currency

	book       *bookState
	balances   []models.Balance
	pairInfo   *models.PairInfo
	form       models.TradeForm
	breakEven  *breakeven.Result
	profit     *models.SessionProfit
	staleDrops int
}

type bookState struct {
	view      models.OrderBookView
	ticker    models.Ticker
	precision int
	updated   time.Time
}

func NewStore() *Store {
	return &Store{log: logger.GetLogger()}
}

func (s *Store) Currencies(list []models.Currency) {
	s.mu.Lock()
	s.currencies = append([]models.Currency(nil), list...)
	s.mu.Unlock()
}

func (s *Store) PairChanged(snap models.PairSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Pair != s.current.Pair {
		s.book = nil
		s.balances = nil
		s.pairInfo = nil
		s.form = nil
		s.breakEven = nil
		s.profit = nil
		s.switching = false
	}
	s.current = snap
}

func (s *Store) SwitchingChanged(pair models.Pair, switching bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pair == s.current.Pair {
		s.switching = switching
	}
}

// accept reports whether data for pair may be stored. Callers hold s.mu.
func (s *Store) accept(pair models.Pair, kind string) bool {
	if pair == s.current.Pair {
		return true
	}
	s.staleDrops++
	metrics.IncrementStaleDrop("dashboard")
	s.log.WithComponent("dashboard").WithPair(pair.Base, pair.Quote).WithFields(logger.Fields{
		"kind":    kind,
		"current": s.current.Pair.String(),
	}).Debug("dropping data for inactive pair")
	return false
}

func (s *Store) OrderBook(pair models.Pair, view models.OrderBookView, ticker models.Ticker, precision int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accept(pair, "orderbook") {
		return
	}
	s.book = &bookState{view: view, ticker: ticker, precision: precision, updated: time.Now()}
	s.current.PricePrecision = precision
}

func (s *Store) Balances(pair models.Pair, balances []models.Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accept(pair, "balances") {
		s.balances = append([]models.Balance(nil), balances...)
	}
}

func (s *Store) PairInfo(pair models.Pair, info models.PairInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accept(pair, "pair_info") {
		s.pairInfo = &info
	}
}

func (s *Store) TradeParams(pair models.Pair, form models.TradeForm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accept(pair, "trade_params") {
		s.form = form.Clone()
	}
}

func (s *Store) BreakEven(pair models.Pair, result breakeven.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accept(pair, "breakeven") {
		s.breakEven = &result
	}
}

func (s *Store) SessionProfit(pair models.Pair, profit models.SessionProfit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accept(pair, "session_profit") {
		s.profit = &profit
	}
}

// StateView is the /api/state payload.
type StateView struct {
	Base           string                `json:"base"`
	Quote          string                `json:"quote"`
	Label          string                `json:"label"`
	UserOverride   bool                  `json:"user_override"`
	PricePrecision int                   `json:"price_precision"`
	Switching      bool                  `json:"switching"`
	Currencies     []models.Currency     `json:"currencies"`
	Balances       []models.Balance      `json:"balances"`
	PairInfo       *models.PairInfo      `json:"pair_info,omitempty"`
	TradeParams    models.TradeForm      `json:"trade_params,omitempty"`
	SessionProfit  *models.SessionProfit `json:"session_profit,omitempty"`
	LastPrice      string                `json:"last_price,omitempty"`
	StaleDrops     int                   `json:"stale_drops"`
}

func (s *Store) State() StateView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := StateView{
		Base:           s.current.Base,
		Quote:          s.current.Quote,
		Label:          s.current.Label(),
		UserOverride:   s.current.UserOverride,
		PricePrecision: s.current.PricePrecision,
		Switching:      s.switching,
		Currencies:     append([]models.Currency{}, s.currencies...),
		Balances:       append([]models.Balance{}, s.balances...),
		PairInfo:       s.pairInfo,
		SessionProfit:  s.profit,
		StaleDrops:     s.staleDrops,
	}
	if s.form != nil {
		v.TradeParams = s.form.Clone()
	}
	if s.book != nil && s.book.ticker.Last > 0 {
		v.LastPrice = market.FormatPrice(s.book.ticker.Last, s.book.precision)
	}
	return v
}

// BookRow is one order book row formatted for display.
type BookRow struct {
	Price      string  `json:"price"`
	Amount     string  `json:"amount"`
	Notional   string  `json:"notional"`
	Cumulative string  `json:"cumulative"`
	Raw        float64 `json:"raw_price"`
}

// BookView is the /api/orderbook payload.
type BookView struct {
	Pair      models.Pair   `json:"pair"`
	Precision int           `json:"precision"`
	Ticker    models.Ticker `json:"ticker"`
	Asks      []BookRow     `json:"asks"`
	Bids      []BookRow     `json:"bids"`
	Mid       string        `json:"mid,omitempty"`
	Spread    string        `json:"spread,omitempty"`
	SpreadPct float64       `json:"spread_pct,omitempty"`
	Dropped   int           `json:"dropped"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Book returns the formatted order book, false when none has arrived yet.
func (s *Store) Book() (BookView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.book == nil {
		return BookView{}, false
	}
	b := s.book
	out := BookView{
		Pair:      s.current.Pair,
		Precision: b.precision,
		Ticker:    b.ticker,
		Asks:      formatRows(b.view.Asks, b.precision),
		Bids:      formatRows(b.view.Bids, b.precision),
		Dropped:   b.view.Dropped,
		UpdatedAt: b.updated,
	}
	if b.view.Mid != nil {
		out.Mid = market.FormatPrice(*b.view.Mid, b.precision)
	}
	if abs, pct, ok := market.Spread(b.view); ok {
		out.Spread = market.FormatPrice(abs, b.precision)
		out.SpreadPct = pct
	}
	return out, true
}

func formatRows(rows []models.DepthRow, precision int) []BookRow {
	out := make([]BookRow, len(rows))
	for i, r := range rows {
		out[i] = BookRow{
			Price:      market.FormatPrice(r.Price, precision),
			Amount:     market.FormatLegacy(r.Amount),
			Notional:   market.FormatLegacy(r.Notional),
			Cumulative: market.FormatLegacy(r.Cumulative),
			Raw:        r.Price,
		}
	}
	return out
}

// BreakEvenTable returns the last resolved table, false when none has arrived yet.
func (s *Store) BreakEvenTable() (breakeven.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.breakEven == nil {
		return breakeven.Result{}, false
	}
	return *s.breakEven, true
}
