package coordinator

import (
	"tradedash/internal/breakeven"
	"tradedash/models"
)

// Presenter receives everything the coordinator produces. Data callbacks carry
// the pair the data was fetched for. PairChanged and SwitchingChanged are
// called while the switch lock is held and must not call back into the
// coordinator.
type Presenter interface {
	Currencies(list []models.Currency)
	PairChanged(snap models.PairSnapshot)
	SwitchingChanged(pair models.Pair, switching bool)
	OrderBook(pair models.Pair, view models.OrderBookView, ticker models.Ticker, precision int)
	Balances(pair models.Pair, balances []models.Balance)
	PairInfo(pair models.Pair, info models.PairInfo)
	TradeParams(pair models.Pair, form models.TradeForm)
	BreakEven(pair models.Pair, result breakeven.Result)
	SessionProfit(pair models.Pair, profit models.SessionProfit)
}

// NopPresenter ignores every callback. Embed it to implement a subset.
type NopPresenter struct{}

func (NopPresenter) Currencies([]models.Currency) {}
func (NopPresenter) PairChanged(models.PairSnapshot) {}
func (NopPresenter) SwitchingChanged(models.Pair, bool) {}
func (NopPresenter) OrderBook(models.Pair, models.OrderBookView, models.Ticker, int) {}
func (NopPresenter) Balances(models.Pair, []models.Balance) {}
func (NopPresenter) PairInfo(models.Pair, models.PairInfo) {}
func (NopPresenter) TradeParams(models.Pair, models.TradeForm) {}
func (NopPresenter) BreakEven(models.Pair, breakeven.Result) {}
func (NopPresenter) SessionProfit(models.Pair, models.SessionProfit) {}

// Presenters forwards each callback to every member in order.
type Presenters []Presenter

func (ps Presenters) Currencies(list []models.Currency) {
	for _, p := range ps {
		p.Currencies(list)
	}
}

func (ps Presenters) PairChanged(snap models.PairSnapshot) {
	for _, p := range ps {
		p.PairChanged(snap)
	}
}

func (ps Presenters) SwitchingChanged(pair models.Pair, switching bool) {
	for _, p := range ps {
		p.SwitchingChanged(pair, switching)
	}
}

func (ps Presenters) OrderBook(pair models.Pair, view models.OrderBookView, ticker models.Ticker, precision int) {
	for _, p := range ps {
		p.OrderBook(pair, view, ticker, precision)
	}
}

func (ps Presenters) Balances(pair models.Pair, balances []models.Balance) {
	for _, p := range ps {
		p.Balances(pair, balances)
	}
}

func (ps Presenters) PairInfo(pair models.Pair, info models.PairInfo) {
	for _, p := range ps {
		p.PairInfo(pair, info)
	}
}

func (ps Presenters) TradeParams(pair models.Pair, form models.TradeForm) {
	for _, p := range ps {
		p.TradeParams(pair, form.Clone())
	}
}

func (ps Presenters) BreakEven(pair models.Pair, result breakeven.Result) {
	for _, p := range ps {
		p.BreakEven(pair, result)
	}
}

func (ps Presenters) SessionProfit(pair models.Pair, profit models.SessionProfit) {
	for _, p := range ps {
		p.SessionProfit(pair, profit)
	}
}
