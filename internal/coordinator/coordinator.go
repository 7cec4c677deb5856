// Package coordinator serialises pair switches and runs the refresh fan-out
// for whichever pair is active.
//
// At most one fan-out runs at a time. Requests arriving while one is in
// flight park in a single pending slot, newest wins, and only that target is
// started once the in-flight fan-out settles.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"tradedash/config"
	"tradedash/internal/backend"
	"tradedash/internal/breakeven"
	"tradedash/internal/market"
	"tradedash/internal/metrics"
	"tradedash/internal/pairstate"
	"tradedash/logger"
	"tradedash/models"
)

const defaultSwitchTimeout = 30 * time.Second

// Backend is every backend operation the coordinator drives.
type Backend interface {
	breakeven.Source
	GetCurrencies(ctx context.Context) ([]models.Currency, error)
	GetPairData(ctx context.Context, base, quote string, force bool) (models.PairData, error)
	GetPairInfo(ctx context.Context, base, quote string, force bool) (models.PairInfo, error)
	GetBalances(ctx context.Context, quote string) ([]models.Balance, error)
	GetTradeParams(ctx context.Context, base string) (models.TradeParams, error)
	SaveTradeParams(ctx context.Context, params models.TradeParams) (models.TradeParams, error)
	GetSessionProfit(ctx context.Context, base, quote string) (models.SessionProfit, error)
	SubscribePair(ctx context.Context, base, quote string) error
	SavePartialUIState(ctx context.Context, updates map[string]interface{}) error
}

var (
	ErrNoPair         = errors.New("no currency selected")
	errEmptyBreakEven = errors.New("break-even table unavailable")
)

type kind string

const (
	kindBase    kind = "base"
	kindQuote   kind = "quote"
	kindRefresh kind = "refresh"
)

type target struct {
	pair     models.Pair
	override bool
	kind     kind
}

// Coordinator owns the switch state machine. It is safe for concurrent use.
type Coordinator struct {
	cfg        config.CoordinatorConfig
	backend    Backend
	state      *pairstate.State
	presenter  Presenter
	reconciler *breakeven.Reconciler
	log        *logger.Log

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards the switch slots. It is never held across network calls.
	mu       sync.Mutex
	inFlight *target
	pending  *target
	running  bool
	idle     *sync.Cond

	formMu   sync.Mutex
	form     models.TradeForm
	formBase string
}

func New(cfg config.CoordinatorConfig, b Backend, state *pairstate.State, presenter Presenter) *Coordinator {
	if cfg.SwitchTimeout <= 0 {
		cfg.SwitchTimeout = defaultSwitchTimeout
	}
	if presenter == nil {
		presenter = NopPresenter{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:        cfg,
		backend:    b,
		state:      state,
		presenter:  presenter,
		reconciler: breakeven.NewReconciler(b),
		log:        logger.GetLogger(),
		ctx:        ctx,
		cancel:     cancel,
		form:       models.TradeForm{},
	}
	c.idle = sync.NewCond(&c.mu)
	return c
}

// Start runs the periodic refresh until ctx is done or Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already running")
	}
	c.running = true
	c.mu.Unlock()

	log := c.log.WithComponent("coordinator").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"switch_timeout":   c.cfg.SwitchTimeout,
		"refresh_interval": c.cfg.RefreshInterval,
	}).Info("starting coordinator")

	go func() {
		select {
		case <-ctx.Done():
			c.cancel()
		case <-c.ctx.Done():
		}
	}()

	if c.cfg.RefreshInterval > 0 {
		c.wg.Add(1)
		go c.refreshLoop(c.cfg.RefreshInterval)
	}
	return nil
}

// Stop cancels outstanding work and waits for every goroutine to return.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
	c.log.WithComponent("coordinator").Info("coordinator stopped")
}

func (c *Coordinator) refreshLoop(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Refresh()
		}
	}
}

// Snapshot returns the active pair state.
func (c *Coordinator) Snapshot() models.PairSnapshot {
	return c.state.Snapshot()
}

// RequestSwitch asks for base to become active with the current quote. It
// returns immediately.
func (c *Coordinator) RequestSwitch(base string) {
	c.request(models.CanonicalCode(base), "", kindBase, true)
}

// RequestQuoteSwitch asks for quote to become active with the current base.
// Quote switches share the base-switch lock and pending slot.
func (c *Coordinator) RequestQuoteSwitch(quote string) {
	c.request("", models.CanonicalCode(quote), kindQuote, false)
}

// Refresh re-runs the fan-out for the active pair. It is skipped when a
// switch is in flight, since that fan-out is already fetching fresh data.
func (c *Coordinator) Refresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.state.Pair()
	if c.inFlight != nil || current.Base == "" || c.ctx.Err() != nil {
		return false
	}
	c.start(target{pair: current, kind: kindRefresh})
	return true
}

func (c *Coordinator) request(base, quote string, k kind, override bool) {
	if base == "" && quote == "" {
		return
	}
	log := c.log.WithComponent("coordinator")

	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.state.Pair()
	intent := current
	if c.pending != nil {
		intent = c.pending.pair
		override = override || c.pending.override
	}
	if base != "" {
		intent.Base = base
	}
	if quote != "" {
		intent.Quote = quote
	}
	t := target{pair: intent, override: override, kind: k}

	if t.pair == current {
		if c.pending != nil {
			log.WithFields(logger.Fields{
				"discarded": c.pending.pair.String(),
				"current":   current.String(),
			}).Debug("switch back to current pair, dropping pending target")
			c.pending = nil
			c.idle.Broadcast()
		}
		return
	}

	if t.pair.Base == "" {
		// nothing to load until a base is chosen
		c.state.Set(t.pair, false)
		c.presenter.PairChanged(c.state.Snapshot())
		return
	}

	if c.inFlight != nil {
		if c.pending != nil {
			log.WithFields(logger.Fields{
				"replaced": c.pending.pair.String(),
				"pending":  t.pair.String(),
			}).Debug("pending switch replaced")
		}
		c.pending = &t
		metrics.IncrementCoalesced(string(k))
		return
	}

	c.start(t)
}

// start applies t and launches its fan-out. Callers hold c.mu.
func (c *Coordinator) start(t target) {
	c.state.Set(t.pair, t.override)
	snap := c.state.Snapshot()
	c.inFlight = &t
	metrics.IncrementSwitch(string(t.kind))

	if t.kind != kindRefresh {
		c.presenter.PairChanged(snap)
	}
	c.presenter.SwitchingChanged(snap.Pair, true)

	c.log.WithComponent("coordinator").WithPair(snap.Base, snap.Quote).WithFields(logger.Fields{
		"kind":          t.kind,
		"user_override": snap.UserOverride,
	}).Info("pair switch started")

	if t.kind != kindRefresh {
		c.wg.Add(1)
		go c.subscribe(snap.Pair)
	}

	c.wg.Add(1)
	go c.run(t, snap)
}

func (c *Coordinator) run(t target, snap models.PairSnapshot) {
	defer c.wg.Done()
	log := c.log.WithComponent("coordinator").WithPair(snap.Base, snap.Quote)

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.SwitchTimeout)
	defer cancel()

	done := make(chan []TaskResult, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		done <- runTasks(ctx, snap, c.tasks(snap))
	}()

	start := time.Now()
	select {
	case results := <-done:
		c.report(log, results, time.Since(start))
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Debug("coordinator stopping, abandoning refresh fan-out")
			break
		}
		log.WithFields(logger.Fields{
			"timeout": c.cfg.SwitchTimeout,
			"reason":  ctx.Err(),
		}).Warn("refresh fan-out did not settle, releasing switch lock")
		logger.IncrementRefresh(true)
	}

	c.finish(t)
}

// finish releases the in-flight slot and starts the pending target, if any,
// on a fresh goroutine.
func (c *Coordinator) finish(t target) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inFlight = nil
	c.presenter.SwitchingChanged(t.pair, false)

	next := c.pending
	c.pending = nil
	if next != nil && next.pair != c.state.Pair() && c.ctx.Err() == nil {
		c.start(*next)
		return
	}
	c.idle.Broadcast()
}

func (c *Coordinator) report(log *logger.Entry, results []TaskResult, elapsed time.Duration) {
	nFailed := failed(results)
	for _, r := range results {
		fields := logger.Fields{"task": r.Name, "duration_ms": r.Duration.Milliseconds()}
		if r.Err == nil {
			metrics.Emit("coordinator", "fanout_task", r.Duration.Milliseconds(), logger.Fields{"task": r.Name, "result": "ok"})
			continue
		}
		metrics.Emit("coordinator", "fanout_task", r.Duration.Milliseconds(), logger.Fields{"task": r.Name, "result": "error"})
		fields["semantic"] = backend.IsAPIError(r.Err)
		log.WithFields(fields).WithError(r.Err).Warn("refresh task failed")
	}
	logger.IncrementRefresh(nFailed > 0)
	logger.LogPerformanceEntry(log, "coordinator", "fanout", elapsed, logger.Fields{
		"tasks":  len(results),
		"failed": nFailed,
	})
}

// subscribe tells the backend about the new pair and persists it. Failures
// are logged only.
func (c *Coordinator) subscribe(p models.Pair) {
	defer c.wg.Done()
	log := c.log.WithComponent("coordinator").WithPair(p.Base, p.Quote)

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.SwitchTimeout)
	defer cancel()

	if err := c.backend.SubscribePair(ctx, p.Base, p.Quote); err != nil {
		log.WithError(err).Warn("pair subscription failed")
	}
	if err := c.backend.SavePartialUIState(ctx, map[string]interface{}{
		"currency":       p.Base,
		"quote_currency": p.Quote,
	}); err != nil {
		log.WithError(err).Warn("ui state persistence failed")
	}
}

// Wait blocks until no switch is in flight or pending and all background
// goroutines have returned.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	for c.inFlight != nil || c.pending != nil {
		c.idle.Wait()
	}
	c.mu.Unlock()
	c.waitBackground()
}

func (c *Coordinator) waitBackground() {
	c.mu.Lock()
	looping := c.running && c.cfg.RefreshInterval > 0 && c.ctx.Err() == nil
	c.mu.Unlock()
	if looping {
		// the refresh loop holds the group open until Stop
		return
	}
	c.wg.Wait()
}

// Idle reports whether no switch is in flight or pending.
func (c *Coordinator) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight == nil && c.pending == nil
}

// Bootstrap loads the currency list, adopts a base when none was chosen by
// the user and runs the first refresh through the switch state machine.
func (c *Coordinator) Bootstrap(ctx context.Context) error {
	log := c.log.WithComponent("coordinator").WithFields(logger.Fields{"operation": "bootstrap"})

	list, err := c.backend.GetCurrencies(ctx)
	if err != nil {
		log.WithError(err).Warn("currency list unavailable")
		return fmt.Errorf("load currencies: %w", err)
	}
	c.presenter.Currencies(list)

	codes := make([]string, 0, len(list))
	for _, cur := range list {
		codes = append(codes, cur.Code)
	}
	base, changed := c.state.PickFromCurrencies(codes)
	log.WithFields(logger.Fields{"currencies": len(codes), "base": base, "changed": changed}).Info("currencies loaded")

	if changed {
		c.request(base, "", kindBase, false)
		return nil
	}
	c.Refresh()
	return nil
}

// SaveTradeParams persists params for the active base and, on success,
// reloads the break-even table. Failures are returned because the save was
// asked for by the user.
func (c *Coordinator) SaveTradeParams(ctx context.Context, params models.TradeParams) (models.TradeParams, error) {
	pair := c.state.Pair()
	if pair.Base == "" {
		return models.TradeParams{}, ErrNoPair
	}
	if params.Currency == "" {
		params.Currency = pair.Base
	}
	params.Currency = models.CanonicalCode(params.Currency)

	log := c.log.WithComponent("coordinator").WithPair(pair.Base, pair.Quote).WithFields(logger.Fields{"operation": "save_trade_params"})

	saved, err := c.backend.SaveTradeParams(ctx, params)
	if err != nil {
		log.WithError(err).Warn("saving trade params failed")
		return models.TradeParams{}, err
	}
	log.Info("trade params saved")

	if saved.Currency == "" {
		saved.Currency = params.Currency
	}
	if saved.Currency != pair.Base || !c.state.Is(pair) {
		return saved, nil
	}

	form := models.FormFromParams(saved)
	if c.setForm(pair, form) {
		c.presenter.TradeParams(pair, form)
	}
	c.resolveBreakEven(ctx, pair)
	return saved, nil
}

// UpdateForm merges user edits into the active pair's parameter form.
func (c *Coordinator) UpdateForm(updates map[string]string) models.TradeForm {
	pair := c.state.Pair()
	c.formMu.Lock()
	if c.formBase != pair.Base {
		c.form = models.TradeForm{}
		c.formBase = pair.Base
	}
	for k, v := range updates {
		c.form[k] = v
	}
	out := c.form.Clone()
	c.formMu.Unlock()
	return out
}

// PreviewBreakEven resolves the table for the active pair from the current form.
func (c *Coordinator) PreviewBreakEven(ctx context.Context) (breakeven.Result, error) {
	pair := c.state.Pair()
	if pair.Base == "" {
		return breakeven.Result{}, ErrNoPair
	}
	return c.resolveBreakEven(ctx, pair), nil
}

// Form returns the parameter form held for the active pair.
func (c *Coordinator) Form() models.TradeForm {
	return c.formFor(c.state.Pair())
}

func (c *Coordinator) formFor(pair models.Pair) models.TradeForm {
	c.formMu.Lock()
	defer c.formMu.Unlock()
	if c.formBase != pair.Base {
		return models.TradeForm{}
	}
	return c.form.Clone()
}

// setForm replaces the form when pair is still active.
func (c *Coordinator) setForm(pair models.Pair, form models.TradeForm) bool {
	if !c.state.Is(pair) {
		return false
	}
	c.formMu.Lock()
	c.form = form.Clone()
	c.formBase = pair.Base
	c.formMu.Unlock()
	return true
}

// setFormField writes one field when pair is still active and returns the new form.
func (c *Coordinator) setFormField(pair models.Pair, field, value string) (models.TradeForm, bool) {
	if !c.state.Is(pair) {
		return nil, false
	}
	c.formMu.Lock()
	defer c.formMu.Unlock()
	if c.formBase != pair.Base {
		c.form = models.TradeForm{}
		c.formBase = pair.Base
	}
	c.form[field] = value
	return c.form.Clone(), true
}

func (c *Coordinator) resolveBreakEven(ctx context.Context, pair models.Pair) breakeven.Result {
	res := c.reconciler.Resolve(ctx, pair, c.formFor(pair))
	if !c.state.Is(pair) {
		metrics.IncrementStaleDrop("breakeven")
		return res
	}
	if res.StartPrice != nil {
		if form, ok := c.setFormField(pair, models.FieldStartPrice, strconv.FormatFloat(*res.StartPrice, 'f', -1, 64)); ok {
			c.presenter.TradeParams(pair, form)
		}
	}
	c.presenter.BreakEven(pair, res)
	return res
}

// tasks builds the fan-out for one snapshot. Each closure reads only snap.
func (c *Coordinator) tasks(snap models.PairSnapshot) []task {
	pair := snap.Pair
	paramsDone := make(chan struct{})

	// drop reports whether data for pair arrived after the pair changed.
	drop := func(source string) bool {
		if c.state.Is(pair) {
			return false
		}
		metrics.IncrementStaleDrop(source)
		c.log.WithComponent("coordinator").WithPair(pair.Base, pair.Quote).WithFields(logger.Fields{"task": source}).Debug("dropping stale result")
		return true
	}

	tasks := []task{
		{name: TaskMarketData, run: func(ctx context.Context, _ models.PairSnapshot) error {
			data, err := c.backend.GetPairData(ctx, pair.Base, pair.Quote, false)
			if err != nil {
				return err
			}
			view := market.Normalize(data.OrderBook)
			if view.Dropped > 0 {
				c.log.WithComponent("coordinator").WithPair(pair.Base, pair.Quote).WithFields(logger.Fields{"dropped": view.Dropped}).Debug("order book rows dropped")
			}
			precision := market.PricePrecision(data.Ticker.Last)
			if !c.state.SetPrecisionFor(pair, precision) {
				drop(TaskMarketData)
				return nil
			}
			c.presenter.OrderBook(pair, view, data.Ticker, precision)
			return nil
		}},
		{name: TaskBalances, run: func(ctx context.Context, _ models.PairSnapshot) error {
			balances, err := c.backend.GetBalances(ctx, pair.Quote)
			if err != nil {
				return err
			}
			if !drop(TaskBalances) {
				c.presenter.Balances(pair, balances)
			}
			return nil
		}},
		{name: TaskPairInfo, run: func(ctx context.Context, _ models.PairSnapshot) error {
			info, err := c.backend.GetPairInfo(ctx, pair.Base, pair.Quote, false)
			if err != nil {
				return err
			}
			if !drop(TaskPairInfo) {
				c.presenter.PairInfo(pair, info)
			}
			return nil
		}},
		{name: TaskTradeParams, run: func(ctx context.Context, _ models.PairSnapshot) error {
			defer close(paramsDone)
			params, err := c.backend.GetTradeParams(ctx, pair.Base)
			if err != nil {
				return err
			}
			form := models.FormFromParams(params)
			if c.setForm(pair, form) {
				c.presenter.TradeParams(pair, form)
			} else {
				drop(TaskTradeParams)
			}
			return nil
		}},
		{name: TaskBreakEven, run: func(ctx context.Context, _ models.PairSnapshot) error {
			// the recompute request reads the freshly loaded form
			select {
			case <-paramsDone:
			case <-ctx.Done():
				return ctx.Err()
			}
			if drop(TaskBreakEven) {
				return nil
			}
			if res := c.resolveBreakEven(ctx, pair); res.Outcome == breakeven.OutcomeReturnEmpty {
				return errEmptyBreakEven
			}
			return nil
		}},
	}

	if c.cfg.SessionProfit {
		tasks = append(tasks, task{name: TaskSessionProfit, run: func(ctx context.Context, _ models.PairSnapshot) error {
			profit, err := c.backend.GetSessionProfit(ctx, pair.Base, pair.Quote)
			if err != nil {
				return err
			}
			if !drop(TaskSessionProfit) {
				c.presenter.SessionProfit(pair, profit)
			}
			return nil
		}})
	}
	return tasks
}
