package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradedash/internal/metrics"
	"tradedash/models"
)

// Task names, also used as metric labels.
const (
	TaskMarketData    = "market_data"
	TaskBalances      = "balances"
	TaskPairInfo      = "pair_info"
	TaskTradeParams   = "trade_params"
	TaskBreakEven     = "breakeven"
	TaskSessionProfit = "session_profit"
)

// TaskResult is the captured outcome of one fan-out task.
type TaskResult struct {
	Name     string
	Err      error
	Duration time.Duration
}

type task struct {
	name string
	run  func(ctx context.Context, snap models.PairSnapshot) error
}

// runTasks starts every task concurrently against the same snapshot and waits
// for all of them. A failing or panicking task never affects its siblings.
func runTasks(ctx context.Context, snap models.PairSnapshot, tasks []task) []TaskResult {
	results := make([]TaskResult, len(tasks))
	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func(i int, t task) {
			defer wg.Done()
			results[i] = runTask(ctx, snap, t)
		}(i, t)
	}
	wg.Wait()
	return results
}

func runTask(ctx context.Context, snap models.PairSnapshot, t task) (res TaskResult) {
	res.Name = t.name
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("task %s panicked: %v", t.name, r)
		}
		res.Duration = time.Since(start)
		metrics.ObserveTask(t.name, res.Err != nil, res.Duration)
	}()
	res.Err = t.run(ctx, snap)
	return res
}

func failed(results []TaskResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
