// Registers:
//
//	#tradedash_switch_total{kind}
//	#tradedash_switch_coalesced_total{kind}
//	#tradedash_fanout_task_total{task,result}
//	#tradedash_fanout_task_duration_seconds{task}
//	#tradedash_stale_drops_total{source}
//	#go_* and process_* system metrics
//
// The registry is private; Handler exposes it for the dashboard /metrics route.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *prometheus.Registry

	switchTotal     *prometheus.CounterVec
	switchCoalesced *prometheus.CounterVec
	taskTotal       *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	staleDrops      *prometheus.CounterVec
)

func Init() {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		switchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedash_switch_total",
				Help: "Pair switches that started a refresh fan-out",
			},
			[]string{"kind"},
		)

		switchCoalesced = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedash_switch_coalesced_total",
				Help: "Switch requests parked in or replaced from the pending slot",
			},
			[]string{"kind"},
		)

		taskTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedash_fanout_task_total",
				Help: "Completed refresh fan-out tasks by outcome",
			},
			[]string{"task", "result"},
		)

		taskDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradedash_fanout_task_duration_seconds",
				Help:    "Duration of refresh fan-out tasks",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"task"},
		)

		staleDrops = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedash_stale_drops_total",
				Help: "Payloads discarded because their pair is no longer active",
			},
			[]string{"source"},
		)

		registry.MustRegister(switchTotal, switchCoalesced, taskTotal, taskDuration, staleDrops)
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// IncrementSwitch counts a switch that started a fan-out. kind is "base",
// "quote" or "refresh".
func IncrementSwitch(kind string) {
	if switchTotal != nil {
		switchTotal.WithLabelValues(kind).Inc()
	}
}

// IncrementCoalesced counts a request that went to the pending slot.
func IncrementCoalesced(kind string) {
	if switchCoalesced != nil {
		switchCoalesced.WithLabelValues(kind).Inc()
	}
}

// ObserveTask records one fan-out task outcome.
func ObserveTask(task string, failed bool, d time.Duration) {
	if taskTotal == nil {
		return
	}
	result := "ok"
	if failed {
		result = "error"
	}
	taskTotal.WithLabelValues(task, result).Inc()
	taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// IncrementStaleDrop counts a payload dropped for belonging to an old pair.
func IncrementStaleDrop(source string) {
	if staleDrops != nil {
		staleDrops.WithLabelValues(source).Inc()
	}
}
