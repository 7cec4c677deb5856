package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type componentStat struct {
	warns  int64
	errors int64
}

var (
	refreshes      int64
	refreshFailed  int64
	streamMessages int64
	components     sync.Map // map[string]*componentStat
)

func componentCounters(component string) *componentStat {
	v, _ := components.LoadOrStore(component, &componentStat{})
	return v.(*componentStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&componentCounters(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&componentCounters(component).errors, 1)
}

// IncrementRefresh counts one refresh fan-out, settled or abandoned on
// timeout; failed marks it as having at least one errored task.
func IncrementRefresh(failed bool) {
	atomic.AddInt64(&refreshes, 1)
	if failed {
		atomic.AddInt64(&refreshFailed, 1)
	}
}

// IncrementStreamMessage counts one message accepted from the live feed.
func IncrementStreamMessage() {
	atomic.AddInt64(&streamMessages, 1)
}

// StartReport logs a runtime report every interval until ctx is done.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	memMB := 0.0
	if memStats != nil {
		memMB = float64(memStats.Used) / 1024 / 1024
	}

	perComponent := map[string]map[string]int64{}
	components.Range(func(k, v any) bool {
		cs := v.(*componentStat)
		perComponent[k.(string)] = map[string]int64{
			"warns":  atomic.LoadInt64(&cs.warns),
			"errors": atomic.LoadInt64(&cs.errors),
		}
		return true
	})

	total := atomic.LoadInt64(&refreshes)
	failed := atomic.LoadInt64(&refreshFailed)
	msgs := atomic.LoadInt64(&streamMessages)

	log.WithComponent("report").WithFields(Fields{
		"refresh_tasks":   total,
		"refresh_failed":  failed,
		"stream_messages": msgs,
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       int64(memMB),
		"components":      perComponent,
	}).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(memMB)},
		{MetricName: aws.String("RefreshTasks"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(total))},
		{MetricName: aws.String("RefreshFailed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(failed))},
		{MetricName: aws.String("StreamMessages"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(msgs))},
	}
	for name, stats := range perComponent {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("ComponentErrors"),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Component"), Value: aws.String(name)}},
			Value:      aws.Float64(float64(stats["errors"])),
		})
	}

	publishMetrics(ctx, data)
}
