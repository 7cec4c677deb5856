package metrics

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedash/logger"
)

func TestHandlerExposesCounters(t *testing.T) {
	Init()
	IncrementSwitch("base")
	IncrementCoalesced("base")
	ObserveTask("balances", true, 20*time.Millisecond)
	IncrementStaleDrop("stream")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, name := range []string{
		"tradedash_switch_total",
		"tradedash_switch_coalesced_total",
		`tradedash_fanout_task_total{result="error",task="balances"}`,
		"tradedash_fanout_task_duration_seconds",
		"tradedash_stale_drops_total",
	} {
		assert.True(t, strings.Contains(body, name), "missing %s", name)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	got := make(chan Event, 1)
	id := Subscribe(func(e Event) { got <- e })
	require.NotZero(t, id)
	t.Cleanup(func() { Unsubscribe(id) })

	fields := logger.Fields{"task": "market_data"}
	Emit("coordinator", "fanout_task", 1, fields)
	fields["task"] = "mutated"

	select {
	case e := <-got:
		assert.Equal(t, "coordinator", e.Component)
		assert.Equal(t, "fanout_task", e.Name)
		assert.Equal(t, "market_data", e.Fields["task"])
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSubscribeNilAndUnsubscribe(t *testing.T) {
	assert.Zero(t, Subscribe(nil))

	calls := 0
	id := Subscribe(func(Event) { calls++ })
	Unsubscribe(id)
	Emit("x", "y", 1, nil)
	assert.Zero(t, calls)
}

func TestEmitLogsThroughLogMetric(t *testing.T) {
	log := logger.GetLogger()
	prevOut, prevLevel := log.Out, log.GetLevel()
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetLevel(prevLevel)
	})
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetLevel(logrus.DebugLevel)

	fields := logger.Fields{"task": "balances", "result": "ok"}
	Emit("coordinator", "fanout_task", int64(12), fields)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line), buf.String())
	assert.Equal(t, "metric", line["message"])
	assert.Equal(t, "coordinator", line["component"])
	assert.Equal(t, "fanout_task", line["metric"])
	assert.Equal(t, "gauge", line["metric_type"])
	assert.Equal(t, 12.0, line["value"])
	assert.Equal(t, "balances", line["task"])
	assert.NotContains(t, fields, "metric", "caller fields must not be modified")
}
