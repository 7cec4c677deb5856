package metrics

import (
	"sync"
	"time"

	"tradedash/logger"
)

// Event is a structured metric sample, delivered to in-process listeners such
// as the dashboard in addition to the Prometheus collectors.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	Component string        `json:"component"`
	Name      string        `json:"name"`
	Value     interface{}   `json:"value"`
	Fields    logger.Fields `json:"fields,omitempty"`
}

type Listener func(Event)

type ListenerID uint64

var (
	listenersMu    sync.RWMutex
	listeners      = make(map[ListenerID]Listener)
	nextListenerID ListenerID
)

// Subscribe registers l for every emitted event. Zero is returned for a nil listener.
func Subscribe(l Listener) ListenerID {
	if l == nil {
		return 0
	}
	listenersMu.Lock()
	defer listenersMu.Unlock()
	nextListenerID++
	listeners[nextListenerID] = l
	return nextListenerID
}

func Unsubscribe(id ListenerID) {
	if id == 0 {
		return
	}
	listenersMu.Lock()
	delete(listeners, id)
	listenersMu.Unlock()
}

// Emit logs the event through LogMetric, which also forwards numeric values to
// CloudWatch when it is enabled, and hands it to every listener.
func Emit(component, name string, value interface{}, fields logger.Fields) {
	if name == "" {
		return
	}
	copied := make(logger.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}

	logFields := make(logger.Fields, len(copied)+3)
	for k, v := range copied {
		logFields[k] = v
	}
	logger.GetLogger().WithComponent(component).LogMetric(component, name, value, "gauge", logFields)

	ev := Event{Timestamp: time.Now(), Component: component, Name: name, Value: value, Fields: copied}

	listenersMu.RLock()
	targets := make([]Listener, 0, len(listeners))
	for _, l := range listeners {
		targets = append(targets, l)
	}
	listenersMu.RUnlock()

	for _, l := range targets {
		l(ev)
	}
}
