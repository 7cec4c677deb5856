package dashboard

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"tradedash/internal/metrics"
)

func TestEventStoreLimit(t *testing.T) {
	store := newEventStore(2)
	for i := 0; i < 5; i++ {
		store.handle(metrics.Event{Timestamp: time.Unix(int64(i), 0), Name: "event", Value: i})
	}

	snapshot := store.snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 events in snapshot, got %d", len(snapshot))
	}

	if snapshot[0].Value != 3 || snapshot[1].Value != 4 {
		t.Fatalf("unexpected events retained: %#v", snapshot)
	}
}

func TestRingSnapshotIsCopy(t *testing.T) {
	r := newRing[int](3)
	r.add(1)
	r.add(2)

	snap := r.snapshot()
	snap[0] = 99

	if got := r.snapshot()[0]; got != 1 {
		t.Fatalf("ring was mutated through snapshot, got %d", got)
	}
}

func TestLogStoreCapturesEntries(t *testing.T) {
	store := newLogStore(3)
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Unix(10, 0)
	entry.Level = logrus.WarnLevel
	entry.Message = "warning"
	entry.Data = logrus.Fields{"component": "coordinator", "pair": "BTC/USDT"}

	if err := store.Fire(entry); err != nil {
		t.Fatalf("store.Fire returned error: %v", err)
	}

	snapshot := store.snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(snapshot))
	}

	if snapshot[0].Component != "coordinator" || snapshot[0].Fields["pair"] != "BTC/USDT" {
		t.Fatalf("unexpected snapshot data: %#v", snapshot[0])
	}
	if _, ok := snapshot[0].Fields["component"]; ok {
		t.Fatalf("component should not be repeated in fields")
	}
}

func TestLogStoreRespectsLimitAndClose(t *testing.T) {
	store := newLogStore(2)
	for i := 0; i < 4; i++ {
		entry := logrus.NewEntry(logrus.New())
		entry.Message = "msg"
		entry.Level = logrus.InfoLevel
		entry.Data = logrus.Fields{"index": i}
		if err := store.Fire(entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	snapshot := store.snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 entries after pruning, got %d", len(snapshot))
	}

	store.close()
	entry := logrus.NewEntry(logrus.New())
	entry.Message = "ignored"
	if err := store.Fire(entry); err != nil {
		t.Fatalf("unexpected error after close: %v", err)
	}

	snapshot = store.snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("store accepted entries after close")
	}
}
