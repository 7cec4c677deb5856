package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestWithPair(t *testing.T) {
	entry := Logger().WithComponent("coordinator").WithPair("BTC", "USDT")
	if entry.Entry.Data["base"] != "BTC" || entry.Entry.Data["quote"] != "USDT" {
		t.Fatalf("pair fields missing: %v", entry.Entry.Data)
	}
	if entry.Entry.Data["component"] != "coordinator" {
		t.Fatalf("component lost after WithPair: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestJSONOutputUsesRenamedKeys(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.WithComponent("test").Info("hello")

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if decoded["message"] != "hello" || decoded["component"] != "test" {
		t.Fatalf("unexpected fields: %v", decoded)
	}
	if _, ok := decoded["timestamp"]; !ok {
		t.Fatalf("timestamp key missing: %v", decoded)
	}
}

func TestWarnIsCountedPerComponent(t *testing.T) {
	log := Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	before := componentCounters("counted").warns
	log.WithComponent("counted").Warn("careful")
	if got := componentCounters("counted").warns; got != before+1 {
		t.Fatalf("warns = %d, want %d", got, before+1)
	}
}
