package telemetry

import (
	"bytes"
	"log"
	"testing"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		base := log.New(&buf, "", 0)
		logger := WrapLogger(base)
		logger.Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})
}

func TestCounters(t *testing.T) {
	counters := NewCounters()

	counters.Add("frames_received_total", 2)
	counters.Store("frames_received_total", 5)
	counters.Add("frames_received_total", 3)
	counters.Store("playback_lag", 4)

	snapshot := counters.Snapshot()
	if got := snapshot["frames_received_total"]; got != 8 {
		t.Fatalf("unexpected metric value: %d", got)
	}
	if got := counters.Get("playback_lag"); got != 4 {
		t.Fatalf("unexpected gauge value: %d", got)
	}
	keys := counters.Keys()
	if len(keys) != 2 || keys[0] != "frames_received_total" || keys[1] != "playback_lag" {
		t.Fatalf("unexpected keys: %v", keys)
	}

	var nilCounters *Counters
	nilCounters.Add("ignored", 1)
	nilCounters.Store("ignored", 1)
	if nilCounters.Snapshot() != nil {
		t.Fatalf("expected nil snapshot from nil counters")
	}
}
