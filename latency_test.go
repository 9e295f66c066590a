package rush

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLatency(t *testing.T) {
	t.Run("ConfigEqual compares the delay", func(t *testing.T) {
		a := &Latency{config: LatencyConfig{Delay: time.Second, QueueDepth: 10}}
		b := &Latency{config: LatencyConfig{Delay: time.Second, QueueDepth: 10}}
		c := &Latency{config: LatencyConfig{Delay: 2 * time.Second, QueueDepth: 10}}
		if !a.ConfigEqual(b) || a.ConfigEqual(c) {
			t.Fatal("ConfigEqual did not compare the delay correctly")
		}
	})

	t.Run("zero delay releases immediately", func(t *testing.T) {
		h := newPushHarness(t, "latency", NewLatency("latency", LatencyConfig{Delay: 0, QueueDepth: 10}))
		h.feed([]byte("now"))
		h.breathe()
		got := h.drain()
		if len(got) != 1 || string(got[0]) != "now" {
			t.Fatalf("unexpected output %v", got)
		}
	})

	t.Run("a positive delay holds packets until it elapses", func(t *testing.T) {
		const delay = 30 * time.Millisecond
		h := newPushHarness(t, "latency", NewLatency("latency", LatencyConfig{Delay: delay, QueueDepth: 10}))
		h.feed([]byte("held"))
		h.breathe()
		if got := h.drain(); len(got) != 0 {
			t.Fatalf("expected the packet to still be queued, got %v", got)
		}

		time.Sleep(delay + 10*time.Millisecond)
		h.breathe()
		got := h.drain()
		if len(got) != 1 || string(got[0]) != "held" {
			t.Fatalf("expected the delayed packet to be released, got %v", got)
		}
	})

	t.Run("packets are released in strict FIFO order", func(t *testing.T) {
		h := newPushHarness(t, "latency", NewLatency("latency", LatencyConfig{Delay: time.Millisecond, QueueDepth: 10}))
		h.feed([]byte("a"))
		h.feed([]byte("b"))
		h.feed([]byte("c"))
		h.breathe()
		time.Sleep(5 * time.Millisecond)
		h.breathe()

		got := h.drain()
		var gotStrings []string
		for _, b := range got {
			gotStrings = append(gotStrings, string(b))
		}
		if diff := cmp.Diff([]string{"a", "b", "c"}, gotStrings); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("tail-drops once the queue is full", func(t *testing.T) {
		h := newPushHarness(t, "latency", NewLatency("latency", LatencyConfig{Delay: time.Hour, QueueDepth: 2}))
		if !h.feed([]byte("1")) || !h.feed([]byte("2")) {
			t.Fatal("expected the first two packets to transmit onto the link")
		}
		h.feed([]byte("3"))
		h.breathe()

		app := h.eng.apps["latency"].(*Latency)
		if len(app.queue) != 2 {
			t.Fatalf("expected the queue to cap at 2, got %d", len(app.queue))
		}
		if app.dropped != 1 {
			t.Fatalf("expected 1 drop, got %d", app.dropped)
		}
	})
}
