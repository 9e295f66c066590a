package rush

import "testing"

func TestLink(t *testing.T) {
	t.Run("Receive on an empty link", func(t *testing.T) {
		l := NewLink("a.output -> b.input")
		if !l.Empty() {
			t.Fatal("expected empty")
		}
		if _, ok := l.Receive(); ok {
			t.Fatal("expected no packet")
		}
	})

	t.Run("Transmit and Receive preserve FIFO order", func(t *testing.T) {
		pool := NewPool(3)
		l := NewLink("a.output -> b.input")

		p1, p2, p3 := pool.Allocate(), pool.Allocate(), pool.Allocate()
		p1.SetData([]byte("1"))
		p2.SetData([]byte("2"))
		p3.SetData([]byte("3"))

		for _, p := range []*Packet{p1, p2, p3} {
			if !l.Transmit(p) {
				t.Fatal("expected successful transmit")
			}
		}
		if l.Full() {
			t.Fatal("link should not be full yet")
		}

		for _, want := range []string{"1", "2", "3"} {
			got, ok := l.Receive()
			if !ok {
				t.Fatal("expected a packet")
			}
			if string(got.Data()) != want {
				t.Fatalf("got %q, want %q", got.Data(), want)
			}
		}
		if !l.Empty() {
			t.Fatal("expected empty after draining")
		}
	})

	t.Run("Transmit drops and counts once full", func(t *testing.T) {
		pool := NewPool(linkCapacity + 1)
		l := NewLink("a.output -> b.input")

		for i := 0; i < linkCapacity; i++ {
			if !l.Transmit(pool.Allocate()) {
				t.Fatalf("transmit %d should have succeeded", i)
			}
		}
		if !l.Full() {
			t.Fatal("expected full")
		}

		overflow := pool.Allocate()
		if l.Transmit(overflow) {
			t.Fatal("expected transmit to fail once full")
		}
		if l.TxDrop != 1 {
			t.Fatalf("expected TxDrop=1, got %d", l.TxDrop)
		}
		pool.Free(overflow)
	})

	t.Run("LossRatio reflects drops", func(t *testing.T) {
		pool := NewPool(2)
		l := NewLink("a.output -> b.input")

		if l.LossRatio() != 0 {
			t.Fatalf("expected 0 loss ratio before any traffic, got %v", l.LossRatio())
		}

		l.Transmit(pool.Allocate())
		p, _ := l.Receive()
		pool.Free(p)
		if l.LossRatio() != 0 {
			t.Fatalf("expected 0 loss ratio, got %v", l.LossRatio())
		}
	})
}
