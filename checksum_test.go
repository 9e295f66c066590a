package rush

import "testing"

func TestChecksum(t *testing.T) {
	t.Run("ConfigEqual is always true between two Checksum instances", func(t *testing.T) {
		a := &Checksum{}
		b := &Checksum{}
		if !a.ConfigEqual(b) {
			t.Fatal("expected two Checksum instances to always compare equal")
		}
		if a.ConfigEqual(&stubApp{}) {
			t.Fatal("expected a type mismatch to compare unequal")
		}
	})

	t.Run("leaves an already-nonzero checksum untouched", func(t *testing.T) {
		h := newPushHarness(t, "checksum", NewChecksum("checksum"))
		raw := udpPacket(t, "10.0.0.1", "10.0.0.2", 1111, 2222, []byte("hi"))
		h.feed(raw)
		h.breathe()

		got := h.drain()
		if len(got) != 1 {
			t.Fatalf("expected exactly one packet, got %d", len(got))
		}
		if string(got[0]) != string(raw) {
			t.Fatal("expected the packet to pass through byte for byte")
		}
	})

	t.Run("fills in a zeroed IPv4 checksum", func(t *testing.T) {
		h := newPushHarness(t, "checksum", NewChecksum("checksum"))
		raw := udpPacket(t, "10.0.0.1", "10.0.0.2", 1111, 2222, []byte("hi"))
		raw[10], raw[11] = 0, 0
		h.feed(raw)
		h.breathe()

		got := h.drain()
		if len(got) != 1 {
			t.Fatalf("expected exactly one packet, got %d", len(got))
		}
		if got[0][10] == 0 && got[0][11] == 0 {
			t.Fatal("expected the IPv4 checksum to be filled in")
		}
	})

	t.Run("forwards an unsupported packet unmodified", func(t *testing.T) {
		h := newPushHarness(t, "checksum", NewChecksum("checksum"))
		raw := []byte{0x60, 0, 0, 0}
		h.feed(raw)
		h.breathe()

		got := h.drain()
		if len(got) != 1 || string(got[0]) != string(raw) {
			t.Fatalf("expected the unsupported packet to pass through unmodified, got %v", got)
		}
	})
}
