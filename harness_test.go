package rush

//
// Shared test helpers: a minimal two-stub-app engine harness for exercising
// a single Pusher app's Push method through a real Configure/Breathe cycle,
// and packet builders for constructing well-formed IPv4 test traffic.
//

import (
	"math/rand"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// newTestRand returns a *rand.Rand seeded deterministically, for tests
// that need to drive an app's internal rng without depending on wall-clock
// entropy.
func newTestRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

// stubApp is a no-op App used to anchor the ends of a test harness's
// links; it implements neither Puller nor Pusher, so the engine never
// calls it, and tests feed/drain its links directly.
type stubApp struct {
	name string
}

func (s *stubApp) Name() string { return s.name }

func (s *stubApp) ConfigEqual(other App) bool {
	o, ok := other.(*stubApp)
	return ok && o.name == s.name
}

func (s *stubApp) Close() error { return nil }

func newStubSpec(name string) AppSpec {
	return AppSpec{Name: name, New: func(pool *Pool, logger Logger) App { return &stubApp{name: name} }}
}

// pushHarness wires src.output -> name.input and name.output -> sink.input
// around the app under test, so a test can Transmit packets directly onto
// the input link, call Breathe, and Receive whatever came out the other
// side without needing a real packet source or sink app.
type pushHarness struct {
	t    *testing.T
	eng  *Engine
	pool *Pool
	name string
}

func newPushHarness(t *testing.T, name string, newApp func(pool *Pool, logger Logger) App) *pushHarness {
	t.Helper()
	pool := NewPool(256)
	eng := NewEngine(pool, &NullLogger{})
	spec := &GraphSpec{
		Apps: []AppSpec{
			newStubSpec("src"),
			{Name: name, New: newApp},
			newStubSpec("sink"),
		},
		Links: []LinkSpec{
			{SrcApp: "src", SrcPort: "output", DstApp: name, DstPort: "input"},
			{SrcApp: name, SrcPort: "output", DstApp: "sink", DstPort: "input"},
		},
	}
	if err := eng.Configure(spec); err != nil {
		t.Fatalf("configure: %s", err)
	}
	return &pushHarness{t: t, eng: eng, pool: pool, name: name}
}

func (h *pushHarness) inputLink() *Link {
	return h.eng.Link(LinkSpec{SrcApp: "src", SrcPort: "output", DstApp: h.name, DstPort: "input"}.Name())
}

func (h *pushHarness) outputLink() *Link {
	return h.eng.Link(LinkSpec{SrcApp: h.name, SrcPort: "output", DstApp: "sink", DstPort: "input"}.Name())
}

// feed copies data into a fresh packet and transmits it onto the input
// link, returning false if the link was full.
func (h *pushHarness) feed(data []byte) bool {
	p := h.pool.Allocate()
	p.SetData(data)
	return h.inputLink().Transmit(p)
}

// drain receives every packet currently queued on the output link.
func (h *pushHarness) drain() [][]byte {
	var out [][]byte
	for {
		p, ok := h.outputLink().Receive()
		if !ok {
			return out
		}
		buf := make([]byte, p.Length())
		copy(buf, p.Data())
		out = append(out, buf)
		h.pool.Free(p)
	}
}

// breathe runs one full engine breath; the harness's stub apps implement
// neither Puller nor Pusher, so only the app under test's Push ever runs.
func (h *pushHarness) breathe() {
	h.eng.Breathe()
}

// udpPacket builds a well-formed IPv4/UDP packet with the given addresses,
// ports, and payload, suitable for Dissect.
func udpPacket(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(srcIP).To4(),
		DstIP:    net.ParseIP(dstIP).To4(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}
	return serializePacket(t, ip, udp, payload)
}

// tcpPacket builds a well-formed IPv4/TCP packet.
func tcpPacket(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(srcIP).To4(),
		DstIP:    net.ParseIP(dstIP).To4(),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		SYN:     true,
	}
	return serializePacket(t, ip, tcp, payload)
}

func serializePacket(t *testing.T, ip *layers.IPv4, transport gopacket.SerializableLayer, payload []byte) []byte {
	t.Helper()
	if tcp, ok := transport.(*layers.TCP); ok {
		Must0(tcp.SetNetworkLayerForChecksum(ip))
	}
	if udp, ok := transport.(*layers.UDP); ok {
		Must0(udp.SetNetworkLayerForChecksum(ip))
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	Must0(gopacket.SerializeLayers(buf, opts, ip, transport, gopacket.Payload(payload)))
	return buf.Bytes()
}
