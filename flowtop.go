package rush

//
// FlowTop: an approximate per-flow packet/byte counter table, snapshotted
// to a fixed-layout binary file on request.
//

import (
	"encoding/binary"
	"hash/fnv"
	"io"

	"github.com/google/gopacket/layers"
)

// flowTopSlots is the number of buckets in the flow table. It is fixed
// (not grown) so the snapshot file always has the same, predictable size:
// flowTopSlots * flowTopRecordSize bytes.
const flowTopSlots = 2048

// flowTopRecordSize is the on-disk size of one slot: packets (u64) + bits
// (u64) + id (u64), all little-endian.
const flowTopRecordSize = 24

// flowTopSlot is one bucket of the table. A zero Id means the slot is
// empty. Because the table never grows past flowTopSlots and uses no
// chaining, two flows whose Id hashes to the same bucket evict one
// another — this is an approximate top-talkers sketch, not an exact
// per-flow counter.
type flowTopSlot struct {
	id      uint64
	packets uint64
	bits    uint64
}

// FlowTopConfig configures the FlowTop app.
type FlowTopConfig struct {
	// Ingress selects whether the flow identity is keyed off the packet's
	// source (true) or destination (false) address/port, matching Split's
	// own Ingress convention.
	Ingress bool
}

// FlowTop forwards every packet from its single input to its single output
// unmodified, while attributing its length to an approximate per-flow
// counter keyed by (port, protocol, IPv4 address). Call Snapshot to write
// the current table out for an external reader.
type FlowTop struct {
	name   string
	pool   *Pool
	config FlowTopConfig
	slots  [flowTopSlots]flowTopSlot
}

var (
	_ App    = (*FlowTop)(nil)
	_ Pusher = (*FlowTop)(nil)
)

// NewFlowTop constructs a FlowTop app factory for use in an [AppSpec].
func NewFlowTop(name string, cfg FlowTopConfig) func(pool *Pool, logger Logger) App {
	return func(pool *Pool, logger Logger) App {
		return &FlowTop{name: name, pool: pool, config: cfg}
	}
}

func (a *FlowTop) Name() string { return a.name }

func (a *FlowTop) ConfigEqual(other App) bool {
	o, ok := other.(*FlowTop)
	return ok && o.config == a.config
}

func (a *FlowTop) Close() error { return nil }

// flowID packs a flow's identity into 64 bits: port in the top 16 bits,
// protocol in the next 16, and the IPv4 address's 32 bits below that,
// matching the snapshot format external readers decode against.
func flowID(ip4 uint32, protocol layers.IPProtocol, port uint16) uint64 {
	return uint64(port)<<48 | uint64(protocol)<<32 | uint64(ip4)
}

func ipv4ToUint32(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// flowSlot mixes id through FNV-1a and folds it into [0, flowTopSlots), so
// that port and protocol — packed into id's high bits — actually influence
// bucket placement instead of only the IPv4 address's low bits.
func flowSlot(id uint64) int {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], id)
	h.Write(buf[:])
	return int(h.Sum64() % flowTopSlots)
}

func (a *FlowTop) record(dp *DissectedPacket, bits int) {
	var ip []byte
	var port uint16
	if a.config.Ingress {
		ip, port = dp.SourceIP().To4(), dp.SourcePort()
	} else {
		ip, port = dp.DestinationIP().To4(), dp.DestinationPort()
	}
	if ip == nil {
		return
	}
	id := flowID(ipv4ToUint32(ip), dp.Protocol(), port)
	slot := &a.slots[flowSlot(id)]
	if slot.id != id {
		*slot = flowTopSlot{id: id}
	}
	slot.packets++
	slot.bits += uint64(bits)
}

func (a *FlowTop) Push(eng *Engine) {
	ports := eng.Ports(a.name)
	in := ports.Input("input")
	out := ports.Output("output")

	for {
		p, ok := in.Receive()
		if !ok {
			return
		}
		if dp, err := Dissect(p.Data()); err == nil {
			a.record(dp, p.Length()*8)
		}
		if !out.Transmit(p) {
			a.pool.Free(p)
		}
	}
}

// Snapshot writes every slot, in bucket order, as flowTopRecordSize bytes
// each (packets, bits, id), to w.
func (a *FlowTop) Snapshot(w io.Writer) error {
	var rec [flowTopRecordSize]byte
	for i := range a.slots {
		s := &a.slots[i]
		binary.LittleEndian.PutUint64(rec[0:8], s.packets)
		binary.LittleEndian.PutUint64(rec[8:16], s.bits)
		binary.LittleEndian.PutUint64(rec[16:24], s.id)
		if _, err := w.Write(rec[:]); err != nil {
			return err
		}
	}
	return nil
}
