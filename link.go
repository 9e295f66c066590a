package rush

//
// Link: the bounded ring buffer between two apps.
//

// linkCapacity is the number of packet slots per [Link]. It must be a power
// of two so index wraparound is a mask instead of a modulo.
const linkCapacity = 1024

// Link is a bounded single-producer/single-consumer ring buffer of packet
// ownership handles between exactly one producer app's output port and one
// consumer app's input port. It is FIFO: a full link drops at Transmit
// (incrementing TxDrop) rather than blocking, since the engine's single
// thread can never afford to block inside a breath. The zero value is
// invalid; use [NewLink].
type Link struct {
	// Name identifies the link as "src.output -> dst.input", matching the
	// configuration's naming convention.
	Name string

	slots [linkCapacity]*Packet
	read  int
	write int
	count int

	// TxPackets counts packets successfully transmitted onto the link.
	TxPackets uint64

	// RxPackets counts packets successfully received off the link.
	RxPackets uint64

	// TxDrop counts packets dropped because the link was full at Transmit.
	TxDrop uint64
}

// NewLink creates an empty [Link] with the given name.
func NewLink(name string) *Link {
	return &Link{Name: name}
}

// Empty reports whether the link currently holds no packets.
func (l *Link) Empty() bool {
	return l.count == 0
}

// Full reports whether the link has no free slots.
func (l *Link) Full() bool {
	return l.count == linkCapacity
}

// Transmit pushes a packet onto the link's write end. If the link is full,
// the packet is NOT enqueued, TxDrop is incremented, and ok is false; the
// caller retains ownership and is responsible for freeing the packet (the
// link never silently drops ownership of a packet it didn't accept).
func (l *Link) Transmit(p *Packet) (ok bool) {
	if l.Full() {
		l.TxDrop++
		return false
	}
	l.slots[l.write] = p
	l.write = (l.write + 1) % linkCapacity
	l.count++
	l.TxPackets++
	return true
}

// Receive pops the front packet off the link's read end. ok is false if the
// link was empty.
func (l *Link) Receive() (p *Packet, ok bool) {
	if l.Empty() {
		return nil, false
	}
	p = l.slots[l.read]
	l.slots[l.read] = nil
	l.read = (l.read + 1) % linkCapacity
	l.count--
	l.RxPackets++
	return p, true
}

// LossRatio returns 1 - rx/tx, or 0 if no packets have ever been
// transmitted.
func (l *Link) LossRatio() float64 {
	if l.TxPackets == 0 {
		return 0
	}
	return 1 - float64(l.RxPackets)/float64(l.TxPackets)
}
