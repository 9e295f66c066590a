package rush

//
// Latency: constant one-way delay, FIFO, tail-drop on overflow.
//

import "time"

// LatencyConfig configures the Latency app.
type LatencyConfig struct {
	// Delay is the constant one-way delay applied to every packet.
	Delay time.Duration

	// QueueDepth bounds the number of packets held in flight awaiting their
	// release deadline. A packet arriving when the queue is already at
	// QueueDepth is dropped (tail-drop) rather than displacing an
	// already-queued packet.
	QueueDepth int
}

type delayedPacket struct {
	packet    *Packet
	releaseAt time.Time
}

// Latency holds every packet for exactly Config.Delay before releasing it,
// in strict FIFO order (a later-arriving packet can never overtake an
// earlier one, unlike Jitter with ReorderPackets enabled).
type Latency struct {
	name    string
	pool    *Pool
	config  LatencyConfig
	queue   []delayedPacket
	dropped uint64
}

var (
	_ App    = (*Latency)(nil)
	_ Pusher = (*Latency)(nil)
)

// NewLatency constructs a Latency app factory for use in an [AppSpec].
func NewLatency(name string, cfg LatencyConfig) func(pool *Pool, logger Logger) App {
	return func(pool *Pool, logger Logger) App {
		return &Latency{name: name, pool: pool, config: cfg}
	}
}

func (a *Latency) Name() string { return a.name }

func (a *Latency) ConfigEqual(other App) bool {
	o, ok := other.(*Latency)
	return ok && o.config == a.config
}

func (a *Latency) Close() error { return nil }

func (a *Latency) Push(eng *Engine) {
	ports := eng.Ports(a.name)
	in := ports.Input("input")
	out := ports.Output("output")
	now := eng.Now()

	for {
		p, ok := in.Receive()
		if !ok {
			break
		}
		if len(a.queue) >= a.config.QueueDepth {
			a.dropped++
			a.pool.Free(p)
			continue
		}
		a.queue = append(a.queue, delayedPacket{packet: p, releaseAt: now.Add(a.config.Delay)})
	}

	i := 0
	for ; i < len(a.queue); i++ {
		if a.queue[i].releaseAt.After(now) {
			break
		}
		if !out.Transmit(a.queue[i].packet) {
			a.pool.Free(a.queue[i].packet)
		}
	}
	a.queue = a.queue[i:]
}
