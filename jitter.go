package rush

//
// Jitter: per-packet random extra delay, with or without reordering.
//

import (
	"math/rand"
	"sort"
	"time"
)

// JitterConfig configures the Jitter app.
type JitterConfig struct {
	// MaxExtra is the upper bound of the random extra delay, drawn
	// uniformly from [0, MaxExtra) when the Strength gate fires.
	MaxExtra time.Duration

	// Strength is the probability, in [0,1], that a packet receives any
	// extra delay at all. A packet that doesn't clear the gate gets zero
	// extra delay even when MaxExtra > 0; Strength == 0 disables jitter
	// outright regardless of MaxExtra.
	Strength float64

	// ReorderPackets, when true, releases packets in deadline order even if
	// that overtakes their arrival order (a later packet with a shorter
	// random delay can be delivered before an earlier one). When false,
	// packets are released strictly in arrival order, only requiring their
	// own deadline to have passed, so a long extra delay on one packet
	// head-of-line-blocks every packet queued behind it.
	ReorderPackets bool

	// QueueDepth bounds the number of packets held in flight. A packet
	// arriving when the queue is already at QueueDepth is dropped.
	QueueDepth int
}

// Jitter delays a Config.Strength fraction of packets by a random extra
// amount in [0, Config.MaxExtra), releasing either in strict arrival order
// or in deadline order depending on Config.ReorderPackets.
type Jitter struct {
	name    string
	pool    *Pool
	config  JitterConfig
	rng     *rand.Rand
	queue   []delayedPacket
	dropped uint64
}

var (
	_ App    = (*Jitter)(nil)
	_ Pusher = (*Jitter)(nil)
)

// NewJitter constructs a Jitter app factory for use in an [AppSpec].
func NewJitter(name string, cfg JitterConfig) func(pool *Pool, logger Logger) App {
	return func(pool *Pool, logger Logger) App {
		return &Jitter{
			name:   name,
			pool:   pool,
			config: cfg,
			rng:    rand.New(rand.NewSource(rand.Int63())),
		}
	}
}

func (a *Jitter) Name() string { return a.name }

func (a *Jitter) ConfigEqual(other App) bool {
	o, ok := other.(*Jitter)
	return ok && o.config == a.config
}

func (a *Jitter) Close() error { return nil }

func (a *Jitter) extraDelay() time.Duration {
	if a.config.MaxExtra <= 0 || a.rng.Float64() >= a.config.Strength {
		return 0
	}
	return time.Duration(a.rng.Int63n(int64(a.config.MaxExtra)))
}

func (a *Jitter) Push(eng *Engine) {
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
		releaseAt := now.Add(a.extraDelay())
		a.queue = append(a.queue, delayedPacket{packet: p, releaseAt: releaseAt})
	}

	if a.config.ReorderPackets {
		sort.SliceStable(a.queue, func(i, j int) bool {
			return a.queue[i].releaseAt.Before(a.queue[j].releaseAt)
		})
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
