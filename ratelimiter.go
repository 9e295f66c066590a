package rush

//
// RateLimiter: token-bucket shaping in bits/sec with Ethernet framing
// overhead accounted for, built on golang.org/x/time/rate.
//

import (
	"time"

	"golang.org/x/time/rate"
)

// ethernetFramingOverheadBytes accounts for the 12-byte inter-frame gap, the
// 8-byte preamble/SFD, and the 4-byte trailing CRC that a packet occupies on
// the wire but that the in-memory payload never carries.
const ethernetFramingOverheadBytes = 12 + 8 + 4

// assumedBreathPeriod sizes the token bucket's burst capacity. The engine's
// breathe loop has no fixed period — its inter-breath sleep backs off
// adaptively between sleepFloor and sleepCeil — so there is no literal
// "one breath" duration to multiply by. This is a nominal stand-in for it.
const assumedBreathPeriod = time.Millisecond

// RateLimiterConfig configures the RateLimiter app.
type RateLimiterConfig struct {
	// BitsPerSecond is the sustained rate limit.
	BitsPerSecond float64

	// QueueDepth bounds the number of packets held waiting for tokens. A
	// packet arriving when the queue is already at QueueDepth is dropped.
	QueueDepth int
}

// RateLimiter shapes traffic to Config.BitsPerSecond using a token bucket
// sized to roughly one assumedBreathPeriod's worth of tokens at that rate,
// times a 1.25 burst allowance, queuing packets that arrive faster than the
// bucket refills and tail-dropping once the queue is full. A zero
// BitsPerSecond yields a zero-capacity bucket: no packet ever passes.
type RateLimiter struct {
	name    string
	pool    *Pool
	config  RateLimiterConfig
	limiter *rate.Limiter
	queue   []*Packet
	dropped uint64
}

var (
	_ App    = (*RateLimiter)(nil)
	_ Pusher = (*RateLimiter)(nil)
)

// NewRateLimiter constructs a RateLimiter app factory for use in an
// [AppSpec].
func NewRateLimiter(name string, cfg RateLimiterConfig) func(pool *Pool, logger Logger) App {
	return func(pool *Pool, logger Logger) App {
		burst := int(cfg.BitsPerSecond * assumedBreathPeriod.Seconds() * 1.25)
		if cfg.BitsPerSecond > 0 && burst < 1 {
			burst = 1
		}
		return &RateLimiter{
			name:    name,
			pool:    pool,
			config:  cfg,
			limiter: rate.NewLimiter(rate.Limit(cfg.BitsPerSecond), burst),
		}
	}
}

func (a *RateLimiter) Name() string { return a.name }

func (a *RateLimiter) ConfigEqual(other App) bool {
	o, ok := other.(*RateLimiter)
	return ok && o.config == a.config
}

func (a *RateLimiter) Close() error { return nil }

// wireBits is the number of bits a packet occupies on the wire, including
// Ethernet framing overhead, used to charge the token bucket.
func wireBits(p *Packet) int {
	return (p.Length() + ethernetFramingOverheadBytes) * 8
}

func (a *RateLimiter) Push(eng *Engine) {
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
		a.queue = append(a.queue, p)
	}

	i := 0
	for ; i < len(a.queue); i++ {
		if !a.limiter.AllowN(now, wireBits(a.queue[i])) {
			break
		}
		if !out.Transmit(a.queue[i]) {
			a.pool.Free(a.queue[i])
		}
	}
	a.queue = a.queue[i:]
}
