package rush

//
// Checksum: fills in IPv4/TCP/UDP checksums left as zero on the wire.
//

// ChecksumConfig configures the Checksum app. It has no fields: the app's
// behavior is fixed by spec, so any two instances are always config-equal.
type ChecksumConfig struct{}

// Checksum forwards every packet from its single input to its single
// output unmodified, except that it fills in the IPv4 header checksum
// and/or the TCP/UDP checksum when the wire value was exactly zero. A
// packet whose checksums were already set (e.g. computed upstream, or
// intentionally left non-standard for a test) passes through byte for
// byte.
type Checksum struct {
	name   string
	pool   *Pool
	logger Logger
}

var (
	_ App    = (*Checksum)(nil)
	_ Pusher = (*Checksum)(nil)
)

// NewChecksum constructs a Checksum app.
func NewChecksum(name string) func(pool *Pool, logger Logger) App {
	return func(pool *Pool, logger Logger) App {
		return &Checksum{name: name, pool: pool, logger: logger}
	}
}

func (c *Checksum) Name() string { return c.name }

func (c *Checksum) ConfigEqual(other App) bool {
	_, ok := other.(*Checksum)
	return ok
}

func (c *Checksum) Close() error { return nil }

func (c *Checksum) Push(eng *Engine) {
	ports := eng.Ports(c.name)
	in := ports.Input("input")
	out := ports.Output("output")

	for {
		p, ok := in.Receive()
		if !ok {
			return
		}
		dp, err := Dissect(p.Data())
		if err != nil {
			// Not an IPv4/TCP/UDP/ICMP packet we understand: forward as-is,
			// matching the non-goal that only IPv4 flows get any special
			// treatment.
			if !out.Transmit(p) {
				c.pool.Free(p)
			}
			continue
		}

		fixIP := dp.IPv4ChecksumIsZero()
		fixTransport := dp.TransportChecksumIsZero()
		if !fixIP && !fixTransport {
			if !out.Transmit(p) {
				c.pool.Free(p)
			}
			continue
		}

		fixed, err := dp.Serialize(fixIP, fixTransport)
		if err != nil {
			c.logger.Warnf("rush: checksum: serialize: %s", err.Error())
			if !out.Transmit(p) {
				c.pool.Free(p)
			}
			continue
		}
		p.SetData(fixed)
		if !out.Transmit(p) {
			c.pool.Free(p)
		}
	}
}
