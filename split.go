package rush

//
// Split: 5-tuple flow classification, first-match-wins.
//

// PortRange is an inclusive port range; {0, 65535} matches any port
// (including ICMP's synthetic port 0).
type PortRange struct {
	Low, High uint16
}

func (r PortRange) contains(port uint16) bool {
	return port >= r.Low && port <= r.High
}

// FlowRule is one classification rule: IP == 0 and Protocol == 0 each act
// as a wildcard for that field. Matching is exact 32-bit address equality,
// not prefix/CIDR containment — a rule's IP names one address, not a
// subnet.
type FlowRule struct {
	Label    string
	IP       uint32
	Protocol uint8
	Ports    PortRange
}

// SplitConfig configures the Split app.
type SplitConfig struct {
	// Ingress selects which address/port pair of the 5-tuple the rules are
	// matched against: true matches the packet's source (the classifier
	// sits on the ingress side of the link being modeled), false matches
	// the destination (egress side).
	Ingress bool

	// Rules are evaluated in order; the first match wins.
	Rules []FlowRule

	// DefaultLabel names the output port used when no rule matches,
	// including for any non-IPv4 packet.
	DefaultLabel string
}

// Split routes each packet to exactly one labeled output port by scanning
// its rules in order and selecting the first match, or Config.DefaultLabel
// if none match (including every non-IPv4 packet, per the classifier's
// IPv6 non-goal).
type Split struct {
	name   string
	pool   *Pool
	config SplitConfig
}

var (
	_ App    = (*Split)(nil)
	_ Pusher = (*Split)(nil)
)

// NewSplit constructs a Split app factory for use in an [AppSpec].
func NewSplit(name string, cfg SplitConfig) func(pool *Pool, logger Logger) App {
	return func(pool *Pool, logger Logger) App {
		return &Split{name: name, pool: pool, config: cfg}
	}
}

func (a *Split) Name() string { return a.name }

func (a *Split) ConfigEqual(other App) bool {
	o, ok := other.(*Split)
	if !ok || o.config.Ingress != a.config.Ingress || o.config.DefaultLabel != a.config.DefaultLabel {
		return false
	}
	if len(o.config.Rules) != len(a.config.Rules) {
		return false
	}
	for i := range a.config.Rules {
		if a.config.Rules[i] != o.config.Rules[i] {
			return false
		}
	}
	return true
}

func (a *Split) Close() error { return nil }

// classify returns the label of the first rule matching dp, or
// Config.DefaultLabel if none match.
func (a *Split) classify(dp *DissectedPacket) string {
	var ip4 uint32
	var port uint16
	if a.config.Ingress {
		ip4, port = ipv4ToUint32(dp.SourceIP().To4()), dp.SourcePort()
	} else {
		ip4, port = ipv4ToUint32(dp.DestinationIP().To4()), dp.DestinationPort()
	}
	protocol := uint8(dp.Protocol())

	for _, r := range a.config.Rules {
		if r.IP != 0 && r.IP != ip4 {
			continue
		}
		if r.Protocol != 0 && r.Protocol != protocol {
			continue
		}
		if !r.Ports.contains(port) {
			continue
		}
		return r.Label
	}
	return a.config.DefaultLabel
}

func (a *Split) Push(eng *Engine) {
	ports := eng.Ports(a.name)
	in := ports.Input("input")

	for {
		p, ok := in.Receive()
		if !ok {
			return
		}

		label := a.config.DefaultLabel
		if dp, err := Dissect(p.Data()); err == nil {
			label = a.classify(dp)
		}

		out := ports.Output(label)
		if out == nil {
			out = ports.Output(a.config.DefaultLabel)
		}
		if out == nil || !out.Transmit(p) {
			a.pool.Free(p)
		}
	}
}
