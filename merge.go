package rush

//
// Merge: fan-in of several named inputs onto one output.
//

// MergeConfig configures the Merge app.
type MergeConfig struct {
	// InputNames lists the input port names to drain, in the order they
	// are drained each breath. Order only affects fairness under
	// contention, never correctness.
	InputNames []string
}

// Merge drains every named input to exhaustion, in InputNames order, and
// forwards each packet onto its single "output" port. It exists because a
// Link is strictly one producer to one consumer: once Split fans a flow out
// across several per-label QoS pipelines, something has to fan them back in
// before a single RawSocket can transmit them.
type Merge struct {
	name   string
	pool   *Pool
	config MergeConfig
}

var (
	_ App    = (*Merge)(nil)
	_ Pusher = (*Merge)(nil)
)

// NewMerge constructs a Merge app factory for use in an [AppSpec].
func NewMerge(name string, cfg MergeConfig) func(pool *Pool, logger Logger) App {
	return func(pool *Pool, logger Logger) App {
		return &Merge{name: name, pool: pool, config: cfg}
	}
}

func (a *Merge) Name() string { return a.name }

func (a *Merge) ConfigEqual(other App) bool {
	o, ok := other.(*Merge)
	if !ok || len(o.config.InputNames) != len(a.config.InputNames) {
		return false
	}
	for i, n := range a.config.InputNames {
		if o.config.InputNames[i] != n {
			return false
		}
	}
	return true
}

func (a *Merge) Close() error { return nil }

func (a *Merge) Push(eng *Engine) {
	ports := eng.Ports(a.name)
	out := ports.Output("output")
	for _, name := range a.config.InputNames {
		in := ports.Input(name)
		if in == nil {
			continue
		}
		for {
			p, ok := in.Receive()
			if !ok {
				break
			}
			if !out.Transmit(p) {
				a.pool.Free(p)
			}
		}
	}
}
