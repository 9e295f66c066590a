package rush

//
// Loss: Bernoulli packet drop.
//

import "math/rand"

// LossConfig configures the Loss app.
type LossConfig struct {
	// Ratio is the probability, in [0,1], that any given packet is dropped.
	Ratio float64
}

// Loss drops each packet independently with probability Config.Ratio,
// forwarding the rest unmodified and in order.
type Loss struct {
	name   string
	pool   *Pool
	config LossConfig
	rng    *rand.Rand
}

var (
	_ App    = (*Loss)(nil)
	_ Pusher = (*Loss)(nil)
)

// NewLoss constructs a Loss app factory for use in an [AppSpec].
func NewLoss(name string, cfg LossConfig) func(pool *Pool, logger Logger) App {
	return func(pool *Pool, logger Logger) App {
		return &Loss{
			name:   name,
			pool:   pool,
			config: cfg,
			rng:    rand.New(rand.NewSource(rand.Int63())),
		}
	}
}

func (a *Loss) Name() string { return a.name }

func (a *Loss) ConfigEqual(other App) bool {
	o, ok := other.(*Loss)
	return ok && o.config == a.config
}

func (a *Loss) Close() error { return nil }

func (a *Loss) Push(eng *Engine) {
	ports := eng.Ports(a.name)
	in := ports.Input("input")
	out := ports.Output("output")

	for {
		p, ok := in.Receive()
		if !ok {
			return
		}
		if a.rng.Float64() < a.config.Ratio {
			a.pool.Free(p)
			continue
		}
		if !out.Transmit(p) {
			a.pool.Free(p)
		}
	}
}
