package rush

//
// App: a node in the processing graph with named input/output ports.
//

// PullBudget is the maximum number of packets a Puller should inject per
// output link in one call to Pull, so pull-producing apps amortize
// per-packet overhead in batches without starving other apps in the same
// breath.
const PullBudget = 100

// Puller is implemented by apps that originate packets (sources). Pull is
// called once per breath, before any Pusher runs, and should not exceed
// PullBudget packets per output link; it returns early if an output link
// fills. The app looks up its own ports via eng.Ports(app.Name()).
type Puller interface {
	Pull(eng *Engine)
}

// Pusher is implemented by apps that consume, transform, or sink packets.
// Push is called once per breath, and only if at least one of the app's
// named input links is non-empty; it drains its inputs until they are empty
// or its outputs are full.
type Pusher interface {
	Push(eng *Engine)
}

// App is a configured, named node in the processing graph. Concrete app
// types implement Puller, Pusher, or both; the engine discovers which via
// type assertion once at Configure time and never pays for per-packet
// dynamic dispatch beyond that (the hot loop is "iterate packets inside
// Push", not "dispatch per packet").
type App interface {
	// Name returns the app's configured name, used for link naming, port
	// lookup (eng.Ports(name)), and configure-time diffing.
	Name() string

	// ConfigEqual reports whether other describes an equivalent
	// configuration, i.e. whether this app instance can be reused across a
	// Configure call instead of being replaced. Implementations type-assert
	// other to their own concrete type and return false on mismatch.
	ConfigEqual(other App) bool

	// Close releases any resources (file descriptors, timers) held by the
	// app. Called only when no link in the new graph references the app:
	// either the instance has been replaced or dropped, or it is a
	// candidate that lost the ConfigEqual comparison and never entered
	// service.
	Close() error
}

// Ports holds an app instance's named input and output links, resolved from
// string port names to concrete *Link at Configure time, per the design
// note that the graph should be "held together by string names" only in the
// external configuration, never on the hot path.
type Ports struct {
	Inputs  map[string]*Link
	Outputs map[string]*Link
}

// Input returns the named input link, or nil if the app has none by that
// name. Configure does not check port names against the apps that use
// them, so a port name no link connects simply yields nil here.
func (p *Ports) Input(name string) *Link {
	return p.Inputs[name]
}

// Output returns the named output link.
func (p *Ports) Output(name string) *Link {
	return p.Outputs[name]
}

// AnyInputNonEmpty reports whether at least one input link holds a packet,
// the condition the engine checks before calling Push.
func (p *Ports) AnyInputNonEmpty() bool {
	for _, l := range p.Inputs {
		if !l.Empty() {
			return true
		}
	}
	return false
}
