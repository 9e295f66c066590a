package rush

//
// Engine: the single-threaded breathe loop that drives the app graph.
//

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// AppSpec describes one app in a [GraphSpec]: its name and a factory to
// build an instance. Configure always calls New to obtain a candidate
// instance, then asks the previous instance (if any, by name) whether the
// candidate's configuration is equivalent via [App.ConfigEqual]; if so the
// previous instance is kept running and the candidate is discarded, which
// preserves internal state (a jitter app's reorder queue, a rate limiter's
// token bucket) across an unrelated configuration change elsewhere in the
// graph.
type AppSpec struct {
	Name string
	New  func(pool *Pool, logger Logger) App
}

// LinkSpec names one link in a [GraphSpec], "srcApp.srcPort -> dstApp.dstPort".
type LinkSpec struct {
	SrcApp, SrcPort string
	DstApp, DstPort string
}

// Name returns the link's display name, matching the configuration's
// "src.output_port -> dst.input_port" convention.
func (ls LinkSpec) Name() string {
	return fmt.Sprintf("%s.%s -> %s.%s", ls.SrcApp, ls.SrcPort, ls.DstApp, ls.DstPort)
}

// GraphSpec is the complete description of an app graph: every app and
// every link between them, in configuration order.
type GraphSpec struct {
	Apps  []AppSpec
	Links []LinkSpec
}

// Engine holds the live app graph and drives it breath by breath. The zero
// value is invalid; use [NewEngine].
type Engine struct {
	pool   *Pool
	logger Logger

	order     []string
	apps      map[string]App
	ports     map[string]*Ports
	links     map[string]*Link
	linkOrder []string

	breathCount uint64
	now         time.Time

	// sleepFloor and sleepCeil bound the inter-breath backoff applied when
	// a breath pulls and pushes nothing, to avoid busy-spinning on idle
	// raw sockets without adding latency to a loaded link.
	sleepFloor time.Duration
	sleepCeil  time.Duration

	// stop is set from Stop, which (unlike every other Engine method) is
	// meant to be called from a different goroutine than the one running
	// Main — typically a signal handler — so it alone needs to be safe for
	// concurrent access.
	stop atomic.Bool
}

// NewEngine creates an [Engine] with an empty graph and the given packet
// pool and logger.
func NewEngine(pool *Pool, logger Logger) *Engine {
	if logger == nil {
		logger = &NullLogger{}
	}
	return &Engine{
		pool:       pool,
		logger:     logger,
		apps:       map[string]App{},
		ports:      map[string]*Ports{},
		links:      map[string]*Link{},
		sleepFloor: 10 * time.Microsecond,
		sleepCeil:  2 * time.Millisecond,
	}
}

// Pool returns the engine's packet pool.
func (eng *Engine) Pool() *Pool {
	return eng.pool
}

// Now returns the engine's cached monotonic timestamp, refreshed once per
// breath. Apps must use this instead of time.Now() so that every decision
// within a breath (constant delay, jitter, token bucket refill) is
// consistent with a single instant in time.
func (eng *Engine) Now() time.Time {
	return eng.now
}

// Link looks up a link by its configured name, for reporting or tests.
func (eng *Engine) Link(name string) *Link {
	return eng.links[name]
}

// App looks up a live app instance by its configured name, for callers that
// need to reach a specific app's exported methods directly (e.g. a FlowTop
// app's Snapshot) rather than driving it through the breathe loop. Returns
// nil if name is not part of the current graph.
func (eng *Engine) App(name string) App {
	return eng.apps[name]
}

// Ports returns the named app's resolved input/output links. Apps call this
// from within Pull/Push using their own Name() to find their ports; it
// returns nil if name is not part of the current graph.
func (eng *Engine) Ports(name string) *Ports {
	return eng.ports[name]
}

// Configure replaces the live app graph with one derived from spec. For
// each AppSpec it builds a candidate instance and, if a previous instance
// exists under the same name, asks the previous instance whether the
// candidate is config-equivalent; if so the previous instance is kept and
// the candidate is discarded, otherwise the candidate replaces it and the
// previous instance is closed before the new tables are installed. The link table is
// always rebuilt from scratch. The swap is atomic from the outside world's
// perspective because the engine is single-threaded and Configure never
// runs concurrently with a breath.
func (eng *Engine) Configure(spec *GraphSpec) error {
	if err := validateGraphSpec(spec); err != nil {
		return err
	}

	newApps := make(map[string]App, len(spec.Apps))
	newOrder := make([]string, 0, len(spec.Apps))
	discarded := make([]App, 0)

	for _, as := range spec.Apps {
		newOrder = append(newOrder, as.Name)
		candidate := as.New(eng.pool, eng.logger)
		if old, ok := eng.apps[as.Name]; ok && old.ConfigEqual(candidate) {
			newApps[as.Name] = old
			discarded = append(discarded, candidate)
			continue
		}
		newApps[as.Name] = candidate
	}

	// Close every app instance that is not present (by identity) in the
	// new graph: either it was replaced because its config changed, or it
	// was dropped entirely. No link references it anymore because we are
	// about to overwrite eng.links wholesale. Candidates built only to lose
	// the ConfigEqual comparison are closed too; they never entered service.
	for name, old := range eng.apps {
		if newApps[name] != old {
			if err := old.Close(); err != nil {
				eng.logger.Warnf("rush: close app %q: %s", name, err.Error())
			}
		}
	}
	for _, c := range discarded {
		if err := c.Close(); err != nil {
			eng.logger.Warnf("rush: close discarded candidate %q: %s", c.Name(), err.Error())
		}
	}

	newPorts := make(map[string]*Ports, len(newApps))
	for name := range newApps {
		newPorts[name] = &Ports{Inputs: map[string]*Link{}, Outputs: map[string]*Link{}}
	}

	newLinks := make(map[string]*Link, len(spec.Links))
	linkOrder := make([]string, 0, len(spec.Links))
	for _, ls := range spec.Links {
		name := ls.Name()
		link := NewLink(name)
		newPorts[ls.SrcApp].Outputs[ls.SrcPort] = link
		newPorts[ls.DstApp].Inputs[ls.DstPort] = link
		newLinks[name] = link
		linkOrder = append(linkOrder, name)
	}

	eng.apps = newApps
	eng.ports = newPorts
	eng.links = newLinks
	eng.order = newOrder
	eng.linkOrder = linkOrder
	return nil
}

// validateGraphSpec rejects graph specs referencing undeclared apps or
// duplicate names, catching a configuration bug before any app is
// instantiated or any old instance is torn down.
func validateGraphSpec(spec *GraphSpec) error {
	seen := make(map[string]bool, len(spec.Apps))
	for _, as := range spec.Apps {
		if seen[as.Name] {
			return fmt.Errorf("rush: duplicate app name %q", as.Name)
		}
		seen[as.Name] = true
	}
	for _, ls := range spec.Links {
		if !seen[ls.SrcApp] {
			return fmt.Errorf("rush: link %s references unknown app %q", ls.Name(), ls.SrcApp)
		}
		if !seen[ls.DstApp] {
			return fmt.Errorf("rush: link %s references unknown app %q", ls.Name(), ls.DstApp)
		}
	}
	return nil
}

// Stop requests that Main return once the current breath completes. Safe
// to call from any goroutine.
func (eng *Engine) Stop() {
	eng.stop.Store(true)
}

// Stopped reports whether Stop has been called since the last Main/reset.
func (eng *Engine) Stopped() bool {
	return eng.stop.Load()
}

// Breathe performs one full pull-then-push pass over the app graph:
// refresh the cached timestamp, call Pull on every app that implements
// [Puller] in configuration order, then call Push on every app that
// implements [Pusher] and has a non-empty input, also in configuration
// order. It returns true if any app actually had work to do, which the
// caller uses to decide whether to apply the inter-breath sleep backoff.
func (eng *Engine) Breathe() (didWork bool) {
	eng.now = time.Now()
	eng.breathCount++

	for _, name := range eng.order {
		app := eng.apps[name]
		if puller, ok := app.(Puller); ok {
			before := eng.breathTraffic()
			puller.Pull(eng)
			if eng.breathTraffic() != before {
				didWork = true
			}
		}
	}

	for _, name := range eng.order {
		app := eng.apps[name]
		pusher, ok := app.(Pusher)
		if !ok {
			continue
		}
		if !eng.ports[name].AnyInputNonEmpty() {
			continue
		}
		didWork = true
		pusher.Push(eng)
	}

	return didWork
}

// breathTraffic is a cheap proxy for "was any packet handled this breath",
// summing every link's tx counter. It is only used to decide whether to
// apply the sleep backoff, so an approximate, O(links) sum is acceptable.
func (eng *Engine) breathTraffic() uint64 {
	var total uint64
	for _, l := range eng.links {
		total += l.TxPackets
	}
	return total
}

// Main runs the breathe loop until duration elapses (zero means run until
// Stop is called) or Stop is called. It is safe to call repeatedly: each
// call resets the stop flag and breathes until its own termination
// condition, matching the contract that configure/main/reload may cycle
// indefinitely in the same process.
func (eng *Engine) Main(duration time.Duration) {
	eng.stop.Store(false)
	deadline := time.Time{}
	if duration > 0 {
		deadline = time.Now().Add(duration)
	}

	sleep := eng.sleepFloor
	for !eng.stop.Load() {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return
		}
		if eng.Breathe() {
			sleep = eng.sleepFloor
			continue
		}
		time.Sleep(sleep)
		sleep *= 2
		if sleep > eng.sleepCeil {
			sleep = eng.sleepCeil
		}
	}
}

// Report writes one line per link (tx, rx, drop, loss ratio), in
// configuration order, followed by one line with the breath count and the
// pool's free/total packets, to w for operator diagnostics. It does not
// report rates (frees/sec, bits/sec), mean packet size, or sleep ratio.
func (eng *Engine) Report(w io.Writer) {
	for _, name := range eng.linkOrder {
		l := eng.links[name]
		fmt.Fprintf(w, "%-48s tx=%-10d rx=%-10d drop=%-8d loss=%.4f\n",
			l.Name, l.TxPackets, l.RxPackets, l.TxDrop, l.LossRatio())
	}
	fmt.Fprintf(w, "breaths=%d free=%d/%d\n", eng.breathCount, eng.pool.Available(), eng.pool.Capacity())
}
