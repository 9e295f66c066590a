package rush

import (
	"bytes"
	"strings"
	"testing"
)

// countingApp is a minimal Puller+Pusher used to exercise the breathe
// loop's ordering and didWork detection without any QoS logic.
type countingApp struct {
	name    string
	cfg     int
	pulls   int
	pushes  int
	produce int
}

func (a *countingApp) Name() string { return a.name }
func (a *countingApp) ConfigEqual(other App) bool {
	o, ok := other.(*countingApp)
	return ok && o.cfg == a.cfg
}
func (a *countingApp) Close() error { return nil }

func (a *countingApp) Pull(eng *Engine) {
	a.pulls++
	out := eng.Ports(a.name).Output("output")
	for i := 0; i < a.produce; i++ {
		p := eng.Pool().Allocate()
		p.SetData([]byte{byte(i)})
		out.Transmit(p)
	}
}

func (a *countingApp) Push(eng *Engine) {
	a.pushes++
	ports := eng.Ports(a.name)
	in := ports.Input("input")
	out := ports.Output("output")
	for {
		p, ok := in.Receive()
		if !ok {
			return
		}
		if out == nil || !out.Transmit(p) {
			eng.Pool().Free(p)
		}
	}
}

func simpleGraph(source *countingApp, sink *countingApp) *GraphSpec {
	return &GraphSpec{
		Apps: []AppSpec{
			{Name: source.name, New: func(pool *Pool, logger Logger) App { return source }},
			{Name: sink.name, New: func(pool *Pool, logger Logger) App { return sink }},
		},
		Links: []LinkSpec{
			{SrcApp: source.name, SrcPort: "output", DstApp: sink.name, DstPort: "input"},
		},
	}
}

func TestEngineConfigure(t *testing.T) {
	t.Run("rejects duplicate app names", func(t *testing.T) {
		eng := NewEngine(NewPool(4), &NullLogger{})
		err := eng.Configure(&GraphSpec{
			Apps: []AppSpec{newStubSpec("a"), newStubSpec("a")},
		})
		if err == nil || !strings.Contains(err.Error(), "duplicate app name") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("rejects links to unknown apps", func(t *testing.T) {
		eng := NewEngine(NewPool(4), &NullLogger{})
		err := eng.Configure(&GraphSpec{
			Apps:  []AppSpec{newStubSpec("a")},
			Links: []LinkSpec{{SrcApp: "a", SrcPort: "output", DstApp: "ghost", DstPort: "input"}},
		})
		if err == nil || !strings.Contains(err.Error(), "unknown app") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("reuses a config-equal app instance across Configure", func(t *testing.T) {
		eng := NewEngine(NewPool(4), &NullLogger{})
		first := &countingApp{name: "src", cfg: 1}
		if err := eng.Configure(&GraphSpec{Apps: []AppSpec{
			{Name: "src", New: func(pool *Pool, logger Logger) App { return first }},
		}}); err != nil {
			t.Fatal(err)
		}

		second := &countingApp{name: "src", cfg: 1}
		if err := eng.Configure(&GraphSpec{Apps: []AppSpec{
			{Name: "src", New: func(pool *Pool, logger Logger) App { return second }},
		}}); err != nil {
			t.Fatal(err)
		}

		if eng.apps["src"] != App(first) {
			t.Fatal("expected the original instance to survive a config-equal reconfigure")
		}
	})

	t.Run("replaces an app instance whose config changed", func(t *testing.T) {
		eng := NewEngine(NewPool(4), &NullLogger{})
		first := &countingApp{name: "src", cfg: 1}
		Must0(eng.Configure(&GraphSpec{Apps: []AppSpec{
			{Name: "src", New: func(pool *Pool, logger Logger) App { return first }},
		}}))

		second := &countingApp{name: "src", cfg: 2}
		Must0(eng.Configure(&GraphSpec{Apps: []AppSpec{
			{Name: "src", New: func(pool *Pool, logger Logger) App { return second }},
		}}))

		if eng.apps["src"] != App(second) {
			t.Fatal("expected the new instance to replace the old one")
		}
	})
}

func TestEngineBreathe(t *testing.T) {
	pool := NewPool(16)
	eng := NewEngine(pool, &NullLogger{})

	source := &countingApp{name: "source", produce: 3}
	sink := &countingApp{name: "sink"}
	Must0(eng.Configure(simpleGraph(source, sink)))

	if eng.Breathe() != true {
		t.Fatal("expected didWork on the first breath")
	}
	if source.pulls != 1 {
		t.Fatalf("expected one Pull, got %d", source.pulls)
	}
	if sink.pushes != 1 {
		t.Fatalf("expected sink's Push to run once traffic arrived, got %d", sink.pushes)
	}

	link := eng.Link(LinkSpec{SrcApp: "source", SrcPort: "output", DstApp: "sink", DstPort: "input"}.Name())
	if link.TxPackets != 3 || link.RxPackets != 3 {
		t.Fatalf("unexpected link counters: tx=%d rx=%d", link.TxPackets, link.RxPackets)
	}
}

func TestEngineBreatheSkipsIdlePushers(t *testing.T) {
	pool := NewPool(16)
	eng := NewEngine(pool, &NullLogger{})

	source := &countingApp{name: "source"} // produce == 0
	sink := &countingApp{name: "sink"}
	Must0(eng.Configure(simpleGraph(source, sink)))

	if eng.Breathe() != false {
		t.Fatal("expected no work when the source produces nothing")
	}
	if sink.pushes != 0 {
		t.Fatalf("expected sink's Push never to run, got %d calls", sink.pushes)
	}
}

func TestEngineStop(t *testing.T) {
	eng := NewEngine(NewPool(1), &NullLogger{})
	if eng.Stopped() {
		t.Fatal("expected not stopped initially")
	}
	eng.Stop()
	if !eng.Stopped() {
		t.Fatal("expected stopped after Stop")
	}
}

func TestEngineReport(t *testing.T) {
	pool := NewPool(16)
	eng := NewEngine(pool, &NullLogger{})
	source := &countingApp{name: "source", produce: 2}
	sink := &countingApp{name: "sink"}
	Must0(eng.Configure(simpleGraph(source, sink)))
	eng.Breathe()

	var buf bytes.Buffer
	eng.Report(&buf)
	report := buf.String()
	if !strings.Contains(report, "source.output -> sink.input") {
		t.Fatalf("report missing link name: %s", report)
	}
	if !strings.Contains(report, "breaths=1") {
		t.Fatalf("report missing breath count: %s", report)
	}
}
