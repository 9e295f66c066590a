package rush

//
// SyntheticNetwork: wires two raw sockets together through the QoS graph
// described by a Spec, independently in each direction.
//

import (
	"fmt"
	"time"
)

func millisecondsToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// DirectionConfig names one direction of traffic flow through the network:
// which interface app reads frames and which writes them, and whether flow
// rules in that direction match the packet's source (ingress) or
// destination (egress) address/port.
type DirectionConfig struct {
	Name      string
	ReaderApp string
	WriterApp string
	Ingress   bool
}

// BuildGraph compiles spec plus the outer/inner raw-socket interface names
// into a complete [GraphSpec]: two RawSocket apps and, for each direction, a
// FlowTop tap followed by a Split-classified fan-out of one QoS pipeline
// per flow label (plus the default), merged and checksum-fixed back onto
// the peer RawSocket's input.
func BuildGraph(spec *Spec, outerIface, innerIface string) *GraphSpec {
	g := &GraphSpec{}

	g.Apps = append(g.Apps,
		AppSpec{Name: "outer", New: NewRawSocket("outer", RawSocketConfig{Interface: outerIface, Promiscuous: true})},
		AppSpec{Name: "inner", New: NewRawSocket("inner", RawSocketConfig{Interface: innerIface, Promiscuous: true})},
	)

	directions := []DirectionConfig{
		{Name: "ingress", ReaderApp: "outer", WriterApp: "inner", Ingress: true},
		{Name: "egress", ReaderApp: "inner", WriterApp: "outer", Ingress: false},
	}

	for _, dir := range directions {
		apps, links := buildDirection(dir, spec)
		g.Apps = append(g.Apps, apps...)
		g.Links = append(g.Links, links...)
	}

	return g
}

// buildDirection taps raw traffic into a FlowTop counter, classifies it
// with Split into one pipeline per flow label (plus the default), and fans
// the pipelines' outputs back in via Merge and a single Checksum fixup
// before handing off to the writer app.
func buildDirection(dir DirectionConfig, spec *Spec) ([]AppSpec, []LinkSpec) {
	topName := dir.Name + "_top"
	splitName := dir.Name + "_split"
	mergeName := dir.Name + "_merge"
	checksumName := dir.Name + "_checksum"

	labels := make([]string, 0, len(spec.Flows)+1)
	for _, f := range spec.Flows {
		labels = append(labels, f.Label)
	}
	labels = append(labels, DefaultLabel)

	apps := []AppSpec{
		{Name: topName, New: NewFlowTop(topName, FlowTopConfig{Ingress: dir.Ingress})},
		{Name: splitName, New: NewSplit(splitName, SplitConfig{
			Ingress:      dir.Ingress,
			Rules:        spec.FlowRules(),
			DefaultLabel: DefaultLabel,
		})},
	}
	links := []LinkSpec{
		{SrcApp: dir.ReaderApp, SrcPort: "output", DstApp: topName, DstPort: "input"},
		{SrcApp: topName, SrcPort: "output", DstApp: splitName, DstPort: "input"},
	}

	for _, label := range labels {
		qos := directionQoS(spec, label, dir.Ingress)
		stages := buildPipeline(fmt.Sprintf("%s_%s", label, dir.Name), qos)
		apps = append(apps, stages...)

		links = append(links, LinkSpec{
			SrcApp: splitName, SrcPort: label,
			DstApp: stages[0].Name, DstPort: "input",
		})
		for i := 0; i+1 < len(stages); i++ {
			links = append(links, LinkSpec{
				SrcApp: stages[i].Name, SrcPort: "output",
				DstApp: stages[i+1].Name, DstPort: "input",
			})
		}
		links = append(links, LinkSpec{
			SrcApp: stages[len(stages)-1].Name, SrcPort: "output",
			DstApp: mergeName, DstPort: label,
		})
	}

	apps = append(apps,
		AppSpec{Name: mergeName, New: NewMerge(mergeName, MergeConfig{InputNames: labels})},
		AppSpec{Name: checksumName, New: NewChecksum(checksumName)},
	)
	links = append(links,
		LinkSpec{SrcApp: mergeName, SrcPort: "output", DstApp: checksumName, DstPort: "input"},
		LinkSpec{SrcApp: checksumName, SrcPort: "output", DstApp: dir.WriterApp, DstPort: "input"},
	)

	return apps, links
}

// defaultQueueDepth bounds every QoS app's internal reorder/delay queue.
// The wire schema carries no per-stage queue depth of its own.
const defaultQueueDepth = 1024

// buildPipeline returns the four QoS apps for one flow label in one
// direction: Loss, Latency, Jitter, and RateLimiter, always all four and
// always in that order, per qos. No stage is skipped or special-cased for a
// zero value; in particular Rate == 0 still builds a RateLimiter, which then
// lets nothing pass, rather than bypassing shaping entirely.
func buildPipeline(prefix string, qos QoS) []AppSpec {
	lossName := prefix + "_loss"
	latencyName := prefix + "_latency"
	jitterName := prefix + "_jitter"
	rateName := prefix + "_rate"

	return []AppSpec{
		{Name: lossName, New: NewLoss(lossName, LossConfig{Ratio: qos.Loss})},
		{Name: latencyName, New: NewLatency(latencyName, LatencyConfig{
			Delay:      millisecondsToDuration(int(qos.LatencyMs)),
			QueueDepth: defaultQueueDepth,
		})},
		{Name: jitterName, New: NewJitter(jitterName, JitterConfig{
			MaxExtra:       millisecondsToDuration(int(qos.JitterMs)),
			Strength:       qos.JitterStrength,
			ReorderPackets: qos.ReorderPackets,
			QueueDepth:     defaultQueueDepth,
		})},
		{Name: rateName, New: NewRateLimiter(rateName, RateLimiterConfig{
			BitsPerSecond: float64(qos.Rate),
			QueueDepth:    defaultQueueDepth,
		})},
	}
}
