// Command rush runs the synthetic-network QoS engine between two host
// network interfaces.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daily-co/synthetic-network"
)

const helpText = `usage: rush <outer_if> <inner_if> <spec_path> [<ingress_profile> <egress_profile>]

rush forwards Ethernet frames between two host interfaces, classifying
traffic into the flows described by the JSON file at spec_path and applying
each flow's own ingress and egress QoS pipeline (loss, latency, jitter, rate
limiting); traffic matching no flow rule uses default_link's pipeline.

The optional ingress_profile and egress_profile paths name two files rush
rewrites periodically with a fixed-size binary snapshot of its approximate
per-flow counters (2048 24-byte records of packets, bits, and a packed flow
id) for an external reader to sample.

Send SIGHUP to reload spec_path; a parse or validation error is logged and
the previous configuration keeps running. Send SIGINT or SIGTERM to shut
down.

Example spec_path contents:

  {
    "default_link": {
      "ingress": {"rate": 1000000000, "loss": 0.01, "latency": 0, "jitter": 0, "jitter_strength": 0, "reorder_packets": false},
      "egress":  {"rate": 1000000000, "loss": 0.01, "latency": 0, "jitter": 0, "jitter_strength": 0, "reorder_packets": false}
    },
    "flows": [
      {
        "label": "voip",
        "flow": {"ip": 0, "protocol": 17, "port_min": 10000, "port_max": 20000},
        "link": {
          "ingress": {"rate": 1000000000, "loss": 0, "latency": 20, "jitter": 10, "jitter_strength": 0.5, "reorder_packets": false},
          "egress":  {"rate": 1000000000, "loss": 0, "latency": 20, "jitter": 10, "jitter_strength": 0.5, "reorder_packets": false}
        }
      }
    ]
  }
`

// profileSnapshotInterval bounds how often the ingress/egress profile files
// are rewritten; FlowTop tables otherwise only change in memory.
const profileSnapshotInterval = 100 * time.Millisecond

func main() {
	if len(os.Args) == 2 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Fprint(os.Stdout, helpText)
		return
	}
	if len(os.Args) != 4 && len(os.Args) != 6 {
		fmt.Fprint(os.Stderr, helpText)
		os.Exit(2)
	}

	outerIf, innerIf, specPath := os.Args[1], os.Args[2], os.Args[3]
	var ingressProfile, egressProfile string
	if len(os.Args) == 6 {
		ingressProfile, egressProfile = os.Args[4], os.Args[5]
	}

	logger := rush.NewApexLogger("info")
	pool := rush.NewPool(64 * 1024)
	engine := rush.NewEngine(pool, logger)

	loadAndConfigure := func() error {
		data, err := os.ReadFile(specPath)
		if err != nil {
			return fmt.Errorf("read %s: %w", specPath, err)
		}
		spec, err := rush.ParseSpec(data)
		if err != nil {
			return err
		}
		graph := rush.BuildGraph(spec, outerIf, innerIf)
		return engine.Configure(graph)
	}

	if err := loadAndConfigure(); err != nil {
		logger.Warnf("rush: initial configuration: %s", err.Error())
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	// Signals are drained here, in the same goroutine that calls
	// engine.Breathe, rather than from a separate goroutine: Configure
	// mutates the live app/link graph with no locking of its own, relying
	// on the engine having exactly one caller. A signal-handling goroutine
	// calling Configure concurrently with Breathe would race.
	sleep := time.Duration(0)
	lastSnapshot := time.Time{}
	for !engine.Stopped() {
		select {
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				if err := loadAndConfigure(); err != nil {
					logger.Warnf("rush: reload: keeping previous configuration: %s", err.Error())
				} else {
					logger.Infof("rush: reloaded %s", specPath)
				}
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Infof("rush: shutting down")
				engine.Stop()
				continue
			}
		default:
		}

		if engine.Breathe() {
			sleep = 0
			continue
		}

		if (ingressProfile != "" || egressProfile != "") && time.Since(lastSnapshot) >= profileSnapshotInterval {
			writeProfileSnapshot(engine, "ingress_top", ingressProfile, logger)
			writeProfileSnapshot(engine, "egress_top", egressProfile, logger)
			lastSnapshot = time.Now()
		}

		if sleep < time.Millisecond {
			sleep += 10 * time.Microsecond
		}
		time.Sleep(sleep)
	}
}

// writeProfileSnapshot rewrites path with appName's current FlowTop table.
// A missing path or app name is a silent no-op; any I/O error is logged and
// otherwise ignored, since a stale or skipped snapshot is never fatal to
// forwarding traffic.
func writeProfileSnapshot(engine *rush.Engine, appName, path string, logger rush.Logger) {
	if path == "" {
		return
	}
	top, ok := engine.App(appName).(*rush.FlowTop)
	if !ok {
		return
	}
	f, err := os.Create(path)
	if err != nil {
		logger.Warnf("rush: snapshot %s: %s", path, err.Error())
		return
	}
	defer f.Close()
	if err := top.Snapshot(f); err != nil {
		logger.Warnf("rush: snapshot %s: %s", path, err.Error())
	}
}
