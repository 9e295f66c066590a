package rush

//
// Capture: an optional debug tap that mirrors traffic to a PCAP file.
//

import (
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// captureSnapLen bounds how many bytes of each packet are written to the
// capture file; a full 10KB PacketCapacity payload per frame would make a
// debug capture needlessly large.
const captureSnapLen = 256

// CaptureConfig configures the Capture app.
type CaptureConfig struct {
	// Filename is the PCAP file to write. Capture is meant for short,
	// manually-enabled debugging sessions, not production operation: it
	// writes synchronously on the breathe loop's own thread, trading
	// throughput for the simplicity of never needing its own goroutine.
	Filename string
}

// Capture forwards every packet from its single input to its single output
// unmodified, and appends a truncated copy of each to a PCAP file.
type Capture struct {
	name   string
	pool   *Pool
	config CaptureConfig
	logger Logger
	file   *os.File
	writer *pcapgo.Writer
}

var (
	_ App    = (*Capture)(nil)
	_ Pusher = (*Capture)(nil)
)

// NewCapture constructs a Capture app factory for use in an [AppSpec].
func NewCapture(name string, cfg CaptureConfig) func(pool *Pool, logger Logger) App {
	return func(pool *Pool, logger Logger) App {
		c := &Capture{name: name, pool: pool, config: cfg, logger: logger}
		f, err := os.Create(cfg.Filename)
		if err != nil {
			logger.Warnf("rush: capture %q: %s", cfg.Filename, err.Error())
			return c
		}
		w := pcapgo.NewWriter(f)
		if err := w.WriteFileHeader(captureSnapLen, layers.LinkTypeEthernet); err != nil {
			logger.Warnf("rush: capture %q: write header: %s", cfg.Filename, err.Error())
			f.Close()
			return c
		}
		c.file, c.writer = f, w
		return c
	}
}

func (a *Capture) Name() string { return a.name }

func (a *Capture) ConfigEqual(other App) bool {
	o, ok := other.(*Capture)
	return ok && o.config == a.config
}

func (a *Capture) Close() error {
	if a.file == nil {
		return nil
	}
	return a.file.Close()
}

func (a *Capture) Push(eng *Engine) {
	ports := eng.Ports(a.name)
	in := ports.Input("input")
	out := ports.Output("output")
	now := eng.Now()

	for {
		p, ok := in.Receive()
		if !ok {
			return
		}
		if a.writer != nil {
			a.writePacket(now, p.Data())
		}
		if !out.Transmit(p) {
			a.pool.Free(p)
		}
	}
}

func (a *Capture) writePacket(now time.Time, data []byte) {
	snap := len(data)
	if snap > captureSnapLen {
		snap = captureSnapLen
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     now,
		CaptureLength: snap,
		Length:        len(data),
	}
	if err := a.writer.WritePacket(ci, data[:snap]); err != nil {
		a.logger.Warnf("rush: capture: write packet: %s", err.Error())
	}
}
