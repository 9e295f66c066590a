package rush

//
// RawSocket: promiscuous AF_PACKET I/O bound to a named host interface.
//

import (
	"fmt"
	"time"

	"github.com/google/gopacket/afpacket"
	"golang.org/x/sys/unix"
)

// rawSocketReadBudget bounds how many frames Pull drains from the kernel
// ring in one breath, mirroring PullBudget so one especially busy
// interface can't starve every other app in the graph.
const rawSocketReadBudget = PullBudget

// RawSocketConfig configures the RawSocket app.
type RawSocketConfig struct {
	// Interface is the host network interface to bind to, e.g. "eth0".
	Interface string

	// Promiscuous enables promiscuous mode on Interface so the socket
	// receives frames not addressed to the host itself.
	Promiscuous bool
}

// RawSocket reads and writes raw Ethernet frames on a host interface via
// AF_PACKET (TPacketVersion3). Pull drains up to rawSocketReadBudget frames
// per breath without blocking; Push writes until its input is empty,
// counting but never panicking on transient send errors.
type RawSocket struct {
	name    string
	pool    *Pool
	config  RawSocketConfig
	logger  Logger
	handle  *afpacket.TPacket
	txDrops uint64
}

var (
	_ App    = (*RawSocket)(nil)
	_ Puller = (*RawSocket)(nil)
	_ Pusher = (*RawSocket)(nil)
)

// NewRawSocket constructs a RawSocket app factory for use in an [AppSpec].
// Opening the interface happens eagerly, inside the factory: a failure to
// bind surfaces as a panic from Configure rather than a silently-broken
// Pull/Push pair, since there is no sensible degraded mode for a source app
// that cannot reach its interface.
func NewRawSocket(name string, cfg RawSocketConfig) func(pool *Pool, logger Logger) App {
	return func(pool *Pool, logger Logger) App {
		handle, err := openTPacket(cfg.Interface)
		if err != nil {
			panic(fmt.Sprintf("rush: raw socket %q: %s", cfg.Interface, err.Error()))
		}
		if cfg.Promiscuous {
			if err := setPromiscuous(cfg.Interface, true); err != nil {
				handle.Close()
				panic(fmt.Sprintf("rush: raw socket %q: enable promiscuous mode: %s", cfg.Interface, err.Error()))
			}
		}
		return &RawSocket{name: name, pool: pool, config: cfg, logger: logger, handle: handle}
	}
}

func openTPacket(iface string) (*afpacket.TPacket, error) {
	return afpacket.NewTPacket(
		afpacket.OptInterface(iface),
		afpacket.OptFrameSize(PacketCapacity),
		afpacket.OptBlockSize(4096*PacketCapacity),
		afpacket.OptNumBlocks(8),
		afpacket.OptPollTimeout(time.Millisecond),
		afpacket.OptTPacketVersion(afpacket.TPacketVersion3),
	)
}

func (a *RawSocket) Name() string { return a.name }

func (a *RawSocket) ConfigEqual(other App) bool {
	o, ok := other.(*RawSocket)
	return ok && o.config == a.config
}

func (a *RawSocket) Close() error {
	a.handle.Close()
	if a.config.Promiscuous {
		if err := setPromiscuous(a.config.Interface, false); err != nil {
			a.logger.Warnf("rush: raw socket %q: disable promiscuous mode: %s", a.config.Interface, err.Error())
		}
	}
	return nil
}

func (a *RawSocket) Pull(eng *Engine) {
	out := eng.Ports(a.name).Output("output")
	for i := 0; i < rawSocketReadBudget; i++ {
		data, _, err := a.handle.ZeroCopyReadPacketData()
		if err != nil {
			// Timeout (no frame ready within OptPollTimeout) is the normal
			// idle case, not a failure worth logging.
			return
		}
		if len(data) > PacketCapacity {
			continue
		}
		p := eng.Pool().Allocate()
		p.SetData(data)
		if !out.Transmit(p) {
			eng.Pool().Free(p)
		}
	}
}

func (a *RawSocket) Push(eng *Engine) {
	in := eng.Ports(a.name).Input("input")
	for {
		p, ok := in.Receive()
		if !ok {
			return
		}
		if err := a.handle.WritePacketData(p.Data()); err != nil {
			a.txDrops++
		}
		eng.Pool().Free(p)
	}
}

// setPromiscuous enables or disables promiscuous mode on iface via the
// classic SIOCGIFFLAGS/SIOCSIFFLAGS ioctl pair against a throwaway AF_INET
// datagram socket, since afpacket.TPacket exposes no promiscuous-mode
// option of its own.
func setPromiscuous(iface string, enable bool) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	defer unix.Close(fd)

	ifr, err := unix.NewIfreq(iface)
	if err != nil {
		return fmt.Errorf("ifreq: %w", err)
	}
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFFLAGS, ifr); err != nil {
		return fmt.Errorf("SIOCGIFFLAGS: %w", err)
	}

	flags := ifr.Uint16()
	if enable {
		flags |= unix.IFF_PROMISC
	} else {
		flags &^= unix.IFF_PROMISC
	}
	ifr.SetUint16(flags)

	if err := unix.IoctlIfreq(fd, unix.SIOCSIFFLAGS, ifr); err != nil {
		return fmt.Errorf("SIOCSIFFLAGS: %w", err)
	}
	return nil
}
