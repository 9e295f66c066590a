package rush

//
// Header parsing and flow-key extraction, built on gopacket.
//

import (
	"errors"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrShortPacket indicates the packet is too short to contain even an IP
// version nibble.
var ErrShortPacket = errors.New("rush: packet too short to dissect")

// ErrUnsupportedNetwork indicates the packet's network-layer protocol is not
// IPv4. Flow classification treats this the same as "no rule matched": it
// falls through to the default class, per the non-goal that IPv6 flows are
// not classified.
var ErrUnsupportedNetwork = errors.New("rush: unsupported network protocol")

// ErrUnsupportedTransport indicates the packet's transport-layer protocol is
// none of TCP, UDP, or ICMP.
var ErrUnsupportedTransport = errors.New("rush: unsupported transport protocol")

// DissectedPacket is a parsed IPv4 packet with its transport layer, if any
// of the supported ones is present. The zero value is invalid; construct
// with [Dissect].
type DissectedPacket struct {
	raw  gopacket.Packet
	IPv4 *layers.IPv4
	TCP  *layers.TCP
	UDP  *layers.UDP
	ICMP *layers.ICMPv4
}

// Dissect parses raw as an IPv4 packet carrying TCP, UDP, or ICMP. It
// returns [ErrUnsupportedNetwork] for anything other than IPv4 (including
// IPv6, per the classifier's non-goal) and [ErrUnsupportedTransport] for any
// IPv4 payload that isn't TCP/UDP/ICMP.
func Dissect(raw []byte) (*DissectedPacket, error) {
	if len(raw) < 1 {
		return nil, ErrShortPacket
	}
	if version := raw[0] >> 4; version != 4 {
		return nil, ErrUnsupportedNetwork
	}

	pkt := gopacket.NewPacket(raw, layers.LayerTypeIPv4, gopacket.Lazy)
	ipLayer := pkt.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return nil, ErrUnsupportedNetwork
	}
	dp := &DissectedPacket{raw: pkt, IPv4: ipLayer.(*layers.IPv4)}

	switch dp.IPv4.Protocol {
	case layers.IPProtocolTCP:
		tcpLayer := pkt.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil {
			return nil, ErrUnsupportedTransport
		}
		dp.TCP = tcpLayer.(*layers.TCP)
	case layers.IPProtocolUDP:
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			return nil, ErrUnsupportedTransport
		}
		dp.UDP = udpLayer.(*layers.UDP)
	case layers.IPProtocolICMPv4:
		icmpLayer := pkt.Layer(layers.LayerTypeICMPv4)
		if icmpLayer == nil {
			return nil, ErrUnsupportedTransport
		}
		dp.ICMP = icmpLayer.(*layers.ICMPv4)
	default:
		return nil, ErrUnsupportedTransport
	}
	return dp, nil
}

// SourceIP returns the packet's source address.
func (dp *DissectedPacket) SourceIP() net.IP {
	return dp.IPv4.SrcIP
}

// DestinationIP returns the packet's destination address.
func (dp *DissectedPacket) DestinationIP() net.IP {
	return dp.IPv4.DstIP
}

// Protocol returns the packet's IP protocol number.
func (dp *DissectedPacket) Protocol() layers.IPProtocol {
	return dp.IPv4.Protocol
}

// SourcePort returns the packet's source port, or 0 for ICMP (which has no
// port; a classifier rule's port range matches it only if the range starts
// at 0, as the {0, 65535} wildcard does).
func (dp *DissectedPacket) SourcePort() uint16 {
	switch {
	case dp.TCP != nil:
		return uint16(dp.TCP.SrcPort)
	case dp.UDP != nil:
		return uint16(dp.UDP.SrcPort)
	default:
		return 0
	}
}

// DestinationPort returns the packet's destination port, or 0 for ICMP.
func (dp *DissectedPacket) DestinationPort() uint16 {
	switch {
	case dp.TCP != nil:
		return uint16(dp.TCP.DstPort)
	case dp.UDP != nil:
		return uint16(dp.UDP.DstPort)
	default:
		return 0
	}
}

// IPv4ChecksumIsZero reports whether the wire IPv4 header checksum field is
// zero, i.e. the sender asked us to fill it in.
func (dp *DissectedPacket) IPv4ChecksumIsZero() bool {
	return dp.IPv4.Checksum == 0
}

// TransportChecksumIsZero reports whether the wire TCP/UDP checksum field is
// zero. Always false for ICMP, which this engine never recomputes.
func (dp *DissectedPacket) TransportChecksumIsZero() bool {
	switch {
	case dp.TCP != nil:
		return dp.TCP.Checksum == 0
	case dp.UDP != nil:
		return dp.UDP.Checksum == 0
	default:
		return false
	}
}

// Serialize re-serializes the (possibly checksum-zeroed) packet, optionally
// recomputing the IPv4 header checksum and/or the transport pseudo-header
// checksum. Fields left as parsed (including an already-nonzero checksum)
// are passed through unchanged.
func (dp *DissectedPacket) Serialize(fixIPv4Checksum, fixTransportChecksum bool) ([]byte, error) {
	opts := gopacket.SerializeOptions{
		FixLengths:       false,
		ComputeChecksums: false,
	}
	wireIPv4Checksum := dp.IPv4.Checksum

	if fixTransportChecksum {
		switch {
		case dp.TCP != nil:
			dp.TCP.SetNetworkLayerForChecksum(dp.IPv4)
		case dp.UDP != nil:
			dp.UDP.SetNetworkLayerForChecksum(dp.IPv4)
		}
	}

	// gopacket computes either all checksums in a serialize pass or none;
	// since the two fixups are independently toggleable we serialize the
	// IPv4 layer's checksum field directly when only it needs recomputing,
	// and fall back to the packet-wide pass when both (or the transport
	// checksum alone) need recomputing. When the transport checksum alone
	// is fixed, the wire IPv4 checksum is written back after the pass.
	switch {
	case fixIPv4Checksum && fixTransportChecksum:
		opts.ComputeChecksums = true
	case fixTransportChecksum:
		opts.ComputeChecksums = true
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializePacket(buf, opts, dp.raw); err != nil {
		return nil, err
	}
	out := buf.Bytes()

	if fixIPv4Checksum && !opts.ComputeChecksums {
		fixIPv4HeaderChecksumInPlace(out)
	}
	if !fixIPv4Checksum && opts.ComputeChecksums && len(out) >= 12 {
		dp.IPv4.Checksum = wireIPv4Checksum
		out[10] = byte(wireIPv4Checksum >> 8)
		out[11] = byte(wireIPv4Checksum)
	}
	return out, nil
}

// fixIPv4HeaderChecksumInPlace recomputes the IPv4 header checksum of a
// serialized packet whose header checksum field is exactly as parsed
// (length unchanged), writing the result into the wire bytes directly. Used
// when only the IPv4 checksum needs recomputing and the transport layer's
// checksum must be left exactly as it arrived.
func fixIPv4HeaderChecksumInPlace(b []byte) {
	if len(b) < 20 {
		return
	}
	ihl := int(b[0]&0x0f) * 4
	if ihl < 20 || ihl > len(b) {
		return
	}
	b[10], b[11] = 0, 0
	var sum uint32
	for i := 0; i+1 < ihl; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if ihl%2 == 1 {
		sum += uint32(b[ihl-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	checksum := ^uint16(sum)
	b[10] = byte(checksum >> 8)
	b[11] = byte(checksum)
}
