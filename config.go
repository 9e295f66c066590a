package rush

//
// Config: the JSON QoS spec schema, parsing, and validation.
//

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

// DefaultLabel is the reserved flow label naming the bucket every packet
// that matches no explicit flow rule falls into. A spec that declares a
// flow rule under this label is rejected.
const DefaultLabel = "default"

// flowLabelPattern constrains a flow's Label to the wire schema's
// "[A-Za-z0-9_]+" grammar.
var flowLabelPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// QoS is one direction's independent degradation pipeline: every field is
// always present on the wire (there is no optional sub-object per stage),
// so a zero value has real meaning per field — notably Rate == 0 means "no
// packets pass", not "no rate limiting".
type QoS struct {
	Rate           uint64  `json:"rate"`
	Loss           float64 `json:"loss"`
	LatencyMs      uint32  `json:"latency"`
	JitterMs       uint32  `json:"jitter"`
	JitterStrength float64 `json:"jitter_strength"`
	ReorderPackets bool    `json:"reorder_packets"`
}

// Link pairs the independent QoS pipelines applied to traffic entering from
// outer_if (Ingress) and traffic leaving through outer_if (Egress), for one
// flow label or for the default.
type Link struct {
	Ingress QoS `json:"ingress"`
	Egress  QoS `json:"egress"`
}

// FlowMatch is a flow's exact-match rule: IP, if nonzero, must equal the
// packet's address exactly (not a containing subnet). IP == 0, Protocol ==
// 0, and PortMin == 0 with PortMax == 65535 each act as a wildcard on their
// respective field; a rule matches a packet iff every field matches (or
// wildcards).
type FlowMatch struct {
	IP       uint32 `json:"ip"`
	Protocol uint8  `json:"protocol"`
	PortMin  uint16 `json:"port_min"`
	PortMax  uint16 `json:"port_max"`
}

// FlowSpec is one named flow: its matching rule and its own ingress/egress
// QoS pipelines, independent of every other flow's.
type FlowSpec struct {
	Label string    `json:"label"`
	Flow  FlowMatch `json:"flow"`
	Link  Link      `json:"link"`
}

// Spec is the complete QoS configuration: the pipeline applied to traffic
// matching no flow rule, and the ordered, first-match-wins flow list.
type Spec struct {
	DefaultLink Link       `json:"default_link"`
	Flows       []FlowSpec `json:"flows"`
}

// ParseSpec parses and validates a JSON-encoded [Spec]. On any error the
// caller should keep running its previous configuration rather than apply
// a partial or invalid one.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("rush: parse config: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks structural invariants the JSON decoder alone can't
// enforce: unique, well-formed, non-reserved flow labels; port_min <=
// port_max; and every QoS's loss and jitter_strength fractions in [0,1].
func (spec *Spec) Validate() error {
	seen := make(map[string]bool, len(spec.Flows))
	for _, f := range spec.Flows {
		if !flowLabelPattern.MatchString(f.Label) {
			return fmt.Errorf("rush: config: invalid flow label %q", f.Label)
		}
		if f.Label == DefaultLabel {
			return fmt.Errorf("rush: config: flow label %q is reserved", DefaultLabel)
		}
		if seen[f.Label] {
			return fmt.Errorf("rush: config: duplicate flow label %q", f.Label)
		}
		seen[f.Label] = true

		if f.Flow.PortMin > f.Flow.PortMax {
			return fmt.Errorf("rush: config: flow %q: port_min %d exceeds port_max %d", f.Label, f.Flow.PortMin, f.Flow.PortMax)
		}
		if err := validateQoS(f.Label+".ingress", f.Link.Ingress); err != nil {
			return err
		}
		if err := validateQoS(f.Label+".egress", f.Link.Egress); err != nil {
			return err
		}
	}

	if err := validateQoS("default_link.ingress", spec.DefaultLink.Ingress); err != nil {
		return err
	}
	if err := validateQoS("default_link.egress", spec.DefaultLink.Egress); err != nil {
		return err
	}
	return nil
}

func validateQoS(label string, q QoS) error {
	if q.Loss < 0 || q.Loss > 1 {
		return fmt.Errorf("rush: config: %s: loss %v out of [0,1]", label, q.Loss)
	}
	if q.JitterStrength < 0 || q.JitterStrength > 1 {
		return fmt.Errorf("rush: config: %s: jitter_strength %v out of [0,1]", label, q.JitterStrength)
	}
	return nil
}

// FlowRules compiles spec's flow list into [FlowRule] values Split can use,
// in the same order (first-match-wins is preserved).
func (spec *Spec) FlowRules() []FlowRule {
	rules := make([]FlowRule, 0, len(spec.Flows))
	for _, f := range spec.Flows {
		rules = append(rules, FlowRule{
			Label:    f.Label,
			IP:       f.Flow.IP,
			Protocol: f.Flow.Protocol,
			Ports:    PortRange{Low: f.Flow.PortMin, High: f.Flow.PortMax},
		})
	}
	return rules
}

// directionQoS returns the QoS pipeline label should use in the given
// direction: the matching flow's own Link.Ingress/Link.Egress, or
// spec.DefaultLink's for [DefaultLabel]. Ingress and egress are looked up
// independently, so the same label can (and often does) carry different
// QoS in each direction.
func directionQoS(spec *Spec, label string, ingress bool) QoS {
	link := spec.DefaultLink
	for _, f := range spec.Flows {
		if f.Label == label {
			link = f.Link
			break
		}
	}
	if ingress {
		return link.Ingress
	}
	return link.Egress
}
