package model

import (
	"fmt"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
)

// Port is the normalized tuple for a named port mapping.
type Port struct {
	Name           string
	ExposedPort    int
	ExposedProto   string // "tcp" or "udp"
	ExternalPort   int
	ExternalProto  string
	BindAddr       string // defaults to "0.0.0.0"
}

// Canonical renders a Port back to its long-form string representation,
// "bindAddr:exposedPort:externalPort/proto" when a non-default bind
// address is set, else "exposedPort:externalPort/proto" — the same A:B
// order ParsePortSpec's colon form reads (exposed=A, external=B). Used for
// the canonicalize(serialize(canonicalize(x))) == canonicalize(x)
// round-trip law.
func (p *Port) Canonical() string {
	base := fmt.Sprintf("%d:%d/%s", p.ExposedPort, p.ExternalPort, p.ExposedProto)
	if p.BindAddr != "" && p.BindAddr != "0.0.0.0" {
		return p.BindAddr + ":" + base
	}
	return base
}

// ParsePortSpec normalizes one of the YAML port-spec shapes (already
// decoded into a generic any by the YAML layer) into a canonical *Port.
// Accepted shapes, per the grammar in the specification:
//
//	123                -> exposed=123/tcp, external=123/tcp, bind=0.0.0.0
//	"123/udp"          -> proto udp both sides
//	"8080:80"          -> exposed=8080, external=80 (protocols must match;
//	                      a protocol given only on the external side applies to both)
//	"addr:8080:80"     -> as above, bound to addr
//	{exposed, external} with external possibly [addr, port-spec]
func ParsePortSpec(name string, raw any) (*Port, error) {
	switch v := raw.(type) {
	case int:
		return bareIntPort(name, v)
	case int64:
		return bareIntPort(name, int(v))
	case string:
		return stringPort(name, v)
	case map[string]any:
		return dictPort(name, v)
	case map[any]any:
		conv := make(map[string]any, len(v))
		for k, val := range v {
			conv[fmt.Sprintf("%v", k)] = val
		}
		return dictPort(name, conv)
	default:
		return nil, fmt.Errorf("port %q: unsupported port spec shape %T", name, raw)
	}
}

func bareIntPort(name string, n int) (*Port, error) {
	return &Port{
		Name:          name,
		ExposedPort:   n,
		ExposedProto:  "tcp",
		ExternalPort:  n,
		ExternalProto: "tcp",
		BindAddr:      "0.0.0.0",
	}, nil
}

func stringPort(name, s string) (*Port, error) {
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		bindAddr := "0.0.0.0"
		if len(parts) == 3 {
			bindAddr, parts = parts[0], parts[1:]
		}
		if len(parts) != 2 {
			return nil, fmt.Errorf("port %q: invalid port spec %q", name, s)
		}
		exposed, eproto, err := parsePortProto(parts[0])
		if err != nil {
			return nil, fmt.Errorf("port %q: %w", name, err)
		}
		external, xproto, err := parsePortProto(parts[1])
		if err != nil {
			return nil, fmt.Errorf("port %q: %w", name, err)
		}
		if !strings.Contains(parts[0], "/") {
			eproto = xproto
		}
		if eproto != xproto {
			return nil, fmt.Errorf("port %q: mismatched protocols between %s and %s", name, parts[0], parts[1])
		}
		return &Port{
			Name: name, ExposedPort: exposed, ExposedProto: eproto,
			ExternalPort: external, ExternalProto: xproto, BindAddr: bindAddr,
		}, nil
	}

	n, proto, err := parsePortProto(s)
	if err != nil {
		return nil, fmt.Errorf("port %q: %w", name, err)
	}
	return &Port{
		Name: name, ExposedPort: n, ExposedProto: proto,
		ExternalPort: n, ExternalProto: proto, BindAddr: "0.0.0.0",
	}, nil
}

func dictPort(name string, v map[string]any) (*Port, error) {
	exposedRaw, ok := v["exposed"]
	if !ok {
		return nil, fmt.Errorf("port %q: dict form requires \"exposed\"", name)
	}
	externalRaw, ok := v["external"]
	if !ok {
		return nil, fmt.Errorf("port %q: dict form requires \"external\"", name)
	}

	exposed, eproto, err := parsePortProtoAny(exposedRaw)
	if err != nil {
		return nil, fmt.Errorf("port %q: exposed: %w", name, err)
	}

	bindAddr := "0.0.0.0"
	var externalVal any = externalRaw
	if list, ok := externalRaw.([]any); ok {
		if len(list) != 2 {
			return nil, fmt.Errorf("port %q: external list must be [addr, port-spec]", name)
		}
		bindAddr = fmt.Sprintf("%v", list[0])
		externalVal = list[1]
	}

	external, xproto, err := parsePortProtoAny(externalVal)
	if err != nil {
		return nil, fmt.Errorf("port %q: external: %w", name, err)
	}
	if eproto != xproto {
		return nil, fmt.Errorf("port %q: mismatched protocols between exposed and external", name)
	}

	return &Port{
		Name: name, ExposedPort: exposed, ExposedProto: eproto,
		ExternalPort: external, ExternalProto: xproto, BindAddr: bindAddr,
	}, nil
}

func parsePortProtoAny(raw any) (int, string, error) {
	switch v := raw.(type) {
	case int:
		return v, "tcp", nil
	case int64:
		return int(v), "tcp", nil
	case string:
		return parsePortProto(v)
	default:
		return 0, "", fmt.Errorf("unsupported port value shape %T", raw)
	}
}

// parsePortProto parses "N" or "N/tcp" or "N/udp".
func parsePortProto(s string) (int, string, error) {
	proto := "tcp"
	numPart := s
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		numPart = s[:idx]
		proto = s[idx+1:]
	}
	n, err := strconv.Atoi(numPart)
	if err != nil {
		return 0, "", fmt.Errorf("invalid port number %q", numPart)
	}
	if proto != "tcp" && proto != "udp" {
		return 0, "", fmt.Errorf("invalid protocol %q (expected tcp or udp)", proto)
	}
	return n, proto, nil
}

// ParseVolumeShortForm parses "host: container" or "host:container:mode"
// into a VolumeBinding target/mode pair, per the short-form grammar.
func ParseVolumeShortForm(s string) (host string, binding *VolumeBinding, err error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		return strings.TrimSpace(parts[0]), &VolumeBinding{Target: strings.TrimSpace(parts[1]), Mode: "rw"}, nil
	case 3:
		mode := strings.TrimSpace(parts[2])
		if mode != "ro" && mode != "rw" {
			return "", nil, fmt.Errorf("invalid volume mode %q", mode)
		}
		return strings.TrimSpace(parts[0]), &VolumeBinding{Target: strings.TrimSpace(parts[1]), Mode: mode}, nil
	default:
		return "", nil, fmt.Errorf("invalid volume short form %q", s)
	}
}

// ParseRestartShortForm parses "name[:N]" into a RestartPolicy.
func ParseRestartShortForm(s string) (*RestartPolicy, error) {
	parts := strings.SplitN(s, ":", 2)
	rp := &RestartPolicy{Name: parts[0]}
	if len(parts) == 2 {
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid restart retry count %q", parts[1])
		}
		rp.MaximumRetryCount = n
	}
	return rp, nil
}

// ParseByteSize parses byte sizes with case-insensitive k/m/g suffixes
// ("1g" == "1G" == 1073741824; "500m" == 524288000), the same "b/kb/mb/gb"
// grammar Docker's own -m/--memory flag accepts. Plain integers are bytes.
// Malformed inputs return an error. Delegates to go-units' RAMInBytes
// rather than hand-rolling the suffix table, since that is exactly the
// parsing it exists for.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(n), nil
}
