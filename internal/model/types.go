// Package model is the typed in-memory representation of an environment
// description: ships, registries, services, and their instances. Values in
// this package are immutable once the config loader has produced them; the
// resolver attaches ordering on top without mutating the entities.
package model

import "fmt"

// Environment is the root of the entity model: exactly one instance per
// process, produced by the config loader and never mutated afterward.
type Environment struct {
	Name         string
	SchemaVer    int
	ShipDefaults ShipDefaults
	Ships        map[string]*Ship
	Registries   map[string]*Registry
	Services     map[string]*Service
	BaseDir      string // directory the environment file was loaded from
}

// Instance looks up an instance by name across all services.
func (e *Environment) Instance(name string) (*Instance, *Service, bool) {
	for _, svc := range e.Services {
		if inst, ok := svc.Instances[name]; ok {
			return inst, svc, true
		}
	}
	return nil, nil, false
}

// AllInstances returns every instance in the environment, unordered.
func (e *Environment) AllInstances() []*Instance {
	var out []*Instance
	for _, svc := range e.Services {
		for _, inst := range svc.Instances {
			out = append(out, inst)
		}
	}
	return out
}

// ShipDefaults holds ship_defaults values applied to every ship by key,
// unless the ship sets its own value explicitly.
type ShipDefaults struct {
	DockerPort int
	APIVersion string
	Timeout    int
	SSHTimeout int
}

// ConnectionMode identifies which of the four mutually-exclusive ways a
// Ship's Docker daemon is reached.
type ConnectionMode int

const (
	ConnPlainTCP ConnectionMode = iota
	ConnTLSTCP
	ConnSSHTunnel
	ConnUnixSocket
)

// Ship is a host running a container daemon, identified by a local name
// (not necessarily resolvable as a DNS name from this process).
type Ship struct {
	Name       string
	IP         string // required: address reachable from other containers' hosts
	Endpoint   string // defaults to IP; used for the daemon connection itself
	DockerPort int
	APIVersion string
	Timeout    int
	SSHTimeout int

	SSHTunnel  *SSHTunnelConfig
	SocketPath string
	TLS        *TLSConfig

	Mode ConnectionMode
}

// SSHTunnelConfig configures an SSH-forwarded connection to a ship's daemon.
type SSHTunnelConfig struct {
	User string
	Key  string
	Port int
}

// TLSConfig configures a TLS-protected TCP connection to a ship's daemon.
type TLSConfig struct {
	Verify bool
	CACert string
	Key    string
	Cert   string
}

// EndpointOrIP returns the address used to dial this ship's daemon.
func (s *Ship) EndpointOrIP() string {
	if s.Endpoint != "" {
		return s.Endpoint
	}
	return s.IP
}

// Registry holds credentials used to authenticate image pulls whose image
// name's registry prefix matches this entry, by name or by the FQDN of URL.
type Registry struct {
	Name     string
	URL      string
	Username string
	Password string
	Email    string
}

// Service is a named group of interchangeable instances built from one
// image.
type Service struct {
	Name      string
	Image     string
	Env       map[string]string
	Lifecycle map[LifecycleState][]*LifecycleCheck
	Omit      bool

	Requires  []string // hard dependency service names, as declared
	WantsInfo []string // informational dependency service names, as declared

	Instances map[string]*Instance
}

// ImageRepoTag splits the service's image reference into repository and
// tag, defaulting the tag to "latest" when absent.
func (s *Service) ImageRepoTag() (repo, tag string) {
	return SplitImageRef(s.Image)
}

// SplitImageRef splits "repo[:tag]" into its repository and tag parts,
// defaulting tag to "latest". A registry-host prefix (containing a dot, a
// colon for a port, or being "localhost") is preserved as part of repo.
func SplitImageRef(ref string) (repo, tag string) {
	lastSlash := -1
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '/' {
			lastSlash = i
			break
		}
	}
	lastColon := -1
	for i := len(ref) - 1; i > lastSlash; i-- {
		if ref[i] == ':' {
			lastColon = i
			break
		}
	}
	if lastColon == -1 {
		return ref, "latest"
	}
	return ref[:lastColon], ref[lastColon+1:]
}

// RegistryHost returns the registry host prefix of an image reference, or
// "" if the image is unqualified (implicitly Docker Hub).
func RegistryHost(ref string) string {
	slash := -1
	for i, c := range ref {
		if c == '/' {
			slash = i
			break
		}
	}
	if slash == -1 {
		return ""
	}
	prefix := ref[:slash]
	for _, c := range prefix {
		if c == '.' || c == ':' {
			return prefix
		}
	}
	if prefix == "localhost" {
		return prefix
	}
	return ""
}

// LifecycleState is the target state a group of lifecycle checks gates a
// transition into.
type LifecycleState string

const (
	StateRunning LifecycleState = "running"
	StateStopped LifecycleState = "stopped"
)

// Instance is a single container: one service, one ship, a globally unique
// name (also used as the container name and hostname).
type Instance struct {
	Name    string
	Ship    string // ship name, resolved to *Ship by the environment
	Service string // service name, resolved to *Service by the environment

	Image string // overrides the service's image when non-empty

	Ports            map[string]*Port
	Volumes          map[string]*VolumeBinding // host path -> binding
	ContainerVolumes []string                  // in-container paths without a host bind
	VolumesFrom      []string                  // sibling instance names, same ship

	Env map[string]string // overrides service env, key by key

	Privileged bool
	CapAdd     []string
	CapDrop    []string
	ExtraHosts map[string]string // hostname -> IP

	StopTimeout int // seconds, default 10

	Memory ByteSize
	CPU    float64
	Swap   ByteSize

	LogDriver string
	LogOpt    map[string]string

	Command []string

	Net string // "bridge" (default), "host", "container:<ref>", "none"

	Restart *RestartPolicy

	DNS   []string
	Links map[string]string // sibling instance name -> alias

	Lifecycle map[LifecycleState][]*LifecycleCheck
}

// VolumeBinding is a host-path bind mount.
type VolumeBinding struct {
	Target string
	Mode   string // "ro" or "rw"
}

// RestartPolicy mirrors Docker's restart policy, with the maestro short
// form "name[:N]" normalized into it at parse time.
type RestartPolicy struct {
	Name              string // "no", "always", "on-failure", "unless-stopped"
	MaximumRetryCount int
}

// ByteSize is a byte count parsed from strings like "512m", "1g", "2048" —
// suffixes k/m/g are case-insensitive binary multipliers (1024-based).
type ByteSize int64

func (b ByteSize) String() string {
	return fmt.Sprintf("%d", int64(b))
}
