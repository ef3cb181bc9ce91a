package config

// These structs mirror the YAML document shape exactly; they are decoded
// once and then converted + validated into internal/model types by
// convert.go. Keeping the decode shape separate from the entity model lets
// the polymorphic fields (ports, volumes, lifecycle, restart) stay as "any"
// here and get shape-detected during conversion, per the "shape-first, then
// value-validate" design note.

type maestroMeta struct {
	Schema int `yaml:"schema"`
}

type rawDoc struct {
	Maestro      *maestroMeta             `yaml:"__maestro"`
	Name         string                   `yaml:"name"`
	Registries   map[string]rawRegistry   `yaml:"registries"`
	ShipDefaults rawShipDefaults          `yaml:"ship_defaults"`
	Ships        map[string]rawShip       `yaml:"ships"`
	Services     map[string]rawService    `yaml:"services"`
}

type rawRegistry struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Email    string `yaml:"email"`
}

type rawShipDefaults struct {
	DockerPort int `yaml:"docker_port"`
	APIVersion string `yaml:"api_version"`
	Timeout    int `yaml:"timeout"`
	SSHTimeout int `yaml:"ssh_timeout"`
}

type rawSSHTunnel struct {
	User string `yaml:"user"`
	Key  string `yaml:"key"`
	Port int    `yaml:"port"`
}

type rawShip struct {
	IP         string        `yaml:"ip"`
	Endpoint   string        `yaml:"endpoint"`
	DockerPort int           `yaml:"docker_port"`
	APIVersion string        `yaml:"api_version"`
	Timeout    int           `yaml:"timeout"`
	SSHTimeout int           `yaml:"ssh_timeout"`
	SSHTunnel  *rawSSHTunnel `yaml:"ssh_tunnel"`
	SocketPath string        `yaml:"socket_path"`
	TLS        bool          `yaml:"tls"`
	TLSVerify  bool          `yaml:"tls_verify"`
	TLSCACert  string        `yaml:"tls_ca_cert"`
	TLSKey     string        `yaml:"tls_key"`
	TLSCert    string        `yaml:"tls_cert"`
}

type rawLifecycleCheck struct {
	Type       string            `yaml:"type"`
	Port       any               `yaml:"port"`
	MaxWait    int               `yaml:"max_wait"`
	Host       string            `yaml:"host"`
	Scheme     string            `yaml:"scheme"`
	Method     string            `yaml:"method"`
	Path       string            `yaml:"path"`
	MatchRegex string            `yaml:"match_regex"`
	Options    map[string]string `yaml:"extra_options"`
	Command    string            `yaml:"command"`
	Attempts   int               `yaml:"attempts"`
	Delay      int               `yaml:"delay"`
}

type rawService struct {
	Image     string                         `yaml:"image"`
	Env       map[string]any                 `yaml:"env"`
	Lifecycle map[string][]rawLifecycleCheck  `yaml:"lifecycle"`
	Omit      bool                           `yaml:"omit"`
	Requires  []string                       `yaml:"requires"`
	WantsInfo []string                       `yaml:"wants_info"`
	Instances map[string]rawInstance         `yaml:"instances"`
}

type rawInstance struct {
	Ship             string                          `yaml:"ship"`
	Image            string                          `yaml:"image"`
	Ports            map[string]any                  `yaml:"ports"`
	Volumes          map[string]any                  `yaml:"volumes"`
	ContainerVolumes []string                        `yaml:"container_volumes"`
	VolumesFrom      []string                        `yaml:"volumes_from"`
	Env              map[string]any                  `yaml:"env"`
	Privileged       bool                            `yaml:"privileged"`
	CapAdd           []string                        `yaml:"cap_add"`
	CapDrop          []string                        `yaml:"cap_drop"`
	ExtraHosts       map[string]string               `yaml:"extra_hosts"`
	StopTimeout      int                             `yaml:"stop_timeout"`
	Limits           rawLimits                       `yaml:"limits"`
	LogDriver        string                          `yaml:"log_driver"`
	LogOpt           map[string]string               `yaml:"log_opt"`
	Command          any                              `yaml:"command"`
	Cmd              any                              `yaml:"cmd"`
	Net              string                          `yaml:"net"`
	Restart          any                             `yaml:"restart"`
	DNS              []string                        `yaml:"dns"`
	Links            map[string]string               `yaml:"links"`
	Lifecycle        map[string][]rawLifecycleCheck   `yaml:"lifecycle"`
}

type rawLimits struct {
	Memory string  `yaml:"memory"`
	CPU    float64 `yaml:"cpu"`
	Swap   string  `yaml:"swap"`
}
