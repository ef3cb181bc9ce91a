package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/signalfx/maestro-go/internal/errs"
	"github.com/signalfx/maestro-go/internal/model"
)

func convert(doc *rawDoc, schema int, baseDir string) (*model.Environment, error) {
	env := &model.Environment{
		Name:      doc.Name,
		SchemaVer: schema,
		BaseDir:   baseDir,
		Ships:     make(map[string]*model.Ship),
		Registries: make(map[string]*model.Registry),
		Services:  make(map[string]*model.Service),
		ShipDefaults: model.ShipDefaults{
			DockerPort: orDefault(doc.ShipDefaults.DockerPort, 2375),
			APIVersion: doc.ShipDefaults.APIVersion,
			Timeout:    doc.ShipDefaults.Timeout,
			SSHTimeout: doc.ShipDefaults.SSHTimeout,
		},
	}

	for name, r := range doc.Registries {
		if r.Username == "" || r.Password == "" {
			return nil, &errs.ConfigError{Path: "registries." + name, Cause: fmt.Errorf("incomplete registry auth data")}
		}
		env.Registries[name] = &model.Registry{Name: name, URL: r.URL, Username: r.Username, Password: r.Password, Email: r.Email}
	}

	for name, s := range doc.Ships {
		ship, err := convertShip(name, s, env.ShipDefaults)
		if err != nil {
			return nil, &errs.ConfigError{Path: "ships." + name, Cause: err}
		}
		env.Ships[name] = ship
	}

	for name, s := range doc.Services {
		svc, err := convertService(name, s)
		if err != nil {
			return nil, &errs.ConfigError{Path: "services." + name, Cause: err}
		}
		env.Services[name] = svc
	}

	return env, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func convertShip(name string, s rawShip, defaults model.ShipDefaults) (*model.Ship, error) {
	if s.IP == "" {
		return nil, fmt.Errorf("ship %q: ip is required", name)
	}

	ship := &model.Ship{
		Name:       name,
		IP:         s.IP,
		Endpoint:   s.Endpoint,
		DockerPort: orDefault(s.DockerPort, defaults.DockerPort),
		APIVersion: firstNonEmpty(s.APIVersion, defaults.APIVersion),
		Timeout:    orDefault(s.Timeout, defaults.Timeout),
		SSHTimeout: orDefault(s.SSHTimeout, defaults.SSHTimeout),
		SocketPath: s.SocketPath,
	}
	if ship.Endpoint == "" {
		ship.Endpoint = ship.IP
	}

	modes := 0
	if s.SSHTunnel != nil {
		if s.SSHTunnel.User == "" {
			return nil, fmt.Errorf("missing SSH user for ship %q tunnel configuration", name)
		}
		if s.SSHTunnel.Key == "" {
			return nil, fmt.Errorf("missing SSH key for ship %q tunnel configuration", name)
		}
		ship.SSHTunnel = &model.SSHTunnelConfig{User: s.SSHTunnel.User, Key: s.SSHTunnel.Key, Port: orDefault(s.SSHTunnel.Port, 22)}
		ship.Mode = model.ConnSSHTunnel
		modes++
	}
	if s.TLS {
		ship.TLS = &model.TLSConfig{Verify: s.TLSVerify, CACert: s.TLSCACert, Key: s.TLSKey, Cert: s.TLSCert}
		ship.Mode = model.ConnTLSTCP
		modes++
	}
	if s.SocketPath != "" {
		ship.Mode = model.ConnUnixSocket
		modes++
	}
	if modes > 1 {
		return nil, fmt.Errorf("ship %q: connection modes are mutually exclusive (ssh_tunnel, tls, socket_path)", name)
	}
	if modes == 0 {
		ship.Mode = model.ConnPlainTCP
	}
	return ship, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func convertService(name string, s rawService) (*model.Service, error) {
	svc := &model.Service{
		Name:      name,
		Image:     s.Image,
		Env:       flattenEnvMap(s.Env),
		Omit:      s.Omit,
		Requires:  s.Requires,
		WantsInfo: s.WantsInfo,
		Instances: make(map[string]*model.Instance),
	}

	lc, err := convertLifecycle(s.Lifecycle)
	if err != nil {
		return nil, err
	}
	svc.Lifecycle = lc

	for iname, raw := range s.Instances {
		inst, err := convertInstance(iname, raw)
		if err != nil {
			return nil, fmt.Errorf("instances.%s: %w", iname, err)
		}
		inst.Service = name
		svc.Instances[iname] = inst
	}

	return svc, nil
}

func flattenEnvMap(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = flattenEnvValue(v)
	}
	return out
}

// flattenEnvValue joins list values (at any nesting level) with spaces, so
// e.g. JVM_OPTS: [ -Xms1g, [ -Xmx2g, -server ] ] becomes
// "-Xms1g -Xmx2g -server".
func flattenEnvValue(v any) string {
	switch val := v.(type) {
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = flattenEnvValue(e)
		}
		return strings.Join(parts, " ")
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func convertInstance(name string, raw rawInstance) (*model.Instance, error) {
	inst := &model.Instance{
		Name:             name,
		Ship:             raw.Ship,
		Image:            raw.Image,
		ContainerVolumes: raw.ContainerVolumes,
		VolumesFrom:      raw.VolumesFrom,
		Env:              flattenEnvMap(raw.Env),
		Privileged:       raw.Privileged,
		CapAdd:           raw.CapAdd,
		CapDrop:          raw.CapDrop,
		ExtraHosts:       raw.ExtraHosts,
		StopTimeout:      orDefault(raw.StopTimeout, 10),
		LogDriver:        raw.LogDriver,
		LogOpt:           raw.LogOpt,
		Net:              firstNonEmpty(raw.Net, "bridge"),
		DNS:              raw.DNS,
		Links:            raw.Links,
	}
	if raw.Ship == "" {
		return nil, fmt.Errorf("ship is required")
	}

	ports, err := convertPorts(raw.Ports)
	if err != nil {
		return nil, err
	}
	inst.Ports = ports

	vols, err := convertVolumes(raw.Volumes)
	if err != nil {
		return nil, err
	}
	inst.Volumes = vols

	cmd := raw.Command
	if cmd == nil {
		cmd = raw.Cmd
	}
	inst.Command = convertCommand(cmd)

	if raw.Restart != nil {
		rp, err := convertRestart(raw.Restart)
		if err != nil {
			return nil, err
		}
		inst.Restart = rp
	}

	if raw.Limits.Memory != "" {
		b, err := model.ParseByteSize(raw.Limits.Memory)
		if err != nil {
			return nil, fmt.Errorf("limits.memory: %w", err)
		}
		inst.Memory = b
	}
	if raw.Limits.Swap != "" {
		b, err := model.ParseByteSize(raw.Limits.Swap)
		if err != nil {
			return nil, fmt.Errorf("limits.swap: %w", err)
		}
		inst.Swap = b
	}
	inst.CPU = raw.Limits.CPU

	lc, err := convertLifecycle(raw.Lifecycle)
	if err != nil {
		return nil, err
	}
	inst.Lifecycle = lc

	return inst, nil
}

func convertCommand(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		return strings.Fields(v)
	case []any:
		out := make([]string, len(v))
		for i, e := range v {
			out[i] = fmt.Sprintf("%v", e)
		}
		return out
	default:
		return nil
	}
}

func convertRestart(raw any) (*model.RestartPolicy, error) {
	switch v := raw.(type) {
	case string:
		return model.ParseRestartShortForm(v)
	case map[string]any:
		rp := &model.RestartPolicy{}
		if name, ok := v["name"].(string); ok {
			rp.Name = name
		}
		if n, ok := v["maximum_retry_count"].(int); ok {
			rp.MaximumRetryCount = n
		}
		return rp, nil
	default:
		return nil, fmt.Errorf("invalid restart spec %T", raw)
	}
}

func convertPorts(raw map[string]any) (map[string]*model.Port, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(map[string]*model.Port, len(raw))
	for name, spec := range raw {
		p, err := model.ParsePortSpec(name, spec)
		if err != nil {
			return nil, fmt.Errorf("ports.%s: %w", name, err)
		}
		out[name] = p
	}
	return out, nil
}

func convertVolumes(raw map[string]any) (map[string]*model.VolumeBinding, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(map[string]*model.VolumeBinding, len(raw))
	for host, spec := range raw {
		switch v := spec.(type) {
		case string:
			h, binding, err := model.ParseVolumeShortForm(host + ":" + v)
			if err != nil {
				return nil, fmt.Errorf("volumes.%s: %w", host, err)
			}
			out[h] = binding
		case map[string]any:
			binding := &model.VolumeBinding{Mode: "rw"}
			if t, ok := v["target"].(string); ok {
				binding.Target = t
			}
			if m, ok := v["mode"].(string); ok {
				binding.Mode = m
			}
			out[host] = binding
		default:
			return nil, fmt.Errorf("volumes.%s: unsupported volume spec shape %T", host, spec)
		}
	}
	return out, nil
}

func convertLifecycle(raw map[string][]rawLifecycleCheck) (map[model.LifecycleState][]*model.LifecycleCheck, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(map[model.LifecycleState][]*model.LifecycleCheck, len(raw))
	for state, checks := range raw {
		var ms model.LifecycleState
		switch state {
		case "running":
			ms = model.StateRunning
		case "stopped":
			ms = model.StateStopped
		default:
			return nil, fmt.Errorf("lifecycle: invalid target state %q", state)
		}
		converted := make([]*model.LifecycleCheck, 0, len(checks))
		for _, c := range checks {
			mc, err := convertLifecycleCheck(c)
			if err != nil {
				return nil, fmt.Errorf("lifecycle.%s: %w", state, err)
			}
			converted = append(converted, mc)
		}
		out[ms] = converted
	}
	return out, nil
}

func convertLifecycleCheck(c rawLifecycleCheck) (*model.LifecycleCheck, error) {
	mc := &model.LifecycleCheck{}
	switch c.Type {
	case "tcp":
		mc.Kind = model.CheckTCP
		switch p := c.Port.(type) {
		case string:
			mc.PortRef = p
		case int:
			mc.Port = p
		default:
			return nil, fmt.Errorf("tcp check: port must be a name or number")
		}
		mc.MaxWait = durationOrDefault(c.MaxWait, model.DefaultMaxWait)
	case "http":
		mc.Kind = model.CheckHTTP
		switch p := c.Port.(type) {
		case string:
			mc.PortRef = p
		case int:
			mc.Port = p
		}
		mc.Host = c.Host
		mc.Scheme = firstNonEmpty(c.Scheme, model.DefaultHTTPScheme)
		mc.Method = firstNonEmpty(c.Method, model.DefaultHTTPMethod)
		mc.Path = firstNonEmpty(c.Path, model.DefaultHTTPPath)
		mc.MatchRegex = c.MatchRegex
		mc.ExtraOptions = c.Options
		mc.MaxWait = durationOrDefault(c.MaxWait, model.DefaultMaxWait)
	case "exec":
		mc.Kind = model.CheckExec
		if c.Command == "" {
			return nil, fmt.Errorf("exec check: command is required")
		}
		mc.Command = c.Command
		mc.Attempts = orDefault(c.Attempts, model.DefaultExecAttempts)
		mc.Delay = durationOrDefault(c.Delay, model.DefaultExecDelay)
	default:
		return nil, fmt.Errorf("unknown lifecycle check type %q", c.Type)
	}
	return mc, nil
}

func durationOrDefault(seconds int, def time.Duration) time.Duration {
	if seconds == 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}
