// Package errs holds the typed error taxonomy shared across the config
// loader, resolver, and orchestrator. Each type implements error and wraps
// its cause so callers can still errors.Is/As through to the root.
package errs

import "fmt"

// ConfigError reports a structural, schema, or enum-value failure found
// while loading the environment description. Fatal: no operation proceeds.
type ConfigError struct {
	Path  string // YAML path, e.g. "services.web.instances.web-1.ports"
	Cause error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config error: %v", e.Cause)
	}
	return fmt.Sprintf("config error at %s: %v", e.Path, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// SchemaVersionError is raised when __maestro.schema names an unsupported
// schema version.
type SchemaVersionError struct {
	Got, Max int
}

func (e *SchemaVersionError) Error() string {
	return fmt.Sprintf("unsupported schema version %d (max supported is %d)", e.Got, e.Max)
}

// CycleError reports a dependency cycle detected over the requires graph.
type CycleError struct {
	Cycle []string // e.g. ["a", "b", "a"]
}

func (e *CycleError) Error() string {
	s := ""
	for i, n := range e.Cycle {
		if i > 0 {
			s += " -> "
		}
		s += n
	}
	return fmt.Sprintf("dependency cycle detected: %s", s)
}

// ResolveError reports a post-parse structural failure: volumes_from
// crossing ships, an unknown port name in a lifecycle check, and similar.
type ResolveError struct {
	Subject string
	Cause   error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("cannot resolve %s: %v", e.Subject, e.Cause)
}

func (e *ResolveError) Unwrap() error { return e.Cause }

// ConnectionError reports that a ship's daemon could not be reached.
// Per-ship fatal: every instance on that ship is reported failed.
type ConnectionError struct {
	Ship  string
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to ship %s: %v", e.Ship, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// ControllerError reports that a specific daemon call failed. Per-instance
// fatal; the rest of the walk continues unless --stop-on-failure was set.
type ControllerError struct {
	Instance string
	Phase    string // "pull", "create", "start", "stop", "remove", "inspect"
	Cause    error
}

func (e *ControllerError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Instance, e.Phase, e.Cause)
}

func (e *ControllerError) Unwrap() error { return e.Cause }

// ProbeTimeout reports that a lifecycle check did not pass within its
// configured budget.
type ProbeTimeout struct {
	Instance string
	Kind     string // "tcp", "http", "exec"
	Tag      string // identifying detail: port name, path, command
}

func (e *ProbeTimeout) Error() string {
	return fmt.Sprintf("%s: probe-timeout(%s, %s)", e.Instance, e.Kind, e.Tag)
}

// ProbeFailure reports that a lifecycle check's precondition was invalid
// (e.g. referencing an unknown port), distinct from merely timing out.
type ProbeFailure struct {
	Instance string
	Kind     string
	Cause    error
}

func (e *ProbeFailure) Error() string {
	return fmt.Sprintf("%s: probe-failure(%s): %v", e.Instance, e.Kind, e.Cause)
}

func (e *ProbeFailure) Unwrap() error { return e.Cause }

// InterruptedError reports user-initiated cancellation of an in-progress
// orchestration run.
type InterruptedError struct{}

func (e *InterruptedError) Error() string { return "interrupted by user" }

// UpstreamFailure marks an instance that was skipped or whose gating
// dependency failed; distinguishes it in reports from a direct failure.
type UpstreamFailure struct {
	Instance   string
	Dependency string
}

func (e *UpstreamFailure) Error() string {
	return fmt.Sprintf("%s: failed: upstream (%s)", e.Instance, e.Dependency)
}
