package main

import (
	"sort"
	"strings"

	"github.com/signalfx/maestro-go/internal/model"
)

// TargetSet is the CLI's resolution of its positional arguments: which
// services to touch, and — for a service matched only through one or more
// of its own instance names rather than its service name — which instances
// of it to restrict to. A service absent from Instances (or present with no
// entries) runs against every one of its instances, same as the original's
// parse_thing resolving a bare service name to all of that service's
// containers; a service present with entries runs against only those,
// mirroring parse_thing resolving a single container name to that one
// Container and nothing else.
type TargetSet struct {
	Services  []string
	Instances map[string][]string
}

// resolveTargets turns the CLI's positional arguments into a TargetSet. Each
// argument substring-matches either a service name or an instance name. A
// match on the service name itself marks the whole service as targeted,
// overriding any narrower instance-only matches already recorded for it,
// since the original's parse_thing treats a service-name match as "all of
// its containers" regardless of what else was typed. A match on an instance
// name, when the owning service itself was never matched by name, narrows
// that service's run to just the matched instances — the original's
// parse_thing resolves a matching container name to exactly that one
// Container, never its siblings. No arguments means "every service"
// (reported as a nil TargetSet, which Orchestrator.Run already treats that
// way).
func resolveTargets(env *model.Environment, args []string) TargetSet {
	if len(args) == 0 {
		return TargetSet{}
	}

	services := make(map[string]bool)
	wholeService := make(map[string]bool)
	instances := make(map[string]map[string]bool)

	for _, arg := range args {
		for name, svc := range env.Services {
			if strings.Contains(name, arg) {
				services[name] = true
				wholeService[name] = true
				continue
			}
			for instName := range svc.Instances {
				if strings.Contains(instName, arg) {
					services[name] = true
					if instances[name] == nil {
						instances[name] = make(map[string]bool)
					}
					instances[name][instName] = true
				}
			}
		}
	}

	out := TargetSet{Instances: make(map[string][]string)}
	for name := range services {
		out.Services = append(out.Services, name)
		if wholeService[name] {
			continue
		}
		names := make([]string, 0, len(instances[name]))
		for instName := range instances[name] {
			names = append(names, instName)
		}
		sort.Strings(names)
		out.Instances[name] = names
	}
	sort.Strings(out.Services)
	return out
}
