package config

import (
	"fmt"

	"github.com/signalfx/maestro-go/internal/errs"
	"github.com/signalfx/maestro-go/internal/model"
)

// validate checks cross-reference integrity that convert cannot check in
// isolation: instance ship references, service dependency names, and the
// volumes_from same-ship invariant. It does not check for dependency
// cycles; that is the resolver's job.
func validate(env *model.Environment) error {
	for sname, svc := range env.Services {
		for dname := range svc.Instances {
			inst := svc.Instances[dname]
			if _, ok := env.Ships[inst.Ship]; !ok {
				return &errs.ConfigError{
					Path:  fmt.Sprintf("services.%s.instances.%s.ship", sname, dname),
					Cause: fmt.Errorf("no such ship %q", inst.Ship),
				}
			}
			for _, fromName := range inst.VolumesFrom {
				from, _, ok := env.Instance(fromName)
				if !ok {
					return &errs.ResolveError{
						Subject: fmt.Sprintf("services.%s.instances.%s.volumes_from %q", sname, dname, fromName),
						Cause:   fmt.Errorf("no such instance"),
					}
				}
				if from.Ship != inst.Ship {
					return &errs.ResolveError{
						Subject: fmt.Sprintf("services.%s.instances.%s.volumes_from %q", sname, dname, fromName),
						Cause:   fmt.Errorf("instance is on ship %q, not %q", from.Ship, inst.Ship),
					}
				}
			}
			for _, check := range allChecks(inst.Lifecycle) {
				if check.Kind != model.CheckTCP && check.Kind != model.CheckHTTP {
					continue
				}
				if check.PortRef == "" {
					continue
				}
				if _, ok := inst.Ports[check.PortRef]; !ok {
					return &errs.ResolveError{
						Subject: fmt.Sprintf("services.%s.instances.%s.lifecycle", sname, dname),
						Cause: fmt.Errorf("%s check references unknown port %q", check.Kind, check.PortRef),
					}
				}
			}
		}

		for _, dep := range svc.Requires {
			if _, ok := env.Services[dep]; !ok {
				return &errs.ConfigError{
					Path:  fmt.Sprintf("services.%s.requires", sname),
					Cause: fmt.Errorf("no such service %q", dep),
				}
			}
		}
		for _, dep := range svc.WantsInfo {
			if _, ok := env.Services[dep]; !ok {
				return &errs.ConfigError{
					Path:  fmt.Sprintf("services.%s.wants_info", sname),
					Cause: fmt.Errorf("no such service %q", dep),
				}
			}
		}
	}
	return nil
}

func allChecks(lc map[model.LifecycleState][]*model.LifecycleCheck) []*model.LifecycleCheck {
	var out []*model.LifecycleCheck
	for _, checks := range lc {
		out = append(out, checks...)
	}
	return out
}
