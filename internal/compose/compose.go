// Package compose builds the final environment variable map injected into a
// container: the service's own env, discovery variables describing sibling
// instances and declared dependencies, and the instance's own env layered
// last so explicit per-instance values always win. It is the teacher's
// docker-compose-file package repurposed to maestro's notion of composing an
// instance's environment rather than parsing a compose file.
package compose

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/signalfx/maestro-go/internal/model"
)

var nonWord = regexp.MustCompile(`[^\w]`)

// envName upper-cases a name and replaces every non-word character with an
// underscore, matching the original link-variable naming scheme.
func envName(name string) string {
	return strings.ToUpper(nonWord.ReplaceAllString(name, "_"))
}

// Compose builds the full environment for inst: the mandatory base
// variables (identity plus the resolved image/tag), then service env, then
// discovery variables (a self-link block, then one block per declared
// dependency, both including internal ports), then the instance's own env
// on top so it always wins on key collision.
func Compose(env *model.Environment, inst *model.Instance) (map[string]string, error) {
	svc, ok := env.Services[inst.Service]
	if !ok {
		return nil, fmt.Errorf("instance %s: service %q not found", inst.Name, inst.Service)
	}
	ship, ok := env.Ships[inst.Ship]
	if !ok {
		return nil, fmt.Errorf("instance %s: ship %q not found", inst.Name, inst.Ship)
	}

	image := inst.Image
	if image == "" {
		image = svc.Image
	}
	repo, tag := model.SplitImageRef(image)

	out := make(map[string]string)
	out["MAESTRO_ENVIRONMENT_NAME"] = env.Name
	out["SERVICE_NAME"] = svc.Name
	out["CONTAINER_NAME"] = inst.Name
	out["DOCKER_IMAGE"] = repo
	out["DOCKER_TAG"] = tag
	mergeInto(out, svc.Env)

	selfLinks, err := serviceLinkVariables(env, svc)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", inst.Name, err)
	}
	mergeInto(out, selfLinks)

	for _, depName := range dedupAppend(svc.Requires, svc.WantsInfo) {
		dep, ok := env.Services[depName]
		if !ok {
			continue
		}
		links, err := serviceLinkVariables(env, dep)
		if err != nil {
			return nil, fmt.Errorf("instance %s: dependency %s: %w", inst.Name, depName, err)
		}
		mergeInto(out, links)
	}

	out["CONTAINER_HOST_ADDRESS"] = ship.IP
	mergeInto(out, inst.Env)
	return out, nil
}

func dedupAppend(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func mergeInto(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

// serviceLinkVariables returns the "<SERVICE>_<INSTANCE>_HOST" /
// "..._<PORT>_PORT" / "..._<PORT>_INTERNAL_PORT" block for every instance of
// svc, prefixed with the service's env-safe basename, plus
// "<SERVICE>_INSTANCES" listing instance names. Used for both a service's
// own instances and those of its declared dependencies — discovery always
// includes the internal (container-side) port alongside the external one.
func serviceLinkVariables(env *model.Environment, svc *model.Service) (map[string]string, error) {
	base := envName(svc.Name)
	out := make(map[string]string)

	var names []string
	for n := range svc.Instances {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, iname := range names {
		inst := svc.Instances[iname]
		links, err := instanceLinkVariables(env, inst)
		if err != nil {
			return nil, err
		}
		for k, v := range links {
			out[base+"_"+k] = v
		}
	}
	out[base+"_INSTANCES"] = strings.Join(names, ",")
	return out, nil
}

// instanceLinkVariables returns "<INSTANCE>_HOST", "<INSTANCE>_<PORT>_PORT",
// and "<INSTANCE>_<PORT>_INTERNAL_PORT" for inst's ship and declared ports.
func instanceLinkVariables(env *model.Environment, inst *model.Instance) (map[string]string, error) {
	ship, ok := env.Ships[inst.Ship]
	if !ok {
		return nil, fmt.Errorf("ship %q not found", inst.Ship)
	}

	base := envName(inst.Name)
	out := map[string]string{base + "_HOST": ship.IP}

	var portNames []string
	for n := range inst.Ports {
		portNames = append(portNames, n)
	}
	sort.Strings(portNames)

	for _, pname := range portNames {
		p := inst.Ports[pname]
		pbase := envName(pname)
		out[fmt.Sprintf("%s_%s_PORT", base, pbase)] = fmt.Sprintf("%d", p.ExternalPort)
		out[fmt.Sprintf("%s_%s_INTERNAL_PORT", base, pbase)] = fmt.Sprintf("%d", p.ExposedPort)
	}
	return out, nil
}
