// Package resolve orders services for orchestration. It builds a graph over
// the "requires" edges declared in the entity model, detects cycles, and
// produces dependency-respecting forward (start) and reverse (stop) orders.
// wants_info edges never gate ordering or participate in cycle detection;
// they only widen the closure used to decide which services' discovery
// variables an instance should see.
package resolve

import (
	"sort"

	"github.com/signalfx/maestro-go/internal/errs"
	"github.com/signalfx/maestro-go/internal/model"
)

// Graph is the service dependency graph for one environment, built once and
// reused across start/stop/clean runs.
type Graph struct {
	env   *model.Environment
	edges map[string][]string // service -> services it requires
}

// New builds a Graph from an environment's declared "requires" edges.
func New(env *model.Environment) *Graph {
	g := &Graph{env: env, edges: make(map[string][]string, len(env.Services))}
	for name, svc := range env.Services {
		g.edges[name] = append([]string(nil), svc.Requires...)
	}
	return g
}

// Order returns service names in dependency order: a service never precedes
// anything it requires. Ties are broken lexicographically so the order is
// deterministic across runs. Returns a *errs.CycleError if the requires
// graph is not a DAG.
func (g *Graph) Order() ([]string, error) {
	return g.kahn(g.edges)
}

// ReverseOrder returns service names in the reverse of Order: suitable for
// stop and clean, where dependents must go before what they depend on.
func (g *Graph) ReverseOrder() ([]string, error) {
	order, err := g.Order()
	if err != nil {
		return nil, err
	}
	reversed := make([]string, len(order))
	for i, name := range order {
		reversed[len(order)-1-i] = name
	}
	return reversed, nil
}

// Levels returns Order's result grouped into batches: every service in a
// batch depends only on services in earlier batches, so the services within
// a batch may be processed concurrently while batch order itself is
// preserved. Used by the
// orchestrator to bound concurrency to what the dependency graph actually
// allows at each step.
func (g *Graph) Levels() ([][]string, error) {
	return g.kahnLevels(g.edges)
}

// ReverseLevels mirrors Levels for ReverseOrder: batches in reverse
// dependency order, for stop and clean.
func (g *Graph) ReverseLevels() ([][]string, error) {
	levels, err := g.kahnLevels(g.edges)
	if err != nil {
		return nil, err
	}
	reversed := make([][]string, len(levels))
	for i, level := range levels {
		reversed[len(levels)-1-i] = level
	}
	return reversed, nil
}

// kahn runs Kahn's algorithm over edges (service -> required services) and
// concatenates kahnLevels' batches, each sorted lexicographically, so the
// output is deterministic. It returns services in an order where a
// service's dependencies appear before it.
func (g *Graph) kahn(edges map[string][]string) ([]string, error) {
	levels, err := g.kahnLevels(edges)
	if err != nil {
		return nil, err
	}
	var order []string
	for _, level := range levels {
		order = append(order, level...)
	}
	return order, nil
}

// kahnLevels is Kahn's algorithm exposing each round's ready batch, sorted
// lexicographically within the batch for determinism.
func (g *Graph) kahnLevels(edges map[string][]string) ([][]string, error) {
	// remaining holds, for each service, the set of services it depends on;
	// a service becomes ready once every one of them has been emitted, so
	// the levels come out in dependency-first order.
	remaining := make(map[string]map[string]bool, len(edges))
	for name, deps := range edges {
		set := make(map[string]bool, len(deps))
		for _, d := range deps {
			set[d] = true
		}
		remaining[name] = set
	}

	var levels [][]string
	emitted := make(map[string]bool, len(remaining))
	count := 0

	for count < len(remaining) {
		var ready []string
		for name, deps := range remaining {
			if emitted[name] {
				continue
			}
			if allEmitted(deps, emitted) {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			return nil, &errs.CycleError{Cycle: findCycle(remaining, emitted)}
		}
		sort.Strings(ready)
		for _, name := range ready {
			emitted[name] = true
		}
		levels = append(levels, ready)
		count += len(ready)
	}
	return levels, nil
}

func allEmitted(deps map[string]bool, emitted map[string]bool) bool {
	for d := range deps {
		if !emitted[d] {
			return false
		}
	}
	return true
}

// findCycle returns one minimal cycle among the not-yet-emitted nodes, for
// error reporting. It walks dependency edges from an arbitrary unresolved
// node until a node repeats.
func findCycle(edges map[string]map[string]bool, emitted map[string]bool) []string {
	var start string
	for name := range edges {
		if !emitted[name] {
			start = name
			break
		}
	}

	visited := map[string]int{}
	path := []string{start}
	visited[start] = 0
	cur := start
	for {
		var next string
		for d := range edges[cur] {
			if !emitted[d] {
				next = d
				break
			}
		}
		if next == "" {
			// Shouldn't happen if the caller only invokes this when stuck,
			// but fall back to the path gathered so far.
			return path
		}
		if idx, seen := visited[next]; seen {
			return append(path[idx:], next)
		}
		visited[next] = len(path)
		path = append(path, next)
		cur = next
	}
}

// Closure returns the transitive closure of targets over requires ∪
// wants_info, restricted to services present in the environment. This is
// wider than orchestration needs: it exists for callers that want every
// service whose discovery variables a target might reference, not for
// deciding which services a start/stop run must touch (see RequiresClosure
// and DependentsClosure for that).
func (g *Graph) Closure(targets []string) []string {
	return g.closure(targets, func(svc *model.Service) []string {
		return append(append([]string(nil), svc.Requires...), svc.WantsInfo...)
	})
}

// RequiresClosure returns the transitive closure of targets downward over
// requires only, excluding wants_info. Used to expand a start/restart
// target list: a requested service's hard dependencies are always
// included, since they must exist and be running first, but a merely
// informational wants_info reference is not something starting a service
// should also start.
func (g *Graph) RequiresClosure(targets []string) []string {
	return g.closure(targets, func(svc *model.Service) []string {
		return svc.Requires
	})
}

// DependentsClosure returns the transitive closure of targets upward over
// requires — every service that (transitively) requires a target — plus
// the targets themselves. Used to expand a stop/clean target list: you
// cannot leave a dependent running against a dependency you just stopped,
// so stopping a target must also stop everything that requires it.
func (g *Graph) DependentsClosure(targets []string) []string {
	reverse := make(map[string][]string, len(g.env.Services))
	for name, svc := range g.env.Services {
		for _, dep := range svc.Requires {
			reverse[dep] = append(reverse[dep], name)
		}
	}
	seen := make(map[string]bool, len(targets))
	var queue []string
	for _, t := range targets {
		if _, ok := g.env.Services[t]; ok && !seen[t] {
			seen[t] = true
			queue = append(queue, t)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, dependent := range reverse[name] {
			if !seen[dependent] {
				seen[dependent] = true
				queue = append(queue, dependent)
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// closure is the shared transitive-closure walk used by Closure and
// RequiresClosure, differing only in which edges of a service edges picks.
func (g *Graph) closure(targets []string, edges func(*model.Service) []string) []string {
	seen := make(map[string]bool, len(targets))
	var queue []string
	for _, t := range targets {
		if _, ok := g.env.Services[t]; ok && !seen[t] {
			seen[t] = true
			queue = append(queue, t)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		svc := g.env.Services[name]
		for _, dep := range edges(svc) {
			if _, ok := g.env.Services[dep]; ok && !seen[dep] {
				seen[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// OrderedInstances expands an ordered service list into its instances,
// preserving service order and sorting instance names lexicographically
// within a service.
func OrderedInstances(env *model.Environment, serviceOrder []string) []*model.Instance {
	var out []*model.Instance
	for _, sname := range serviceOrder {
		svc, ok := env.Services[sname]
		if !ok {
			continue
		}
		var names []string
		for iname := range svc.Instances {
			names = append(names, iname)
		}
		sort.Strings(names)
		for _, iname := range names {
			out = append(out, svc.Instances[iname])
		}
	}
	return out
}
