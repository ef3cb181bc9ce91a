// Package orchestrate drives a start/stop/restart/clean/status run across
// every ship touched by a target list. It expands targets to their
// dependency closure, walks the resulting graph one topological level at a
// time, and within a level fans out across ships concurrently while bounding
// each ship's own work to the -c concurrency limit (one operation at a time
// by default), so a single daemon is not asked to create and start several
// containers at once unless the caller allows it. This
// generalizes the teacher's phased deployer.Deploy and its goroutine fan-out
// in main.go to per-ship queues and per-level barriers.
package orchestrate

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/signalfx/maestro-go/internal/compose"
	"github.com/signalfx/maestro-go/internal/controller"
	"github.com/signalfx/maestro-go/internal/errs"
	"github.com/signalfx/maestro-go/internal/model"
	"github.com/signalfx/maestro-go/internal/probe"
	"github.com/signalfx/maestro-go/internal/registry"
	"github.com/signalfx/maestro-go/internal/resolve"
	"github.com/signalfx/maestro-go/internal/shipconn"
)

// Action names the operation a Run performs.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionClean   Action = "clean"
	ActionStatus  Action = "status"
)

// Result reports the outcome for one instance.
type Result struct {
	RunID    string
	Instance string
	Service  string
	Ship     string
	State    controller.State
	Err      error
}

// Orchestrator holds one dialed connection per ship and drives operations
// across them for the lifetime of a single CLI invocation.
type Orchestrator struct {
	env           *model.Environment
	conns         map[string]*shipconn.Connection
	controllers   map[string]*controller.Controller
	dialErrs      map[string]error // ships the caller never managed to dial
	stopOnFailure bool
	ignoreOrder   bool // -o: skip closure expansion and topological walk
	refresh       bool // -r: re-pull the image even if the container already exists
	concurrency   int  // -c: operations in flight per ship at once, default 1
}

// Options carries the orchestrator-wide flags the CLI exposes directly
// (-o, -r, -c), independent of stopOnFailure which is passed separately
// since every call site already threads it explicitly. DialErrs carries one
// entry per ship the caller failed to dial (if any) so a run can still
// proceed against every ship that did dial successfully, reporting the
// unreachable ones as a per-instance errs.ConnectionError on that ship
// alone rather than aborting the whole run.
type Options struct {
	IgnoreOrder bool
	Refresh     bool
	Concurrency int
	DialErrs    map[string]error
}

// New builds an Orchestrator from an already-loaded environment and a set of
// live ship connections, keyed by ship name. Callers are responsible for
// dialing (shipconn.Dial) and eventually closing every connection; a ship
// that failed to dial should be omitted from conns and named in
// opts.DialErrs instead, not used to abort building the Orchestrator at all.
func New(env *model.Environment, conns map[string]*shipconn.Connection, stopOnFailure bool, opts Options) *Orchestrator {
	o := &Orchestrator{
		env:           env,
		conns:         conns,
		controllers:   make(map[string]*controller.Controller, len(conns)),
		dialErrs:      opts.DialErrs,
		stopOnFailure: stopOnFailure,
		ignoreOrder:   opts.IgnoreOrder,
		refresh:       opts.Refresh,
		concurrency:   opts.Concurrency,
	}
	for ship, conn := range conns {
		o.controllers[ship] = controller.New(conn.Client, ship)
	}
	return o
}

// connectionError reports ship as unreachable for one instance, using the
// actual dial failure when the caller supplied one via Options.DialErrs,
// falling back to a generic cause otherwise.
func (o *Orchestrator) connectionError(ship string) error {
	cause := o.dialErrs[ship]
	if cause == nil {
		cause = fmt.Errorf("no connection established")
	}
	return &errs.ConnectionError{Ship: ship, Cause: cause}
}

// Run expands targets to their dependency closure and performs action
// against every instance in it, returning one Result per instance touched.
// An empty targets list means "every service in the environment". instances
// restricts a directly-targeted service (one whose name is a key in the
// map) to only the listed instance names — a service pulled in solely
// through dependency-closure expansion is never restricted, since a target
// service's hard dependencies must come up or go down in full regardless of
// which one instance of the target itself was named. Every Result carries
// the same freshly generated run ID, so an operator tailing logs from
// several concurrently-worked ships can tell which lines belong to this
// invocation.
func (o *Orchestrator) Run(ctx context.Context, targets []string, instances map[string][]string, action Action) ([]Result, error) {
	return o.run(ctx, targets, instances, action, uuid.NewString())
}

func (o *Orchestrator) run(ctx context.Context, targets []string, instances map[string][]string, action Action, runID string) ([]Result, error) {
	switch action {
	case ActionRestart:
		stopped, err := o.run(ctx, targets, instances, ActionStop, runID)
		if err != nil {
			return stopped, err
		}
		started, err := o.run(ctx, targets, instances, ActionStart, runID)
		return append(stopped, started...), err
	case ActionStatus:
		return o.runStatus(ctx, targets, instances, runID)
	}

	if action != ActionStart && action != ActionStop && action != ActionClean {
		return nil, fmt.Errorf("unknown action %q", action)
	}

	var levels [][]string
	var closure []string
	if o.ignoreOrder {
		// -o: no closure expansion, no topological walk — one target per
		// "level" so each is still processed strictly in input order with
		// no cross-target concurrency.
		closure = targets
		if len(closure) == 0 {
			for name := range o.env.Services {
				closure = append(closure, name)
			}
			sort.Strings(closure)
		}
		for _, name := range closure {
			levels = append(levels, []string{name})
		}
	} else {
		graph := resolve.New(o.env)
		var err error
		switch action {
		case ActionStart:
			closure = o.closureOrAll(targets, graph.RequiresClosure)
			levels, err = graph.Levels()
		case ActionStop, ActionClean:
			closure = o.closureOrAll(targets, graph.DependentsClosure)
			levels, err = graph.ReverseLevels()
		}
		if err != nil {
			return nil, err
		}
	}
	closureSet := toSet(closure)

	var results []Result
	failedServices := make(map[string]bool, len(closure))

	for _, level := range levels {
		level = intersect(level, closureSet)
		if len(level) == 0 {
			continue
		}

		ready, skipped := o.splitOnUpstreamFailure(level, instances, failedServices, runID)
		results = append(results, skipped...)
		for _, r := range skipped {
			failedServices[r.Service] = true
		}

		levelResults, err := o.runLevel(ctx, ready, instances, action, runID)
		if err != nil {
			return results, err
		}
		results = append(results, levelResults...)
		for _, r := range levelResults {
			if r.Err != nil {
				failedServices[r.Service] = true
			}
		}

		if o.stopOnFailure && anyFailed(levelResults) {
			return results, &errs.InterruptedError{}
		}
	}
	return results, nil
}

// closureOrAll returns closureFn's expansion of targets, or every service
// name in the environment when targets is empty. closureFn is one of
// Graph.RequiresClosure (start/restart: pull in what a target depends on)
// or Graph.DependentsClosure (stop/clean: pull in what depends on a
// target) — never the requires ∪ wants_info Graph.Closure, since an
// orchestration run must not touch a service a target merely references
// for discovery.
func (o *Orchestrator) closureOrAll(targets []string, closureFn func([]string) []string) []string {
	if len(targets) == 0 {
		for name := range o.env.Services {
			targets = append(targets, name)
		}
	}
	return closureFn(targets)
}

// splitOnUpstreamFailure separates level's services into those still worth
// attempting and those whose requires includes an already-failed service,
// reported as errs.UpstreamFailure for every instance instead of attempted.
func (o *Orchestrator) splitOnUpstreamFailure(level []string, instances map[string][]string, failedServices map[string]bool, runID string) (ready []string, skipped []Result) {
	for _, name := range level {
		svc := o.env.Services[name]
		var blocker string
		for _, dep := range svc.Requires {
			if failedServices[dep] {
				blocker = dep
				break
			}
		}
		if blocker == "" {
			ready = append(ready, name)
			continue
		}
		for _, inst := range targetedInstances(svc, instances) {
			skipped = append(skipped, Result{
				RunID:    runID,
				Instance: inst.Name,
				Service:  name,
				Ship:     inst.Ship,
				Err:      &errs.UpstreamFailure{Instance: inst.Name, Dependency: blocker},
			})
		}
	}
	return ready, skipped
}

// runLevel performs action against every instance of the given services,
// grouping work by ship so each ship's daemon sees at most the -c limit of
// requests at a time (one by default) while ships themselves run
// concurrently in an errgroup.
func (o *Orchestrator) runLevel(ctx context.Context, services []string, instances map[string][]string, action Action, runID string) ([]Result, error) {
	byShip := make(map[string][]*model.Instance)
	for _, name := range services {
		svc := o.env.Services[name]
		for _, inst := range targetedInstances(svc, instances) {
			byShip[inst.Ship] = append(byShip[inst.Ship], inst)
		}
	}

	var ships []string
	for ship := range byShip {
		ships = append(ships, ship)
	}
	sort.Strings(ships)

	resultsByShip := make([][]Result, len(ships))
	g, gctx := errgroup.WithContext(ctx)
	for i, ship := range ships {
		i, ship := i, ship
		g.Go(func() error {
			resultsByShip[i] = o.runShip(gctx, ship, byShip[ship], action, runID)
			return nil
		})
	}
	// errgroup's error is only set by a worker returning non-nil, which none
	// of these do: per-instance failures are carried in Result.Err instead
	// so one ship's problem never aborts another ship's level of work.
	_ = g.Wait()

	var out []Result
	for _, rs := range resultsByShip {
		out = append(out, rs...)
	}
	return out, nil
}

func (o *Orchestrator) runShip(ctx context.Context, ship string, instances []*model.Instance, action Action, runID string) []Result {
	ctl, ok := o.controllers[ship]
	if !ok {
		var out []Result
		for _, inst := range instances {
			out = append(out, Result{
				RunID: runID, Instance: inst.Name, Service: inst.Service, Ship: ship,
				Err: o.connectionError(ship),
			})
		}
		return out
	}

	// -c controls how many of this ship's instances run concurrently; the
	// default of 1 serializes every operation against the ship's daemon
	// connection to avoid racing container-name allocation and image pulls.
	limit := o.concurrency
	if limit <= 0 {
		limit = 1
	}

	out := make([]Result, len(instances))
	g := new(errgroup.Group)
	g.SetLimit(limit)
	for i, inst := range instances {
		i, inst := i, inst
		g.Go(func() error {
			var state controller.State
			var err error
			switch action {
			case ActionStart:
				state, err = o.startInstance(ctx, ctl, inst)
			case ActionStop:
				state, err = o.stopInstance(ctx, ctl, inst)
			case ActionClean:
				state, err = o.cleanInstance(ctx, ctl, inst)
			}
			out[i] = Result{RunID: runID, Instance: inst.Name, Service: inst.Service, Ship: ship, State: state, Err: err}
			if err != nil {
				log.Printf("[%s] %s: %s failed: %v", runID, inst.Name, action, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (o *Orchestrator) startInstance(ctx context.Context, ctl *controller.Controller, inst *model.Instance) (controller.State, error) {
	id, state, err := ctl.Find(ctx, inst)
	if err != nil {
		return "", err
	}

	env, err := compose.Compose(o.env, inst)
	if err != nil {
		return "", fmt.Errorf("composing env for %s: %w", inst.Name, err)
	}

	image := inst.Image
	if image == "" {
		image = o.env.Services[inst.Service].Image
	}

	if state == controller.StateAbsent {
		if err := ctl.Pull(ctx, image, registry.Lookup(o.env, image)); err != nil {
			return "", err
		}
		id, err = ctl.Create(ctx, inst, image, env)
		if err != nil {
			return "", err
		}
		state = controller.StateCreated
	} else if o.refresh {
		// -r: re-pull even though the container already exists, so the
		// next recreation (outside this run) would pick up a moved tag.
		if err := ctl.Pull(ctx, image, registry.Lookup(o.env, image)); err != nil {
			return state, err
		}
	}

	if state != controller.StateRunning {
		if err := ctl.Start(ctx, inst, id); err != nil {
			return "", err
		}
		state = controller.StateRunning
	}

	ship := o.env.Ships[inst.Ship]
	target := probe.Target{Host: ship.IP, Env: env, BaseDir: o.env.BaseDir}
	checks := o.lifecycleChecks(inst, model.StateRunning)
	if err := probe.RunAll(ctx, inst, target, checks); err != nil {
		return state, err
	}
	return state, nil
}

func (o *Orchestrator) stopInstance(ctx context.Context, ctl *controller.Controller, inst *model.Instance) (controller.State, error) {
	id, state, err := ctl.Find(ctx, inst)
	if err != nil {
		return "", err
	}
	if state == controller.StateAbsent {
		return state, nil
	}
	if state == controller.StateRunning {
		if err := ctl.Stop(ctx, inst, id); err != nil {
			return state, err
		}
		state = controller.StateStopped
	}

	ship := o.env.Ships[inst.Ship]
	target := probe.Target{Host: ship.IP, BaseDir: o.env.BaseDir}
	if checks := o.lifecycleChecks(inst, model.StateStopped); len(checks) > 0 {
		if err := probe.RunAll(ctx, inst, target, checks); err != nil {
			return state, err
		}
	}
	return state, nil
}

// lifecycleChecks returns every check gating inst's transition to state,
// merging the service-level checks (shared by every instance) with the
// instance-level ones (specific to this instance) — both halves must pass.
func (o *Orchestrator) lifecycleChecks(inst *model.Instance, state model.LifecycleState) []*model.LifecycleCheck {
	var checks []*model.LifecycleCheck
	if svc, ok := o.env.Services[inst.Service]; ok {
		checks = append(checks, svc.Lifecycle[state]...)
	}
	checks = append(checks, inst.Lifecycle[state]...)
	return checks
}

func (o *Orchestrator) cleanInstance(ctx context.Context, ctl *controller.Controller, inst *model.Instance) (controller.State, error) {
	state, err := o.stopInstance(ctx, ctl, inst)
	if err != nil {
		return state, err
	}
	if state == controller.StateAbsent {
		return state, nil
	}
	id, _, err := ctl.Find(ctx, inst)
	if err != nil {
		return state, err
	}
	if err := ctl.Remove(ctx, inst, id, false); err != nil {
		return state, err
	}
	return controller.StateAbsent, nil
}

// runStatus reports every targeted instance's observed state without
// mutating anything, so it ignores dependency order and stopOnFailure.
func (o *Orchestrator) runStatus(ctx context.Context, targets []string, instances map[string][]string, runID string) ([]Result, error) {
	graph := resolve.New(o.env)
	closure := o.closureOrAll(targets, graph.RequiresClosure)

	byShip := make(map[string][]*model.Instance)
	for _, name := range closure {
		svc, ok := o.env.Services[name]
		if !ok {
			continue
		}
		for _, inst := range targetedInstances(svc, instances) {
			byShip[inst.Ship] = append(byShip[inst.Ship], inst)
		}
	}

	var ships []string
	for ship := range byShip {
		ships = append(ships, ship)
	}
	sort.Strings(ships)

	resultsByShip := make([][]Result, len(ships))
	g, gctx := errgroup.WithContext(ctx)
	for i, ship := range ships {
		i, ship := i, ship
		g.Go(func() error {
			ctl, ok := o.controllers[ship]
			if !ok {
				for _, inst := range byShip[ship] {
					resultsByShip[i] = append(resultsByShip[i], Result{
						RunID: runID, Instance: inst.Name, Service: inst.Service, Ship: ship,
						Err: o.connectionError(ship),
					})
				}
				return nil
			}
			for _, inst := range byShip[ship] {
				_, state, err := ctl.Find(gctx, inst)
				resultsByShip[i] = append(resultsByShip[i], Result{
					RunID: runID, Instance: inst.Name, Service: inst.Service, Ship: ship, State: state, Err: err,
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []Result
	for _, rs := range resultsByShip {
		out = append(out, rs...)
	}
	return out, nil
}

// Logs streams a single instance's combined stdout/stderr to w, demuxing
// the daemon's multiplexed log stream the same way the teacher's
// followContainerLogs does.
func (o *Orchestrator) Logs(ctx context.Context, instanceName string, follow bool, stdout, stderr io.Writer) error {
	inst, _, ok := o.env.Instance(instanceName)
	if !ok {
		return fmt.Errorf("instance %q not found", instanceName)
	}
	ctl, ok := o.controllers[inst.Ship]
	if !ok {
		return o.connectionError(inst.Ship)
	}
	id, state, err := ctl.Find(ctx, inst)
	if err != nil {
		return err
	}
	if state == controller.StateAbsent {
		return fmt.Errorf("instance %q has no container on ship %q", instanceName, inst.Ship)
	}

	r, err := ctl.Logs(ctx, id, follow)
	if err != nil {
		return err
	}
	defer r.Close()

	_, err = stdcopy.StdCopy(stdout, stderr, r)
	return err
}

func orderedInstanceNames(svc *model.Service) []*model.Instance {
	var names []string
	for n := range svc.Instances {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*model.Instance, 0, len(names))
	for _, n := range names {
		out = append(out, svc.Instances[n])
	}
	return out
}

// targetedInstances returns svc's instances, restricted to instances[svc.Name]
// when that key is present and non-empty — a directly-targeted instance
// name narrows its service to just itself, mirroring the original's
// parse_thing resolving a matching container name to exactly that one
// Container. A service with no entry (brought in whole, or only pulled in
// through dependency-closure expansion) runs against all of its instances.
func targetedInstances(svc *model.Service, instances map[string][]string) []*model.Instance {
	all := orderedInstanceNames(svc)
	names, ok := instances[svc.Name]
	if !ok || len(names) == 0 {
		return all
	}
	want := toSet(names)
	out := make([]*model.Instance, 0, len(names))
	for _, inst := range all {
		if want[inst.Name] {
			out = append(out, inst)
		}
	}
	return out
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func intersect(names []string, set map[string]bool) []string {
	var out []string
	for _, n := range names {
		if set[n] {
			out = append(out, n)
		}
	}
	return out
}

func anyFailed(results []Result) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}
