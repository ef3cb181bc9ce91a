package main

import (
	"context"
	"fmt"

	"github.com/signalfx/maestro-go/internal/config"
	"github.com/signalfx/maestro-go/internal/orchestrate"
	"github.com/signalfx/maestro-go/internal/output"
)

// dispatch loads the environment file, dials every ship, runs action against
// the resolved targets, and prints a summary. It returns an error whenever
// the run could not even start (config, dial) and whenever any targeted
// instance failed, so a subcommand's RunE can surface both the same way.
func dispatch(args []string, action orchestrate.Action) error {
	env, err := config.Load(envFile)
	if err != nil {
		return err
	}

	conns, dialErrs := dialAll(env)
	defer closeAll(conns)

	o := orchestrate.New(env, conns, stopOnFailure, orchestrate.Options{
		IgnoreOrder: ignoreOrder,
		Refresh:     refresh,
		Concurrency: concurrency,
		DialErrs:    dialErrs,
	})

	targets := resolveTargets(env, args)
	results, err := o.Run(context.Background(), targets.Services, targets.Instances, action)

	printer := output.New(rootCmd.OutOrStdout(), verbose)
	printer.Summary(results)

	if err != nil {
		return err
	}
	if anyFailed(results) {
		return fmt.Errorf("%d instance(s) failed", failedCount(results))
	}
	return nil
}

func anyFailed(results []orchestrate.Result) bool {
	return failedCount(results) > 0
}

func failedCount(results []orchestrate.Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// streamLogs wires orchestrate.Logs to the process's own stdout/stderr for
// the logs subcommand, after resolving a single target to its instance.
func streamLogs(instanceArg string, follow bool) error {
	env, err := config.Load(envFile)
	if err != nil {
		return err
	}

	inst, _, ok := env.Instance(instanceArg)
	if !ok {
		return fmt.Errorf("no instance matching %q", instanceArg)
	}

	conns, dialErrs := dialAll(env)
	defer closeAll(conns)

	o := orchestrate.New(env, conns, stopOnFailure, orchestrate.Options{
		IgnoreOrder: ignoreOrder,
		Refresh:     refresh,
		Concurrency: concurrency,
		DialErrs:    dialErrs,
	})
	return o.Logs(context.Background(), inst.Name, follow, rootCmd.OutOrStdout(), rootCmd.ErrOrStderr())
}
