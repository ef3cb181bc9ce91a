// Package output renders orchestrate.Result values for the CLI: a
// bracket-prefixed, symbol-annotated line per instance, in the teacher's
// parts.StreamLogs / parts.printLogWithService prefixed-line idiom, plus an
// action-symbol convention adapted from internal/plan's diff formatter for
// distinguishing create/run/fail at a glance.
package output

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/signalfx/maestro-go/internal/controller"
	"github.com/signalfx/maestro-go/internal/orchestrate"
)

// Printer writes orchestrate.Result lines to w, synchronizing writes with a
// mutex so concurrent per-ship workers can share one Printer without
// interleaving partial lines.
type Printer struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

// New returns a Printer writing to w. verbose only affects Result: in
// verbose mode Result prints every instance it is given, otherwise only
// failures. Summary prints every result line either way.
func New(w io.Writer, verbose bool) *Printer {
	return &Printer{w: w, verbose: verbose}
}

// Result prints a single instance's outcome immediately, used by callers
// that want per-instance feedback as an action progresses rather than
// waiting for the whole run to finish.
func (p *Printer) Result(r orchestrate.Result) {
	if !p.verbose && r.Err == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%s:%s] %s %s\n", r.Ship, r.Service, symbol(r), line(r))
}

// Summary prints every result, sorted by ship then instance for stable
// output, followed by a one-line total. Intended for the final report of a
// Run, as opposed to Result's as-it-happens use.
func (p *Printer) Summary(results []orchestrate.Result) {
	sorted := make([]orchestrate.Result, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Ship != sorted[j].Ship {
			return sorted[i].Ship < sorted[j].Ship
		}
		return sorted[i].Instance < sorted[j].Instance
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	failed := 0
	for _, r := range sorted {
		if r.Err != nil {
			failed++
		}
		fmt.Fprintf(p.w, "[%s:%s] %s %s\n", r.Ship, r.Service, symbol(r), line(r))
	}

	if failed == 0 {
		fmt.Fprintf(p.w, "%d instance(s) ok\n", len(sorted))
	} else {
		fmt.Fprintf(p.w, "%d instance(s) ok, %d failed\n", len(sorted)-failed, failed)
	}
}

// symbol mirrors internal/plan's actionSymbol: a short glyph conveying the
// outcome at a glance before the caller reads the rest of the line.
func symbol(r orchestrate.Result) string {
	if r.Err != nil {
		return "x"
	}
	switch r.State {
	case controller.StateRunning:
		return "+"
	case controller.StateCreated:
		return "~"
	case controller.StateStopped:
		return "-"
	case controller.StateAbsent:
		return " "
	default:
		return "?"
	}
}

func line(r orchestrate.Result) string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Instance, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Instance, r.State)
}
