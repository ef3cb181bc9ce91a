package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/signalfx/maestro-go/internal/controller"
	"github.com/signalfx/maestro-go/internal/orchestrate"
)

func TestSummaryReportsOkAndFailedCounts(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, false)
	p.Summary([]orchestrate.Result{
		{Instance: "db-1", Service: "db", Ship: "ship1", State: controller.StateRunning},
		{Instance: "web-1", Service: "web", Ship: "ship1", Err: errors.New("boom")},
	})

	out := buf.String()
	if !strings.Contains(out, "1 instance(s) ok, 1 failed") {
		t.Fatalf("summary missing counts, got: %q", out)
	}
	if !strings.Contains(out, "db-1: running") {
		t.Errorf("missing db-1 line, got: %q", out)
	}
	if !strings.Contains(out, "web-1: boom") {
		t.Errorf("missing web-1 failure line, got: %q", out)
	}
}

func TestSummaryOrdersByShipThenInstance(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, false)
	p.Summary([]orchestrate.Result{
		{Instance: "web-1", Service: "web", Ship: "shipB", State: controller.StateRunning},
		{Instance: "db-1", Service: "db", Ship: "shipA", State: controller.StateRunning},
	})

	out := buf.String()
	if strings.Index(out, "shipA") > strings.Index(out, "shipB") {
		t.Errorf("expected shipA before shipB, got: %q", out)
	}
}

func TestResultOnlyPrintsFailuresWhenNotVerbose(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, false)
	p.Result(orchestrate.Result{Instance: "db-1", Service: "db", Ship: "ship1", State: controller.StateRunning})
	if buf.Len() != 0 {
		t.Fatalf("non-verbose Result of a success should print nothing, got: %q", buf.String())
	}

	p.Result(orchestrate.Result{Instance: "web-1", Service: "web", Ship: "ship1", Err: errors.New("boom")})
	if !strings.Contains(buf.String(), "web-1: boom") {
		t.Errorf("expected failure to be printed even when not verbose, got: %q", buf.String())
	}
}

func TestResultPrintsSuccessesWhenVerbose(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, true)
	p.Result(orchestrate.Result{Instance: "db-1", Service: "db", Ship: "ship1", State: controller.StateRunning})
	if !strings.Contains(buf.String(), "db-1: running") {
		t.Errorf("expected verbose success line, got: %q", buf.String())
	}
}
