package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalfx/maestro-go/internal/errs"
	"github.com/signalfx/maestro-go/internal/model"
)

func TestSplitWords(t *testing.T) {
	cases := map[string][]string{
		`true`:                         {"true"},
		`echo hello world`:             {"echo", "hello", "world"},
		`echo "hello world"`:           {"echo", "hello world"},
		`echo 'a b' c`:                 {"echo", "a b", "c"},
		`echo a\ b`:                    {"echo", "a b"},
	}
	for in, want := range cases {
		got, err := splitWords(in)
		if err != nil {
			t.Fatalf("splitWords(%q) error = %v", in, err)
		}
		if len(got) != len(want) {
			t.Fatalf("splitWords(%q) = %v, want %v", in, got, want)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("splitWords(%q)[%d] = %q, want %q", in, i, got[i], want[i])
			}
		}
	}
}

func TestSplitWordsUnterminatedQuote(t *testing.T) {
	if _, err := splitWords(`echo "unterminated`); err == nil {
		t.Fatal("expected error for unterminated quote")
	}
}

func TestRunTCPSucceedsWhenPortOpen(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	inst := &model.Instance{Name: "x", Ports: map[string]*model.Port{}}
	check := &model.LifecycleCheck{Kind: model.CheckTCP, Port: atoi(portStr), MaxWait: 2 * time.Second}

	err = Run(context.Background(), inst, Target{Host: "127.0.0.1"}, check)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunTCPTimesOutWhenPortClosed(t *testing.T) {
	inst := &model.Instance{Name: "x"}
	check := &model.LifecycleCheck{Kind: model.CheckTCP, Port: 1, MaxWait: 1 * time.Second}

	err := Run(context.Background(), inst, Target{Host: "127.0.0.1"}, check)
	var timeout *errs.ProbeTimeout
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if te, ok := err.(*errs.ProbeTimeout); !ok {
		t.Fatalf("expected *errs.ProbeTimeout, got %T", err)
	} else {
		timeout = te
	}
	if timeout.Kind != "tcp" {
		t.Errorf("Kind = %q, want tcp", timeout.Kind)
	}
}

func TestRunHTTPMatchesStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host, portStr, _ := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	inst := &model.Instance{Name: "x"}
	check := &model.LifecycleCheck{Kind: model.CheckHTTP, Port: atoi(portStr), Scheme: "http", Method: "GET", Path: "/", MaxWait: 2 * time.Second}

	err := Run(context.Background(), inst, Target{Host: host}, check)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunExecSucceedsOnZeroExit(t *testing.T) {
	inst := &model.Instance{Name: "x"}
	check := &model.LifecycleCheck{Kind: model.CheckExec, Command: "true", Attempts: 1, Delay: 10 * time.Millisecond}

	err := Run(context.Background(), inst, Target{}, check)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunExecFailsAfterExhaustingAttempts(t *testing.T) {
	inst := &model.Instance{Name: "x"}
	check := &model.LifecycleCheck{Kind: model.CheckExec, Command: "false", Attempts: 2, Delay: 10 * time.Millisecond}

	err := Run(context.Background(), inst, Target{}, check)
	if _, ok := err.(*errs.ProbeTimeout); !ok {
		t.Fatalf("expected *errs.ProbeTimeout, got %T: %v", err, err)
	}
}

func TestRunExecResolvesRelativeScriptAgainstBaseDir(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "check.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("writing fixture script: %v", err)
	}

	inst := &model.Instance{Name: "x"}
	check := &model.LifecycleCheck{Kind: model.CheckExec, Command: "./check.sh", Attempts: 1, Delay: 10 * time.Millisecond}

	err := Run(context.Background(), inst, Target{BaseDir: dir}, check)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunAllStopsAtFirstFailure(t *testing.T) {
	inst := &model.Instance{Name: "x"}
	checks := []*model.LifecycleCheck{
		{Kind: model.CheckExec, Command: "false", Attempts: 1, Delay: time.Millisecond},
		{Kind: model.CheckExec, Command: "true", Attempts: 1, Delay: time.Millisecond},
	}
	if err := RunAll(context.Background(), inst, Target{}, checks); err == nil {
		t.Fatal("expected RunAll to fail on the first check")
	}
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
