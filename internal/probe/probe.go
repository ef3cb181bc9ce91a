// Package probe implements the lifecycle checks gating a container's state
// transitions: TCP connect, HTTP request, and local command execution. Each
// check polls until it passes or its budget (a deadline for tcp/http, an
// attempt count for exec) is exhausted, in the teacher's explicit for-loop
// plus time.Sleep style rather than a timer/ticker abstraction.
package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/signalfx/maestro-go/internal/errs"
	"github.com/signalfx/maestro-go/internal/model"
)

const dialTimeout = 1 * time.Second
const pollInterval = 1 * time.Second

// Target resolves the host/port a check runs against, independent of the
// instance's own ship — set by the caller from the environment.
type Target struct {
	Host    string
	Env     map[string]string // fully composed instance env, for exec checks
	BaseDir string            // directory the environment file was loaded from, for exec checks' relative script paths
}

// RunAll runs every check in order; the first failure aborts the rest,
// matching the original's conjunctive "all must pass" semantics.
func RunAll(ctx context.Context, inst *model.Instance, target Target, checks []*model.LifecycleCheck) error {
	for _, check := range checks {
		if err := Run(ctx, inst, target, check); err != nil {
			return err
		}
	}
	return nil
}

// Run executes a single lifecycle check to completion.
func Run(ctx context.Context, inst *model.Instance, target Target, check *model.LifecycleCheck) error {
	switch check.Kind {
	case model.CheckTCP:
		return runTCP(ctx, inst, target, check)
	case model.CheckHTTP:
		return runHTTP(ctx, inst, target, check)
	case model.CheckExec:
		return runExec(ctx, inst, target, check)
	default:
		return &errs.ProbeFailure{Instance: inst.Name, Kind: string(check.Kind), Cause: fmt.Errorf("unknown check kind")}
	}
}

func resolvePort(inst *model.Instance, portRef string, literal int) (int, error) {
	if portRef == "" {
		return literal, nil
	}
	p, ok := inst.Ports[portRef]
	if !ok {
		return 0, fmt.Errorf("port %q is not defined", portRef)
	}
	if p.ExposedProto != "tcp" {
		return 0, fmt.Errorf("port %q is not tcp", portRef)
	}
	return p.ExternalPort, nil
}

func runTCP(ctx context.Context, inst *model.Instance, target Target, check *model.LifecycleCheck) error {
	port, err := resolvePort(inst, check.PortRef, check.Port)
	if err != nil {
		return &errs.ProbeFailure{Instance: inst.Name, Kind: "tcp", Cause: err}
	}
	addr := net.JoinHostPort(target.Host, fmt.Sprintf("%d", port))

	deadline := time.Now().Add(check.MaxWait)
	for {
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err == nil {
			conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return &errs.ProbeTimeout{Instance: inst.Name, Kind: "tcp", Tag: check.Tag()}
		}
		if sleepOrDone(ctx, pollInterval) {
			return &errs.InterruptedError{}
		}
	}
}

func runHTTP(ctx context.Context, inst *model.Instance, target Target, check *model.LifecycleCheck) error {
	port, err := resolvePort(inst, check.PortRef, check.Port)
	if err != nil {
		return &errs.ProbeFailure{Instance: inst.Name, Kind: "http", Cause: err}
	}

	host := check.Host
	if host == "" {
		host = target.Host
	}

	var matcher *regexp.Regexp
	if check.MatchRegex != "" {
		matcher, err = regexp.Compile(check.MatchRegex)
		if err != nil {
			return &errs.ProbeFailure{Instance: inst.Name, Kind: "http", Cause: fmt.Errorf("bad match_regex: %w", err)}
		}
	}

	path := check.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := fmt.Sprintf("%s://%s:%d%s", check.Scheme, host, port, path)

	client := &http.Client{Timeout: dialTimeout}
	deadline := time.Now().Add(check.MaxWait)
	for {
		if ok := tryHTTPOnce(ctx, client, check.Method, url, matcher); ok {
			return nil
		}
		if time.Now().After(deadline) {
			return &errs.ProbeTimeout{Instance: inst.Name, Kind: "http", Tag: check.Tag()}
		}
		if sleepOrDone(ctx, pollInterval) {
			return &errs.InterruptedError{}
		}
	}
}

func tryHTTPOnce(ctx context.Context, client *http.Client, method, url string, matcher *regexp.Regexp) bool {
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if matcher == nil {
		return resp.StatusCode >= 200 && resp.StatusCode < 300
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}
	return matcher.Match(body)
}

func runExec(ctx context.Context, inst *model.Instance, target Target, check *model.LifecycleCheck) error {
	argv, err := splitWords(check.Command)
	if err != nil {
		return &errs.ProbeFailure{Instance: inst.Name, Kind: "exec", Cause: fmt.Errorf("invalid command %q: %w", check.Command, err)}
	}
	if len(argv) == 0 {
		return &errs.ProbeFailure{Instance: inst.Name, Kind: "exec", Cause: fmt.Errorf("empty command")}
	}

	env := os.Environ()
	for k, v := range target.Env {
		env = append(env, k+"="+v)
	}

	attempts := check.Attempts
	for attempts > 0 {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Env = env
		cmd.Dir = target.BaseDir
		if err := cmd.Run(); err == nil {
			return nil
		}
		attempts--
		if attempts == 0 {
			return &errs.ProbeTimeout{Instance: inst.Name, Kind: "exec", Tag: check.Tag()}
		}
		if sleepOrDone(ctx, check.Delay) {
			return &errs.InterruptedError{}
		}
	}
	return &errs.ProbeTimeout{Instance: inst.Name, Kind: "exec", Tag: check.Tag()}
}

// sleepOrDone sleeps for d, returning true early if ctx is cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}

// splitWords performs shell-style argv splitting (quoting and backslash
// escapes honored, but no globbing, expansion, or shell operators),
// matching the original's use of Python's shlex.split rather than handing
// the command to a shell.
func splitWords(s string) ([]string, error) {
	var words []string
	var cur strings.Builder
	inWord := false
	var quote byte

	flush := func() {
		if inWord {
			words = append(words, cur.String())
			cur.Reset()
			inWord = false
		}
	}

	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else if c == '\\' && quote == '"' && i+1 < len(s) {
				i++
				cur.WriteByte(s[i])
			} else {
				cur.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inWord = true
		case c == '\\' && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
			inWord = true
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteByte(c)
			inWord = true
		}
		i++
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()
	return words, nil
}
