package controller

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/signalfx/maestro-go/internal/errs"
	"github.com/signalfx/maestro-go/internal/model"
)

type fakeClient struct {
	pullErr      error
	createErr    error
	createID     string
	startErr     error
	stopErr      error
	removeErr    error
	listResult   []container.Summary
	inspectState *container.State
	inspectErr   error

	lastConfig     *container.Config
	lastHostConfig *container.HostConfig
}

func (f *fakeClient) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return io.NopCloser(strings.NewReader(`{"status":"done"}`)), nil
}

func (f *fakeClient) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.lastConfig = config
	f.lastHostConfig = hostConfig
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	return container.CreateResponse{ID: f.createID}, nil
}

func (f *fakeClient) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return f.startErr
}

func (f *fakeClient) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	return f.stopErr
}

func (f *fakeClient) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	return f.removeErr
}

func (f *fakeClient) ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error) {
	if f.inspectErr != nil {
		return container.InspectResponse{}, f.inspectErr
	}
	return container.InspectResponse{ContainerJSONBase: &container.ContainerJSONBase{State: f.inspectState}}, nil
}

func (f *fakeClient) ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error) {
	return f.listResult, nil
}

func (f *fakeClient) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeClient) Close() error { return nil }

func TestPullWrapsError(t *testing.T) {
	fc := &fakeClient{pullErr: errors.New("boom")}
	c := New(fc, "ship1")
	err := c.Pull(context.Background(), "redis:6", nil)
	var cErr *errs.ControllerError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected *errs.ControllerError, got %T: %v", err, err)
	}
	if cErr.Phase != "pull" {
		t.Errorf("Phase = %q, want pull", cErr.Phase)
	}
}

func TestPullWithAuthEncodesCredentials(t *testing.T) {
	fc := &fakeClient{}
	c := New(fc, "ship1")
	err := c.Pull(context.Background(), "registry.example.com/redis:6", &model.Registry{Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
}

func TestCreateBuildsPortBindings(t *testing.T) {
	fc := &fakeClient{createID: "abc123"}
	c := New(fc, "ship1")
	inst := &model.Instance{
		Name: "web-1",
		Ports: map[string]*model.Port{
			"http": {Name: "http", ExposedPort: 80, ExposedProto: "tcp", ExternalPort: 8080, BindAddr: "0.0.0.0"},
		},
		Net: "bridge",
	}
	id, err := c.Create(context.Background(), inst, "nginx:latest", map[string]string{"FOO": "bar"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id != "abc123" {
		t.Errorf("id = %q, want abc123", id)
	}
	if len(fc.lastConfig.Env) != 1 || fc.lastConfig.Env[0] != "FOO=bar" {
		t.Errorf("unexpected env: %v", fc.lastConfig.Env)
	}
	if len(fc.lastHostConfig.PortBindings) != 1 {
		t.Errorf("expected 1 port binding, got %d", len(fc.lastHostConfig.PortBindings))
	}
}

func TestCreateSetsContainerVolumes(t *testing.T) {
	fc := &fakeClient{createID: "abc123"}
	c := New(fc, "ship1")
	inst := &model.Instance{
		Name:             "web-1",
		Net:              "bridge",
		ContainerVolumes: []string{"/var/lib/data", "/var/log/app"},
	}
	if _, err := c.Create(context.Background(), inst, "nginx:latest", nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, ok := fc.lastConfig.Volumes["/var/lib/data"]; !ok {
		t.Error("expected /var/lib/data in container volumes")
	}
	if _, ok := fc.lastConfig.Volumes["/var/log/app"]; !ok {
		t.Error("expected /var/log/app in container volumes")
	}
	if len(fc.lastConfig.Volumes) != 2 {
		t.Errorf("expected exactly 2 container volumes, got %d", len(fc.lastConfig.Volumes))
	}
}

func TestFindReturnsAbsentWhenNoMatch(t *testing.T) {
	fc := &fakeClient{listResult: nil}
	c := New(fc, "ship1")
	id, state, err := c.Find(context.Background(), &model.Instance{Name: "web-1"})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if id != "" || state != StateAbsent {
		t.Errorf("got id=%q state=%q, want absent", id, state)
	}
}

func TestFindReturnsRunningState(t *testing.T) {
	fc := &fakeClient{
		listResult:   []container.Summary{{ID: "abc", Names: []string{"/web-1"}}},
		inspectState: &container.State{Running: true},
	}
	c := New(fc, "ship1")
	id, state, err := c.Find(context.Background(), &model.Instance{Name: "web-1"})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if id != "abc" || state != StateRunning {
		t.Errorf("got id=%q state=%q, want abc/running", id, state)
	}
}
