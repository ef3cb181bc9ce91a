// Package controller drives a single ship's container daemon: pulling
// images, creating, starting, stopping, removing, and inspecting
// containers. It is generalized from the teacher's Swarm-service-oriented
// deployer to plain per-container operations, since each instance here maps
// to exactly one container on exactly one ship rather than a replicated
// service.
package controller

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/signalfx/maestro-go/internal/errs"
	"github.com/signalfx/maestro-go/internal/model"
)

// DockerClient is the narrow slice of the Docker API the controller needs,
// kept separate from the full SDK client so tests can substitute a fake —
// the same narrowing the teacher applies to its own Swarm client.
type DockerClient interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)

	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)

	Close() error
}

// State is the observed lifecycle state of an instance's container.
type State string

const (
	StateAbsent  State = "absent"
	StateCreated State = "created"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Controller performs container operations against one ship's daemon.
type Controller struct {
	cli  DockerClient
	ship string
}

// New returns a Controller bound to cli, used for error-tagging purposes
// with ship's name.
func New(cli DockerClient, ship string) *Controller {
	return &Controller{cli: cli, ship: ship}
}

// Pull retrieves inst's image, authenticating with auth when non-nil.
// Progress JSON lines are drained and discarded; callers that want to
// surface pull progress should wrap this with their own streaming.
func (c *Controller) Pull(ctx context.Context, imageRef string, auth *model.Registry) error {
	opts := image.PullOptions{}
	if auth != nil {
		encoded, err := encodeAuth(auth)
		if err != nil {
			return &errs.ControllerError{Instance: imageRef, Phase: "pull", Cause: err}
		}
		opts.RegistryAuth = encoded
	}

	rc, err := c.cli.ImagePull(ctx, imageRef, opts)
	if err != nil {
		return &errs.ControllerError{Instance: imageRef, Phase: "pull", Cause: err}
	}
	defer rc.Close()

	if _, err := io.Copy(io.Discard, rc); err != nil {
		return &errs.ControllerError{Instance: imageRef, Phase: "pull", Cause: err}
	}
	return nil
}

func encodeAuth(r *model.Registry) (string, error) {
	cfg := struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email,omitempty"`
	}{Username: r.Username, Password: r.Password, Email: r.Email}

	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding registry auth: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// Create builds the container config for inst from the composed env and
// creates it, returning the new container's ID.
func (c *Controller) Create(ctx context.Context, inst *model.Instance, resolvedImage string, env map[string]string) (string, error) {
	cfg, hostCfg, err := buildSpec(inst, resolvedImage, env)
	if err != nil {
		return "", &errs.ControllerError{Instance: inst.Name, Phase: "create", Cause: err}
	}

	resp, err := c.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, inst.Name)
	if err != nil {
		return "", &errs.ControllerError{Instance: inst.Name, Phase: "create", Cause: err}
	}
	return resp.ID, nil
}

// Start starts an already-created container.
func (c *Controller) Start(ctx context.Context, inst *model.Instance, containerID string) error {
	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return &errs.ControllerError{Instance: inst.Name, Phase: "start", Cause: err}
	}
	return nil
}

// Stop stops a running container, honoring the instance's configured stop
// timeout.
func (c *Controller) Stop(ctx context.Context, inst *model.Instance, containerID string) error {
	timeout := inst.StopTimeout
	opts := container.StopOptions{Timeout: &timeout}
	if err := c.cli.ContainerStop(ctx, containerID, opts); err != nil {
		return &errs.ControllerError{Instance: inst.Name, Phase: "stop", Cause: err}
	}
	return nil
}

// Remove removes a stopped container.
func (c *Controller) Remove(ctx context.Context, inst *model.Instance, containerID string, force bool) error {
	opts := container.RemoveOptions{Force: force, RemoveVolumes: false}
	if err := c.cli.ContainerRemove(ctx, containerID, opts); err != nil {
		return &errs.ControllerError{Instance: inst.Name, Phase: "remove", Cause: err}
	}
	return nil
}

// Find locates inst's container by name, returning ("", StateAbsent, nil)
// if it does not exist on this ship.
func (c *Controller) Find(ctx context.Context, inst *model.Instance) (string, State, error) {
	containers, err := c.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return "", "", &errs.ControllerError{Instance: inst.Name, Phase: "inspect", Cause: err}
	}

	target := "/" + inst.Name
	for _, ctr := range containers {
		for _, name := range ctr.Names {
			if name == target {
				state, err := c.stateOf(ctx, inst, ctr.ID)
				return ctr.ID, state, err
			}
		}
	}
	return "", StateAbsent, nil
}

func (c *Controller) stateOf(ctx context.Context, inst *model.Instance, containerID string) (State, error) {
	info, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", &errs.ControllerError{Instance: inst.Name, Phase: "inspect", Cause: err}
	}
	if info.State == nil {
		return StateCreated, nil
	}
	if info.State.Running {
		return StateRunning, nil
	}
	return StateStopped, nil
}

// Logs streams containerID's combined stdout/stderr.
func (c *Controller) Logs(ctx context.Context, containerID string, follow bool) (io.ReadCloser, error) {
	return c.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Timestamps: false,
	})
}

// buildSpec translates an instance and its composed env into the Docker
// client's container.Config/container.HostConfig pair.
func buildSpec(inst *model.Instance, resolvedImage string, env map[string]string) (*container.Config, *container.HostConfig, error) {
	exposedPorts, portBindings, err := buildPorts(inst.Ports)
	if err != nil {
		return nil, nil, err
	}

	cfg := &container.Config{
		Hostname:     inst.Name,
		Image:        resolvedImage,
		Env:          envSlice(env),
		Cmd:          inst.Command,
		ExposedPorts: exposedPorts,
		Volumes:      buildContainerVolumes(inst.ContainerVolumes),
	}

	hostCfg := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        buildBinds(inst.Volumes),
		VolumesFrom:  inst.VolumesFrom,
		Privileged:   inst.Privileged,
		CapAdd:       inst.CapAdd,
		CapDrop:      inst.CapDrop,
		ExtraHosts:   buildExtraHosts(inst.ExtraHosts),
		DNS:          inst.DNS,
		NetworkMode:  container.NetworkMode(networkModeOrDefault(inst.Net)),
		LogConfig: container.LogConfig{
			Type:   inst.LogDriver,
			Config: inst.LogOpt,
		},
		Resources: container.Resources{
			Memory:     int64(inst.Memory),
			MemorySwap: int64(inst.Swap),
			NanoCPUs:   int64(inst.CPU * 1e9),
		},
	}
	if inst.Restart != nil {
		hostCfg.RestartPolicy = container.RestartPolicy{
			Name:              container.RestartPolicyMode(inst.Restart.Name),
			MaximumRetryCount: inst.Restart.MaximumRetryCount,
		}
	}
	return cfg, hostCfg, nil
}

func networkModeOrDefault(net string) string {
	if net == "" {
		return "bridge"
	}
	return net
}

func envSlice(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func buildPorts(ports map[string]*model.Port) (nat.PortSet, nat.PortMap, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range ports {
		containerPort, err := nat.NewPort(p.ExposedProto, fmt.Sprintf("%d", p.ExposedPort))
		if err != nil {
			return nil, nil, fmt.Errorf("port %q: %w", p.Name, err)
		}
		exposed[containerPort] = struct{}{}
		bindings[containerPort] = append(bindings[containerPort], nat.PortBinding{
			HostIP:   p.BindAddr,
			HostPort: fmt.Sprintf("%d", p.ExternalPort),
		})
	}
	return exposed, bindings, nil
}

func buildBinds(volumes map[string]*model.VolumeBinding) []string {
	var out []string
	for host, v := range volumes {
		out = append(out, fmt.Sprintf("%s:%s:%s", host, v.Target, v.Mode))
	}
	sort.Strings(out)
	return out
}

// buildContainerVolumes turns a list of in-container paths into the
// anonymous-volume declaration map container.Config.Volumes expects —
// mount points with no host bind, as opposed to buildBinds' host:target
// pairs.
func buildContainerVolumes(paths []string) map[string]struct{} {
	if len(paths) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		out[p] = struct{}{}
	}
	return out
}

func buildExtraHosts(hosts map[string]string) []string {
	var out []string
	for host, ip := range hosts {
		out = append(out, fmt.Sprintf("%s:%s", host, ip))
	}
	sort.Strings(out)
	return out
}
