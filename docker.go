package drydock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// DockerClient implements Client against a real Docker daemon.
type DockerClient struct {
	cli *client.Client
}

// NewDockerClient connects to the daemon configured by the usual DOCKER_*
// environment variables.
func NewDockerClient() (*DockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connect to docker daemon: %w", err)
	}
	return &DockerClient{cli: cli}, nil
}

// Close closes the connection to the daemon.
func (c *DockerClient) Close() error {
	return c.cli.Close()
}

// CreateContainer creates a container without starting it.
func (c *DockerClient) CreateContainer(ctx context.Context, name string, spec ContainerSpec) (string, error) {
	config, err := buildContainerConfig(spec)
	if err != nil {
		return "", err
	}
	hostConfig := buildHostConfig(spec)
	netConfig := buildNetworkingConfig(spec)

	resp, err := c.cli.ContainerCreate(ctx, config, hostConfig, netConfig, nil, name)
	if err != nil {
		return "", fmt.Errorf("create container %q: %w", name, err)
	}
	return resp.ID, nil
}

func (c *DockerClient) StartContainer(ctx context.Context, id string) error {
	if err := c.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", shortID(id), err)
	}
	return nil
}

func (c *DockerClient) StopContainer(ctx context.Context, id string) error {
	if err := c.cli.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		return wrapNotFound(err, fmt.Sprintf("stop container %s", shortID(id)))
	}
	return nil
}

func (c *DockerClient) RemoveContainer(ctx context.Context, id string) error {
	opts := container.RemoveOptions{Force: true, RemoveVolumes: false}
	if err := c.cli.ContainerRemove(ctx, id, opts); err != nil {
		return wrapNotFound(err, fmt.Sprintf("remove container %s", shortID(id)))
	}
	return nil
}

// StreamLogs follows the container's combined stdout and stderr. The
// returned stream yields demultiplexed output; closing it stops following.
func (c *DockerClient) StreamLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	raw, err := c.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("stream logs of %s", shortID(id)))
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, raw)
		pw.CloseWithError(err)
	}()
	return &logStream{pr: pr, raw: raw}, nil
}

type logStream struct {
	pr  *io.PipeReader
	raw io.ReadCloser
}

func (s *logStream) Read(p []byte) (int, error) { return s.pr.Read(p) }

func (s *logStream) Close() error {
	// Closing the raw stream unblocks the demux goroutine.
	err := s.raw.Close()
	s.pr.Close()
	return err
}

// Logs returns a snapshot of the container's combined output so far.
func (c *DockerClient) Logs(ctx context.Context, id string) (string, error) {
	raw, err := c.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", wrapNotFound(err, fmt.Sprintf("read logs of %s", shortID(id)))
	}
	defer raw.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, raw); err != nil {
		return "", fmt.Errorf("read logs of %s: %w", shortID(id), err)
	}
	return buf.String(), nil
}

// Exec runs cmd inside the container and waits for it, returning its exit
// code and combined output.
func (c *DockerClient) Exec(ctx context.Context, id string, cmd []string) (ExecResult, error) {
	created, err := c.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, wrapNotFound(err, fmt.Sprintf("exec in %s", shortID(id)))
	}

	attached, err := c.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("attach exec in %s: %w", shortID(id), err)
	}
	defer attached.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, attached.Reader); err != nil {
		return ExecResult{}, fmt.Errorf("read exec output in %s: %w", shortID(id), err)
	}

	inspect, err := c.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("inspect exec in %s: %w", shortID(id), err)
	}
	return ExecResult{ExitCode: inspect.ExitCode, Output: buf.String()}, nil
}

// InspectPorts returns the live host bindings of the container's published
// ports, keyed by "port/proto".
func (c *DockerClient) InspectPorts(ctx context.Context, id string) (map[string][]PortBinding, error) {
	inspect, err := c.cli.ContainerInspect(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("inspect container %s", shortID(id)))
	}

	ports := make(map[string][]PortBinding)
	for port, bindings := range inspect.NetworkSettings.Ports {
		for _, b := range bindings {
			ports[string(port)] = append(ports[string(port)], PortBinding{
				HostIP:   b.HostIP,
				HostPort: b.HostPort,
			})
		}
	}
	return ports, nil
}

func (c *DockerClient) CreateNetwork(ctx context.Context, name string, spec NetworkSpec) (string, error) {
	driver := spec.Driver
	if driver == "" {
		driver = "bridge"
	}
	resp, err := c.cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver:   driver,
		Internal: spec.Internal,
		Labels:   withManagedLabel(spec.Labels),
	})
	if err != nil {
		return "", fmt.Errorf("create network %q: %w", name, err)
	}
	return resp.ID, nil
}

func (c *DockerClient) RemoveNetwork(ctx context.Context, id string) error {
	if err := c.cli.NetworkRemove(ctx, id); err != nil {
		return wrapNotFound(err, fmt.Sprintf("remove network %s", shortID(id)))
	}
	return nil
}

func (c *DockerClient) CreateVolume(ctx context.Context, name string, spec VolumeSpec) (string, error) {
	driver := spec.Driver
	if driver == "" {
		driver = "local"
	}
	vol, err := c.cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Driver: driver,
		Labels: withManagedLabel(spec.Labels),
	})
	if err != nil {
		return "", fmt.Errorf("create volume %q: %w", name, err)
	}
	return vol.Name, nil
}

func (c *DockerClient) RemoveVolume(ctx context.Context, id string) error {
	if err := c.cli.VolumeRemove(ctx, id, true); err != nil {
		return wrapNotFound(err, fmt.Sprintf("remove volume %s", id))
	}
	return nil
}

func (c *DockerClient) HasImage(ctx context.Context, ref string) (bool, error) {
	_, _, err := c.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect image %q: %w", ref, err)
	}
	return true, nil
}

func (c *DockerClient) PullImage(ctx context.Context, ref string) error {
	resp, err := c.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %q: %w", ref, err)
	}
	defer resp.Close()

	// The pull is only complete once the progress stream has been drained.
	if _, err := io.Copy(io.Discard, resp); err != nil {
		return fmt.Errorf("pull image %q: %w", ref, err)
	}
	return nil
}

func (c *DockerClient) RemoveImage(ctx context.Context, ref string) error {
	_, err := c.cli.ImageRemove(ctx, ref, image.RemoveOptions{})
	if err != nil {
		return wrapNotFound(err, fmt.Sprintf("remove image %q", ref))
	}
	return nil
}

// ListNames lists existing resources of one kind created through drydock, by
// the managed label.
func (c *DockerClient) ListNames(ctx context.Context, kind ResourceKind) ([]string, error) {
	managed := mustNewFilter(map[string][]string{"label": {ManagedLabel}})

	switch kind {
	case KindContainer:
		list, err := c.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: managed})
		if err != nil {
			return nil, fmt.Errorf("list containers: %w", err)
		}
		var names []string
		for _, ctr := range list {
			for _, name := range ctr.Names {
				names = append(names, strings.TrimPrefix(name, "/"))
			}
		}
		return names, nil

	case KindNetwork:
		list, err := c.cli.NetworkList(ctx, network.ListOptions{Filters: managed})
		if err != nil {
			return nil, fmt.Errorf("list networks: %w", err)
		}
		var names []string
		for _, nw := range list {
			names = append(names, nw.Name)
		}
		return names, nil

	case KindVolume:
		list, err := c.cli.VolumeList(ctx, volume.ListOptions{Filters: managed})
		if err != nil {
			return nil, fmt.Errorf("list volumes: %w", err)
		}
		var names []string
		for _, vol := range list.Volumes {
			names = append(names, vol.Name)
		}
		return names, nil
	}
	return nil, fmt.Errorf("cannot list resources of kind %q", kind)
}

func buildContainerConfig(spec ContainerSpec) (*container.Config, error) {
	config := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Cmd,
		Entrypoint: spec.Entrypoint,
		Env:        spec.Env,
		Labels:     withManagedLabel(spec.Labels),
	}

	if len(spec.Ports) > 0 {
		exposed := make(nat.PortSet)
		for _, pm := range spec.Ports {
			port, err := containerPort(pm)
			if err != nil {
				return nil, err
			}
			exposed[port] = struct{}{}
		}
		config.ExposedPorts = exposed
	}
	return config, nil
}

func buildHostConfig(spec ContainerSpec) *container.HostConfig {
	hostConfig := &container.HostConfig{}
	if spec.Network == "host" {
		hostConfig.NetworkMode = container.NetworkMode("host")
	}

	if len(spec.Ports) > 0 {
		bindings := make(nat.PortMap)
		for _, pm := range spec.Ports {
			port, err := containerPort(pm)
			if err != nil {
				continue // already rejected in buildContainerConfig
			}
			binding := nat.PortBinding{HostIP: "0.0.0.0"}
			if pm.Host > 0 {
				binding.HostPort = fmt.Sprintf("%d", pm.Host)
			}
			bindings[port] = append(bindings[port], binding)
		}
		hostConfig.PortBindings = bindings
	}

	if len(spec.Volumes) > 0 {
		mounts := make([]mount.Mount, 0, len(spec.Volumes))
		for _, vm := range spec.Volumes {
			mountType := mount.TypeVolume
			if strings.HasPrefix(vm.Source, "/") {
				mountType = mount.TypeBind
			}
			mounts = append(mounts, mount.Mount{
				Type:     mountType,
				Source:   vm.Source,
				Target:   vm.Target,
				ReadOnly: vm.ReadOnly,
			})
		}
		hostConfig.Mounts = mounts
	}

	if len(spec.Tmpfs) > 0 {
		tmpfs := make(map[string]string, len(spec.Tmpfs))
		for _, path := range spec.Tmpfs {
			tmpfs[path] = ""
		}
		hostConfig.Tmpfs = tmpfs
	}
	return hostConfig
}

// buildNetworkingConfig attaches the container to its network with its
// aliases set at create time, so other containers can resolve it by logical
// name as soon as it starts.
func buildNetworkingConfig(spec ContainerSpec) *network.NetworkingConfig {
	if spec.Network == "" || spec.Network == "host" {
		return nil
	}
	return &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			spec.Network: {Aliases: spec.NetworkAliases},
		},
	}
}

func containerPort(pm PortMapping) (nat.Port, error) {
	proto := pm.Protocol
	if proto == "" {
		proto = "tcp"
	}
	port, err := nat.NewPort(proto, fmt.Sprintf("%d", pm.Container))
	if err != nil {
		return "", fmt.Errorf("bad port mapping %d/%s: %w", pm.Container, proto, err)
	}
	return port, nil
}

func withManagedLabel(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[ManagedLabel] = "true"
	return out
}

// mustNewFilter builds filter args from a literal map.
func mustNewFilter(kv map[string][]string) filters.Args {
	f := filters.NewArgs()
	for k, values := range kv {
		for _, v := range values {
			f.Add(k, v)
		}
	}
	return f
}

func wrapNotFound(err error, op string) error {
	if client.IsErrNotFound(err) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
