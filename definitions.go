package drydock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/drydocklabs/drydock/logstream"
	"github.com/drydocklabs/drydock/pstree"
)

// State is where a definition is in its lifecycle.
type State int

const (
	// StateUnbound: described but not yet created on the daemon.
	StateUnbound State = iota
	// StateCreated: the resource exists but is not running.
	StateCreated
	// StateStarted: the container is running but not known to be ready.
	StateStarted
	// StateReady: the readiness condition has been observed.
	StateReady
	// StateFailed: a lifecycle step failed; only teardown is allowed.
	StateFailed
	// StateRemoved: torn down. The definition can be set up again.
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateRemoved:
		return "removed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Definition is a declaratively described resource that can be created on
// and removed from a daemon through a bound helper.
type Definition interface {
	Name() string
	State() State

	// Bind attaches the helper the definition will create its resource
	// through. Binding an already-bound definition rebinds it.
	Bind(h *DockerHelper)

	// Setup walks the definition to its running (and, for containers with
	// wait patterns, ready) state. Setting up a definition that is already
	// up is a no-op.
	Setup(ctx context.Context) error

	// Teardown removes the resource. The definition always ends up removed,
	// even when the engine reports a failure; it is never retried.
	Teardown(ctx context.Context) error
}

// ContainerDefinition describes a container, its readiness condition, and
// how to reset it between tests.
type ContainerDefinition struct {
	name string
	spec ContainerSpec

	waitPatterns []string
	waitTimeout  time.Duration
	pollInterval time.Duration
	cleaner      Cleaner

	helper *DockerHelper
	state  State
}

// NewContainer describes a container under a logical name. The description
// is inert until it is bound to a helper and set up.
func NewContainer(name, image string) *ContainerDefinition {
	return &ContainerDefinition{
		name:         name,
		spec:         ContainerSpec{Image: image},
		waitTimeout:  logstream.DefaultTimeout,
		pollInterval: logstream.DefaultPollInterval,
	}
}

func (d *ContainerDefinition) Name() string { return d.name }

func (d *ContainerDefinition) State() State { return d.state }

func (d *ContainerDefinition) Bind(h *DockerHelper) { d.helper = h }

// mutable panics when the definition has already materialized a container;
// the description must not drift from what is running.
func (d *ContainerDefinition) mutable() {
	if d.state != StateUnbound && d.state != StateRemoved {
		panic(fmt.Sprintf("cannot modify container definition %q in state %s", d.name, d.state))
	}
}

// WithCmd sets the container command.
func (d *ContainerDefinition) WithCmd(cmd ...string) *ContainerDefinition {
	d.mutable()
	d.spec.Cmd = cmd
	return d
}

// WithEnv appends environment entries of the form KEY=value.
func (d *ContainerDefinition) WithEnv(env ...string) *ContainerDefinition {
	d.mutable()
	d.spec.Env = append(d.spec.Env, env...)
	return d
}

// WithPort publishes a container port on an ephemeral host port.
func (d *ContainerDefinition) WithPort(containerPort int) *ContainerDefinition {
	d.mutable()
	d.spec.Ports = append(d.spec.Ports, PortMapping{Container: containerPort})
	return d
}

// WithPortBinding publishes a container port on a fixed host port.
func (d *ContainerDefinition) WithPortBinding(containerPort, hostPort int) *ContainerDefinition {
	d.mutable()
	d.spec.Ports = append(d.spec.Ports, PortMapping{Container: containerPort, Host: hostPort})
	return d
}

// WithVolume mounts a volume into the container. Source is the logical name
// of a volume created through the same helper, or a host path when it
// starts with "/".
func (d *ContainerDefinition) WithVolume(source, target string) *ContainerDefinition {
	d.mutable()
	d.spec.Volumes = append(d.spec.Volumes, VolumeMount{Source: source, Target: target})
	return d
}

// WithNetwork attaches the container to a network created through the same
// helper instead of the default one. The name is the network's physical
// name, as returned by NetworkDefinition.ID or NetworkHelper.Create.
func (d *ContainerDefinition) WithNetwork(physical string) *ContainerDefinition {
	d.mutable()
	d.spec.Network = physical
	return d
}

// WithTmpfs mounts a tmpfs at each path.
func (d *ContainerDefinition) WithTmpfs(paths ...string) *ContainerDefinition {
	d.mutable()
	d.spec.Tmpfs = append(d.spec.Tmpfs, paths...)
	return d
}

// WithLabels merges labels onto the container.
func (d *ContainerDefinition) WithLabels(labels map[string]string) *ContainerDefinition {
	d.mutable()
	if d.spec.Labels == nil {
		d.spec.Labels = make(map[string]string, len(labels))
	}
	for k, v := range labels {
		d.spec.Labels[k] = v
	}
	return d
}

// WithWaitPatterns sets the regular expressions the container's log output
// must satisfy, in any order, before Setup considers it ready.
func (d *ContainerDefinition) WithWaitPatterns(patterns ...string) *ContainerDefinition {
	d.mutable()
	d.waitPatterns = patterns
	return d
}

// WithWaitTimeout bounds the readiness wait.
func (d *ContainerDefinition) WithWaitTimeout(timeout time.Duration) *ContainerDefinition {
	d.mutable()
	d.waitTimeout = timeout
	return d
}

// WithCleaner sets how Clean resets the container between tests.
func (d *ContainerDefinition) WithCleaner(c Cleaner) *ContainerDefinition {
	d.mutable()
	d.cleaner = c
	return d
}

// WithHelper binds the helper, chainable.
func (d *ContainerDefinition) WithHelper(h *DockerHelper) *ContainerDefinition {
	d.Bind(h)
	return d
}

// Setup creates and starts the container, then waits for its wait patterns.
// A definition that is already up is left alone. A failed definition must be
// torn down before it can be set up again.
func (d *ContainerDefinition) Setup(ctx context.Context) error {
	if d.helper == nil {
		return fmt.Errorf("set up container %q: %w", d.name, ErrHelperNotBound)
	}
	switch d.state {
	case StateCreated, StateStarted, StateReady:
		return nil
	case StateFailed:
		return &StateError{Name: d.name, Op: "set up", From: d.state}
	}

	spec := d.spec
	spec.Volumes = append([]VolumeMount(nil), d.spec.Volumes...)
	if _, err := d.helper.Containers.Create(ctx, d.name, spec); err != nil {
		d.state = StateFailed
		return fmt.Errorf("create container %q: %w", d.name, err)
	}
	d.state = StateCreated

	if err := d.helper.Containers.Start(ctx, d.name); err != nil {
		d.state = StateFailed
		return fmt.Errorf("start container %q: %w", d.name, err)
	}
	d.state = StateStarted

	if len(d.waitPatterns) == 0 {
		d.state = StateReady
		return nil
	}
	if err := d.waitForReady(ctx); err != nil {
		d.state = StateFailed
		return fmt.Errorf("wait for container %q: %w", d.name, err)
	}
	d.state = StateReady
	return nil
}

// SetupWith binds the helper and sets up.
func (d *ContainerDefinition) SetupWith(ctx context.Context, h *DockerHelper) error {
	d.Bind(h)
	return d.Setup(ctx)
}

func (d *ContainerDefinition) waitForReady(ctx context.Context) error {
	stream, err := d.helper.Containers.StreamLogs(ctx, d.name)
	if err != nil {
		return err
	}
	src := logstream.NewReaderSource(stream)
	defer src.Close()

	matchers := make([]logstream.Matcher, len(d.waitPatterns))
	for i, p := range d.waitPatterns {
		matchers[i] = logstream.Regex(p)
	}
	return logstream.Wait(ctx, src, logstream.Unordered(matchers...),
		logstream.WithTimeout(d.waitTimeout),
		logstream.WithPollInterval(d.pollInterval))
}

// Teardown removes the container. The definition ends up removed whatever
// the engine says; removal is never retried.
func (d *ContainerDefinition) Teardown(ctx context.Context) error {
	switch d.state {
	case StateUnbound, StateRemoved:
		return nil
	}
	err := d.helper.Containers.Remove(ctx, d.name)
	d.state = StateRemoved
	// A failed create leaves nothing registered; that is already removed.
	var nrerr *NotRegisteredError
	if errors.As(err, &nrerr) {
		return nil
	}
	return err
}

// Clean resets a ready container's state using its cleaner, so a suite can
// reuse one container across tests instead of rebuilding it.
func (d *ContainerDefinition) Clean(ctx context.Context) error {
	if d.state != StateReady {
		return &StateError{Name: d.name, Op: "clean", From: d.state}
	}
	if d.cleaner == nil {
		return fmt.Errorf("clean container %q: no cleaner configured", d.name)
	}
	return d.cleaner.Clean(ctx, d)
}

func (d *ContainerDefinition) running() error {
	switch d.state {
	case StateStarted, StateReady:
		return nil
	}
	return &StateError{Name: d.name, Op: "use", From: d.state}
}

// Exec runs a command inside the running container.
func (d *ContainerDefinition) Exec(ctx context.Context, cmd ...string) (ExecResult, error) {
	if err := d.running(); err != nil {
		return ExecResult{}, err
	}
	return d.helper.Containers.Exec(ctx, d.name, cmd)
}

// Logs returns a snapshot of the container's combined output.
func (d *ContainerDefinition) Logs(ctx context.Context) (string, error) {
	if err := d.running(); err != nil {
		return "", err
	}
	return d.helper.Containers.Logs(ctx, d.name)
}

// HostPorts returns the host bindings of a published container port.
func (d *ContainerDefinition) HostPorts(ctx context.Context, containerPort int) ([]PortBinding, error) {
	if err := d.running(); err != nil {
		return nil, err
	}
	ports, err := d.helper.Containers.Ports(ctx, d.name)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%d/tcp", containerPort)
	bindings := ports[key]
	if len(bindings) == 0 {
		return nil, fmt.Errorf("container %q publishes no port %s", d.name, key)
	}
	return bindings, nil
}

// FirstHostPort returns the host binding of the lowest published container
// port, the common case of a container exposing one service.
func (d *ContainerDefinition) FirstHostPort(ctx context.Context) (PortBinding, error) {
	if err := d.running(); err != nil {
		return PortBinding{}, err
	}
	ports, err := d.helper.Containers.Ports(ctx, d.name)
	if err != nil {
		return PortBinding{}, err
	}
	lowest := -1
	var binding PortBinding
	for key, bindings := range ports {
		if len(bindings) == 0 {
			continue
		}
		numStr, _, _ := strings.Cut(key, "/")
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		if lowest == -1 || n < lowest {
			lowest, binding = n, bindings[0]
		}
	}
	if lowest == -1 {
		return PortBinding{}, fmt.Errorf("container %q publishes no ports", d.name)
	}
	return binding, nil
}

// ProcessTree returns the tree of processes running inside the container.
func (d *ContainerDefinition) ProcessTree(ctx context.Context) (*pstree.Tree, error) {
	if err := d.running(); err != nil {
		return nil, err
	}
	res, err := d.Exec(ctx, pstree.Command()...)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("ps in container %q exited %d: %s",
			d.name, res.ExitCode, strings.TrimSpace(res.Output))
	}
	procs, err := pstree.ParsePS(res.Output)
	if err != nil {
		return nil, fmt.Errorf("parse ps output of %q: %w", d.name, err)
	}
	return pstree.Build(procs)
}

// Cleaner resets a container's state between tests.
type Cleaner interface {
	Clean(ctx context.Context, d *ContainerDefinition) error
}

// CleanerFunc adapts a function to the Cleaner interface.
type CleanerFunc func(ctx context.Context, d *ContainerDefinition) error

func (f CleanerFunc) Clean(ctx context.Context, d *ContainerDefinition) error {
	return f(ctx, d)
}

// ExecCleaner cleans by running a command inside the container and failing
// on a nonzero exit.
func ExecCleaner(cmd ...string) Cleaner {
	return CleanerFunc(func(ctx context.Context, d *ContainerDefinition) error {
		res, err := d.Exec(ctx, cmd...)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("clean command %q in %q exited %d: %s",
				strings.Join(cmd, " "), d.name, res.ExitCode, strings.TrimSpace(res.Output))
		}
		return nil
	})
}

// NetworkDefinition describes a network. Networks have no started or ready
// states; setup creates them and teardown removes them.
type NetworkDefinition struct {
	name   string
	spec   NetworkSpec
	helper *DockerHelper
	state  State
}

// NewNetwork describes a network under a logical name.
func NewNetwork(name string) *NetworkDefinition {
	return &NetworkDefinition{name: name}
}

func (d *NetworkDefinition) Name() string { return d.name }

func (d *NetworkDefinition) State() State { return d.state }

func (d *NetworkDefinition) Bind(h *DockerHelper) { d.helper = h }

// WithInternal isolates the network from the outside world.
func (d *NetworkDefinition) WithInternal() *NetworkDefinition {
	if d.state == StateCreated {
		panic(fmt.Sprintf("cannot modify network definition %q in state %s", d.name, d.state))
	}
	d.spec.Internal = true
	return d
}

// WithHelper binds the helper, chainable.
func (d *NetworkDefinition) WithHelper(h *DockerHelper) *NetworkDefinition {
	d.Bind(h)
	return d
}

func (d *NetworkDefinition) Setup(ctx context.Context) error {
	if d.helper == nil {
		return fmt.Errorf("set up network %q: %w", d.name, ErrHelperNotBound)
	}
	if d.state == StateCreated {
		return nil
	}
	if d.state == StateFailed {
		return &StateError{Name: d.name, Op: "set up", From: d.state}
	}
	if _, err := d.helper.Networks.Create(ctx, d.name, d.spec); err != nil {
		d.state = StateFailed
		return fmt.Errorf("create network %q: %w", d.name, err)
	}
	d.state = StateCreated
	return nil
}

func (d *NetworkDefinition) Teardown(ctx context.Context) error {
	switch d.state {
	case StateUnbound, StateRemoved:
		return nil
	}
	err := d.helper.Networks.Remove(ctx, d.name)
	d.state = StateRemoved
	var nrerr *NotRegisteredError
	if errors.As(err, &nrerr) {
		return nil
	}
	return err
}

// ID returns the physical network name, for wiring into container specs.
func (d *NetworkDefinition) ID() (string, error) {
	if d.state != StateCreated {
		return "", &StateError{Name: d.name, Op: "reference", From: d.state}
	}
	return d.helper.Namespace().Qualify(d.name), nil
}

// VolumeDefinition describes a volume, with the same reduced lifecycle as a
// network.
type VolumeDefinition struct {
	name   string
	spec   VolumeSpec
	helper *DockerHelper
	state  State
}

// NewVolume describes a volume under a logical name.
func NewVolume(name string) *VolumeDefinition {
	return &VolumeDefinition{name: name}
}

func (d *VolumeDefinition) Name() string { return d.name }

func (d *VolumeDefinition) State() State { return d.state }

func (d *VolumeDefinition) Bind(h *DockerHelper) { d.helper = h }

// WithHelper binds the helper, chainable.
func (d *VolumeDefinition) WithHelper(h *DockerHelper) *VolumeDefinition {
	d.Bind(h)
	return d
}

func (d *VolumeDefinition) Setup(ctx context.Context) error {
	if d.helper == nil {
		return fmt.Errorf("set up volume %q: %w", d.name, ErrHelperNotBound)
	}
	if d.state == StateCreated {
		return nil
	}
	if d.state == StateFailed {
		return &StateError{Name: d.name, Op: "set up", From: d.state}
	}
	if _, err := d.helper.Volumes.Create(ctx, d.name, d.spec); err != nil {
		d.state = StateFailed
		return fmt.Errorf("create volume %q: %w", d.name, err)
	}
	d.state = StateCreated
	return nil
}

func (d *VolumeDefinition) Teardown(ctx context.Context) error {
	switch d.state {
	case StateUnbound, StateRemoved:
		return nil
	}
	err := d.helper.Volumes.Remove(ctx, d.name)
	d.state = StateRemoved
	var nrerr *NotRegisteredError
	if errors.As(err, &nrerr) {
		return nil
	}
	return err
}

// ID returns the physical volume name.
func (d *VolumeDefinition) ID() (string, error) {
	if d.state != StateCreated {
		return "", &StateError{Name: d.name, Op: "reference", From: d.state}
	}
	return d.helper.Namespace().Qualify(d.name), nil
}
