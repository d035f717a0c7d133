package drydock

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Client operations when the named resource does
// not exist on the daemon. Implementations must translate their own
// not-found conditions into it so callers can test with errors.Is.
var ErrNotFound = errors.New("resource not found")

// ResourceKind identifies one of the Docker resource kinds the helpers
// manage.
type ResourceKind string

const (
	KindContainer ResourceKind = "container"
	KindNetwork   ResourceKind = "network"
	KindVolume    ResourceKind = "volume"
	KindImage     ResourceKind = "image"
)

// ManagedLabel marks resources created through a helper so the prune command
// never touches anything else.
const ManagedLabel = "io.drydock.managed"

// PortMapping publishes one container port on the host. A zero Host port
// asks the daemon for an ephemeral one.
type PortMapping struct {
	Container int
	Host      int
	Protocol  string // "tcp" when empty
}

// VolumeMount mounts a named volume or a host path into a container.
type VolumeMount struct {
	// Source is a volume name, or a host path when it starts with "/".
	Source   string
	Target   string
	ReadOnly bool
}

// ContainerSpec is everything needed to create a container. Names referring
// to other resources (volumes, the network) are physical names; helpers
// qualify logical names before building a spec.
type ContainerSpec struct {
	Image          string
	Cmd            []string
	Entrypoint     []string
	Env            []string
	Ports          []PortMapping
	Volumes        []VolumeMount
	Network        string
	NetworkAliases []string
	Labels         map[string]string
	Tmpfs          []string
}

// NetworkSpec configures a network create call.
type NetworkSpec struct {
	Driver   string // "bridge" when empty
	Internal bool
	Labels   map[string]string
}

// VolumeSpec configures a volume create call.
type VolumeSpec struct {
	Driver string // "local" when empty
	Labels map[string]string
}

// PortBinding is one host-side binding of a published container port.
type PortBinding struct {
	HostIP   string
	HostPort string
}

func (b PortBinding) String() string {
	return fmt.Sprintf("%s:%s", b.HostIP, b.HostPort)
}

// ExecResult is the outcome of a command run inside a container.
type ExecResult struct {
	ExitCode int
	Output   string
}

// Client is the engine surface the helpers drive. DockerClient implements it
// against a real daemon; tests substitute fakes.
type Client interface {
	// Containers.
	CreateContainer(ctx context.Context, name string, spec ContainerSpec) (id string, err error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	// StreamLogs follows the container's combined output. The caller closes
	// the stream.
	StreamLogs(ctx context.Context, id string) (io.ReadCloser, error)
	// Logs returns a snapshot of the container's combined output so far.
	Logs(ctx context.Context, id string) (string, error)
	Exec(ctx context.Context, id string, cmd []string) (ExecResult, error)
	// InspectPorts returns the host bindings of each published port, keyed
	// by "port/proto".
	InspectPorts(ctx context.Context, id string) (map[string][]PortBinding, error)

	// Networks.
	CreateNetwork(ctx context.Context, name string, spec NetworkSpec) (id string, err error)
	RemoveNetwork(ctx context.Context, id string) error

	// Volumes.
	CreateVolume(ctx context.Context, name string, spec VolumeSpec) (id string, err error)
	RemoveVolume(ctx context.Context, id string) error

	// Images.
	HasImage(ctx context.Context, ref string) (bool, error)
	PullImage(ctx context.Context, ref string) error
	RemoveImage(ctx context.Context, ref string) error

	// ListNames returns the names of existing resources of one kind, for
	// pruning leftovers by namespace. Unsupported for KindImage.
	ListNames(ctx context.Context, kind ResourceKind) ([]string, error)

	Close() error
}
