// Package drydock manages throwaway Docker resources for integration tests:
// namespaced containers, networks, and volumes with tracked lifecycles,
// log-based readiness waits, and a teardown that always leaves the daemon
// the way it was found.
//
// A DockerHelper owns one namespace and one daemon connection. Container,
// network, and volume definitions describe resources declaratively and walk
// them through create, start, ready, and remove; Fixture and Run bind
// definitions to tests with teardown handled automatically.
package drydock

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/drydocklabs/drydock/namespace"
)

// Config configures a DockerHelper. The zero value is usable: it targets
// the daemon from the environment, uses the "test" namespace, and logs
// nothing.
type Config struct {
	// Namespace prefixes every resource name created through the helper.
	Namespace namespace.Namespace

	// Client is the engine connection. When nil, a real Docker client is
	// dialed from the DOCKER_* environment.
	Client Client

	// Logger receives helper activity. When nil, logging is discarded.
	Logger *log.Logger
}

// DockerHelper aggregates the per-kind helpers for one namespace and one
// daemon connection.
type DockerHelper struct {
	ns     namespace.Namespace
	client Client
	log    *log.Logger

	Containers *ContainerHelper
	Networks   *NetworkHelper
	Volumes    *VolumeHelper
	Images     *ImageHelper
}

// NewHelper builds a DockerHelper from cfg, dialing the daemon if cfg.Client
// is nil.
func NewHelper(cfg Config) (*DockerHelper, error) {
	ns := cfg.Namespace
	if ns == "" {
		ns = namespace.Default
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	logger = logger.With("namespace", ns)

	cli := cfg.Client
	if cli == nil {
		var err error
		cli, err = NewDockerClient()
		if err != nil {
			return nil, err
		}
	}

	h := &DockerHelper{ns: ns, client: cli, log: logger}
	base := func(kind ResourceKind) helperBase {
		return helperBase{ns: ns, client: cli, log: logger, reg: newRegistry(kind)}
	}
	h.Images = &ImageHelper{helperBase: base(KindImage)}
	h.Networks = &NetworkHelper{helperBase: base(KindNetwork)}
	h.Volumes = &VolumeHelper{helperBase: base(KindVolume)}
	h.Containers = &ContainerHelper{
		helperBase: base(KindContainer),
		images:     h.Images,
		networks:   h.Networks,
	}
	return h, nil
}

// Namespace returns the helper's namespace.
func (h *DockerHelper) Namespace() namespace.Namespace { return h.ns }

// Client returns the underlying engine connection.
func (h *DockerHelper) Client() Client { return h.client }

// Teardown removes everything the helper created, in dependency order:
// containers first, then networks, then volumes, then run-pulled images. A
// failure in one kind never stops the others; all failures are reported
// together as a *TeardownError.
func (h *DockerHelper) Teardown(ctx context.Context) error {
	return mergeTeardown(
		h.Containers.Teardown(ctx),
		h.Networks.Teardown(ctx),
		h.Volumes.Teardown(ctx),
		h.Images.Teardown(ctx),
	)
}

// Close tears everything down and closes the daemon connection.
func (h *DockerHelper) Close(ctx context.Context) error {
	err := h.Teardown(ctx)
	if cerr := h.client.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
