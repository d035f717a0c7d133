package drydock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/drydocklabs/drydock/namespace"
)

// registry tracks the resources of one kind created through a helper, in
// creation order. Logical names map to the engine identifiers removal needs.
type registry struct {
	kind  ResourceKind
	names []string
	ids   map[string]string
}

func newRegistry(kind ResourceKind) *registry {
	return &registry{kind: kind, ids: make(map[string]string)}
}

func (r *registry) add(name, id string) error {
	if _, ok := r.ids[name]; ok {
		return &AlreadyExistsError{Kind: r.kind, Name: name}
	}
	r.names = append(r.names, name)
	r.ids[name] = id
	return nil
}

func (r *registry) id(name string) (string, error) {
	id, ok := r.ids[name]
	if !ok {
		return "", &NotRegisteredError{Kind: r.kind, Name: name}
	}
	return id, nil
}

// take removes and returns the entry for name. Once taken, the helper never
// attempts another removal of the resource, whatever the engine call did.
func (r *registry) take(name string) (string, error) {
	id, ok := r.ids[name]
	if !ok {
		return "", &NotRegisteredError{Kind: r.kind, Name: name}
	}
	delete(r.ids, name)
	for i, n := range r.names {
		if n == name {
			r.names = append(r.names[:i], r.names[i+1:]...)
			break
		}
	}
	return id, nil
}

// reversed returns the registered names newest-first, for teardown.
func (r *registry) reversed() []string {
	out := make([]string, len(r.names))
	for i, name := range r.names {
		out[len(r.names)-1-i] = name
	}
	return out
}

// helperBase carries what every kind-specific helper shares.
type helperBase struct {
	ns     namespace.Namespace
	client Client
	log    *log.Logger
	reg    *registry
}

// Namespace returns the helper's namespace.
func (h *helperBase) Namespace() namespace.Namespace { return h.ns }

// Registered returns the logical names of tracked resources, oldest first.
func (h *helperBase) Registered() []string {
	out := make([]string, len(h.reg.names))
	copy(out, h.reg.names)
	return out
}

// teardown removes every registered resource, newest first. A resource that
// is already gone counts as removed. Failures never stop the pass; they are
// collected and reported together.
func (h *helperBase) teardown(ctx context.Context, remove func(context.Context, string) error) error {
	var failures []*TeardownFailure
	for _, name := range h.reg.reversed() {
		id, err := h.reg.take(name)
		if err != nil {
			continue
		}
		h.log.Debug("removing resource", "kind", h.reg.kind, "name", name)
		if err := remove(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			h.log.Error("teardown failed", "kind", h.reg.kind, "name", name, "err", err)
			failures = append(failures, &TeardownFailure{Kind: h.reg.kind, Name: name, Err: err})
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &TeardownError{Failures: failures}
}

// ContainerHelper creates, tracks, and removes namespaced containers.
type ContainerHelper struct {
	helperBase
	images   *ImageHelper
	networks *NetworkHelper
}

// Create creates a container under the logical name, pulling its image if
// the daemon does not have it. When the spec names no network, the helper's
// default network is used and the container gets its logical name as a DNS
// alias on it. Volume sources in the spec are logical names unless they are
// host paths.
func (c *ContainerHelper) Create(ctx context.Context, name string, spec ContainerSpec) (string, error) {
	if _, ok := c.reg.ids[name]; ok {
		return "", &AlreadyExistsError{Kind: KindContainer, Name: name}
	}

	if err := c.images.Fetch(ctx, spec.Image); err != nil {
		return "", err
	}

	if spec.Network == "" {
		physical, err := c.networks.Default(ctx)
		if err != nil {
			return "", err
		}
		spec.Network = physical
		spec.NetworkAliases = append(spec.NetworkAliases, name)
	}

	for i, vm := range spec.Volumes {
		if vm.Source != "" && vm.Source[0] != '/' {
			spec.Volumes[i].Source = c.ns.Qualify(vm.Source)
		}
	}

	physical := c.ns.Qualify(name)
	c.log.Info("creating container", "name", physical, "image", spec.Image)
	id, err := c.client.CreateContainer(ctx, physical, spec)
	if err != nil {
		return "", err
	}
	if err := c.reg.add(name, id); err != nil {
		return "", err
	}
	return id, nil
}

// Start starts a created container.
func (c *ContainerHelper) Start(ctx context.Context, name string) error {
	id, err := c.reg.id(name)
	if err != nil {
		return err
	}
	c.log.Info("starting container", "name", c.ns.Qualify(name))
	return c.client.StartContainer(ctx, id)
}

// Stop stops a running container.
func (c *ContainerHelper) Stop(ctx context.Context, name string) error {
	id, err := c.reg.id(name)
	if err != nil {
		return err
	}
	c.log.Info("stopping container", "name", c.ns.Qualify(name))
	return c.client.StopContainer(ctx, id)
}

// Remove removes a container and forgets it. The registration is dropped
// whatever the engine says; a container that is already gone counts as
// removed.
func (c *ContainerHelper) Remove(ctx context.Context, name string) error {
	id, err := c.reg.take(name)
	if err != nil {
		return err
	}
	c.log.Info("removing container", "name", c.ns.Qualify(name))
	if err := c.client.RemoveContainer(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// ID returns the engine identifier of a registered container.
func (c *ContainerHelper) ID(name string) (string, error) {
	return c.reg.id(name)
}

// StreamLogs follows a container's combined output.
func (c *ContainerHelper) StreamLogs(ctx context.Context, name string) (io.ReadCloser, error) {
	id, err := c.reg.id(name)
	if err != nil {
		return nil, err
	}
	return c.client.StreamLogs(ctx, id)
}

// Logs returns a snapshot of a container's combined output.
func (c *ContainerHelper) Logs(ctx context.Context, name string) (string, error) {
	id, err := c.reg.id(name)
	if err != nil {
		return "", err
	}
	return c.client.Logs(ctx, id)
}

// Exec runs a command inside a running container.
func (c *ContainerHelper) Exec(ctx context.Context, name string, cmd []string) (ExecResult, error) {
	id, err := c.reg.id(name)
	if err != nil {
		return ExecResult{}, err
	}
	return c.client.Exec(ctx, id, cmd)
}

// Ports returns the live host bindings of a container's published ports.
func (c *ContainerHelper) Ports(ctx context.Context, name string) (map[string][]PortBinding, error) {
	id, err := c.reg.id(name)
	if err != nil {
		return nil, err
	}
	return c.client.InspectPorts(ctx, id)
}

// Teardown removes every tracked container, newest first.
func (c *ContainerHelper) Teardown(ctx context.Context) error {
	return c.teardown(ctx, c.client.RemoveContainer)
}

// NetworkHelper creates, tracks, and removes namespaced networks.
type NetworkHelper struct {
	helperBase
}

// defaultNetworkName is the logical name of the network containers join when
// their spec names none.
const defaultNetworkName = "default"

// Create creates a network under the logical name.
func (n *NetworkHelper) Create(ctx context.Context, name string, spec NetworkSpec) (string, error) {
	if _, ok := n.reg.ids[name]; ok {
		return "", &AlreadyExistsError{Kind: KindNetwork, Name: name}
	}
	physical := n.ns.Qualify(name)
	n.log.Info("creating network", "name", physical)
	id, err := n.client.CreateNetwork(ctx, physical, spec)
	if err != nil {
		return "", err
	}
	if err := n.reg.add(name, id); err != nil {
		return "", err
	}
	return id, nil
}

// Default returns the physical name of the run's default network, creating
// it on first use.
func (n *NetworkHelper) Default(ctx context.Context) (string, error) {
	if _, ok := n.reg.ids[defaultNetworkName]; !ok {
		if _, err := n.Create(ctx, defaultNetworkName, NetworkSpec{}); err != nil {
			return "", fmt.Errorf("create default network: %w", err)
		}
	}
	return n.ns.Qualify(defaultNetworkName), nil
}

// Remove removes a network and forgets it.
func (n *NetworkHelper) Remove(ctx context.Context, name string) error {
	id, err := n.reg.take(name)
	if err != nil {
		return err
	}
	n.log.Info("removing network", "name", n.ns.Qualify(name))
	if err := n.client.RemoveNetwork(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// ID returns the engine identifier of a registered network.
func (n *NetworkHelper) ID(name string) (string, error) {
	return n.reg.id(name)
}

// Teardown removes every tracked network, newest first.
func (n *NetworkHelper) Teardown(ctx context.Context) error {
	return n.teardown(ctx, n.client.RemoveNetwork)
}

// VolumeHelper creates, tracks, and removes namespaced volumes.
type VolumeHelper struct {
	helperBase
}

// Create creates a volume under the logical name.
func (v *VolumeHelper) Create(ctx context.Context, name string, spec VolumeSpec) (string, error) {
	if _, ok := v.reg.ids[name]; ok {
		return "", &AlreadyExistsError{Kind: KindVolume, Name: name}
	}
	physical := v.ns.Qualify(name)
	v.log.Info("creating volume", "name", physical)
	id, err := v.client.CreateVolume(ctx, physical, spec)
	if err != nil {
		return "", err
	}
	if err := v.reg.add(name, id); err != nil {
		return "", err
	}
	return id, nil
}

// Remove removes a volume and forgets it.
func (v *VolumeHelper) Remove(ctx context.Context, name string) error {
	id, err := v.reg.take(name)
	if err != nil {
		return err
	}
	v.log.Info("removing volume", "name", v.ns.Qualify(name))
	if err := v.client.RemoveVolume(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// ID returns the engine identifier of a registered volume.
func (v *VolumeHelper) ID(name string) (string, error) {
	return v.reg.id(name)
}

// Teardown removes every tracked volume, newest first.
func (v *VolumeHelper) Teardown(ctx context.Context) error {
	return v.teardown(ctx, v.client.RemoveVolume)
}

// ImageHelper fetches images and removes the ones it pulled. Images are
// shared daemon state and keep their own references; they are never
// namespaced. Only images this helper pulled are tracked, so teardown never
// removes an image that was already on the host.
type ImageHelper struct {
	helperBase
}

// Fetch makes ref available on the daemon, pulling it only when missing. An
// untagged reference defaults to :latest. Fetching the same reference twice
// is a no-op.
func (i *ImageHelper) Fetch(ctx context.Context, ref string) error {
	if !strings.Contains(ref, ":") {
		ref += ":latest"
	}
	if _, ok := i.reg.ids[ref]; ok {
		return nil
	}
	ok, err := i.client.HasImage(ctx, ref)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	i.log.Info("pulling image", "ref", ref)
	if err := i.client.PullImage(ctx, ref); err != nil {
		return err
	}
	return i.reg.add(ref, ref)
}

// Teardown removes the images this run pulled, newest first.
func (i *ImageHelper) Teardown(ctx context.Context) error {
	return i.teardown(ctx, i.client.RemoveImage)
}
