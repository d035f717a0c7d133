package drydock

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// fakeClient is an in-memory engine for tests. It records every operation
// in order and can be told to fail specific ones.
type fakeClient struct {
	mu sync.Mutex

	ops  []string
	fail map[string]error

	nextID     int
	containers map[string]string // id -> name
	running    map[string]bool
	networks   map[string]string
	volumes    map[string]string
	images     map[string]bool

	logs     map[string]string        // name -> log text
	logPipes map[string]io.ReadCloser // name -> live stream
	execs    map[string]ExecResult    // name -> canned result
	ports    map[string][]PortBinding
	closed   bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		fail:       make(map[string]error),
		containers: make(map[string]string),
		running:    make(map[string]bool),
		networks:   make(map[string]string),
		volumes:    make(map[string]string),
		images:     make(map[string]bool),
		logs:       make(map[string]string),
		logPipes:   make(map[string]io.ReadCloser),
		execs:      make(map[string]ExecResult),
		ports:      make(map[string][]PortBinding),
	}
}

func (f *fakeClient) record(format string, args ...any) error {
	op := fmt.Sprintf(format, args...)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
	return f.fail[op]
}

func (f *fakeClient) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *fakeClient) opLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ops))
	copy(out, f.ops)
	return out
}

func (f *fakeClient) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeClient) nameOf(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name, ok := f.containers[id]; ok {
		return name
	}
	return id
}

func (f *fakeClient) CreateContainer(_ context.Context, name string, spec ContainerSpec) (string, error) {
	if err := f.record("create container %s", name); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id("ctr")
	f.containers[id] = name
	return id, nil
}

func (f *fakeClient) StartContainer(_ context.Context, id string) error {
	if err := f.record("start container %s", f.nameOf(id)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[id] = true
	return nil
}

func (f *fakeClient) StopContainer(_ context.Context, id string) error {
	if err := f.record("stop container %s", f.nameOf(id)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[id] = false
	return nil
}

func (f *fakeClient) RemoveContainer(_ context.Context, id string) error {
	if err := f.record("remove container %s", f.nameOf(id)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id)
	delete(f.running, id)
	return nil
}

func (f *fakeClient) StreamLogs(_ context.Context, id string) (io.ReadCloser, error) {
	name := f.nameOf(id)
	if err := f.record("stream logs %s", name); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if pipe, ok := f.logPipes[name]; ok {
		return pipe, nil
	}
	return io.NopCloser(strings.NewReader(f.logs[name])), nil
}

func (f *fakeClient) Logs(_ context.Context, id string) (string, error) {
	name := f.nameOf(id)
	if err := f.record("logs %s", name); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs[name], nil
}

func (f *fakeClient) Exec(_ context.Context, id string, cmd []string) (ExecResult, error) {
	name := f.nameOf(id)
	if err := f.record("exec %s %s", name, strings.Join(cmd, " ")); err != nil {
		return ExecResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.execs[name], nil
}

func (f *fakeClient) InspectPorts(_ context.Context, id string) (map[string][]PortBinding, error) {
	name := f.nameOf(id)
	if err := f.record("inspect ports %s", name); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]PortBinding)
	for port, bindings := range f.ports {
		out[port] = bindings
	}
	return out, nil
}

func (f *fakeClient) CreateNetwork(_ context.Context, name string, spec NetworkSpec) (string, error) {
	if err := f.record("create network %s", name); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id("net")
	f.networks[id] = name
	return id, nil
}

func (f *fakeClient) RemoveNetwork(_ context.Context, id string) error {
	f.mu.Lock()
	name, ok := f.networks[id]
	f.mu.Unlock()
	if !ok {
		name = id
	}
	if err := f.record("remove network %s", name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.networks, id)
	return nil
}

func (f *fakeClient) CreateVolume(_ context.Context, name string, spec VolumeSpec) (string, error) {
	if err := f.record("create volume %s", name); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[name] = name
	return name, nil
}

func (f *fakeClient) RemoveVolume(_ context.Context, id string) error {
	if err := f.record("remove volume %s", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.volumes, id)
	return nil
}

func (f *fakeClient) HasImage(_ context.Context, ref string) (bool, error) {
	if err := f.record("has image %s", ref); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[ref], nil
}

func (f *fakeClient) PullImage(_ context.Context, ref string) error {
	if err := f.record("pull image %s", ref); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[ref] = true
	return nil
}

func (f *fakeClient) RemoveImage(_ context.Context, ref string) error {
	if err := f.record("remove image %s", ref); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.images, ref)
	return nil
}

func (f *fakeClient) ListNames(_ context.Context, kind ResourceKind) ([]string, error) {
	if err := f.record("list %s", kind); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	switch kind {
	case KindContainer:
		for _, name := range f.containers {
			names = append(names, name)
		}
	case KindNetwork:
		for _, name := range f.networks {
			names = append(names, name)
		}
	case KindVolume:
		for name := range f.volumes {
			names = append(names, name)
		}
	default:
		return nil, fmt.Errorf("cannot list resources of kind %q", kind)
	}
	return names, nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
