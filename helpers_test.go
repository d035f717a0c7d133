package drydock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHelper(t *testing.T) (*DockerHelper, *fakeClient) {
	t.Helper()
	fake := newFakeClient()
	h, err := NewHelper(Config{Client: fake})
	require.NoError(t, err)
	return h, fake
}

func TestContainerCreateQualifiesName(t *testing.T) {
	h, fake := newTestHelper(t)
	fake.images["postgres:17"] = true

	_, err := h.Containers.Create(context.Background(), "db", ContainerSpec{Image: "postgres:17"})
	require.NoError(t, err)

	assert.Contains(t, fake.opLog(), "create container test_db")
	// The default network is created lazily on the first container.
	assert.Contains(t, fake.opLog(), "create network test_default")
}

func TestContainerCreateDuplicate(t *testing.T) {
	h, fake := newTestHelper(t)
	fake.images["redis:7"] = true
	ctx := context.Background()

	_, err := h.Containers.Create(ctx, "cache", ContainerSpec{Image: "redis:7"})
	require.NoError(t, err)

	_, err = h.Containers.Create(ctx, "cache", ContainerSpec{Image: "redis:7"})
	var exists *AlreadyExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, KindContainer, exists.Kind)
	assert.Equal(t, "cache", exists.Name)
}

func TestContainerOpsOnUnknownName(t *testing.T) {
	h, _ := newTestHelper(t)
	ctx := context.Background()

	var notReg *NotRegisteredError
	require.ErrorAs(t, h.Containers.Start(ctx, "ghost"), &notReg)
	require.ErrorAs(t, h.Containers.Remove(ctx, "ghost"), &notReg)
	_, err := h.Containers.Logs(ctx, "ghost")
	require.ErrorAs(t, err, &notReg)
}

func TestContainerRemoveForgetsOnFailure(t *testing.T) {
	h, fake := newTestHelper(t)
	fake.images["redis:7"] = true
	ctx := context.Background()

	_, err := h.Containers.Create(ctx, "cache", ContainerSpec{Image: "redis:7"})
	require.NoError(t, err)

	fake.failOn("remove container test_cache", errors.New("daemon hiccup"))
	require.Error(t, h.Containers.Remove(ctx, "cache"))

	// The registration is gone; removal is never re-attempted.
	var notReg *NotRegisteredError
	require.ErrorAs(t, h.Containers.Remove(ctx, "cache"), &notReg)
}

func TestContainerRemoveToleratesMissing(t *testing.T) {
	h, fake := newTestHelper(t)
	fake.images["redis:7"] = true
	ctx := context.Background()

	_, err := h.Containers.Create(ctx, "cache", ContainerSpec{Image: "redis:7"})
	require.NoError(t, err)

	fake.failOn("remove container test_cache", ErrNotFound)
	assert.NoError(t, h.Containers.Remove(ctx, "cache"))
}

func TestVolumeTeardownNewestFirstAndKeepsGoing(t *testing.T) {
	h, fake := newTestHelper(t)
	ctx := context.Background()

	for _, name := range []string{"v1", "v2", "v3"} {
		_, err := h.Volumes.Create(ctx, name, VolumeSpec{})
		require.NoError(t, err)
	}
	fake.failOn("remove volume test_v2", errors.New("in use"))

	err := h.Volumes.Teardown(ctx)
	var terr *TeardownError
	require.ErrorAs(t, err, &terr)
	require.Len(t, terr.Failures, 1)
	assert.Equal(t, "v2", terr.Failures[0].Name)
	assert.Equal(t, KindVolume, terr.Failures[0].Kind)

	// Every volume got its attempt, newest first, despite the failure.
	ops := fake.opLog()
	assert.Equal(t, []string{"remove volume test_v3", "remove volume test_v2", "remove volume test_v1"}, ops[len(ops)-3:])

	// Nothing is tracked any more.
	assert.Empty(t, h.Volumes.Registered())
}

func TestHelperTeardownOrder(t *testing.T) {
	h, fake := newTestHelper(t)
	ctx := context.Background()

	_, err := h.Volumes.Create(ctx, "data", VolumeSpec{})
	require.NoError(t, err)
	_, err = h.Networks.Create(ctx, "backend", NetworkSpec{})
	require.NoError(t, err)
	_, err = h.Containers.Create(ctx, "db", ContainerSpec{Image: "postgres:17", Network: "test_backend"})
	require.NoError(t, err)

	require.NoError(t, h.Teardown(ctx))

	want := []string{
		"remove container test_db",
		"remove network test_backend",
		"remove volume test_data",
		"remove image postgres:17",
	}
	ops := fake.opLog()
	assert.Equal(t, want, ops[len(ops)-4:])
}

func TestHelperTeardownAggregatesFailures(t *testing.T) {
	h, fake := newTestHelper(t)
	ctx := context.Background()

	_, err := h.Networks.Create(ctx, "backend", NetworkSpec{})
	require.NoError(t, err)
	_, err = h.Volumes.Create(ctx, "data", VolumeSpec{})
	require.NoError(t, err)

	fake.failOn("remove network test_backend", errors.New("has endpoints"))

	err = h.Teardown(ctx)
	var terr *TeardownError
	require.ErrorAs(t, err, &terr)
	require.Len(t, terr.Failures, 1)
	assert.Equal(t, KindNetwork, terr.Failures[0].Kind)

	// The network failure does not stop the volume sweep.
	assert.Contains(t, fake.opLog(), "remove volume test_data")
}

func TestImageFetchPullsOnlyWhenMissing(t *testing.T) {
	h, fake := newTestHelper(t)
	ctx := context.Background()

	require.NoError(t, h.Images.Fetch(ctx, "nginx:1.27"))
	assert.Contains(t, fake.opLog(), "pull image nginx:1.27")

	// Second fetch is a no-op.
	before := len(fake.opLog())
	require.NoError(t, h.Images.Fetch(ctx, "nginx:1.27"))
	assert.Equal(t, before, len(fake.opLog()))

	// A preexisting image is not pulled and not tracked.
	fake.images["postgres:17"] = true
	require.NoError(t, h.Images.Fetch(ctx, "postgres:17"))

	require.NoError(t, h.Images.Teardown(ctx))
	ops := fake.opLog()
	assert.Contains(t, ops, "remove image nginx:1.27")
	assert.NotContains(t, ops, "remove image postgres:17")
}

func TestNetworkDefaultCreatedOnce(t *testing.T) {
	h, fake := newTestHelper(t)
	fake.images["redis:7"] = true
	ctx := context.Background()

	_, err := h.Containers.Create(ctx, "a", ContainerSpec{Image: "redis:7"})
	require.NoError(t, err)
	_, err = h.Containers.Create(ctx, "b", ContainerSpec{Image: "redis:7"})
	require.NoError(t, err)

	created := 0
	for _, op := range fake.opLog() {
		if op == "create network test_default" {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestHelperNamespaceConfig(t *testing.T) {
	fake := newFakeClient()
	h, err := NewHelper(Config{Client: fake, Namespace: "ci-7"})
	require.NoError(t, err)

	_, err = h.Volumes.Create(context.Background(), "data", VolumeSpec{})
	require.NoError(t, err)
	assert.Contains(t, fake.opLog(), "create volume ci-7_data")
}

func TestHelperCloseClosesClient(t *testing.T) {
	h, fake := newTestHelper(t)
	require.NoError(t, h.Close(context.Background()))
	assert.True(t, fake.closed)
}
