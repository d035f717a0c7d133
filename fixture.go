package drydock

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/multierr"
)

// Use sets up a definition, runs body against it, and tears it down again.
// The teardown happens whether body succeeds or not, and its failure is
// combined with body's.
func Use[D Definition](ctx context.Context, h *DockerHelper, def D, body func(D) error) (err error) {
	def.Bind(h)
	if err := def.Setup(ctx); err != nil {
		return multierr.Append(err, def.Teardown(ctx))
	}
	defer func() {
		err = multierr.Append(err, def.Teardown(ctx))
	}()
	return body(def)
}

// Run sets up definitions in order, runs body, and tears them down in
// reverse order. When a setup fails, the definitions already up (and the
// partially set-up one) are torn down before Run returns.
func Run(ctx context.Context, h *DockerHelper, body func() error, defs ...Definition) (err error) {
	var up []Definition
	defer func() {
		for i := len(up) - 1; i >= 0; i-- {
			err = multierr.Append(err, up[i].Teardown(ctx))
		}
	}()

	for _, def := range defs {
		def.Bind(h)
		up = append(up, def)
		if serr := def.Setup(ctx); serr != nil {
			return fmt.Errorf("set up %q: %w", def.Name(), serr)
		}
	}
	return body()
}

// Fixture sets up a definition for the duration of a test and registers its
// teardown as a cleanup. Setup failures fail the test.
func Fixture[D Definition](ctx context.Context, tb testing.TB, h *DockerHelper, def D) D {
	tb.Helper()
	def.Bind(h)
	if err := def.Setup(ctx); err != nil {
		if terr := def.Teardown(ctx); terr != nil {
			tb.Logf("teardown after failed setup of %q: %v", def.Name(), terr)
		}
		tb.Fatalf("set up %q: %v", def.Name(), err)
	}
	tb.Cleanup(func() {
		// The test's context may already be canceled by the time cleanups
		// run; teardown still has to happen.
		if err := def.Teardown(context.WithoutCancel(ctx)); err != nil {
			tb.Errorf("tear down %q: %v", def.Name(), err)
		}
	})
	return def
}

// CleanFixture is Fixture plus a per-test Clean: the container is set up
// once and reset before each test that asks for it.
func CleanFixture(ctx context.Context, tb testing.TB, h *DockerHelper, def *ContainerDefinition) *ContainerDefinition {
	tb.Helper()
	if def.State() == StateReady {
		if err := def.Clean(ctx); err != nil {
			tb.Fatalf("clean %q: %v", def.Name(), err)
		}
		return def
	}
	return Fixture(ctx, tb, h, def)
}
