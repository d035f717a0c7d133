// Package namespace implements the name prefixing policy that isolates the
// Docker resources of one test run from everything else on the host.
//
// Every resource created through a helper is named prefix + "_" + logical
// name. The prefix makes concurrent runs against a shared daemon safe and
// lets teardown recognize which resources belong to a run.
package namespace

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

const sep = "_"

// Default is the namespace used when a Config does not set one.
const Default Namespace = "test"

// Namespace is the prefix applied to all resource names created in one run.
type Namespace string

// Qualify returns the physical resource name for a logical name. It is pure
// and deterministic: the same logical name always yields the same physical
// name under the same namespace.
func (n Namespace) Qualify(logical string) string {
	return string(n) + sep + logical
}

// Unqualify is the exact inverse of Qualify. It reports false when physical
// was not produced by this namespace.
func (n Namespace) Unqualify(physical string) (string, bool) {
	logical, ok := strings.CutPrefix(physical, string(n)+sep)
	if !ok || logical == "" {
		return "", false
	}
	return logical, true
}

// Owns reports whether physical carries this namespace's prefix.
func (n Namespace) Owns(physical string) bool {
	_, ok := n.Unqualify(physical)
	return ok
}

// Random returns a namespace unique to this run, for test processes that may
// run concurrently against one daemon.
func Random() Namespace {
	id := uuid.NewString()
	return Namespace("drydock-" + strings.ReplaceAll(id, "-", "")[:8])
}

// ForPath derives a deterministic namespace from a filesystem path, so that
// repeated runs from the same checkout reuse one namespace and a crashed
// run's leftovers can be pruned by the next one.
func ForPath(path string) Namespace {
	sum := md5.Sum([]byte(path))
	return Namespace("drydock-" + hex.EncodeToString(sum[:])[:8])
}
