package drydock

import (
	"errors"
	"fmt"
	"strings"
)

// ErrHelperNotBound is returned by definition operations that need a helper
// before one has been attached.
var ErrHelperNotBound = errors.New("definition is not bound to a helper")

// AlreadyExistsError reports an attempt to register a second resource under
// a logical name already in use within a helper.
type AlreadyExistsError struct {
	Kind ResourceKind
	Name string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %q already registered", e.Kind, e.Name)
}

// NotRegisteredError reports an operation on a logical name the helper does
// not track.
type NotRegisteredError struct {
	Kind ResourceKind
	Name string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("%s %q is not registered", e.Kind, e.Name)
}

// StateError reports a definition operation attempted in a lifecycle state
// that does not permit it.
type StateError struct {
	Name string
	Op   string
	From State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s %q in state %s", e.Op, e.Name, e.From)
}

// TeardownFailure is one resource that could not be removed during teardown.
type TeardownFailure struct {
	Kind ResourceKind
	Name string
	Err  error
}

func (e *TeardownFailure) Error() string {
	return fmt.Sprintf("remove %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *TeardownFailure) Unwrap() error { return e.Err }

// TeardownError aggregates the failures of one teardown pass. Teardown never
// stops at the first failure; every registered resource gets its removal
// attempt, and everything that failed is reported together.
type TeardownError struct {
	Failures []*TeardownFailure
}

func (e *TeardownError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("teardown left %d resource(s) behind: %s",
		len(e.Failures), strings.Join(msgs, "; "))
}

func (e *TeardownError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// mergeTeardown combines teardown results, flattening nested TeardownErrors
// into one. Returns nil when every err is nil.
func mergeTeardown(errs ...error) error {
	var failures []*TeardownFailure
	for _, err := range errs {
		if err == nil {
			continue
		}
		var terr *TeardownError
		if errors.As(err, &terr) {
			failures = append(failures, terr.Failures...)
			continue
		}
		var f *TeardownFailure
		if errors.As(err, &f) {
			failures = append(failures, f)
			continue
		}
		failures = append(failures, &TeardownFailure{Err: err})
	}
	if len(failures) == 0 {
		return nil
	}
	return &TeardownError{Failures: failures}
}
