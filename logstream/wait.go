// Package logstream waits for container log output to satisfy a set of line
// matchers within a deadline.
//
// Log lines arrive through a pollable Source. Wait drains whatever lines are
// available, offers each one to the matcher, and sleeps briefly between
// polls; it never spins. The only cancellation signal is the deadline (or
// the caller's context): on expiry the wait reports which patterns remain
// unmatched along with the log captured so far, and the container is left
// running for the caller to deal with.
package logstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	// DefaultTimeout bounds a Wait call when no explicit timeout is given.
	DefaultTimeout = 10 * time.Second

	// DefaultPollInterval is the sleep between polls of an idle source.
	DefaultPollInterval = 100 * time.Millisecond
)

var errPending = errors.New("patterns still unmatched")

// TimeoutError reports that the deadline elapsed before the matcher was
// satisfied.
type TimeoutError struct {
	Timeout   time.Duration
	Unmatched []string
	Logs      string
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timeout (%s) waiting for logs matching [%s]",
		e.Timeout, strings.Join(e.Unmatched, ", "))
	if e.Logs != "" {
		msg += "\nlast log lines:\n" + e.Logs
	}
	return msg
}

// ClosedError reports that the log stream ended before the matcher was
// satisfied; the container must have stopped.
type ClosedError struct {
	Unmatched []string
	Logs      string
}

func (e *ClosedError) Error() string {
	msg := fmt.Sprintf("log stream ended before matching [%s]",
		strings.Join(e.Unmatched, ", "))
	if e.Logs != "" {
		msg += "\nlast log lines:\n" + e.Logs
	}
	return msg
}

// WaitOption configures a Wait call.
type WaitOption func(*waitConfig)

type waitConfig struct {
	timeout time.Duration
	poll    time.Duration
}

// WithTimeout sets the wait deadline. Defaults to DefaultTimeout.
func WithTimeout(d time.Duration) WaitOption {
	return func(cfg *waitConfig) { cfg.timeout = d }
}

// WithPollInterval sets the sleep between polls of an idle source. Defaults
// to DefaultPollInterval.
func WithPollInterval(d time.Duration) WaitOption {
	return func(cfg *waitConfig) { cfg.poll = d }
}

// Wait blocks until m is satisfied by the lines src yields, the stream ends,
// or the deadline elapses. It returns nil on success, a *TimeoutError when
// the deadline fires first, and a *ClosedError when the stream ends first.
func Wait(ctx context.Context, src Source, m Matcher, opts ...WaitOption) error {
	cfg := &waitConfig{
		timeout: DefaultTimeout,
		poll:    DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	err := retry.Do(waitCtx, retry.NewConstant(cfg.poll), func(context.Context) error {
		for {
			line, ok := src.Next()
			if !ok {
				break
			}
			if m.Match(line) {
				return nil
			}
		}
		if serr := src.Err(); serr != nil {
			if errors.Is(serr, io.EOF) {
				return &ClosedError{Unmatched: unmatched(m), Logs: capturedLogs(src)}
			}
			return fmt.Errorf("read log stream: %w", serr)
		}
		return retry.RetryableError(errPending)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &TimeoutError{
			Timeout:   cfg.timeout,
			Unmatched: unmatched(m),
			Logs:      capturedLogs(src),
		}
	}
	return err
}

func unmatched(m Matcher) []string {
	if mm, ok := m.(MultiMatcher); ok {
		return mm.Unmatched()
	}
	return []string{m.String()}
}

func capturedLogs(src Source) string {
	if t, ok := src.(interface{ Tail() []string }); ok {
		return strings.Join(t.Tail(), "\n")
	}
	return ""
}
