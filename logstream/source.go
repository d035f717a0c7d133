package logstream

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// DefaultCapacity is the number of log lines a ReaderSource retains for
// diagnostics once the stream outgrows its buffer.
const DefaultCapacity = 500

// Source is a pollable cursor over an append-only sequence of log lines.
type Source interface {
	// Next returns the next unconsumed line. ok is false when no line is
	// available right now; more may arrive later.
	Next() (line string, ok bool)

	// Err returns the stream's terminal error once all buffered lines have
	// been consumed: io.EOF after a clean end, nil while lines may still
	// arrive.
	Err() error
}

// ReaderSource adapts a streaming reader, such as a follow-mode container
// log stream, into a Source. A background reader accumulates lines into a
// capped buffer; Next never blocks. Closing the source closes the underlying
// reader, which ends the background reader.
type ReaderSource struct {
	closer io.Closer

	mu      sync.Mutex
	lines   []string
	pos     int
	dropped int
	err     error
}

// NewReaderSource starts reading lines from rc. Trailing whitespace is
// stripped from each line. At most DefaultCapacity lines are retained;
// consumed lines are dropped first.
func NewReaderSource(rc io.ReadCloser) *ReaderSource {
	s := &ReaderSource{closer: rc}
	go s.consume(rc)
	return s
}

func (s *ReaderSource) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.append(strings.TrimRight(scanner.Text(), " \t\r"))
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *ReaderSource) append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	if len(s.lines) > DefaultCapacity {
		n := len(s.lines) - DefaultCapacity
		s.lines = s.lines[n:]
		s.dropped += n
		if s.pos > n {
			s.pos -= n
		} else {
			s.pos = 0
		}
	}
}

// Next returns the next unconsumed line, if one is available.
func (s *ReaderSource) Next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.lines) {
		return "", false
	}
	line := s.lines[s.pos]
	s.pos++
	return line, true
}

// Err returns the terminal stream error, or nil while the stream is live or
// buffered lines remain unconsumed.
func (s *ReaderSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos < len(s.lines) {
		return nil
	}
	return s.err
}

// Tail returns a copy of the retained log lines, oldest first.
func (s *ReaderSource) Tail() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

// Close closes the underlying reader. The background reader ends once the
// stream unblocks.
func (s *ReaderSource) Close() error {
	return s.closer.Close()
}
