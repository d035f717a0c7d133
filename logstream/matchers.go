package logstream

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher consumes log lines one at a time and reports whether it has been
// satisfied. Matchers are stateful: a satisfied matcher stays satisfied and
// must not be reused for another wait.
type Matcher interface {
	// Match feeds the next line to the matcher and reports whether the
	// matcher is now fully satisfied.
	Match(line string) bool

	fmt.Stringer
}

// MultiMatcher is a Matcher composed of sub-matchers that can report which of
// them are still outstanding.
type MultiMatcher interface {
	Matcher

	// Unmatched describes the sub-matchers that have not yet matched a line.
	Unmatched() []string
}

// Regex returns a matcher satisfied by the first line containing a match of
// pattern. The pattern must compile.
func Regex(pattern string) Matcher {
	return &regexMatcher{re: regexp.MustCompile(pattern)}
}

type regexMatcher struct {
	re *regexp.Regexp
}

func (m *regexMatcher) Match(line string) bool { return m.re.MatchString(line) }

func (m *regexMatcher) String() string { return fmt.Sprintf("Regex(%q)", m.re.String()) }

// Equals returns a matcher satisfied by the first line equal to want.
func Equals(want string) Matcher {
	return &equalsMatcher{want: want}
}

type equalsMatcher struct {
	want string
}

func (m *equalsMatcher) Match(line string) bool { return line == m.want }

func (m *equalsMatcher) String() string { return fmt.Sprintf("Equals(%q)", m.want) }

// Unordered combines matchers into one that is satisfied once every
// sub-matcher has matched a line, in any order. Each line is offered to every
// still-unsatisfied sub-matcher, so one line may satisfy several of them.
// Each sub-matcher is satisfied by the first line it matches and is never
// offered another line afterwards.
func Unordered(matchers ...Matcher) MultiMatcher {
	return &unorderedMatcher{pending: matchers}
}

type unorderedMatcher struct {
	pending []Matcher
	matched []Matcher
}

func (m *unorderedMatcher) Match(line string) bool {
	rest := m.pending[:0]
	for _, sub := range m.pending {
		if sub.Match(line) {
			m.matched = append(m.matched, sub)
		} else {
			rest = append(rest, sub)
		}
	}
	m.pending = rest
	return len(m.pending) == 0
}

func (m *unorderedMatcher) Unmatched() []string {
	return matcherNames(m.pending)
}

func (m *unorderedMatcher) String() string {
	return fmt.Sprintf("Unordered(matched=[%s], unmatched=[%s])",
		strings.Join(matcherNames(m.matched), ", "),
		strings.Join(matcherNames(m.pending), ", "))
}

// Ordered combines matchers into one that is satisfied once every
// sub-matcher has matched, in the given order: a line is only offered to the
// first unsatisfied sub-matcher.
func Ordered(matchers ...Matcher) MultiMatcher {
	return &orderedMatcher{matchers: matchers}
}

type orderedMatcher struct {
	matchers []Matcher
	pos      int
}

func (m *orderedMatcher) Match(line string) bool {
	if m.pos < len(m.matchers) && m.matchers[m.pos].Match(line) {
		m.pos++
	}
	return m.pos == len(m.matchers)
}

func (m *orderedMatcher) Unmatched() []string {
	return matcherNames(m.matchers[m.pos:])
}

func (m *orderedMatcher) String() string {
	return fmt.Sprintf("Ordered(matched=[%s], unmatched=[%s])",
		strings.Join(matcherNames(m.matchers[:m.pos]), ", "),
		strings.Join(matcherNames(m.matchers[m.pos:]), ", "))
}

func matcherNames(matchers []Matcher) []string {
	names := make([]string, len(matchers))
	for i, m := range matchers {
		names[i] = m.String()
	}
	return names
}
