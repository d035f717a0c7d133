package pstree

import (
	"fmt"
	"regexp"
	"strings"
)

// NodeMatcher describes the expected shape of one process tree node. Zero
// fields are wildcards: an empty NodeMatcher matches any node.
//
// Children are matched as a multiset: each child matcher must match a
// distinct child subtree, in any order. By default extra children are
// allowed; set Exact to require a one-to-one correspondence at this node.
type NodeMatcher struct {
	// PID and PPID are checked when positive.
	PID  int
	PPID int

	// User must equal the process's real user when set.
	User string

	// Args must equal the full command line when set.
	Args string

	// ArgsPattern is a regular expression the command line must contain a
	// match of. Args and ArgsPattern may be combined.
	ArgsPattern string

	Exact    bool
	Children []NodeMatcher
}

// Matches reports whether the tree satisfies this matcher.
func (m NodeMatcher) Matches(t *Tree) bool {
	if m.PID > 0 && t.PID != m.PID {
		return false
	}
	if m.PPID > 0 && t.PPID != m.PPID {
		return false
	}
	if m.User != "" && t.User != m.User {
		return false
	}
	if m.Args != "" && t.Args != m.Args {
		return false
	}
	if m.ArgsPattern != "" && !regexp.MustCompile(m.ArgsPattern).MatchString(t.Args) {
		return false
	}
	if m.Exact && len(m.Children) != len(t.Children) {
		return false
	}
	if len(m.Children) > len(t.Children) {
		return false
	}
	return assign(m.Children, t.Children, make([]bool, len(t.Children)))
}

// assign tries to give every matcher a distinct child subtree, backtracking
// over the possible pairings.
func assign(matchers []NodeMatcher, children []*Tree, taken []bool) bool {
	if len(matchers) == 0 {
		return true
	}
	for i, c := range children {
		if taken[i] || !matchers[0].Matches(c) {
			continue
		}
		taken[i] = true
		if assign(matchers[1:], children, taken) {
			return true
		}
		taken[i] = false
	}
	return false
}

func (m NodeMatcher) String() string {
	var parts []string
	if m.PID > 0 {
		parts = append(parts, fmt.Sprintf("pid=%d", m.PID))
	}
	if m.PPID > 0 {
		parts = append(parts, fmt.Sprintf("ppid=%d", m.PPID))
	}
	if m.User != "" {
		parts = append(parts, "user="+m.User)
	}
	if m.Args != "" {
		parts = append(parts, fmt.Sprintf("args=%q", m.Args))
	}
	if m.ArgsPattern != "" {
		parts = append(parts, fmt.Sprintf("args~%q", m.ArgsPattern))
	}
	if m.Exact {
		parts = append(parts, "exact")
	}
	if len(m.Children) > 0 {
		names := make([]string, len(m.Children))
		for i, c := range m.Children {
			names[i] = c.String()
		}
		parts = append(parts, "children=["+strings.Join(names, ", ")+"]")
	}
	return "Node(" + strings.Join(parts, " ") + ")"
}
