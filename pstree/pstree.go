// Package pstree parses ps output from inside a container into a process
// tree and matches the tree against structural expectations, so tests can
// assert on what a container is actually running.
package pstree

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Process is one row of ps output.
type Process struct {
	PID  int
	PPID int
	User string
	Args string
}

func (p Process) String() string {
	return fmt.Sprintf("[pid=%d ppid=%d user=%s] %s", p.PID, p.PPID, p.User, p.Args)
}

// Command is the ps invocation whose output ParsePS understands. The args
// column comes last so it can keep its internal spaces.
func Command() []string {
	return []string{"ps", "ax", "-o", "pid,ppid,ruser,args"}
}

// ParsePS parses the output of Command into processes. The row produced by
// the ps invocation itself is dropped. The first line must be the header.
func ParsePS(output string) ([]Process, error) {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, fmt.Errorf("empty ps output")
	}

	header := strings.Fields(lines[0])
	if len(header) != 4 {
		return nil, fmt.Errorf("unexpected ps header %q: want 4 columns", lines[0])
	}

	selfArgs := strings.Join(Command(), " ")

	var procs []Process
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		// Split into exactly 4 fields; the args column keeps its spaces.
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("short ps row %q", line)
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("bad pid in ps row %q: %w", line, err)
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("bad ppid in ps row %q: %w", line, err)
		}
		args := argsColumn(line, fields[:3])
		if args == selfArgs {
			continue
		}
		procs = append(procs, Process{PID: pid, PPID: ppid, User: fields[2], Args: args})
	}
	return procs, nil
}

// argsColumn returns everything after the first three fields, preserving the
// spacing inside the command line itself.
func argsColumn(line string, leading []string) string {
	rest := line
	for _, f := range leading {
		i := strings.Index(rest, f)
		rest = rest[i+len(f):]
	}
	return strings.TrimSpace(rest)
}

// Tree is a process and its children, ordered by PID.
type Tree struct {
	Process
	Children []*Tree
}

// Count returns the number of processes in the tree.
func (t *Tree) Count() int {
	n := 1
	for _, c := range t.Children {
		n += c.Count()
	}
	return n
}

func (t *Tree) String() string {
	var b strings.Builder
	t.write(&b, 0)
	return strings.TrimRight(b.String(), "\n")
}

func (t *Tree) write(b *strings.Builder, depth int) {
	fmt.Fprintf(b, "%s%s\n", strings.Repeat("  ", depth), t.Process)
	for _, c := range t.Children {
		c.write(b, depth+1)
	}
}

// Build assembles processes into a single tree. The root is the unique
// process whose parent is not in the set. It is an error for the set to
// contain duplicate PIDs, no root, more than one root, or processes not
// reachable from the root.
func Build(procs []Process) (*Tree, error) {
	if len(procs) == 0 {
		return nil, fmt.Errorf("no processes to build a tree from")
	}

	nodes := make(map[int]*Tree, len(procs))
	for _, p := range procs {
		if _, ok := nodes[p.PID]; ok {
			return nil, fmt.Errorf("duplicate pid %d", p.PID)
		}
		nodes[p.PID] = &Tree{Process: p}
	}

	var root *Tree
	for _, p := range procs {
		node := nodes[p.PID]
		parent, ok := nodes[p.PPID]
		if !ok || p.PPID == p.PID {
			if root != nil {
				return nil, fmt.Errorf("multiple root processes: pid %d and pid %d", root.PID, p.PID)
			}
			root = node
			continue
		}
		parent.Children = append(parent.Children, node)
	}
	if root == nil {
		return nil, fmt.Errorf("no root process found")
	}

	sortChildren(root)

	if n := root.Count(); n != len(procs) {
		return nil, fmt.Errorf("%d processes not reachable from root pid %d", len(procs)-n, root.PID)
	}
	return root, nil
}

func sortChildren(t *Tree) {
	sort.Slice(t.Children, func(i, j int) bool {
		return t.Children[i].PID < t.Children[j].PID
	})
	for _, c := range t.Children {
		sortChildren(c)
	}
}
