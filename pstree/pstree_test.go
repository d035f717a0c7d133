package pstree

import (
	"strings"
	"testing"
)

const psOutput = `  PID  PPID RUSER    COMMAND
    1     0 root     tini -- django-admin runserver 0.0.0.0:8000
    6     1 django   django-admin runserver 0.0.0.0:8000
   18     6 django   /usr/local/bin/python manage.py runserver 0.0.0.0:8000
   25     1 root     ps ax -o pid,ppid,ruser,args
`

func TestParsePS(t *testing.T) {
	procs, err := ParsePS(psOutput)
	if err != nil {
		t.Fatalf("ParsePS() error: %v", err)
	}
	if len(procs) != 3 {
		t.Fatalf("got %d processes, want 3 (ps row dropped)", len(procs))
	}

	want := Process{PID: 1, PPID: 0, User: "root", Args: "tini -- django-admin runserver 0.0.0.0:8000"}
	if procs[0] != want {
		t.Errorf("procs[0] = %+v, want %+v", procs[0], want)
	}
	if !strings.Contains(procs[2].Args, "manage.py runserver") {
		t.Errorf("args column lost its spaces: %q", procs[2].Args)
	}
}

func TestParsePSErrors(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"empty", ""},
		{"bad header", "PID COMMAND\n1 sh\n"},
		{"short row", "  PID  PPID RUSER COMMAND\n1 0 root\n"},
		{"bad pid", "  PID  PPID RUSER COMMAND\nx 0 root sh\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePS(tt.output); err == nil {
				t.Errorf("ParsePS(%q) should fail", tt.output)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	procs := []Process{
		{PID: 6, PPID: 1, User: "app", Args: "worker 1"},
		{PID: 1, PPID: 0, User: "root", Args: "tini -- run"},
		{PID: 9, PPID: 1, User: "app", Args: "worker 2"},
		{PID: 12, PPID: 6, User: "app", Args: "helper"},
	}

	tree, err := Build(procs)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if tree.PID != 1 {
		t.Errorf("root pid = %d, want 1", tree.PID)
	}
	if tree.Count() != 4 {
		t.Errorf("Count() = %d, want 4", tree.Count())
	}
	if len(tree.Children) != 2 || tree.Children[0].PID != 6 || tree.Children[1].PID != 9 {
		t.Errorf("children not ordered by pid: %v", tree.Children)
	}
	if len(tree.Children[0].Children) != 1 || tree.Children[0].Children[0].PID != 12 {
		t.Errorf("grandchild missing: %v", tree.Children[0].Children)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		procs []Process
		want  string
	}{
		{
			"empty", nil, "no processes",
		},
		{
			"duplicate pid",
			[]Process{{PID: 1, PPID: 0}, {PID: 1, PPID: 0}},
			"duplicate pid",
		},
		{
			"multiple roots",
			[]Process{{PID: 1, PPID: 0}, {PID: 2, PPID: 0}},
			"multiple root",
		},
		{
			"no root",
			[]Process{{PID: 2, PPID: 3}, {PID: 3, PPID: 2}},
			"no root",
		},
		{
			"unreachable",
			[]Process{{PID: 1, PPID: 0}, {PID: 5, PPID: 6}, {PID: 6, PPID: 5}},
			"not reachable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.procs)
			if err == nil {
				t.Fatalf("Build() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Build() error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func sampleTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := Build([]Process{
		{PID: 1, PPID: 0, User: "root", Args: "tini -- nginx"},
		{PID: 7, PPID: 1, User: "nginx", Args: "nginx: master process"},
		{PID: 8, PPID: 7, User: "nginx", Args: "nginx: worker process"},
		{PID: 9, PPID: 7, User: "nginx", Args: "nginx: worker process"},
		{PID: 10, PPID: 7, User: "nginx", Args: "nginx: cache manager"},
	})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return tree
}

func TestNodeMatcherSubset(t *testing.T) {
	tree := sampleTree(t)

	m := NodeMatcher{
		ArgsPattern: "tini",
		Children: []NodeMatcher{{
			User: "nginx",
			Children: []NodeMatcher{
				{ArgsPattern: "worker"},
				{ArgsPattern: "cache manager"},
			},
		}},
	}
	if !m.Matches(tree) {
		t.Errorf("subset matcher should match:\n%s", tree)
	}
}

func TestNodeMatcherAnyOrder(t *testing.T) {
	tree := sampleTree(t)

	// Child matchers in the opposite order of the tree's children.
	m := NodeMatcher{Children: []NodeMatcher{{
		Children: []NodeMatcher{
			{ArgsPattern: "cache manager"},
			{ArgsPattern: "worker"},
			{ArgsPattern: "worker"},
		},
	}}}
	if !m.Matches(tree) {
		t.Errorf("child matchers should match in any order:\n%s", tree)
	}
}

func TestNodeMatcherDistinctChildren(t *testing.T) {
	tree := sampleTree(t)

	// Three worker matchers but only two worker children.
	m := NodeMatcher{Children: []NodeMatcher{{
		Children: []NodeMatcher{
			{ArgsPattern: "worker"},
			{ArgsPattern: "worker"},
			{ArgsPattern: "worker"},
		},
	}}}
	if m.Matches(tree) {
		t.Errorf("each matcher must claim a distinct child")
	}
}

func TestNodeMatcherExact(t *testing.T) {
	tree := sampleTree(t)

	subset := NodeMatcher{Children: []NodeMatcher{{
		Exact: true,
		Children: []NodeMatcher{
			{ArgsPattern: "worker"},
			{ArgsPattern: "worker"},
		},
	}}}
	if subset.Matches(tree) {
		t.Errorf("Exact should reject unaccounted-for children")
	}

	full := NodeMatcher{Children: []NodeMatcher{{
		Exact: true,
		Children: []NodeMatcher{
			{ArgsPattern: "worker"},
			{ArgsPattern: "worker"},
			{ArgsPattern: "cache"},
		},
	}}}
	if !full.Matches(tree) {
		t.Errorf("Exact should match when every child is claimed:\n%s", tree)
	}
}

func TestNodeMatcherFields(t *testing.T) {
	tree := sampleTree(t)

	tests := []struct {
		name string
		m    NodeMatcher
		want bool
	}{
		{"pid hit", NodeMatcher{PID: 1}, true},
		{"pid miss", NodeMatcher{PID: 2}, false},
		{"user miss", NodeMatcher{User: "nginx"}, false},
		{"args exact", NodeMatcher{Args: "tini -- nginx"}, true},
		{"args exact miss", NodeMatcher{Args: "tini"}, false},
		{"ppid on child", NodeMatcher{Children: []NodeMatcher{{PPID: 1}}}, true},
		{"empty matcher", NodeMatcher{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.Matches(tree); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
