// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kreport provides parsing of Kraken-style classification reports
// and taxonomic subtree queries over the resulting hierarchy.
package kreport

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

const (
	percentField = iota
	cladeCountField
	directCountField
	rankField
	taxidField
	nameField

	numFields
)

// ParseError describes a malformed report line. A broken report makes all
// downstream filtering meaningless, so a ParseError is always fatal.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("kreport: line %d: %s", e.Line, e.Msg)
}

// Node is a single taxon in the report hierarchy.
type Node struct {
	Taxid  int
	Rank   string
	Name   string
	Parent *Node // nil for a root

	CladeCount  int
	DirectCount int

	depth int
}

// Label returns the rank-qualified name used to identify taxonomic groups
// on the command line, for example "D__Bacteria".
func (n *Node) Label() string { return n.Rank + "__" + n.Name }

// Tree is an immutable taxon hierarchy built from a classification report.
type Tree struct {
	nodes map[int]*Node
	order []*Node

	g *simple.DirectedGraph
}

// Parse reads a Kraken-style report and returns the taxon hierarchy it
// describes. Report lines are tab delimited with at least six fields; the
// last three are the rank code, taxid and name, the name indented by two
// spaces per level of depth. The report is top-down, so every non-root
// line's parent has already been seen.
func Parse(r io.Reader) (*Tree, error) {
	t := &Tree{
		nodes: make(map[int]*Node),
		g:     simple.NewDirectedGraph(),
	}

	var stack []*Node
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < numFields {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("expected at least %d fields, got %d", numFields, len(fields))}
		}
		// Reports with minimizer data carry extra columns between the
		// counts and the rank code, so index the tail from the right.
		rank := fields[len(fields)-3]
		if !validRank(rank) {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("invalid rank code %q", rank)}
		}
		taxid, err := strconv.Atoi(fields[len(fields)-2])
		if err != nil {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("invalid taxid %q", fields[len(fields)-2])}
		}
		if _, dup := t.nodes[taxid]; dup {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("duplicate taxid %d", taxid)}
		}
		clade, err := strconv.Atoi(strings.TrimSpace(fields[cladeCountField]))
		if err != nil {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("invalid clade count %q", fields[cladeCountField])}
		}
		direct, err := strconv.Atoi(strings.TrimSpace(fields[directCountField]))
		if err != nil {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("invalid direct count %q", fields[directCountField])}
		}

		raw := fields[len(fields)-1]
		name := strings.TrimLeft(raw, " ")
		indent := len(raw) - len(name)
		if indent%2 != 0 {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("odd indent %d for %q", indent, name)}
		}
		depth := indent / 2

		n := &Node{
			Taxid:       taxid,
			Rank:        rank,
			Name:        name,
			CladeCount:  clade,
			DirectCount: direct,
			depth:       depth,
		}
		switch {
		case depth == 0:
			stack = stack[:0]
		case depth > len(stack):
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("no parent seen for %q at depth %d", name, depth)}
		default:
			stack = stack[:depth]
			n.Parent = stack[depth-1]
		}
		stack = append(stack, n)

		t.nodes[taxid] = n
		t.order = append(t.order, n)
		if n.Parent != nil {
			t.g.SetEdge(t.g.NewEdge(simple.Node(n.Parent.Taxid), simple.Node(n.Taxid)))
		} else if t.g.Node(int64(taxid)) == nil {
			t.g.AddNode(simple.Node(taxid))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(t.order) == 0 {
		return nil, &ParseError{Line: 0, Msg: "empty report"}
	}
	return t, nil
}

// validRank reports whether rank is a recognised Kraken rank code: a single
// letter from the major ranks, optionally followed by a sub-rank digit, or
// "-" for unranked clades.
func validRank(rank string) bool {
	if rank == "-" {
		return true
	}
	if len(rank) == 0 {
		return false
	}
	switch rank[0] {
	case 'U', 'R', 'D', 'K', 'P', 'C', 'O', 'F', 'G', 'S':
	default:
		return false
	}
	for _, c := range rank[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Node returns the node for the given taxid, or nil if the taxid does not
// appear in the report.
func (t *Tree) Node(taxid int) *Node { return t.nodes[taxid] }

// Len returns the number of taxa in the tree.
func (t *Tree) Len() int { return len(t.order) }

// Nodes returns the tree's nodes in report order. The returned slice must
// not be mutated.
func (t *Tree) Nodes() []*Node { return t.order }

// IsDescendantOrSelf reports whether candidate is within the subtree rooted
// at ancestor, including ancestor itself.
func (t *Tree) IsDescendantOrSelf(candidate, ancestor int) bool {
	for n := t.nodes[candidate]; n != nil; n = n.Parent {
		if n.Taxid == ancestor {
			return true
		}
	}
	return false
}

// subtree returns the set of taxids in the subtree rooted at each of roots,
// roots included.
func (t *Tree) subtree(roots []int) map[int]bool {
	set := make(map[int]bool)
	bf := traverse.BreadthFirst{
		Visit: func(n graph.Node) { set[int(n.ID())] = true },
	}
	for _, r := range roots {
		if t.g.Node(int64(r)) == nil {
			set[r] = true
			continue
		}
		bf.Walk(t.g, simple.Node(r), nil)
		bf.Reset()
	}
	return set
}

// Filter is a resolved inclusion/exclusion decision table over taxids.
// It is built once before processing begins and is safe for concurrent use.
type Filter struct {
	include map[int]bool // nil means accept all.
	exclude map[int]bool
}

// NewFilter resolves taxonomic group labels and excluded taxids against the
// tree. Entries of include may be rank-qualified labels ("D__Bacteria"),
// bare names or numeric taxids; each must match a taxon in the report.
// An empty include list accepts all taxa. Entries of exclude are numeric
// taxids; subtrees of excluded taxids present in the report are expanded,
// and exclusion always takes precedence over inclusion.
func NewFilter(t *Tree, include, exclude []string) (*Filter, error) {
	f := &Filter{}

	if len(include) != 0 {
		var roots []int
		for _, want := range include {
			taxid, err := resolve(t, want)
			if err != nil {
				return nil, err
			}
			roots = append(roots, taxid)
		}
		f.include = t.subtree(roots)
	}

	if len(exclude) != 0 {
		var roots []int
		for _, s := range exclude {
			taxid, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("kreport: invalid excluded taxid %q", s)
			}
			roots = append(roots, taxid)
		}
		f.exclude = t.subtree(roots)
	}

	return f, nil
}

// resolve returns the taxid matching the given group identifier.
func resolve(t *Tree, want string) (int, error) {
	if taxid, err := strconv.Atoi(want); err == nil {
		if t.nodes[taxid] == nil {
			return 0, fmt.Errorf("kreport: taxid %d not in report", taxid)
		}
		return taxid, nil
	}
	for _, n := range t.order {
		if n.Label() == want || n.Name == want {
			return n.Taxid, nil
		}
	}
	return 0, fmt.Errorf("kreport: taxonomic group %q not in report", want)
}

// Keep reports whether a read assigned the given taxid passes the filter.
func (f *Filter) Keep(taxid int) bool {
	if f.exclude[taxid] {
		return false
	}
	return f.include == nil || f.include[taxid]
}

// Excluded reports whether the given taxid is hard-excluded. Exclusion
// applies to any taxid seen for a read, not only its final assignment.
func (f *Filter) Excluded(taxid int) bool { return f.exclude[taxid] }
