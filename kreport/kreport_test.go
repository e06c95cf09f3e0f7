// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kreport

import (
	"errors"
	"strings"
	"testing"
)

const testReport = ` 40.00	4	4	U	0	unclassified
 60.00	6	0	R	1	root
 50.00	5	1	D	2	  Bacteria
 30.00	3	1	G	561	    Escherichia
 20.00	2	2	S	562	      Escherichia coli
 10.00	1	1	S	1000	    Mythicoccus readorum
 10.00	1	0	D	2759	  Eukaryota
 10.00	1	1	S	9606	    Homo sapiens
`

func parseTestReport(t *testing.T) *Tree {
	t.Helper()
	tree, err := Parse(strings.NewReader(testReport))
	if err != nil {
		t.Fatalf("failed to parse report: %v", err)
	}
	return tree
}

func TestParse(t *testing.T) {
	tree := parseTestReport(t)
	if tree.Len() != 8 {
		t.Errorf("unexpected number of taxa: got %d, want 8", tree.Len())
	}
	coli := tree.Node(562)
	if coli == nil {
		t.Fatal("missing node for taxid 562")
	}
	if coli.Name != "Escherichia coli" || coli.Rank != "S" {
		t.Errorf("unexpected node: %+v", coli)
	}
	if coli.Parent == nil || coli.Parent.Taxid != 561 {
		t.Errorf("unexpected parent for taxid 562: %+v", coli.Parent)
	}
	if got := coli.Label(); got != "S__Escherichia coli" {
		t.Errorf("unexpected label: got %q", got)
	}
	for _, root := range []int{0, 1} {
		if n := tree.Node(root); n == nil || n.Parent != nil {
			t.Errorf("taxid %d should be a parentless root: %+v", root, n)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		report string
		line   int
	}{
		{
			name:   "bad taxid",
			report: " 60.00\t6\t0\tR\tone\troot\n",
			line:   1,
		},
		{
			name:   "bad rank",
			report: " 60.00\t6\t0\tR\t1\troot\n 50.00\t5\t1\tZ\t2\t  Bacteria\n",
			line:   2,
		},
		{
			name:   "missing fields",
			report: " 60.00\t6\t0\tR\t1\n",
			line:   1,
		},
		{
			name:   "parent not seen",
			report: " 60.00\t6\t0\tR\t1\troot\n 20.00\t2\t2\tS\t562\t      Escherichia coli\n",
			line:   2,
		},
		{
			name:   "duplicate taxid",
			report: " 60.00\t6\t0\tR\t1\troot\n 50.00\t5\t1\tD\t1\t  Bacteria\n",
			line:   2,
		},
	}
	for _, test := range tests {
		_, err := Parse(strings.NewReader(test.report))
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Errorf("%s: expected ParseError, got %v", test.name, err)
			continue
		}
		if perr.Line != test.line {
			t.Errorf("%s: unexpected line: got %d, want %d", test.name, perr.Line, test.line)
		}
	}
}

func TestIsDescendantOrSelf(t *testing.T) {
	tree := parseTestReport(t)

	// Self inclusion must hold for every taxon.
	for _, n := range tree.Nodes() {
		if !tree.IsDescendantOrSelf(n.Taxid, n.Taxid) {
			t.Errorf("taxid %d is not its own descendant", n.Taxid)
		}
	}

	tests := []struct {
		candidate, ancestor int
		want                bool
	}{
		{562, 2, true},
		{562, 561, true},
		{562, 1, true},
		{562, 2759, false},
		{2, 562, false},
		{9606, 2759, true},
		{1000, 2, true},
		{12345, 1, false}, // not in the report
	}
	for _, test := range tests {
		got := tree.IsDescendantOrSelf(test.candidate, test.ancestor)
		if got != test.want {
			t.Errorf("IsDescendantOrSelf(%d, %d) = %v, want %v", test.candidate, test.ancestor, got, test.want)
		}
	}
}

func TestFilter(t *testing.T) {
	tree := parseTestReport(t)

	tests := []struct {
		name    string
		include []string
		exclude []string
		keep    []int
		drop    []int
	}{
		{
			name: "accept all",
			keep: []int{1, 2, 562, 1000, 9606},
		},
		{
			name:    "bacteria only",
			include: []string{"D__Bacteria"},
			keep:    []int{2, 561, 562, 1000},
			drop:    []int{1, 2759, 9606},
		},
		{
			name:    "bacteria excluding subtree",
			include: []string{"D__Bacteria"},
			exclude: []string{"1000"},
			keep:    []int{2, 561, 562},
			drop:    []int{1000},
		},
		{
			name:    "exclusion precedence over inclusion",
			include: []string{"S__Mythicoccus readorum"},
			exclude: []string{"1000"},
			drop:    []int{1000},
		},
		{
			name:    "by bare name",
			include: []string{"Escherichia"},
			keep:    []int{561, 562},
			drop:    []int{2, 1000},
		},
		{
			name:    "by taxid",
			include: []string{"561"},
			keep:    []int{561, 562},
			drop:    []int{2},
		},
		{
			name:    "exclude expands subtree",
			exclude: []string{"2"},
			keep:    []int{2759, 9606},
			drop:    []int{2, 561, 562, 1000},
		},
		{
			name:    "exclude taxid absent from report",
			exclude: []string{"99999"},
			keep:    []int{562},
			drop:    []int{99999},
		},
	}
	for _, test := range tests {
		f, err := NewFilter(tree, test.include, test.exclude)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", test.name, err)
			continue
		}
		for _, taxid := range test.keep {
			if !f.Keep(taxid) {
				t.Errorf("%s: taxid %d should be kept", test.name, taxid)
			}
		}
		for _, taxid := range test.drop {
			if f.Keep(taxid) {
				t.Errorf("%s: taxid %d should be dropped", test.name, taxid)
			}
		}
	}
}

func TestFilterUnknownGroup(t *testing.T) {
	tree := parseTestReport(t)
	_, err := NewFilter(tree, []string{"D__Archaea"}, nil)
	if err == nil {
		t.Error("expected error for group absent from report")
	}
	_, err = NewFilter(tree, nil, []string{"not-a-taxid"})
	if err == nil {
		t.Error("expected error for malformed excluded taxid")
	}
}

func TestValidRank(t *testing.T) {
	for _, rank := range []string{"U", "R", "D", "K", "P", "C", "O", "F", "G", "S", "G1", "S12", "-"} {
		if !validRank(rank) {
			t.Errorf("rank %q should be valid", rank)
		}
	}
	for _, rank := range []string{"", "Z", "s", "S1a", "1"} {
		if validRank(rank) {
			t.Errorf("rank %q should be invalid", rank)
		}
	}
}
