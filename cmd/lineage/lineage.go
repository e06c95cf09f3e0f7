// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// lineage resolves taxonomic group labels against a classifier report and
// prints the taxa that a trawl run with the same flags would accept, one
// per line with taxid, rank, read counts and full lineage. It is intended
// for choosing and checking -taxonomy and -exclude values.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/kortschak/trawl/kreport"
)

var (
	report  = flag.String("report", "", "input classifier report file name (required)")
	taxa    = flag.String("taxonomy", "", "comma separated taxonomic groups to include (default accept all)")
	exclude = flag.String("exclude", "", "comma separated taxids whose subtrees are hard-excluded")
	leaves  = flag.Bool("leaves", false, "only print taxa with directly assigned reads")
)

func main() {
	flag.Parse()
	if *report == "" {
		flag.Usage()
		os.Exit(1)
	}

	f, err := os.Open(*report)
	if err != nil {
		log.Fatalf("failed to open report: %v", err)
	}
	tree, err := kreport.Parse(f)
	f.Close()
	if err != nil {
		log.Fatalf("failed to parse report: %v", err)
	}
	filter, err := kreport.NewFilter(tree, splitList(*taxa), splitList(*exclude))
	if err != nil {
		log.Fatalf("failed to resolve taxonomic filter: %v", err)
	}

	for _, n := range tree.Nodes() {
		if !filter.Keep(n.Taxid) {
			continue
		}
		if *leaves && n.DirectCount == 0 {
			continue
		}
		fmt.Printf("%d\t%s\t%d\t%d\t%s\n", n.Taxid, n.Rank, n.CladeCount, n.DirectCount, lineageOf(n))
	}
}

// lineageOf returns the semicolon separated rank-qualified path from the
// root to n.
func lineageOf(n *kreport.Node) string {
	var path []string
	for ; n != nil; n = n.Parent {
		path = append(path, n.Label())
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return strings.Join(path, ";")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	fields := strings.Split(s, ",")
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}
