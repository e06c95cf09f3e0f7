// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// gut converts fastq records to fasta, discarding quality. It understands
// gzipped input, so trawl output can be fed to downstream tools that take
// only fasta without an intermediate decompression step.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq/linear"
	"github.com/shenwei356/xopen"
)

var in = flag.String("in", "", "input fastq file, plain or gzipped (required)")

func main() {
	flag.Parse()
	if *in == "" {
		flag.Usage()
		os.Exit(1)
	}

	f, err := xopen.Ropen(*in)
	if err != nil {
		log.Fatalf("failed to open %q: %v", *in, err)
	}
	defer f.Close()

	sc := seqio.NewScanner(fastq.NewReader(f, linear.NewQSeq("", nil, alphabet.DNAredundant, alphabet.Sanger)))
	for sc.Next() {
		s := sc.Seq().(*linear.QSeq)
		fmt.Printf("%60a\n", s)
	}
	if err := sc.Error(); err != nil {
		log.Fatalf("error during fastq read: %v", err)
	}
}
