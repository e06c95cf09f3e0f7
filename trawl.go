// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// trawl reconstructs, filters and re-emits sequencing reads based on the
// output of a taxonomic classifier, extracting and relocating barcode and
// UMI subsequences into read headers on the way through.
//
// The program consumes a Kraken-style report and per-read output, keeps
// reads whose LCA assignment falls inside the requested taxonomic groups
// and outside the excluded subtrees, applies the configured tag-range
// actions to each surviving read, and writes the result to a single
// optionally compressed FASTQ file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"

	"github.com/kortschak/trawl/koutput"
	"github.com/kortschak/trawl/kraken2"
	"github.com/kortschak/trawl/kreport"
	"github.com/kortschak/trawl/reads"
	"github.com/kortschak/trawl/seqtag"
)

var (
	report  = flag.String("report", "", "input classifier report file name (required)")
	kout    = flag.String("koutput", "", "input classifier per-read output file name (required)")
	fq1     = flag.String("fq1", "", "input fastq read file name (required; for a single stream of a paired run, give the relevant mate here)")
	fq2     = flag.String("fq2", "", "input fastq mate file name for paired-end reads")
	outFile = flag.String("out", "", "output fastq file name (required)")

	taxa    = flag.String("taxonomy", "", "comma separated taxonomic groups to include, by label (e.g. D__Bacteria), name or taxid (default accept all)")
	exclude = flag.String("exclude", "9606", "comma separated taxids whose subtrees are hard-excluded")

	level   = flag.Int("level", 4, "output compression level (0 raw, 1-12)")
	useBgzf = flag.Bool("bgzf", false, "write BGZF blocked gzip instead of plain gzip")

	koutBatch  = flag.Int("koutput-batch", 10000, "classifier output lines per unit of work")
	fastqBatch = flag.Int("fastq-batch", 1000, "fastq records per unit of work")
	chunkBytes = flag.Int("chunk-bytes", 1<<20, "I/O granularity in bytes")
	threads    = flag.Int("threads", defaultThreads(), "number of worker threads")
	nqueue     = flag.Int("nqueue", 0, "work queue depth (default 2x threads)")

	labelTaxid = flag.Bool("label-taxid", false, "embed taxid=N in surviving read headers")
	passRange  = flag.Bool("pass-range-errors", false, "forward reads whose configured range exceeds their length instead of dropping them")

	runKraken = flag.Bool("run-kraken2", false, "run kraken2 to produce the report and per-read output first")
	krakenCmd = flag.String("kraken2", "", "path to kraken2 if not in $PATH")
	krakenDB  = flag.String("db", "", "kraken2 database directory (required with -run-kraken2)")
)

func defaultThreads() int {
	return min(3, runtime.NumCPU())
}

func main() {
	var tags1, tags2 seqtag.Actions
	flag.Var(&tags1, "tags1", "tag-range actions for the primary stream (NAME:START-END[+START-END...]:BEHAVIOR[;...])")
	flag.Var(&tags2, "tags2", "tag-range actions for the mate stream")
	flag.Parse()
	if *report == "" || *kout == "" || *fq1 == "" || *outFile == "" {
		fmt.Fprintln(os.Stderr, "invalid argument: must have report, koutput, fq1 and out set")
		flag.Usage()
		os.Exit(1)
	}
	if err := seqtag.Validate(tags1); err != nil {
		log.Fatalf("invalid tags1: %v", err)
	}
	if err := seqtag.Validate(tags2); err != nil {
		log.Fatalf("invalid tags2: %v", err)
	}
	if *nqueue == 0 {
		*nqueue = 2 * *threads
	}

	if *runKraken {
		err := classify()
		if err != nil {
			log.Fatalf("failed kraken2 classification: %v", err)
		}
	}

	log.Printf("reading taxonomy from %q", *report)
	rf, err := os.Open(*report)
	if err != nil {
		log.Fatalf("failed to open report: %v", err)
	}
	tree, err := kreport.Parse(rf)
	rf.Close()
	if err != nil {
		log.Fatalf("failed to parse report: %v", err)
	}
	filter, err := kreport.NewFilter(tree, splitList(*taxa), splitList(*exclude))
	if err != nil {
		log.Fatalf("failed to resolve taxonomic filter: %v", err)
	}

	log.Printf("classifying reads from %q", *kout)
	decs, kstats, err := koutput.Classify(*kout, filter, koutput.Options{
		BatchLines: *koutBatch,
		ChunkBytes: *chunkBytes,
		Workers:    *threads,
		Queue:      *nqueue,
	})
	if err != nil {
		log.Fatalf("failed to classify reads: %v", err)
	}
	if kstats.ParseErrors != 0 {
		log.Printf("dropped %d malformed classifier lines (first: %v)", kstats.ParseErrors, kstats.FirstError)
	}
	log.Printf("matched %d of %d reads (%d unclassified, %d filtered)",
		kstats.Kept, kstats.Lines, kstats.Unclassified, kstats.Filtered)

	w, err := reads.NewWriter(*outFile, reads.WriterOptions{
		Level:      *level,
		Workers:    *threads,
		BlockBytes: *chunkBytes,
		BGZF:       *useBgzf,
	})
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	if len(decs) == 0 {
		// No read can survive the fastq pass, so skip it.
		err = w.Close()
		if err != nil {
			log.Fatalf("failed to finalize output: %v", err)
		}
		log.Print("no taxonomic matches found in the classifier output")
		return
	}

	policy := reads.DropRead
	if *passRange {
		policy = reads.PassRead
	}
	log.Printf("extracting reads from %q", *fq1)
	stats, err := reads.Match(*fq1, *fq2, decs, w, reads.Options{
		Batch:       *fastqBatch,
		Queue:       *nqueue,
		Workers:     *threads,
		Actions1:    tags1,
		Actions2:    tags2,
		LabelTaxid:  *labelTaxid,
		RangePolicy: policy,
	})
	if err != nil {
		w.Close()
		log.Fatalf("failed to extract reads: %v", err)
	}
	err = w.Close()
	if err != nil {
		log.Fatalf("failed to finalize output: %v", err)
	}

	if stats.RangeErrors != 0 {
		log.Printf("%d reads failed range application (first: %v)", stats.RangeErrors, stats.FirstError)
	}
	log.Printf("wrote %d of %d reads to %q (%d without a keep decision)",
		stats.Kept, stats.Records, *outFile, stats.Dropped)
}

// classify runs the external classifier over the input reads to produce
// the report and per-read output consumed by the rest of the run.
func classify() error {
	if *krakenDB == "" {
		return kraken2.ErrMissingRequired
	}
	k := kraken2.Kraken2{
		Cmd: *krakenCmd,

		DB: *krakenDB, Threads: *threads,
		Report: *report, Output: *kout,

		Gzip:   strings.HasSuffix(*fq1, ".gz"),
		Paired: *fq2 != "",

		Reads: *fq1, Mates: *fq2,
	}
	cmd, err := k.BuildCommand()
	if err != nil {
		return err
	}
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	log.Printf("running %q", cmd.Args)
	return cmd.Run()
}

// splitList splits a comma separated flag value, treating an empty value
// as an empty list.
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
