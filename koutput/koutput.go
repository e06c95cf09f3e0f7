// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package koutput parses Kraken-style per-read classifier output and
// resolves each read to a keep/drop decision against a taxonomic filter.
package koutput

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/shenwei356/xopen"

	"github.com/kortschak/trawl/batch"
	"github.com/kortschak/trawl/kreport"
)

const (
	classifiedField = iota
	readIDField
	taxidField
	lengthField
	kmersField

	numFields
)

// ParseError describes a single malformed classifier output line. It is
// not fatal; the offending read is dropped and the error tallied.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("koutput: line %d: %s", e.Line, e.Msg)
}

// Record is one classifier output line: the classification flag, read
// identity, assigned LCA taxid, sequence length (one value, or two for
// paired reads) and the per-k-mer LCA map.
type Record struct {
	Classified bool
	ID         string
	Taxid      int
	Lengths    [2]int // Lengths[1] is zero for single-end records.
	Kmers      string
}

// parseRecord parses the five canonical tab-delimited fields of line.
func parseRecord(line string) (Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < numFields {
		return Record{}, fmt.Errorf("expected %d fields, got %d", numFields, len(fields))
	}
	var rec Record
	switch fields[classifiedField] {
	case "C":
		rec.Classified = true
	case "U":
	default:
		return Record{}, fmt.Errorf("invalid classification flag %q", fields[classifiedField])
	}
	rec.ID = StripMate(fields[readIDField])
	if rec.ID == "" {
		return Record{}, fmt.Errorf("empty read id")
	}
	taxid, err := strconv.Atoi(fields[taxidField])
	if err != nil {
		return Record{}, fmt.Errorf("invalid taxid %q", fields[taxidField])
	}
	rec.Taxid = taxid
	for i, l := range strings.SplitN(fields[lengthField], "|", 2) {
		n, err := strconv.Atoi(l)
		if err != nil {
			return Record{}, fmt.Errorf("invalid length %q", fields[lengthField])
		}
		rec.Lengths[i] = n
	}
	rec.Kmers = fields[kmersField]
	return rec, nil
}

// StripMate removes a trailing /1, /2, .1 or .2 mate suffix from a read id
// so that classifier records and both mates of a pair share identity.
func StripMate(id string) string {
	if len(id) > 2 && (id[len(id)-1] == '1' || id[len(id)-1] == '2') {
		switch id[len(id)-2] {
		case '/', '.':
			return id[:len(id)-2]
		}
	}
	return id
}

// hasExcluded reports whether any taxid in the k-mer LCA map is excluded
// by the filter. Map entries are space-separated taxid:count pairs with
// "|:|" separating paired-read segments; ambiguous ("A") entries are
// ignored.
func hasExcluded(kmers string, f *kreport.Filter) bool {
	for len(kmers) != 0 {
		var tok string
		if i := strings.IndexByte(kmers, ' '); i >= 0 {
			tok, kmers = kmers[:i], kmers[i+1:]
		} else {
			tok, kmers = kmers, ""
		}
		i := strings.IndexByte(tok, ':')
		if i <= 0 {
			continue
		}
		taxid, err := strconv.Atoi(tok[:i])
		if err != nil {
			continue
		}
		if f.Excluded(taxid) {
			return true
		}
	}
	return false
}

// Decision is the retained classification state for a kept read.
type Decision struct {
	Taxid int
}

// Decisions maps read ids to keep decisions. Absence means drop, so the
// map holds only the reads that survive filtering; these are compact
// relative to the full read data and are held for the whole run.
type Decisions map[string]Decision

// Stats aggregates per-line tallies for a classification pass. FirstError
// retains the first malformed-line error seen, for the completion summary.
type Stats struct {
	Lines        int
	Kept         int
	Unclassified int
	Filtered     int
	ParseErrors  int
	FirstError   error
}

// Options control batching and concurrency for Classify.
type Options struct {
	BatchLines int // classifier lines per unit of work
	ChunkBytes int // I/O granularity of the underlying reader
	Workers    int
	Queue      int
}

type lineBatch struct {
	first int // line number of lines[0]
	lines []string
}

type kept struct {
	id  string
	dec Decision
}

type batchResult struct {
	kept  []kept
	stats Stats
}

// Classify stream-parses the classifier per-read output at path in line
// batches, applies the taxonomic filter to each record and returns the
// decision map for all kept reads. Malformed lines are dropped and
// tallied; reads whose k-mer map contains an excluded taxid are dropped
// even when their assigned LCA is included.
func Classify(path string, filter *kreport.Filter, opt Options) (Decisions, Stats, error) {
	r, err := xopen.Ropen(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer r.Close()

	pool := batch.New(opt.Workers, opt.Queue, func(b lineBatch) (batchResult, error) {
		return classifyBatch(b, filter), nil
	})

	var (
		decs    = make(Decisions)
		stats   Stats
		readErr error
	)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for res := range pool.Results() {
			for _, k := range res.kept {
				decs[k.id] = k.dec
			}
			stats.Lines += res.stats.Lines
			stats.Kept += res.stats.Kept
			stats.Unclassified += res.stats.Unclassified
			stats.Filtered += res.stats.Filtered
			stats.ParseErrors += res.stats.ParseErrors
			if stats.FirstError == nil {
				stats.FirstError = res.stats.FirstError
			}
		}
	}()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), max(opt.ChunkBytes, 64<<10))
	lines := make([]string, 0, opt.BatchLines)
	first := 1
	for n := 1; sc.Scan(); n++ {
		lines = append(lines, sc.Text())
		if len(lines) == opt.BatchLines {
			if !pool.Submit(lineBatch{first: first, lines: lines}) {
				break
			}
			first = n + 1
			lines = make([]string, 0, opt.BatchLines)
		}
	}
	readErr = sc.Err()
	if len(lines) != 0 {
		pool.Submit(lineBatch{first: first, lines: lines})
	}
	pool.Close()
	<-collected

	if err := pool.Err(); err != nil {
		return nil, stats, err
	}
	return decs, stats, readErr
}

// classifyBatch resolves one batch of classifier lines.
func classifyBatch(b lineBatch, filter *kreport.Filter) batchResult {
	var res batchResult
	for i, line := range b.lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		res.stats.Lines++
		rec, err := parseRecord(line)
		if err != nil {
			// Partial corruption of one line must not abort the run.
			res.stats.ParseErrors++
			if res.stats.FirstError == nil {
				res.stats.FirstError = &ParseError{Line: b.first + i, Msg: err.Error()}
			}
			continue
		}
		switch {
		case !rec.Classified:
			res.stats.Unclassified++
		case !filter.Keep(rec.Taxid), hasExcluded(rec.Kmers, filter):
			res.stats.Filtered++
		default:
			res.stats.Kept++
			res.kept = append(res.kept, kept{id: rec.ID, dec: Decision{Taxid: rec.Taxid}})
		}
	}
	return res
}
