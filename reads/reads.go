// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reads streams sequencing records in batches, joins them to
// classifier decisions by read identity, applies configured range actions
// and serializes the surviving records.
package reads

import (
	"bytes"
	"fmt"

	"github.com/shenwei356/bio/seqio/fastx"

	"github.com/kortschak/trawl/batch"
	"github.com/kortschak/trawl/koutput"
	"github.com/kortschak/trawl/seqtag"
)

// SyncError records desynchronized paired input streams. Continuing after
// desynchronization would silently corrupt pairing, so it is always fatal.
type SyncError struct {
	ID1, ID2 string
}

func (e *SyncError) Error() string {
	if e.ID1 == "" || e.ID2 == "" {
		return "reads: paired inputs have different record counts"
	}
	return fmt.Sprintf("reads: paired inputs desynchronized: %q does not match %q", e.ID1, e.ID2)
}

// Policy selects the treatment of a read whose configured range exceeds
// its length.
type Policy int

const (
	// DropRead discards the read (or pair) and tallies the error.
	DropRead Policy = iota
	// PassRead forwards the read (or pair) unmodified and tallies the
	// error.
	PassRead
)

// Options control batching, concurrency and per-read transformation for
// Match.
type Options struct {
	Batch   int // records per unit of work
	Queue   int // chunk queue depth
	Workers int

	Actions1 seqtag.Actions // applied to the primary stream
	Actions2 seqtag.Actions // applied to the mate stream, if any

	LabelTaxid  bool // append taxid=N to surviving headers
	RangePolicy Policy
}

// Stats aggregates per-record tallies for a matching pass. FirstError
// retains the first per-read range failure, for the completion summary.
type Stats struct {
	Records     int // records for single-end input, pairs for paired
	Kept        int
	Dropped     int // no decision for the read id, or decision was drop
	RangeErrors int
	FirstError  error
}

type pairChunk struct {
	r1, r2 []*fastx.Record
}

type matchResult struct {
	data  []byte
	stats Stats
}

// Match streams records from fq1 (and fq2 for paired-end input, read in
// lockstep), drops records without a keep decision, applies the configured
// actions to kept records and writes them to w in input order. Paired
// records are written interleaved. When the classifier was run against
// only one stream of an originally paired run, the caller must present
// that stream as fq1; the matcher keys only on read identity and cannot
// detect which mate it is receiving.
func Match(fq1, fq2 string, decs koutput.Decisions, w *Writer, opt Options) (Stats, error) {
	// NewDefaultReader mutates shared parser configuration, so both
	// readers must be open before either starts delivering chunks.
	r1, err := fastx.NewDefaultReader(fq1)
	if err != nil {
		return Stats{}, err
	}
	defer r1.Close()

	paired := fq2 != ""
	var r2 *fastx.Reader
	if paired {
		r2, err = fastx.NewDefaultReader(fq2)
		if err != nil {
			return Stats{}, err
		}
		defer r2.Close()
	}

	ch1 := r1.ChunkChan(opt.Queue, opt.Batch)
	var ch2 chan fastx.RecordChunk
	if paired {
		ch2 = r2.ChunkChan(opt.Queue, opt.Batch)
	}

	pool := batch.New(opt.Workers, opt.Queue, func(job pairChunk) (matchResult, error) {
		return matchChunk(job, decs, &opt)
	})

	go feed(pool, ch1, ch2, paired)

	var stats Stats
	for res := range pool.Results() {
		stats.Records += res.stats.Records
		stats.Kept += res.stats.Kept
		stats.Dropped += res.stats.Dropped
		stats.RangeErrors += res.stats.RangeErrors
		if stats.FirstError == nil {
			stats.FirstError = res.stats.FirstError
		}
		if len(res.data) == 0 {
			continue
		}
		if _, err := w.Write(res.data); err != nil {
			pool.Cancel(fmt.Errorf("reads: write failed: %w", err))
		}
	}
	return stats, pool.Err()
}

// feed zips record chunks from one or two streams into pool jobs,
// propagating read failures and stream-length desynchronization.
func feed(pool *batch.Pool[pairChunk, matchResult], ch1, ch2 chan fastx.RecordChunk, paired bool) {
	defer pool.Close()
	if !paired {
		for c := range ch1 {
			if c.Err != nil {
				pool.Cancel(c.Err)
				return
			}
			if !pool.Submit(pairChunk{r1: c.Data}) {
				return
			}
		}
		return
	}
	for {
		c1, ok1 := <-ch1
		c2, ok2 := <-ch2
		if ok1 != ok2 {
			pool.Cancel(&SyncError{})
			return
		}
		if !ok1 {
			return
		}
		if c1.Err != nil {
			pool.Cancel(c1.Err)
			return
		}
		if c2.Err != nil {
			pool.Cancel(c2.Err)
			return
		}
		if len(c1.Data) != len(c2.Data) {
			pool.Cancel(&SyncError{})
			return
		}
		if !pool.Submit(pairChunk{r1: c1.Data, r2: c2.Data}) {
			return
		}
	}
}

// matchChunk joins one batch of records to their decisions and applies the
// configured actions, serializing survivors into the result buffer.
func matchChunk(job pairChunk, decs koutput.Decisions, opt *Options) (matchResult, error) {
	var (
		res  matchResult
		buf  bytes.Buffer
		orig bytes.Buffer
	)
	for i, rec1 := range job.r1 {
		res.stats.Records++
		id := koutput.StripMate(string(rec1.ID))
		var rec2 *fastx.Record
		if job.r2 != nil {
			rec2 = job.r2[i]
			if id2 := koutput.StripMate(string(rec2.ID)); id2 != id {
				return res, &SyncError{ID1: string(rec1.ID), ID2: string(rec2.ID)}
			}
		}
		d, ok := decs[id]
		if !ok {
			res.stats.Dropped++
			continue
		}

		// Snapshot the unmodified records so PassRead can forward them
		// after a partial transformation fails.
		if opt.RangePolicy == PassRead {
			orig.Reset()
			formatRecord(&orig, rec1)
			if rec2 != nil {
				formatRecord(&orig, rec2)
			}
		}

		err := transform(rec1, id, opt.Actions1, d, opt.LabelTaxid)
		if err == nil && rec2 != nil {
			err = transform(rec2, id, opt.Actions2, d, opt.LabelTaxid)
		}
		if err != nil {
			// All transformation failures are per-read conditions:
			// range overruns, header tag conflicts, length mismatch.
			res.stats.RangeErrors++
			if res.stats.FirstError == nil {
				res.stats.FirstError = err
			}
			if opt.RangePolicy == PassRead {
				res.stats.Kept++
				buf.Write(orig.Bytes())
			} else {
				res.stats.Dropped++
			}
			continue
		}

		res.stats.Kept++
		formatRecord(&buf, rec1)
		if rec2 != nil {
			formatRecord(&buf, rec2)
		}
	}
	res.data = buf.Bytes()
	return res, nil
}

// transform applies the action list to a record in place.
func transform(rec *fastx.Record, id string, as seqtag.Actions, d koutput.Decision, label bool) error {
	rd := seqtag.Read{
		ID:     id,
		Header: rec.Name,
		Seq:    rec.Seq.Seq,
		Qual:   rec.Seq.Qual,
	}
	_, err := seqtag.Apply(&rd, as)
	if err != nil {
		return err
	}
	if label {
		rd.Header = append(rd.Header, fmt.Sprintf(" taxid=%d", d.Taxid)...)
	}
	rec.Name = rd.Header
	rec.Seq.Seq = rd.Seq
	rec.Seq.Qual = rd.Qual
	return nil
}

// formatRecord serializes a record as FASTQ, or as FASTA when it carries
// no quality.
func formatRecord(buf *bytes.Buffer, rec *fastx.Record) {
	if len(rec.Seq.Qual) == 0 && len(rec.Seq.Seq) != 0 {
		buf.WriteByte('>')
		buf.Write(rec.Name)
		buf.WriteByte('\n')
		buf.Write(rec.Seq.Seq)
		buf.WriteByte('\n')
		return
	}
	buf.WriteByte('@')
	buf.Write(rec.Name)
	buf.WriteByte('\n')
	buf.Write(rec.Seq.Seq)
	buf.WriteString("\n+\n")
	buf.Write(rec.Seq.Qual)
	buf.WriteByte('\n')
}
