// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package seqtag provides declarative range transformations over sequencing
// reads: extraction of named subsequences into header tags, trimming of
// ranges from sequence and quality, or both.
package seqtag

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/biogo/store/interval"
)

// Range is a contiguous subsequence of a read, 1-based inclusive.
type Range struct {
	Start, End int
}

func (r Range) String() string { return fmt.Sprintf("%d-%d", r.Start, r.End) }

// Len returns the number of positions covered by r.
func (r Range) Len() int { return r.End - r.Start + 1 }

// Behavior is the closed set of actions that may be applied to a range.
type Behavior int

const (
	// Locate matches a tag already embedded in the read header by
	// upstream preprocessing; the sequence is not touched.
	Locate Behavior = iota
	// Embed extracts the range and writes tag=value into the header,
	// leaving the sequence untouched.
	Embed
	// Trim removes the range from sequence and quality, discarding it.
	Trim
	// EmbedTrim extracts the range into the header and removes it from
	// sequence and quality.
	EmbedTrim
)

var behaviorNames = map[Behavior]string{
	Locate:    "tag",
	Embed:     "embed",
	Trim:      "trim",
	EmbedTrim: "embed-trim",
}

func (b Behavior) String() string {
	s, ok := behaviorNames[b]
	if !ok {
		return fmt.Sprintf("behavior(%d)", int(b))
	}
	return s
}

func (b Behavior) embeds() bool { return b == Embed || b == EmbedTrim }
func (b Behavior) trims() bool  { return b == Trim || b == EmbedTrim }

// Action is one or more ranges addressed as a unit, tagged with a behavior.
// Multiple ranges are concatenated in order to form a single logical
// subsequence for one tag. A bare range with no declared behavior is not
// representable; construction must always choose one.
type Action struct {
	Name   string // tag label; required for Locate, Embed and EmbedTrim
	Op     Behavior
	Ranges []Range
}

// UMI returns an action over the given ranges carrying the conventional
// UMI tag label.
func UMI(op Behavior, ranges ...Range) Action {
	return Action{Name: "UMI", Op: op, Ranges: ranges}
}

// Barcode returns an action over the given ranges carrying the
// conventional BARCODE tag label.
func Barcode(op Behavior, ranges ...Range) Action {
	return Action{Name: "BARCODE", Op: op, Ranges: ranges}
}

func (a Action) String() string {
	var rs []string
	for _, r := range a.Ranges {
		rs = append(rs, r.String())
	}
	return fmt.Sprintf("%s:%s:%s", a.Name, strings.Join(rs, "+"), a.Op)
}

// Actions is an ordered list of actions applied to each read of one input
// stream. It implements flag.Value; the flag syntax is a semicolon
// separated list of NAME:RANGES:BEHAVIOR elements where RANGES is a +
// separated list of START-END pairs and BEHAVIOR is one of tag, embed,
// trim or embed-trim. NAME may be empty only for trim.
type Actions []Action

func (as *Actions) String() string {
	var s []string
	for _, a := range *as {
		s = append(s, a.String())
	}
	return strings.Join(s, ";")
}

// Set parses and appends actions from the flag syntax described above.
func (as *Actions) Set(s string) error {
	for _, spec := range strings.Split(s, ";") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		a, err := parseAction(spec)
		if err != nil {
			return err
		}
		*as = append(*as, a)
	}
	return nil
}

func parseAction(spec string) (Action, error) {
	fields := strings.Split(spec, ":")
	if len(fields) != 3 {
		return Action{}, fmt.Errorf("seqtag: invalid action %q: want NAME:RANGES:BEHAVIOR", spec)
	}
	var a Action
	a.Name = fields[0]
	switch fields[2] {
	case "tag":
		a.Op = Locate
	case "embed":
		a.Op = Embed
	case "trim":
		a.Op = Trim
	case "embed-trim":
		a.Op = EmbedTrim
	case "":
		return Action{}, fmt.Errorf("seqtag: bare range %q: every range must declare a behavior", spec)
	default:
		return Action{}, fmt.Errorf("seqtag: unknown behavior %q in %q", fields[2], spec)
	}
	if fields[1] == "" && a.Op == Locate {
		// Located tags are matched in the header; no sequence range.
		return a, nil
	}
	for _, rs := range strings.Split(fields[1], "+") {
		se := strings.SplitN(rs, "-", 2)
		if len(se) != 2 {
			return Action{}, fmt.Errorf("seqtag: invalid range %q in %q", rs, spec)
		}
		start, err := strconv.Atoi(se[0])
		if err != nil {
			return Action{}, fmt.Errorf("seqtag: invalid range start %q in %q", se[0], spec)
		}
		end, err := strconv.Atoi(se[1])
		if err != nil {
			return Action{}, fmt.Errorf("seqtag: invalid range end %q in %q", se[1], spec)
		}
		a.Ranges = append(a.Ranges, Range{Start: start, End: end})
	}
	return a, nil
}

// rangeInterval adapts a Range to the biogo interval tree interface.
type rangeInterval struct {
	span Range
	id   uintptr
}

func (r rangeInterval) ID() uintptr { return r.id }
func (r rangeInterval) Range() interval.IntRange {
	// Half-open interval indexing.
	return interval.IntRange{Start: r.span.Start - 1, End: r.span.End}
}
func (r rangeInterval) Overlap(b interval.IntRange) bool {
	return r.span.End > b.Start && r.span.Start-1 < b.End
}

// Validate checks a configured action list before any read is processed:
// every range must be well formed, ranges must not overlap anywhere in the
// list, tagged behaviors must carry a non-empty unique tag name, and a
// trim-only action must not carry one. Ambiguous or conflicting
// configuration is rejected here, never deferred to per-read failures.
func Validate(as Actions) error {
	seen := make(map[string]bool)
	var (
		t  interval.IntTree
		id uintptr
	)
	for _, a := range as {
		if len(a.Ranges) == 0 && a.Op != Locate {
			return fmt.Errorf("seqtag: action %q has no ranges", a.Name)
		}
		if a.Op.embeds() || a.Op == Locate {
			if a.Name == "" {
				return fmt.Errorf("seqtag: %s action requires a tag name", a.Op)
			}
			if seen[a.Name] {
				return fmt.Errorf("seqtag: duplicate tag name %q", a.Name)
			}
			seen[a.Name] = true
		} else if a.Name != "" {
			return fmt.Errorf("seqtag: trim action must not carry a tag name %q", a.Name)
		}
		if a.Op == Locate {
			// Located tags address the header, not the sequence, so
			// their ranges are not positions to check for overlap.
			continue
		}
		for _, r := range a.Ranges {
			if r.Start < 1 || r.End < r.Start {
				return fmt.Errorf("seqtag: invalid range %v in action %q", r, a.Name)
			}
			iv := rangeInterval{span: r, id: id}
			id++
			if hits := t.Get(iv); len(hits) != 0 {
				prev := hits[0].(rangeInterval)
				return fmt.Errorf("seqtag: range %v in action %q overlaps %v", r, a.Name, prev.span)
			}
			err := t.Insert(iv, false)
			if err != nil {
				return fmt.Errorf("seqtag: %v", err)
			}
		}
	}
	return nil
}

// RangeError records a configured range exceeding a read's length. It is
// reported per read and does not abort the batch.
type RangeError struct {
	ID     string
	Tag    string
	Range  Range
	Length int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("seqtag: read %s: range %v (%s) out of bounds for length %d", e.ID, e.Range, e.Tag, e.Length)
}

// Read is the mutable view of a sequencing read operated on by Apply.
// Seq and Qual are parallel; Header is the header line without its
// leading sentinel byte.
type Read struct {
	ID     string
	Header []byte
	Seq    []byte
	Qual   []byte
}

// Apply transforms the read according to the action list, returning the
// extracted tag values by name. All range positions address the sequence
// as it stands before any trimming by this call: extraction happens first,
// then trim ranges are removed in ascending position order with later
// coordinates renumbered. Embedded tags are appended to the header as
// space-delimited key=value pairs in action list order. Re-embedding a tag
// name already present in the header is an error; the action list is
// assumed Validated.
func Apply(r *Read, as Actions) (map[string][]byte, error) {
	if len(as) == 0 {
		return nil, nil
	}
	if len(r.Qual) != 0 && len(r.Qual) != len(r.Seq) {
		return nil, fmt.Errorf("seqtag: read %s: sequence and quality lengths differ: %d != %d", r.ID, len(r.Seq), len(r.Qual))
	}

	tags := make(map[string][]byte)
	var trims []Range
	for _, a := range as {
		if a.Op == Locate {
			v, ok := headerTag(r.Header, a.Name)
			if ok {
				tags[a.Name] = v
			}
			continue
		}
		for _, rng := range a.Ranges {
			if rng.End > len(r.Seq) {
				return nil, &RangeError{ID: r.ID, Tag: a.Name, Range: rng, Length: len(r.Seq)}
			}
		}
		if a.Op.embeds() {
			if _, ok := headerTag(r.Header, a.Name); ok {
				return nil, fmt.Errorf("seqtag: read %s: tag %q already embedded in header", r.ID, a.Name)
			}
			var val []byte
			for _, rng := range a.Ranges {
				val = append(val, r.Seq[rng.Start-1:rng.End]...)
			}
			tags[a.Name] = val
			r.Header = append(r.Header, ' ')
			r.Header = append(r.Header, a.Name...)
			r.Header = append(r.Header, '=')
			r.Header = append(r.Header, val...)
		}
		if a.Op.trims() {
			trims = append(trims, a.Ranges...)
		}
	}

	if len(trims) != 0 {
		sort.Slice(trims, func(i, j int) bool { return trims[i].Start < trims[j].Start })
		seq := r.Seq[:0]
		qual := r.Qual[:0]
		pos := 0 // zero-based position after the last copied segment.
		for _, rng := range trims {
			seq = append(seq, r.Seq[pos:rng.Start-1]...)
			if r.Qual != nil {
				qual = append(qual, r.Qual[pos:rng.Start-1]...)
			}
			pos = rng.End
		}
		seq = append(seq, r.Seq[pos:]...)
		if r.Qual != nil {
			qual = append(qual, r.Qual[pos:]...)
			r.Qual = qual
		}
		r.Seq = seq
	}

	return tags, nil
}

// headerTag scans a read header for an embedded key=value pair with the
// given name, returning the value if present. Values are delimited by
// space or semicolon.
func headerTag(header []byte, name string) ([]byte, bool) {
	key := make([]byte, 0, len(name)+1)
	key = append(key, name...)
	key = append(key, '=')
	for off := 0; off < len(header); {
		i := bytes.Index(header[off:], key)
		if i < 0 {
			return nil, false
		}
		i += off
		if i != 0 && header[i-1] != ' ' && header[i-1] != ';' {
			off = i + len(key)
			continue
		}
		val := header[i+len(key):]
		if j := bytes.IndexAny(val, " ;"); j >= 0 {
			val = val[:j]
		}
		return val, true
	}
	return nil, false
}
