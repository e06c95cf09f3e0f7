// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kraken2 provides interaction with the kraken2 taxonomic
// classifier.
package kraken2

import (
	"errors"
	"os/exec"

	"github.com/biogo/external"
)

var ErrMissingRequired = errors.New("kraken2: missing required argument")

// Kraken2 defines parameters for the kraken2 classifier.
type Kraken2 struct {
	// Usage: kraken2 --db database [-options] seqs.fq [seqs_2.fq]
	//
	Cmd string `buildarg:"{{if .}}{{.}}{{else}}kraken2{{end}}"` // kraken2

	DB      string  `buildarg:"--db{{split}}{{.}}"`                                // --db: database directory (required)
	Threads int     `buildarg:"{{if .}}--threads{{split}}{{.}}{{end}}"`            // --threads: worker threads
	Report  string  `buildarg:"{{if .}}--report{{split}}{{.}}{{end}}"`             // --report: report outfile
	Output  string  `buildarg:"{{if .}}--output{{split}}{{.}}{{end}}"`             // --output: per-read outfile
	Conf    float64 `buildarg:"{{if .}}--confidence{{split}}{{.}}{{end}}"`         // --confidence: score threshold
	MinHits int     `buildarg:"{{if .}}--minimum-hit-groups{{split}}{{.}}{{end}}"` // --minimum-hit-groups

	Memory bool `buildarg:"{{if .}}--memory-mapping{{end}}"`  // --memory-mapping: avoid loading db into RAM
	Gzip   bool `buildarg:"{{if .}}--gzip-compressed{{end}}"` // --gzip-compressed: inputs are gzipped
	Paired bool `buildarg:"{{if .}}--paired{{end}}"`          // --paired: mate files given

	// Input files:
	Reads string `buildarg:"{{.}}"`                // "seqs.fq"
	Mates string `buildarg:"{{if .}}{{.}}{{end}}"` // "seqs_2.fq"
}

// BuildCommand returns an exec.Cmd built from the parameters in k.
func (k Kraken2) BuildCommand() (*exec.Cmd, error) {
	if k.DB == "" || k.Reads == "" {
		return nil, ErrMissingRequired
	}
	if k.Paired && k.Mates == "" {
		return nil, ErrMissingRequired
	}
	cl := external.Must(external.Build(k))
	return exec.Command(cl[0], cl[1:]...), nil
}
