// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reads

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/biogo/hts/bgzf"
	"github.com/klauspost/pgzip"
)

// WriterOptions configure output serialization. Level 0 writes raw output;
// levels 1-12 select a DEFLATE speed/size tradeoff, with levels above 9
// clamped to the strongest gzip setting. BGZF selects block-gzip output,
// which remains gzip compatible; otherwise parallel gzip is used. Workers
// bounds the compression parallelism and BlockBytes the compression block
// size.
type WriterOptions struct {
	Level      int
	Workers    int
	BlockBytes int
	BGZF       bool
}

// Writer serializes surviving records to a file, optionally compressed.
// It is exclusively owned by the draining stage; all writer failures are
// fatal to the run.
type Writer struct {
	f  *os.File
	bw *bufio.Writer
	z  io.WriteCloser
	w  io.Writer
}

// NewWriter creates the output file at path with the requested
// compression.
func NewWriter(path string, opt WriterOptions) (*Writer, error) {
	if opt.Level < 0 || opt.Level > 12 {
		return nil, fmt.Errorf("reads: invalid compression level %d: want 0-12", opt.Level)
	}
	if opt.Workers < 1 {
		opt.Workers = 1
	}
	if opt.BlockBytes < 1<<16 {
		opt.BlockBytes = 1 << 16
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{f: f}
	level := min(opt.Level, pgzip.BestCompression)
	switch {
	case opt.Level == 0:
		w.bw = bufio.NewWriterSize(f, opt.BlockBytes)
		w.w = w.bw
	case opt.BGZF:
		z, err := bgzf.NewWriterLevel(f, level, opt.Workers)
		if err != nil {
			f.Close()
			return nil, err
		}
		w.z = z
		w.w = z
	default:
		w.bw = bufio.NewWriterSize(f, opt.BlockBytes)
		z, err := pgzip.NewWriterLevel(w.bw, level)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := z.SetConcurrency(opt.BlockBytes, opt.Workers+1); err != nil {
			f.Close()
			return nil, err
		}
		w.z = z
		w.w = z
	}
	return w, nil
}

// Write writes p to the output stream.
func (w *Writer) Write(p []byte) (int, error) { return w.w.Write(p) }

// Close finalizes the compression stream, if any, and closes the file.
func (w *Writer) Close() error {
	if w.z != nil {
		if err := w.z.Close(); err != nil {
			w.f.Close()
			return err
		}
	}
	if w.bw != nil {
		if err := w.bw.Flush(); err != nil {
			w.f.Close()
			return err
		}
	}
	return w.f.Close()
}
