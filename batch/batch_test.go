// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package batch

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestOrderedResults(t *testing.T) {
	const n = 1000
	p := New(4, 8, func(j int) (int, error) {
		// Jitter per job so completion order differs from submission order.
		time.Sleep(time.Duration(rand.Intn(100)) * time.Microsecond)
		return j * 2, nil
	})

	go func() {
		for i := 0; i < n; i++ {
			if !p.Submit(i) {
				t.Error("unexpected submission failure")
				break
			}
		}
		p.Close()
	}()

	var got int
	for r := range p.Results() {
		if r != got*2 {
			t.Fatalf("result out of submission order: got %d at position %d", r, got)
		}
		got++
	}
	if got != n {
		t.Errorf("unexpected number of results: got %d, want %d", got, n)
	}
	if err := p.Err(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWorkerError(t *testing.T) {
	boom := errors.New("boom")
	p := New(2, 2, func(j int) (int, error) {
		if j == 3 {
			return 0, boom
		}
		return j, nil
	})

	for i := 0; i < 1000; i++ {
		if !p.Submit(i) {
			break
		}
	}
	p.Close()

	for range p.Results() {
	}
	if err := p.Err(); err != boom {
		t.Errorf("unexpected error: got %v, want %v", err, boom)
	}
}

func TestCancel(t *testing.T) {
	stop := errors.New("stop")
	p := New(2, 2, func(j int) (int, error) { return j, nil })

	go func() {
		defer p.Close()
		for i := 0; ; i++ {
			if !p.Submit(i) {
				return
			}
		}
	}()

	<-p.Results()
	p.Cancel(stop)
	for range p.Results() {
	}
	if err := p.Err(); err != stop {
		t.Errorf("unexpected error: got %v, want %v", err, stop)
	}
}

func TestEmpty(t *testing.T) {
	p := New(2, 2, func(j int) (int, error) { return j, nil })
	p.Close()
	for range p.Results() {
		t.Error("unexpected result from empty pool")
	}
	if err := p.Err(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMinimumConfiguration(t *testing.T) {
	// Degenerate worker and depth values are clamped, not rejected.
	p := New(0, 0, func(j string) (string, error) { return j, nil })
	if !p.Submit("a") {
		t.Fatal("unexpected submission failure")
	}
	p.Close()
	r, ok := <-p.Results()
	if !ok || r != "a" {
		t.Errorf("unexpected result: %q, %t", r, ok)
	}
}
