// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dut

// fifo is a bounded ring buffer of data words.
type fifo struct {
	buf  []uint64
	head int
	n    int
}

func newFIFO(depth int) fifo {
	return fifo{buf: make([]uint64, depth)}
}

func (f *fifo) len() int    { return f.n }
func (f *fifo) full() bool  { return f.n == len(f.buf) }
func (f *fifo) empty() bool { return f.n == 0 }

func (f *fifo) push(v uint64) bool {
	if f.full() {
		return false
	}
	f.buf[(f.head+f.n)%len(f.buf)] = v
	f.n++
	return true
}

func (f *fifo) pop() (uint64, bool) {
	if f.empty() {
		return 0, false
	}
	v := f.buf[f.head]
	f.head = (f.head + 1) % len(f.buf)
	f.n--
	return v, true
}

func (f *fifo) reset() {
	f.head = 0
	f.n = 0
}
