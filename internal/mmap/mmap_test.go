// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmap

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestHandle(t *testing.T) {
	t.Run("nil-handle", func(t *testing.T) {
		var h *Handle

		_, err := h.ReadAt(nil, 0)
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid read-at error: %+v", err)
		}

		_, err = h.WriteAt(nil, 0)
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid write-at error: %+v", err)
		}

		err = h.Close()
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid close error: %+v", err)
		}
	})
	t.Run("nil-data", func(t *testing.T) {
		var h Handle

		_, err := h.ReadAt(nil, 0)
		if !errors.Is(err, errClosed) {
			t.Fatalf("invalid read-at error: %+v", err)
		}

		_, err = h.WriteAt(nil, 0)
		if !errors.Is(err, errClosed) {
			t.Fatalf("invalid write-at error: %+v", err)
		}

		err = h.Close()
		if err != nil {
			t.Fatalf("error closing nil-data handle: %+v", err)
		}
	})
}

func TestMap(t *testing.T) {
	span := int64(os.Getpagesize())

	fname := filepath.Join(t.TempDir(), "mem")
	err := os.WriteFile(fname, make([]byte, 2*span), 0644)
	if err != nil {
		t.Fatalf("could not create mem file: %+v", err)
	}

	f, err := os.OpenFile(fname, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("could not open mem file: %+v", err)
	}
	h, err := Map(f, span, span)
	f.Close()
	if err != nil {
		t.Fatalf("could not mmap file: %+v", err)
	}
	defer h.Close()

	if got, want := int64(h.Len()), span; got != want {
		t.Fatalf("invalid length: got=%d, want=%d", got, want)
	}

	want := []byte{1, 2, 3, 4}
	_, err = h.WriteAt(want, 8)
	if err != nil {
		t.Fatalf("could not write: %+v", err)
	}

	got := make([]byte, 4)
	_, err = h.ReadAt(got, 8)
	if err != nil {
		t.Fatalf("could not read: %+v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("invalid read-back: got=%v, want=%v", got, want)
	}

	_, err = h.ReadAt(got, span-2)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("invalid short read error: %+v", err)
	}
	_, err = h.WriteAt(want, span-2)
	if !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("invalid short write error: %+v", err)
	}
	_, err = h.ReadAt(got, span+1)
	if err == nil {
		t.Fatalf("expected an error for out-of-range offset")
	}

	err = h.Close()
	if err != nil {
		t.Fatalf("could not close handle: %+v", err)
	}

	raw, err := os.ReadFile(fname)
	if err != nil {
		t.Fatalf("could not read back mem file: %+v", err)
	}
	if got := raw[span+8 : span+12]; !bytes.Equal(got, want) {
		t.Fatalf("invalid file content: got=%v, want=%v", got, want)
	}
}

func TestMapInvalid(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "mem-")
	if err != nil {
		t.Fatalf("could not create mem file: %+v", err)
	}
	defer f.Close()

	for _, tc := range []struct {
		base, span int64
	}{
		{-1, 4096},
		{0, 0},
		{0, -1},
	} {
		_, err := Map(f, tc.base, tc.span)
		if err == nil {
			t.Fatalf("expected an error for [0x%x, +0x%x)", tc.base, tc.span)
		}
	}
}
