// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nstest provides the universal Namespace conformance suite every
// variant (Memory, File, Kernel, Store) must pass, grounded on the
// teacher's own packtest package: a shared TestXxx(t, ...) helper invoked
// from each variant's own _test.go rather than duplicating the same
// property checks per backend.
package nstest

import (
	"testing"
	"time"

	"github.com/beescroll/nines/nine"
)

// Run exercises every universal Namespace law from the spec's testable
// properties section against a freshly constructed Namespace. newNS must
// return an open, empty Namespace each time it is called; Run closes each
// one it creates.
func Run(t *testing.T, newNS func() nine.Namespace) {
	t.Helper()
	t.Run("ReadAfterWrite", func(t *testing.T) { testReadAfterWrite(t, newNS) })
	t.Run("MonotoneVersion", func(t *testing.T) { testMonotoneVersion(t, newNS) })
	t.Run("CreatedAtStability", func(t *testing.T) { testCreatedAtStability(t, newNS) })
	t.Run("HashDefinition", func(t *testing.T) { testHashDefinition(t, newNS) })
	t.Run("AbsentIsNotError", func(t *testing.T) { testAbsentIsNotError(t, newNS) })
	t.Run("ListUnderPrefix", func(t *testing.T) { testListUnderPrefix(t, newNS) })
	t.Run("SegmentBoundarySafety", func(t *testing.T) { testSegmentBoundarySafety(t, newNS) })
	t.Run("WatchDelivery", func(t *testing.T) { testWatchDelivery(t, newNS) })
	t.Run("WatchPatternSemantics", func(t *testing.T) { testWatchPatternSemantics(t, newNS) })
	t.Run("ClosedTerminal", func(t *testing.T) { testClosedTerminal(t, newNS) })
	t.Run("PathValidation", func(t *testing.T) { testPathValidation(t, newNS) })
}

func testReadAfterWrite(t *testing.T, newNS func() nine.Namespace) {
	ns := newNS()
	defer ns.Close()
	data := map[string]any{"confirmed": 100000}
	written, err := ns.Write("/wallet/balance", data)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ns.Read("/wallet/balance")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("read returned absent after write")
	}
	if !nine.Equal(got.Data, data) {
		t.Fatalf("data = %+v, want %+v", got.Data, data)
	}
	if got.Metadata.Version != written.Metadata.Version {
		t.Fatalf("version = %d, want %d", got.Metadata.Version, written.Metadata.Version)
	}
}

func testMonotoneVersion(t *testing.T, newNS func() nine.Namespace) {
	ns := newNS()
	defer ns.Close()
	var last int64
	for i := 0; i < 5; i++ {
		s, err := ns.Write("/k", map[string]any{"i": i})
		if err != nil {
			t.Fatal(err)
		}
		if s.Metadata.Version != last+1 {
			t.Fatalf("write %d: version = %d, want %d", i, s.Metadata.Version, last+1)
		}
		last = s.Metadata.Version
	}
}

func testCreatedAtStability(t *testing.T, newNS func() nine.Namespace) {
	ns := newNS()
	defer ns.Close()
	first, err := ns.Write("/k", map[string]any{"v": 1})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := ns.Write("/k", map[string]any{"v": 2})
	if err != nil {
		t.Fatal(err)
	}
	if first.Metadata.CreatedAt == nil || second.Metadata.CreatedAt == nil {
		t.Fatal("createdAt unset")
	}
	if *first.Metadata.CreatedAt != *second.Metadata.CreatedAt {
		t.Fatalf("createdAt changed: %d -> %d", *first.Metadata.CreatedAt, *second.Metadata.CreatedAt)
	}
	read, err := ns.Read("/k")
	if err != nil {
		t.Fatal(err)
	}
	if *read.Metadata.CreatedAt != *first.Metadata.CreatedAt {
		t.Fatalf("read createdAt = %d, want %d", *read.Metadata.CreatedAt, *first.Metadata.CreatedAt)
	}
}

func testHashDefinition(t *testing.T, newNS func() nine.Namespace) {
	ns := newNS()
	defer ns.Close()
	s, err := ns.Write("/k", map[string]any{"v": 1})
	if err != nil {
		t.Fatal(err)
	}
	want, err := nine.Hash(s.Key, s.Type, s.Data)
	if err != nil {
		t.Fatal(err)
	}
	if s.Metadata.Hash != want {
		t.Fatalf("hash = %q, want %q", s.Metadata.Hash, want)
	}
}

func testAbsentIsNotError(t *testing.T, newNS func() nine.Namespace) {
	ns := newNS()
	defer ns.Close()
	s, err := ns.Read("/never/written")
	if err != nil {
		t.Fatalf("absent read returned error: %v", err)
	}
	if s != nil {
		t.Fatalf("expected absent, got %+v", s)
	}
}

func testListUnderPrefix(t *testing.T, newNS func() nine.Namespace) {
	ns := newNS()
	defer ns.Close()
	for _, p := range []string{"/a", "/a/b", "/a/b/c", "/z"} {
		if _, err := ns.Write(p, map[string]any{}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := ns.List("/a")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"/a": true, "/a/b": true, "/a/b/c": true}
	if len(got) != len(want) {
		t.Fatalf("list = %v, want keys %v", got, want)
	}
	for _, k := range got {
		if !want[k] {
			t.Fatalf("unexpected key %q in list", k)
		}
	}
}

func testSegmentBoundarySafety(t *testing.T, newNS func() nine.Namespace) {
	ns := newNS()
	defer ns.Close()
	if _, err := ns.Write("/foo", map[string]any{}); err != nil {
		t.Fatal(err)
	}
	if _, err := ns.Write("/foobar", map[string]any{}); err != nil {
		t.Fatal(err)
	}
	got, err := ns.List("/foo")
	if err != nil {
		t.Fatal(err)
	}
	var sawFoo, sawFoobar bool
	for _, k := range got {
		switch k {
		case "/foo":
			sawFoo = true
		case "/foobar":
			sawFoobar = true
		}
	}
	if !sawFoo {
		t.Fatal("list(/foo) missing /foo")
	}
	if sawFoobar {
		t.Fatal("list(/foo) incorrectly captured /foobar")
	}
}

func testWatchDelivery(t *testing.T, newNS func() nine.Namespace) {
	ns := newNS()
	defer ns.Close()
	sub, err := ns.Watch("/a/*")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ns.Write("/a/x", map[string]any{"v": 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := ns.Write("/b/x", map[string]any{"v": 1}); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-sub.Events():
		if s.Key != "/a/x" {
			t.Fatalf("got event for %q, want /a/x", s.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for matching write's event")
	}
	select {
	case s := <-sub.Events():
		t.Fatalf("unexpected extra event for non-matching write: %+v", s)
	case <-time.After(20 * time.Millisecond):
	}
}

func testWatchPatternSemantics(t *testing.T, newNS func() nine.Namespace) {
	ns := newNS()
	defer ns.Close()

	single, err := ns.Watch("/a/*")
	if err != nil {
		t.Fatal(err)
	}
	recursive, err := ns.Watch("/a/**")
	if err != nil {
		t.Fatal(err)
	}
	exact, err := ns.Watch("/a/x")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ns.Write("/a/x", map[string]any{}); err != nil {
		t.Fatal(err)
	}
	if _, err := ns.Write("/a/x/y", map[string]any{}); err != nil {
		t.Fatal(err)
	}

	expectEvent(t, single, "/a/x")
	expectNoEvent(t, single)

	expectEvent(t, recursive, "/a/x")
	expectEvent(t, recursive, "/a/x/y")

	expectEvent(t, exact, "/a/x")
	expectNoEvent(t, exact)
}

func expectEvent(t *testing.T, sub *nine.Subscription, wantKey string) {
	t.Helper()
	select {
	case s := <-sub.Events():
		if s.Key != wantKey {
			t.Fatalf("got event for %q, want %q", s.Key, wantKey)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event %q", wantKey)
	}
}

func expectNoEvent(t *testing.T, sub *nine.Subscription) {
	t.Helper()
	select {
	case s := <-sub.Events():
		t.Fatalf("unexpected event: %+v", s)
	case <-time.After(20 * time.Millisecond):
	}
}

func testClosedTerminal(t *testing.T, newNS func() nine.Namespace) {
	ns := newNS()
	if err := ns.Close(); err != nil {
		t.Fatal(err)
	}
	if err := ns.Close(); err != nil {
		t.Fatalf("second close should be idempotent, got %v", err)
	}
	if _, err := ns.Read("/x"); !nine.Is(err, nine.Closed) {
		t.Fatalf("read after close: err = %v, want Closed", err)
	}
	if _, err := ns.Write("/x", map[string]any{}); !nine.Is(err, nine.Closed) {
		t.Fatalf("write after close: err = %v, want Closed", err)
	}
	if _, err := ns.List("/"); !nine.Is(err, nine.Closed) {
		t.Fatalf("list after close: err = %v, want Closed", err)
	}
	if _, err := ns.Watch("/x"); !nine.Is(err, nine.Closed) {
		t.Fatalf("watch after close: err = %v, want Closed", err)
	}
}

func testPathValidation(t *testing.T, newNS func() nine.Namespace) {
	ns := newNS()
	defer ns.Close()
	bad := []string{"", "foo", "/..", "/foo/..", "/foo/./bar", "/foo bar", "/foo$"}
	for _, p := range bad {
		if _, err := ns.Read(p); !nine.Is(err, nine.InvalidPath) {
			t.Errorf("read(%q): err = %v, want InvalidPath", p, err)
		}
		if _, err := ns.Write(p, map[string]any{}); !nine.Is(err, nine.InvalidPath) {
			t.Errorf("write(%q): err = %v, want InvalidPath", p, err)
		}
	}
}
