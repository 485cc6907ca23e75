// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package file implements a Namespace backed by one JSON file per Scroll
// under a root directory, mirroring the teacher's discipline of never
// leaving a half-written file visible: every write lands via a temp file
// plus rename within the same directory.
package file

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/beescroll/nines/nine"
	npath "github.com/beescroll/nines/path"
)

// scrollsDir is the subdirectory of root that holds one JSON file per
// Scroll.
const scrollsDir = "_scrolls"

// Namespace is a Namespace backed by the local filesystem.
type Namespace struct {
	root  string
	clock nine.Clock

	mu         sync.Mutex
	watchers   []*nine.Subscription
	maxWatcher int
	closed     bool
}

var _ nine.Namespace = (*Namespace)(nil)

// Option configures a new Namespace.
type Option func(*Namespace)

// WithClock overrides the clock used to stamp Scrolls.
func WithClock(c nine.Clock) Option {
	return func(n *Namespace) { n.clock = c }
}

// WithMaxWatchers overrides the watcher cap.
func WithMaxWatchers(max int) Option {
	return func(n *Namespace) { n.maxWatcher = max }
}

// New returns a Namespace rooted at dir. The directory is created if
// necessary.
func New(dir string, opts ...Option) (*Namespace, error) {
	const op = "file.New"
	if err := os.MkdirAll(filepath.Join(dir, scrollsDir), 0o755); err != nil {
		return nil, nine.E(op, nine.Internal, err)
	}
	n := &Namespace{
		root:       dir,
		clock:      nine.SystemClock{},
		maxWatcher: 1024,
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// diskPath maps an Upspin-style key such as /a/b/c to
// <root>/_scrolls/a/b/c.json, rewriting the separator to the host's.
func (n *Namespace) diskPath(key string) string {
	segs := npath.Split(key)
	elems := append([]string{n.root, scrollsDir}, segs...)
	p := filepath.Join(elems...)
	return p + ".json"
}

// keyFromDiskPath is the inverse of diskPath, reconstructing a key from a
// file found while walking the _scrolls subtree.
func (n *Namespace) keyFromDiskPath(p string) (string, bool) {
	rel, err := filepath.Rel(filepath.Join(n.root, scrollsDir), p)
	if err != nil {
		return "", false
	}
	if !strings.HasSuffix(rel, ".json") {
		return "", false
	}
	rel = strings.TrimSuffix(rel, ".json")
	segs := strings.Split(filepath.ToSlash(rel), "/")
	return npath.Join(segs...), true
}

func (n *Namespace) checkOpen(op string) error {
	if n.closed {
		return nine.E(op, nine.Closed)
	}
	return nil
}

// Read implements nine.Namespace.
func (n *Namespace) Read(key string) (*nine.Scroll, error) {
	const op = "file.Read"
	if err := npath.Validate(key); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkOpen(op); err != nil {
		return nil, err
	}
	return n.readLocked(op, key)
}

func (n *Namespace) readLocked(op, key string) (*nine.Scroll, error) {
	raw, err := os.ReadFile(n.diskPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, nine.E(op, nine.Internal, err)
	}
	var s nine.Scroll
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, nine.E(op, nine.Internal, err)
	}
	return &s, nil
}

// Write implements nine.Namespace.
func (n *Namespace) Write(key string, data map[string]any) (*nine.Scroll, error) {
	return n.writeScroll(key, &nine.Scroll{Key: key, Data: data}, false)
}

// WriteScroll implements nine.Namespace.
func (n *Namespace) WriteScroll(s *nine.Scroll) (*nine.Scroll, error) {
	return n.writeScroll(s.Key, s, true)
}

func (n *Namespace) writeScroll(key string, in *nine.Scroll, preserveType bool) (*nine.Scroll, error) {
	const op = "file.Write"
	if err := npath.Validate(key); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkOpen(op); err != nil {
		return nil, err
	}

	prior, err := n.readLocked(op, key)
	if err != nil {
		return nil, err
	}

	now := n.clock.NowMilli()
	out := &nine.Scroll{
		Key:  key,
		Data: nine.CloneValue(in.Data).(map[string]any),
	}
	if preserveType {
		out.Type = in.Type
	}
	md := nine.Metadata{}
	if preserveType {
		md = in.Metadata.Clone()
	}
	if prior != nil {
		md.Version = prior.Metadata.Version + 1
		md.CreatedAt = prior.Metadata.CreatedAt
	} else {
		md.Version = 1
	}
	if md.CreatedAt == nil {
		t := now
		md.CreatedAt = &t
	}
	u := now
	md.UpdatedAt = &u
	out.Metadata = md

	hash, err := nine.Hash(out.Key, out.Type, out.Data)
	if err != nil {
		return nil, nine.E(op, nine.Internal, err)
	}
	out.Metadata.Hash = hash

	if err := n.persist(out); err != nil {
		return nil, nine.E(op, nine.Internal, err)
	}
	n.fanOut(out)
	return out.Clone(), nil
}

// persist atomically replaces the on-disk file for scroll.
func (n *Namespace) persist(s *nine.Scroll) error {
	dst := n.diskPath(s.Key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// List implements nine.Namespace.
func (n *Namespace) List(prefix string) ([]string, error) {
	const op = "file.List"
	if err := npath.Validate(prefix); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkOpen(op); err != nil {
		return nil, err
	}
	root := filepath.Join(n.root, scrollsDir)
	var out []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		key, ok := n.keyFromDiskPath(p)
		if !ok {
			return nil
		}
		if npath.IsUnder(prefix, key) {
			out = append(out, key)
		}
		return nil
	})
	if err != nil {
		return nil, nine.E(op, nine.Internal, err)
	}
	return out, nil
}

// Watch implements nine.Namespace.
func (n *Namespace) Watch(pattern string) (*nine.Subscription, error) {
	const op = "file.Watch"
	if err := npath.ValidatePattern(pattern); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkOpen(op); err != nil {
		return nil, err
	}
	n.sweepLocked()
	if len(n.watchers) >= n.maxWatcher {
		return nil, nine.E(op, nine.Unavailable, nine.Err("watcher cap exceeded"))
	}
	sub := nine.NewSubscription(pattern, 64)
	n.watchers = append(n.watchers, sub)
	return sub, nil
}

// Close implements nine.Namespace.
func (n *Namespace) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	for _, w := range n.watchers {
		w.Close()
	}
	n.watchers = nil
	return nil
}

func (n *Namespace) fanOut(scroll *nine.Scroll) {
	n.sweepLocked()
	for _, w := range n.watchers {
		if npath.Matches(w.Pattern(), scroll.Key) {
			nine.Deliver(w, scroll.Clone())
		}
	}
}

func (n *Namespace) sweepLocked() {
	live := n.watchers[:0]
	for _, w := range n.watchers {
		if w.Alive() {
			live = append(live, w)
		}
	}
	n.watchers = live
}
