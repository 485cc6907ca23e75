// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memory implements an in-RAM Namespace: the baseline semantics
// every other backend must also satisfy, grounded on the teacher's own
// single-process, mutex-protected test store.
package memory

import (
	"sync"

	"github.com/beescroll/nines/nine"
	"github.com/beescroll/nines/path"
)

// DefaultMaxWatchers is the default per-namespace watcher cap.
const DefaultMaxWatchers = 1024

// Namespace is an in-memory Namespace implementation.
type Namespace struct {
	clock nine.Clock

	mu         sync.Mutex
	data       map[string]*nine.Scroll
	watchers   []*nine.Subscription
	maxWatcher int
	closed     bool
}

var _ nine.Namespace = (*Namespace)(nil)

// Option configures a new Namespace.
type Option func(*Namespace)

// WithClock overrides the clock used to stamp Scrolls. Defaults to
// nine.SystemClock{}.
func WithClock(c nine.Clock) Option {
	return func(n *Namespace) { n.clock = c }
}

// WithMaxWatchers overrides the watcher cap. Defaults to
// DefaultMaxWatchers.
func WithMaxWatchers(max int) Option {
	return func(n *Namespace) { n.maxWatcher = max }
}

// New returns an empty, open Namespace.
func New(opts ...Option) *Namespace {
	n := &Namespace{
		clock:      nine.SystemClock{},
		data:       make(map[string]*nine.Scroll),
		maxWatcher: DefaultMaxWatchers,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *Namespace) checkOpen(op string) error {
	if n.closed {
		return nine.E(op, nine.Closed)
	}
	return nil
}

// Read implements nine.Namespace.
func (n *Namespace) Read(p string) (*nine.Scroll, error) {
	const op = "memory.Read"
	if err := path.Validate(p); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkOpen(op); err != nil {
		return nil, err
	}
	s, ok := n.data[p]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

// Write implements nine.Namespace.
func (n *Namespace) Write(p string, data map[string]any) (*nine.Scroll, error) {
	return n.writeScroll(p, &nine.Scroll{Key: p, Data: data}, false)
}

// WriteScroll implements nine.Namespace.
func (n *Namespace) WriteScroll(s *nine.Scroll) (*nine.Scroll, error) {
	return n.writeScroll(s.Key, s, true)
}

func (n *Namespace) writeScroll(p string, in *nine.Scroll, preserveType bool) (*nine.Scroll, error) {
	const op = "memory.Write"
	if err := path.Validate(p); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkOpen(op); err != nil {
		return nil, err
	}

	now := n.clock.NowMilli()
	prior := n.data[p]

	out := &nine.Scroll{
		Key:  p,
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
		if md.CreatedAt == nil {
			t := now
			md.CreatedAt = &t
		}
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

	n.data[p] = out
	n.fanOut(out)
	return out.Clone(), nil
}

// List implements nine.Namespace.
func (n *Namespace) List(prefix string) ([]string, error) {
	const op = "memory.List"
	if err := path.Validate(prefix); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkOpen(op); err != nil {
		return nil, err
	}
	var out []string
	for k := range n.data {
		if path.IsUnder(prefix, k) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Watch implements nine.Namespace.
func (n *Namespace) Watch(pattern string) (*nine.Subscription, error) {
	const op = "memory.Watch"
	if err := path.ValidatePattern(pattern); err != nil {
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

// fanOut delivers scroll to every matching, live watcher, sweeping dead
// ones first. Callers must hold n.mu.
func (n *Namespace) fanOut(scroll *nine.Scroll) {
	n.sweepLocked()
	for _, w := range n.watchers {
		if path.Matches(w.Pattern(), scroll.Key) {
			nine.Deliver(w, scroll.Clone())
		}
	}
}

// sweepLocked removes closed subscriptions from the watcher list. Callers
// must hold n.mu.
func (n *Namespace) sweepLocked() {
	live := n.watchers[:0]
	for _, w := range n.watchers {
		if w.Alive() {
			live = append(live, w)
		}
	}
	n.watchers = live
}
