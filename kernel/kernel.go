// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kernel implements a mount-table Namespace that composes other
// Namespaces under distinct path prefixes, resolving each operation to the
// mount with the longest matching prefix, mirroring the way the teacher's
// bind package resolves a Dialer for an Endpoint's transport.
package kernel

import (
	"sort"
	"strings"
	"sync"

	"github.com/beescroll/nines/nine"
	"github.com/beescroll/nines/nine/log"
	"github.com/beescroll/nines/path"
)

// mount pairs a prefix with the Namespace mounted there.
type mount struct {
	prefix string
	ns     nine.Namespace
}

// Kernel is a Namespace that dispatches to mounted sub-Namespaces by
// longest-prefix match on the path, rewriting the path to be relative to
// the mount point before delegating and rewriting it back on the way out.
type Kernel struct {
	mu     sync.RWMutex
	mounts []mount
	closed bool
}

var _ nine.Namespace = (*Kernel)(nil)

// New returns an empty Kernel with nothing mounted. Reads, writes, and
// watches against an unmounted path fail with NotFound; a list under a
// prefix no mount covers returns an empty result.
func New() *Kernel {
	return &Kernel{}
}

// Mount binds ns at prefix. prefix must be a valid path; "/" is a legal
// mount point and acts as the catch-all default. Mounting the same prefix
// twice replaces the previous binding.
func (k *Kernel) Mount(prefix string, ns nine.Namespace) error {
	const op = "kernel.Mount"
	if err := path.Validate(prefix); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nine.E(op, nine.Closed)
	}
	for i, m := range k.mounts {
		if m.prefix == prefix {
			log.Info.Printf("kernel: replacing mount at %s", prefix)
			k.mounts[i].ns = ns
			return nil
		}
	}
	k.mounts = append(k.mounts, mount{prefix: prefix, ns: ns})
	sort.Slice(k.mounts, func(i, j int) bool {
		return len(k.mounts[i].prefix) > len(k.mounts[j].prefix)
	})
	log.Info.Printf("kernel: mounted %s", prefix)
	return nil
}

// Unmount removes the binding at prefix, if any. It does not close the
// unmounted Namespace.
func (k *Kernel) Unmount(prefix string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := k.mounts[:0]
	for _, m := range k.mounts {
		if m.prefix != prefix {
			out = append(out, m)
		}
	}
	k.mounts = out
	log.Info.Printf("kernel: unmounted %s", prefix)
}

// resolve finds the longest-prefix mount containing p and returns the
// matched sub-Namespace along with p rewritten relative to that mount.
func (k *Kernel) resolve(p string) (nine.Namespace, string, bool) {
	for _, m := range k.mounts {
		if path.IsUnder(m.prefix, p) {
			return m.ns, rewriteIn(m.prefix, p), true
		}
	}
	return nil, "", false
}

// rewriteIn strips prefix from p, yielding the key the mounted Namespace
// should see. Mounting at "/" is a no-op rewrite.
func rewriteIn(prefix, p string) string {
	if prefix == "/" {
		return p
	}
	rest := strings.TrimPrefix(p, prefix)
	if rest == "" {
		return "/"
	}
	return rest
}

// rewriteOut is the inverse of rewriteIn: it re-qualifies a key returned by
// a mounted Namespace (e.g. from List) with the mount's prefix.
func rewriteOut(prefix, p string) string {
	if prefix == "/" {
		return p
	}
	if p == "/" {
		return prefix
	}
	return prefix + p
}

func (k *Kernel) checkOpen(op string) error {
	if k.closed {
		return nine.E(op, nine.Closed)
	}
	return nil
}

// Read implements nine.Namespace.
func (k *Kernel) Read(p string) (*nine.Scroll, error) {
	const op = "kernel.Read"
	if err := path.Validate(p); err != nil {
		return nil, err
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if err := k.checkOpen(op); err != nil {
		return nil, err
	}
	ns, rel, ok := k.resolve(p)
	if !ok {
		return nil, nine.E(op, nine.NotFound, nine.Path(p))
	}
	s, err := ns.Read(rel)
	if err != nil || s == nil {
		return s, err
	}
	s.Key = p
	return s, nil
}

// Write implements nine.Namespace.
func (k *Kernel) Write(p string, data map[string]any) (*nine.Scroll, error) {
	const op = "kernel.Write"
	if err := path.Validate(p); err != nil {
		return nil, err
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if err := k.checkOpen(op); err != nil {
		return nil, err
	}
	ns, rel, ok := k.resolve(p)
	if !ok {
		return nil, nine.E(op, nine.NotFound, nine.Path(p))
	}
	s, err := ns.Write(rel, data)
	if err != nil {
		return nil, err
	}
	s.Key = p
	return s, nil
}

// WriteScroll implements nine.Namespace.
func (k *Kernel) WriteScroll(in *nine.Scroll) (*nine.Scroll, error) {
	const op = "kernel.Write"
	if err := path.Validate(in.Key); err != nil {
		return nil, err
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if err := k.checkOpen(op); err != nil {
		return nil, err
	}
	ns, rel, ok := k.resolve(in.Key)
	if !ok {
		return nil, nine.E(op, nine.NotFound, nine.Path(in.Key))
	}
	rewritten := in.Clone()
	rewritten.Key = rel
	s, err := ns.WriteScroll(rewritten)
	if err != nil {
		return nil, err
	}
	s.Key = in.Key
	return s, nil
}

// List implements nine.Namespace. It queries every mount whose prefix lies
// under prefix or that prefix lies under, merging and re-qualifying the
// results.
func (k *Kernel) List(prefix string) ([]string, error) {
	const op = "kernel.List"
	if err := path.Validate(prefix); err != nil {
		return nil, err
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if err := k.checkOpen(op); err != nil {
		return nil, err
	}
	var out []string
	for _, m := range k.mounts {
		switch {
		case path.IsUnder(prefix, m.prefix):
			keys, err := m.ns.List("/")
			if err != nil {
				return nil, err
			}
			for _, key := range keys {
				out = append(out, rewriteOut(m.prefix, key))
			}
		case path.IsUnder(m.prefix, prefix):
			keys, err := m.ns.List(rewriteIn(m.prefix, prefix))
			if err != nil {
				return nil, err
			}
			for _, key := range keys {
				out = append(out, rewriteOut(m.prefix, key))
			}
		}
	}
	return out, nil
}

// Watch implements nine.Namespace. The pattern's fixed (non-wildcard)
// prefix determines which single mount (the longest-prefix match) the
// watch is routed to; a pattern whose fixed prefix no mount covers returns
// NotFound.
func (k *Kernel) Watch(pattern string) (*nine.Subscription, error) {
	const op = "kernel.Watch"
	if err := path.ValidatePattern(pattern); err != nil {
		return nil, err
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if err := k.checkOpen(op); err != nil {
		return nil, err
	}
	base := fixedPrefix(pattern)
	ns, rel, ok := k.resolve(base)
	if !ok {
		return nil, nine.E(op, nine.NotFound, nine.Path(pattern))
	}
	suffix := strings.TrimPrefix(pattern, base)
	innerPattern := rel + suffix
	if rel == "/" && suffix != "" {
		innerPattern = "/" + strings.TrimPrefix(suffix, "/")
	}
	inner, err := ns.Watch(innerPattern)
	if err != nil {
		return nil, err
	}

	// Find the mount prefix that the subscription's keys need re-qualifying
	// with; resolved above as the mount owning base.
	mountPrefix := mountPrefixFor(k.mounts, base)
	out := nine.NewSubscription(pattern, 64)
	go func() {
		for s := range inner.Events() {
			s.Key = rewriteOut(mountPrefix, s.Key)
			if !nine.Deliver(out, s) {
				return
			}
		}
		out.Close()
	}()
	return out, nil
}

// fixedPrefix returns the non-wildcard portion of a watch pattern: the
// pattern itself if it has no wildcard segment, else the path up to (not
// including) the trailing "/*" or "/**".
func fixedPrefix(pattern string) string {
	if strings.HasSuffix(pattern, "/**") {
		base := strings.TrimSuffix(pattern, "/**")
		if base == "" {
			return "/"
		}
		return base
	}
	if strings.HasSuffix(pattern, "/*") {
		base := strings.TrimSuffix(pattern, "/*")
		if base == "" {
			return "/"
		}
		return base
	}
	return pattern
}

func mountPrefixFor(mounts []mount, p string) string {
	for _, m := range mounts {
		if path.IsUnder(m.prefix, p) {
			return m.prefix
		}
	}
	return "/"
}

// Close implements nine.Namespace. It closes every mounted Namespace in
// mount-table order (longest prefix first) and marks the Kernel closed; it
// is idempotent.
func (k *Kernel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	var first error
	for _, m := range k.mounts {
		if err := m.ns.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
