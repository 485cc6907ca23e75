// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package anchor implements content-addressed, tamper-evident Anchors over
// a Scroll's hash, grounded on the teacher's short hash-prefix identifier
// convention.
package anchor

import (
	"encoding/hex"
	"fmt"

	"github.com/beescroll/nines/nine"
)

// Anchor is an immutable, value-typed witness to a Scroll's content at a
// point in time. Only Label and Description can be changed, and only by
// deriving a new Anchor with WithLabel or WithDescription.
type Anchor struct {
	ID          string       `json:"id"`
	Scroll      *nine.Scroll `json:"scroll"`
	Hash        string       `json:"hash"`
	Timestamp   int64        `json:"timestamp"`
	Label       *string      `json:"label,omitempty"`
	Description *string      `json:"description,omitempty"`
}

// Create computes an Anchor witnessing scroll's current hash. label is
// optional; pass nil for none.
func Create(clock nine.Clock, rng nine.RNG, scroll *nine.Scroll, label *string) (*Anchor, error) {
	const op = "anchor.Create"
	if scroll == nil {
		return nil, nine.E(op, nine.InvalidData, nine.Err("scroll must not be nil"))
	}
	hash, err := nine.Hash(scroll.Key, scroll.Type, scroll.Data)
	if err != nil {
		return nil, nine.E(op, nine.Internal, err)
	}
	ts := clock.NowMilli()
	id := makeID(hash, ts, rng)
	return &Anchor{
		ID:        id,
		Scroll:    scroll.Clone(),
		Hash:      hash,
		Timestamp: ts,
		Label:     label,
	}, nil
}

// makeID builds hash[0:8]-timestamp-rand16hex.
func makeID(hash string, timestamp int64, rng nine.RNG) string {
	prefix := hash
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s-%d-%s", prefix, timestamp, hex.EncodeToString(rng.Bytes(8)))
}

// Verify recomputes a.Scroll's hash and checks it equals a.Hash, detecting
// any mutation of the witnessed Scroll after Create.
func Verify(a *Anchor) (bool, error) {
	const op = "anchor.Verify"
	if a == nil || a.Scroll == nil {
		return false, nine.E(op, nine.InvalidData, nine.Err("anchor has no scroll"))
	}
	hash, err := nine.Hash(a.Scroll.Key, a.Scroll.Type, a.Scroll.Data)
	if err != nil {
		return false, nine.E(op, nine.Internal, err)
	}
	return hash == a.Hash, nil
}

// Equivalent reports whether a and b witness content with the same hash.
func Equivalent(a, b *Anchor) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Hash == b.Hash
}

// WithLabel returns a new Anchor identical to a but with Label set,
// preserving immutability: a is never modified.
func WithLabel(a *Anchor, label string) *Anchor {
	out := *a
	out.Label = &label
	return &out
}

// WithDescription returns a new Anchor identical to a but with Description
// set.
func WithDescription(a *Anchor, description string) *Anchor {
	out := *a
	out.Description = &description
	return &out
}
