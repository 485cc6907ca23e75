// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/beescroll/nines/anchor"
	"github.com/beescroll/nines/nine"
	"github.com/beescroll/nines/patch"
)

// PatchRecord is the append-only history entry produced by each
// successful write, per spec.md's Patch shape.
type PatchRecord struct {
	Key       string     `json:"key"`
	Ops       []patch.Op `json:"ops"`
	Parent    string     `json:"parent,omitempty"`
	Hash      string     `json:"hash"`
	Timestamp int64      `json:"timestamp"`
	Seq       int        `json:"seq"`
}

// historyEngine is the storage-agnostic interface the Store drives; it has
// two implementations, in-memory and durable (append-only log files),
// selected by whether Config.HistoryDir is set.
type historyEngine interface {
	appendPatch(key string, ops []patch.Op, prior, current *nine.Scroll) error
	appendAnchor(key string, a *anchor.Anchor) error
	findAnchor(key, id string) (*anchor.Anchor, error)
	stateAt(key string, seq int) (*nine.Scroll, error)
	prune(key string, keepPatches, keepAnchors int) error
	pruneAll(keepPatches, keepAnchors int) error
	listPatches(key string) ([]PatchRecord, error)
	listAnchors(key string) ([]*anchor.Anchor, error)
}

// --- in-memory engine ---

type memoryHistory struct {
	maxPatches int
	maxAnchors int
	patches    map[string][]PatchRecord
	anchors    map[string][]*anchor.Anchor
}

func newMemoryHistory(maxPatches, maxAnchors int) *memoryHistory {
	return &memoryHistory{
		maxPatches: maxPatches,
		maxAnchors: maxAnchors,
		patches:    make(map[string][]PatchRecord),
		anchors:    make(map[string][]*anchor.Anchor),
	}
}

func (h *memoryHistory) appendPatch(key string, ops []patch.Op, prior, current *nine.Scroll) error {
	parent := ""
	if prior != nil {
		parent = prior.Metadata.Hash
	}
	rec := PatchRecord{
		Key:       key,
		Ops:       ops,
		Parent:    parent,
		Hash:      current.Metadata.Hash,
		Timestamp: current.Metadata.UpdatedAtOrZero(),
		Seq:       lastSeq(h.patches[key]) + 1,
	}
	list := append(h.patches[key], rec)
	trimmed, err := rebaseWindow(list, h.maxPatches)
	if err != nil {
		return err
	}
	h.patches[key] = trimmed
	return nil
}

func (h *memoryHistory) appendAnchor(key string, a *anchor.Anchor) error {
	list := append(h.anchors[key], a)
	if len(list) > h.maxAnchors {
		list = list[len(list)-h.maxAnchors:]
	}
	h.anchors[key] = list
	return nil
}

func (h *memoryHistory) findAnchor(key, id string) (*anchor.Anchor, error) {
	for _, a := range h.anchors[key] {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nine.E("store.findAnchor", nine.NotFound, nine.Path(key))
}

func (h *memoryHistory) stateAt(key string, seq int) (*nine.Scroll, error) {
	return replay(h.patches[key], key, seq)
}

func (h *memoryHistory) prune(key string, keepPatches, keepAnchors int) error {
	if p, ok := h.patches[key]; ok && keepPatches >= 0 && len(p) > keepPatches {
		trimmed, err := rebaseWindow(p, keepPatches)
		if err != nil {
			return err
		}
		h.patches[key] = trimmed
	}
	if a, ok := h.anchors[key]; ok && keepAnchors >= 0 && len(a) > keepAnchors {
		h.anchors[key] = a[len(a)-keepAnchors:]
	}
	return nil
}

func (h *memoryHistory) pruneAll(keepPatches, keepAnchors int) error {
	for k := range h.patches {
		if err := h.prune(k, keepPatches, keepAnchors); err != nil {
			return err
		}
	}
	return nil
}

func (h *memoryHistory) listPatches(key string) ([]PatchRecord, error) {
	return append([]PatchRecord{}, h.patches[key]...), nil
}

func (h *memoryHistory) listAnchors(key string) ([]*anchor.Anchor, error) {
	return append([]*anchor.Anchor{}, h.anchors[key]...), nil
}

// lastSeq returns the Seq of the most recently retained patch, or 0 if
// records is empty, so a fresh append always continues the monotone
// per-key counter even after the ring buffer has dropped earlier entries.
func lastSeq(records []PatchRecord) int {
	if len(records) == 0 {
		return 0
	}
	return records[len(records)-1].Seq
}

// rebaseWindow trims records to its last keep entries, same as a plain
// slice, but first rewrites the new oldest retained entry's Ops into a
// single root Replace carrying the full document snapshot as of that
// patch. Without this, dropping the genesis Replace("") (or any earlier
// snapshot) would leave the retained window's incremental diffs
// unappliable against an empty document. records itself is assumed to
// already be self-contained from its own index 0 (true by induction, since
// every prior call to rebaseWindow establishes that invariant), so
// replaying records[0:drop+1] from scratch reconstructs the correct
// snapshot regardless of how many earlier prunes have already happened.
func rebaseWindow(records []PatchRecord, keep int) ([]PatchRecord, error) {
	if keep < 0 || len(records) <= keep {
		return records, nil
	}
	drop := len(records) - keep
	data := map[string]any{}
	for i := 0; i <= drop && i < len(records); i++ {
		out, err := patch.Apply(data, records[i].Ops)
		if err != nil {
			return nil, err
		}
		data = out
	}
	kept := append([]PatchRecord{}, records[drop:]...)
	if len(kept) > 0 {
		kept[0].Ops = []patch.Op{{Op: patch.Replace, Path: "", Value: data}}
		kept[0].Parent = ""
	}
	return kept, nil
}

// replay applies, in order to an empty document, every retained patch whose
// Seq is at most seq, per spec.md's stateAt semantics. seq must lie between
// the oldest and newest retained Seq.
func replay(records []PatchRecord, key string, seq int) (*nine.Scroll, error) {
	const op = "store.StateAt"
	if len(records) == 0 {
		return nil, nine.E(op, nine.NotFound, nine.Path(key))
	}
	if seq < records[0].Seq || seq > lastSeq(records) {
		return nil, nine.E(op, nine.Internal, nine.Err("seq out of range"))
	}
	data := map[string]any{}
	var last PatchRecord
	for _, rec := range records {
		if rec.Seq > seq {
			break
		}
		out, err := patch.Apply(data, rec.Ops)
		if err != nil {
			return nil, nine.E(op, nine.Internal, err)
		}
		data = out
		last = rec
	}
	version := int64(last.Seq)
	return &nine.Scroll{
		Key:  key,
		Data: data,
		Metadata: nine.Metadata{
			Version: version,
			Hash:    last.Hash,
		},
	}, nil
}

// --- durable engine ---

// durableHistory persists patches and anchors as newline-delimited JSON
// logs under <dir>/<key>/{patches,anchors}.log, grounded on the teacher's
// append-only per-key log layout. seq is carried forward from the last
// retained patch record rather than derived from log length, so it stays
// monotone across both restarts and ring-buffer pruning.
type durableHistory struct {
	dir        string
	maxPatches int
	maxAnchors int
}

func newDurableHistory(dir string, maxPatches, maxAnchors int) (*durableHistory, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &durableHistory{dir: dir, maxPatches: maxPatches, maxAnchors: maxAnchors}, nil
}

func (h *durableHistory) keyDir(key string) string {
	return filepath.Join(h.dir, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}

func (h *durableHistory) patchLogPath(key string) string {
	return filepath.Join(h.keyDir(key), "patches.log")
}

func (h *durableHistory) anchorLogPath(key string) string {
	return filepath.Join(h.keyDir(key), "anchors.log")
}

func (h *durableHistory) readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := append([]byte{}, scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func (h *durableHistory) appendLine(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(raw, '\n')); err != nil {
		return err
	}
	return nil
}

func (h *durableHistory) rewriteLines(path string, lines [][]byte) error {
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := f.Write(append(line, '\n')); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// writePatches atomically rewrites key's entire patch log as records.
func (h *durableHistory) writePatches(key string, records []PatchRecord) error {
	lines := make([][]byte, 0, len(records))
	for _, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		lines = append(lines, raw)
	}
	return h.rewriteLines(h.patchLogPath(key), lines)
}

func (h *durableHistory) appendPatch(key string, ops []patch.Op, prior, current *nine.Scroll) error {
	records, err := h.loadPatches(key)
	if err != nil {
		return err
	}
	parent := ""
	if prior != nil {
		parent = prior.Metadata.Hash
	}
	rec := PatchRecord{
		Key:       key,
		Ops:       ops,
		Parent:    parent,
		Hash:      current.Metadata.Hash,
		Timestamp: current.Metadata.UpdatedAtOrZero(),
		Seq:       lastSeq(records) + 1,
	}
	records = append(records, rec)
	trimmed, err := rebaseWindow(records, h.maxPatches)
	if err != nil {
		return err
	}
	return h.writePatches(key, trimmed)
}

func (h *durableHistory) appendAnchor(key string, a *anchor.Anchor) error {
	if err := h.appendLine(h.anchorLogPath(key), a); err != nil {
		return err
	}
	return h.prune(key, -1, h.maxAnchors)
}

func (h *durableHistory) findAnchor(key, id string) (*anchor.Anchor, error) {
	lines, err := h.readLines(h.anchorLogPath(key))
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		var a anchor.Anchor
		if err := json.Unmarshal(line, &a); err != nil {
			return nil, err
		}
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, nine.E("store.findAnchor", nine.NotFound, nine.Path(key))
}

func (h *durableHistory) loadPatches(key string) ([]PatchRecord, error) {
	lines, err := h.readLines(h.patchLogPath(key))
	if err != nil {
		return nil, err
	}
	out := make([]PatchRecord, 0, len(lines))
	for _, line := range lines {
		var rec PatchRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (h *durableHistory) stateAt(key string, seq int) (*nine.Scroll, error) {
	records, err := h.loadPatches(key)
	if err != nil {
		return nil, nine.E("store.StateAt", nine.Internal, err)
	}
	return replay(records, key, seq)
}

func (h *durableHistory) prune(key string, keepPatches, keepAnchors int) error {
	if keepPatches >= 0 {
		records, err := h.loadPatches(key)
		if err != nil {
			return err
		}
		if len(records) > keepPatches {
			trimmed, err := rebaseWindow(records, keepPatches)
			if err != nil {
				return err
			}
			if err := h.writePatches(key, trimmed); err != nil {
				return err
			}
		}
	}
	if keepAnchors >= 0 {
		lines, err := h.readLines(h.anchorLogPath(key))
		if err != nil {
			return err
		}
		if len(lines) > keepAnchors {
			if err := h.rewriteLines(h.anchorLogPath(key), lines[len(lines)-keepAnchors:]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *durableHistory) pruneAll(keepPatches, keepAnchors int) error {
	var keys []string
	err := filepath.WalkDir(h.dir, func(p string, e os.DirEntry, err error) error {
		if err == nil && e.IsDir() && p != h.dir {
			rel, _ := filepath.Rel(h.dir, p)
			keys = append(keys, "/"+filepath.ToSlash(rel))
		}
		return err
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, k := range keys {
		if err := h.prune(k, keepPatches, keepAnchors); err != nil {
			return err
		}
	}
	return nil
}

func (h *durableHistory) listPatches(key string) ([]PatchRecord, error) {
	return h.loadPatches(key)
}

func (h *durableHistory) listAnchors(key string) ([]*anchor.Anchor, error) {
	lines, err := h.readLines(h.anchorLogPath(key))
	if err != nil {
		return nil, err
	}
	out := make([]*anchor.Anchor, 0, len(lines))
	for _, line := range lines {
		var a anchor.Anchor
		if err := json.Unmarshal(line, &a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, nil
}
