// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package patch implements an RFC 6902 JSON Patch / RFC 6901 JSON Pointer
// engine over the same canonical any-tree the nine package uses for
// hashing, so a Scroll's data is diffed and applied without a second
// decode pass.
package patch

import (
	"strconv"
	"strings"

	"github.com/beescroll/nines/nine"
)

// Kind identifies a patch operation's variant.
type Kind string

const (
	Add     Kind = "add"
	Remove  Kind = "remove"
	Replace Kind = "replace"
	Move    Kind = "move"
	Copy    Kind = "copy"
	Test    Kind = "test"
)

// Op is one RFC 6902 operation. From is populated only for Move and Copy;
// Value is populated only for Add, Replace, and Test.
type Op struct {
	Op    Kind   `json:"op"`
	Path  string `json:"path"`
	From  string `json:"from,omitempty"`
	Value any    `json:"value,omitempty"`
}

// ErrorKind identifies the failure mode of an Apply.
type ErrorKind string

const (
	PathNotFound   ErrorKind = "path_not_found"
	TypeMismatch   ErrorKind = "type_mismatch"
	TestFailed     ErrorKind = "test_failed"
	InvalidPointer ErrorKind = "invalid_pointer"
)

// Error describes why a patch failed to apply.
type Error struct {
	Kind ErrorKind
	Path string
	Msg  string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return string(e.Kind) + " at " + e.Path + ": " + e.Msg
	}
	return string(e.Kind) + ": " + e.Msg
}

func newErr(kind ErrorKind, path, msg string) error {
	return &Error{Kind: kind, Path: path, Msg: msg}
}

// EscapePointerToken escapes a single JSON Pointer reference token per RFC
// 6901: "~" becomes "~0", "/" becomes "~1".
func EscapePointerToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~", "~0")
	tok = strings.ReplaceAll(tok, "/", "~1")
	return tok
}

// UnescapePointerToken reverses EscapePointerToken.
func UnescapePointerToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~1", "/")
	tok = strings.ReplaceAll(tok, "~0", "~")
	return tok
}

// splitPointer splits a JSON Pointer into unescaped tokens. The empty
// pointer "" addresses the root document and splits to an empty slice.
func splitPointer(ptr string) ([]string, error) {
	if ptr == "" {
		return nil, nil
	}
	if ptr[0] != '/' {
		return nil, newErr(InvalidPointer, ptr, "pointer must be empty or start with /")
	}
	parts := strings.Split(ptr[1:], "/")
	for i, p := range parts {
		parts[i] = UnescapePointerToken(p)
	}
	return parts, nil
}

// Diff computes the RFC 6902 patch transforming prior into current. prior
// may be nil to represent an absent (genesis) document, in which case the
// sole operation is a root Replace.
func Diff(prior, current map[string]any) []Op {
	if prior == nil {
		return []Op{{Op: Replace, Path: "", Value: current}}
	}
	return diffValue("", any(prior), any(current))
}

func diffValue(ptr string, prior, current any) []Op {
	pm, pIsMap := prior.(map[string]any)
	cm, cIsMap := current.(map[string]any)
	if pIsMap && cIsMap {
		return diffMaps(ptr, pm, cm)
	}
	if nine.Equal(prior, current) {
		return nil
	}
	return []Op{{Op: Replace, Path: ptr, Value: current}}
}

func diffMaps(ptr string, prior, current map[string]any) []Op {
	var ops []Op
	for k := range prior {
		if _, ok := current[k]; !ok {
			ops = append(ops, Op{Op: Remove, Path: ptr + "/" + EscapePointerToken(k)})
		}
	}
	for k, cv := range current {
		pv, existed := prior[k]
		childPtr := ptr + "/" + EscapePointerToken(k)
		if !existed {
			ops = append(ops, Op{Op: Add, Path: childPtr, Value: cv})
			continue
		}
		ops = append(ops, diffValue(childPtr, pv, cv)...)
	}
	return ops
}

// Apply deep-copies data and applies ops in order, returning the
// transformed document. It never mutates data.
func Apply(data map[string]any, ops []Op) (map[string]any, error) {
	var root any = nine.CloneValue(data)
	for _, op := range ops {
		var err error
		switch op.Op {
		case Add:
			root, err = applyAdd(root, op.Path, op.Value)
		case Remove:
			root, err = applyRemove(root, op.Path)
		case Replace:
			root, err = applyReplace(root, op.Path, op.Value)
		case Move:
			var v any
			v, root, err = applyGetThenRemove(root, op.From)
			if err == nil {
				root, err = applyAdd(root, op.Path, v)
			}
		case Copy:
			var v any
			v, err = getAt(root, op.From)
			if err == nil {
				root, err = applyAdd(root, op.Path, nine.CloneValue(v))
			}
		case Test:
			err = applyTest(root, op.Path, op.Value)
		default:
			err = newErr(InvalidPointer, op.Path, "unknown op "+string(op.Op))
		}
		if err != nil {
			return nil, err
		}
	}
	out, ok := root.(map[string]any)
	if !ok {
		return nil, newErr(TypeMismatch, "", "patched document is not an object")
	}
	return out, nil
}

// Verify reports whether patch applies cleanly to priorHash: either prior
// is absent and parent is empty, or prior's hash equals parent.
func Verify(priorHash string, priorAbsent bool, parent string) bool {
	if priorAbsent {
		return parent == ""
	}
	return priorHash == parent
}

func getAt(root any, ptr string) (any, error) {
	toks, err := splitPointer(ptr)
	if err != nil {
		return nil, err
	}
	cur := root
	for _, tok := range toks {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[tok]
			if !ok {
				return nil, newErr(PathNotFound, ptr, "key "+tok+" not found")
			}
			cur = next
		case []any:
			idx, err := arrayIndex(tok, len(v), false)
			if err != nil {
				return nil, err
			}
			cur = v[idx]
		default:
			return nil, newErr(TypeMismatch, ptr, "cannot traverse through non-container")
		}
	}
	return cur, nil
}

func arrayIndex(tok string, length int, forInsert bool) (int, error) {
	if tok == "-" {
		if forInsert {
			return length, nil
		}
		return -1, newErr(InvalidPointer, tok, "- is only valid for insertion")
	}
	idx, err := strconv.Atoi(tok)
	if err != nil || idx < 0 {
		return -1, newErr(InvalidPointer, tok, "invalid array index")
	}
	max := length
	if forInsert {
		max = length + 1
	}
	if idx >= max {
		return -1, newErr(PathNotFound, tok, "array index out of range")
	}
	return idx, nil
}

// applyAdd sets value at ptr in root, creating intermediate mappings on
// demand and appending to arrays on "-".
func applyAdd(root any, ptr string, value any) (any, error) {
	toks, err := splitPointer(ptr)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return value, nil
	}
	return setRecursive(root, toks, value, true)
}

func applyReplace(root any, ptr string, value any) (any, error) {
	toks, err := splitPointer(ptr)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return value, nil
	}
	return setRecursive(root, toks, value, false)
}

// setRecursive walks toks from root, mutating (copy-on-write) the
// container at the final segment. insert controls Add-vs-Replace array
// semantics.
func setRecursive(node any, toks []string, value any, insert bool) (any, error) {
	tok := toks[0]
	switch v := node.(type) {
	case map[string]any:
		m := cloneShallowMap(v)
		if len(toks) == 1 {
			if !insert {
				if _, ok := m[tok]; !ok {
					return nil, newErr(PathNotFound, tok, "key not found")
				}
			}
			m[tok] = value
			return m, nil
		}
		child, ok := m[tok]
		if !ok {
			if !insert {
				return nil, newErr(PathNotFound, tok, "key not found")
			}
			child = map[string]any{}
		}
		newChild, err := setRecursive(child, toks[1:], value, insert)
		if err != nil {
			return nil, err
		}
		m[tok] = newChild
		return m, nil
	case []any:
		a := cloneShallowSlice(v)
		if len(toks) == 1 {
			idx, err := arrayIndex(tok, len(a), insert)
			if err != nil {
				return nil, err
			}
			if insert {
				a = append(a, nil)
				copy(a[idx+1:], a[idx:])
				a[idx] = value
				return a, nil
			}
			a[idx] = value
			return a, nil
		}
		idx, err := arrayIndex(tok, len(a), false)
		if err != nil {
			return nil, err
		}
		newChild, err := setRecursive(a[idx], toks[1:], value, insert)
		if err != nil {
			return nil, err
		}
		a[idx] = newChild
		return a, nil
	default:
		return nil, newErr(TypeMismatch, tok, "cannot traverse through non-container")
	}
}

func applyRemove(root any, ptr string) (any, error) {
	toks, err := splitPointer(ptr)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, newErr(InvalidPointer, ptr, "cannot remove root document")
	}
	return removeRecursive(root, toks)
}

func removeRecursive(node any, toks []string) (any, error) {
	tok := toks[0]
	switch v := node.(type) {
	case map[string]any:
		m := cloneShallowMap(v)
		if len(toks) == 1 {
			if _, ok := m[tok]; !ok {
				return nil, newErr(PathNotFound, tok, "key not found")
			}
			delete(m, tok)
			return m, nil
		}
		child, ok := m[tok]
		if !ok {
			return nil, newErr(PathNotFound, tok, "key not found")
		}
		newChild, err := removeRecursive(child, toks[1:])
		if err != nil {
			return nil, err
		}
		m[tok] = newChild
		return m, nil
	case []any:
		a := cloneShallowSlice(v)
		idx, err := arrayIndex(tok, len(a), false)
		if err != nil {
			return nil, err
		}
		if len(toks) == 1 {
			return append(a[:idx], a[idx+1:]...), nil
		}
		newChild, err := removeRecursive(a[idx], toks[1:])
		if err != nil {
			return nil, err
		}
		a[idx] = newChild
		return a, nil
	default:
		return nil, newErr(TypeMismatch, tok, "cannot traverse through non-container")
	}
}

func applyGetThenRemove(root any, ptr string) (any, any, error) {
	v, err := getAt(root, ptr)
	if err != nil {
		return nil, nil, err
	}
	newRoot, err := applyRemove(root, ptr)
	if err != nil {
		return nil, nil, err
	}
	return v, newRoot, nil
}

func applyTest(root any, ptr string, want any) error {
	got, err := getAt(root, ptr)
	if err != nil {
		return err
	}
	if !nine.Equal(got, want) {
		return newErr(TestFailed, ptr, "value does not match")
	}
	return nil
}

func cloneShallowMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneShallowSlice(s []any) []any {
	out := make([]any, len(s))
	copy(out, s)
	return out
}
