// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package path implements the path and pattern grammar shared by every
// Namespace implementation: validation, segment-boundary-safe prefix
// containment, and watch-pattern matching.
package path

import (
	"strings"

	"github.com/beescroll/nines/nine"
)

// Validate reports whether p is a well-formed path:
//
//	path := "/" | "/" seg ("/" seg)*
//	seg  := char+, char in [A-Za-z0-9_.-]
//
// "." and ".." segments, empty segments (adjacent slashes), and leading or
// trailing whitespace are all invalid.
func Validate(p string) error {
	if err := validate(p, false); err != nil {
		return err
	}
	return nil
}

// ValidatePattern reports whether p is a well-formed watch pattern: a
// valid path, or a valid path with a trailing "/*" or "/**" wildcard
// segment.
func ValidatePattern(p string) error {
	return validate(p, true)
}

func validate(p string, allowWildcard bool) error {
	const op = "path.Validate"
	if p == "" {
		return nine.E(op, nine.InvalidPath, nine.Err("empty path"))
	}
	if p[0] != '/' {
		return nine.E(op, nine.InvalidPath, nine.Path(p), nine.Err("path must start with /"))
	}
	if strings.TrimSpace(p) != p {
		return nine.E(op, nine.InvalidPath, nine.Path(p), nine.Err("path must not have leading or trailing whitespace"))
	}
	if p == "/" {
		return nil
	}
	segs := strings.Split(p[1:], "/")
	for i, seg := range segs {
		isLast := i == len(segs)-1
		if allowWildcard && isLast && (seg == "*" || seg == "**") {
			continue
		}
		if seg == "" {
			return nine.E(op, nine.InvalidPath, nine.Path(p), nine.Err("empty path segment"))
		}
		if seg == "." || seg == ".." {
			return nine.E(op, nine.InvalidPath, nine.Path(p), nine.Err("reserved path segment"))
		}
		for _, r := range seg {
			if !okPathChar(r) {
				return nine.E(op, nine.InvalidPath, nine.Path(p), nine.Err("invalid character in path segment"))
			}
		}
	}
	return nil
}

func okPathChar(r rune) bool {
	switch {
	case 'a' <= r && r <= 'z':
		return true
	case 'A' <= r && r <= 'Z':
		return true
	case '0' <= r && r <= '9':
		return true
	case r == '_' || r == '.' || r == '-':
		return true
	}
	return false
}

// IsUnder reports whether path lies under prefix: true iff prefix is "/",
// or path equals prefix, or path starts with prefix and the next
// character of path is "/". This segment-boundary discipline prevents
// "/foo" from capturing "/foobar".
func IsUnder(prefix, p string) bool {
	if prefix == "/" {
		return true
	}
	if p == prefix {
		return true
	}
	if strings.HasPrefix(p, prefix) && len(p) > len(prefix) && p[len(prefix)] == '/' {
		return true
	}
	return false
}

// Split divides a path into its segments, omitting the leading slash. The
// root path "/" yields an empty slice.
func Split(p string) []string {
	if p == "/" || p == "" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

// Join joins path segments into a path, adding the leading slash.
func Join(segs ...string) string {
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/")
}
