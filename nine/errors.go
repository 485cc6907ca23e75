// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nine defines the core Scroll data model, the Namespace contract,
// and the closed error taxonomy shared by every backend in this module.
package nine

import (
	"bytes"
	"fmt"
)

// Class is the closed taxonomy of failures a Namespace operation may
// return. There is no "success with a special value" class: absence on
// read is success, not an error (see Namespace.Read).
type Class uint8

// The error classes, per the namespace state and failure model.
const (
	Other Class = iota
	NotFound
	InvalidPath
	InvalidData
	Permission
	Closed
	Timeout
	Connection
	Unavailable
	Internal
)

// Code is the short, stable string carried on the wire for each Class.
func (c Class) Code() string {
	switch c {
	case NotFound:
		return "not_found"
	case InvalidPath:
		return "invalid_path"
	case InvalidData:
		return "invalid_data"
	case Permission:
		return "permission"
	case Closed:
		return "closed"
	case Timeout:
		return "timeout"
	case Connection:
		return "connection"
	case Unavailable:
		return "unavailable"
	case Internal:
		return "internal"
	}
	return "other"
}

func (c Class) String() string {
	switch c {
	case NotFound:
		return "not found"
	case InvalidPath:
		return "invalid path"
	case InvalidData:
		return "invalid data"
	case Permission:
		return "permission denied"
	case Closed:
		return "namespace closed"
	case Timeout:
		return "timeout"
	case Connection:
		return "connection error"
	case Unavailable:
		return "unavailable"
	case Internal:
		return "internal error"
	case Other:
		return "other error"
	}
	return "unknown error class"
}

// ClassFromCode maps a wire error code back to a Class. Unknown codes map
// to Internal, per the wire protocol's error-mapping rule.
func ClassFromCode(code string) Class {
	switch code {
	case "not_found":
		return NotFound
	case "invalid_path":
		return InvalidPath
	case "invalid_data":
		return InvalidData
	case "permission":
		return Permission
	case "closed":
		return Closed
	case "timeout":
		return Timeout
	case "connection":
		return Connection
	case "unavailable":
		return Unavailable
	case "internal":
		return Internal
	}
	return Internal
}

// Error is the type that implements the error interface for every failure
// this module produces. Some fields may be left unset.
type Error struct {
	Op    string // Operation being performed, e.g. "memory.Write".
	Path  string // The Scroll path involved, if any.
	Class Class  // The class of error.
	Err   error  // The underlying error that triggered this one, if any.
}

var _ error = (*Error)(nil)

// E builds an *Error from its arguments. The type of each argument
// determines its meaning; at most one argument of each type is kept (the
// last one wins). Recognized types:
//
//	string      the operation being performed
//	Class       the error class
//	error       the underlying cause
//
// A string that looks like a path (passed via Path(...)) must be wrapped
// to disambiguate from Op; see the Path helper below.
func E(args ...interface{}) error {
	if len(args) == 0 {
		return nil
	}
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case string:
			e.Op = a
		case Class:
			e.Class = a
		case error:
			e.Err = a
		case pathArg:
			e.Path = string(a)
		default:
			panic(fmt.Sprintf("nine.E: bad argument type %T: %v", arg, arg))
		}
	}
	return e
}

// pathArg disambiguates a path string from an Op string in E's argument
// list.
type pathArg string

// Path wraps a Scroll path for use as an E argument.
func Path(p string) interface{} { return pathArg(p) }

// Err wraps a plain message as an error, for use as an E argument when
// there is no richer underlying cause to carry.
func Err(msg string) error { return plainError(msg) }

type plainError string

func (e plainError) Error() string { return string(e) }

func pad(b *bytes.Buffer, s string) {
	if b.Len() > 0 {
		b.WriteString(s)
	}
}

func (e *Error) Error() string {
	b := new(bytes.Buffer)
	if e.Op != "" {
		b.WriteString(e.Op)
	}
	if e.Path != "" {
		pad(b, ": ")
		b.WriteString(e.Path)
	}
	if e.Class != Other {
		pad(b, ": ")
		b.WriteString(e.Class.String())
	}
	if e.Err != nil {
		if _, ok := e.Err.(*Error); ok {
			pad(b, ":\n\t")
		} else {
			pad(b, ": ")
		}
		b.WriteString(e.Err.Error())
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err is, or wraps, an *Error of the given Class.
func Is(err error, c Class) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Class == c {
				return true
			}
			err = e.Err
			continue
		}
		break
	}
	return false
}

// ClassOf returns the Class of err, or Other if err is not (or does not
// wrap) an *Error.
func ClassOf(err error) Class {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Class != Other {
				return e.Class
			}
			err = e.Err
			continue
		}
		break
	}
	return Other
}
