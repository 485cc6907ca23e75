// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log exports the leveled logging primitives used throughout this
// module. It mimics Go's standard log package so it can be used as a
// near drop-in replacement, but adds the Debug/Info/Error levels every
// other package logs through instead of reaching for the bare log package.
package log

import (
	goLog "log"
	"os"
)

// Logger is the interface for logging messages at a fixed level.
type Logger interface {
	Printf(format string, v ...interface{})
	Print(v ...interface{})
	Println(v ...interface{})
}

// Level is the level of logging.
type Level int

// The recognized logging levels.
const (
	Ldebug Level = iota
	Linfo
	Lerror
	Ldisabled
)

var current = Linfo

// SetLevel sets the minimum level that will actually be written.
func SetLevel(l Level) { current = l }

// SetOutput redirects all levels to w.
func SetOutput(w *os.File) {
	Debug.(*levelLogger).std.SetOutput(w)
	Info.(*levelLogger).std.SetOutput(w)
	Error.(*levelLogger).std.SetOutput(w)
}

// Pre-instantiated loggers at each level, the same shape as the teacher's
// own log package.
var (
	Debug Logger = newLogger(Ldebug, "debug: ")
	Info  Logger = newLogger(Linfo, "info: ")
	Error Logger = newLogger(Lerror, "error: ")
)

type levelLogger struct {
	level Level
	std   *goLog.Logger
}

func newLogger(level Level, prefix string) *levelLogger {
	return &levelLogger{
		level: level,
		std:   goLog.New(os.Stderr, prefix, goLog.Ldate|goLog.Ltime|goLog.Lmicroseconds),
	}
}

func (l *levelLogger) enabled() bool { return l.level >= current }

func (l *levelLogger) Printf(format string, v ...interface{}) {
	if l.enabled() {
		l.std.Printf(format, v...)
	}
}

func (l *levelLogger) Print(v ...interface{}) {
	if l.enabled() {
		l.std.Print(v...)
	}
}

func (l *levelLogger) Println(v ...interface{}) {
	if l.enabled() {
		l.std.Println(v...)
	}
}
