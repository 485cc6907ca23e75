// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wire implements the newline-delimited JSON wire protocol shared
// by the client proxy and server session: framing, the request/response
// codec, and the stable error-code mapping. The framing idiom generalizes
// the teacher's one-shot "interpret a JSON response body" helper into a
// streaming accumulator that retains an incomplete trailing frame.
package wire

import (
	"bytes"
	"encoding/json"

	"github.com/beescroll/nines/nine"
)

// Op identifies a wire-level operation. unwatch is protocol-only; it has
// no Namespace counterpart.
type Op string

const (
	OpRead    Op = "read"
	OpWrite   Op = "write"
	OpList    Op = "list"
	OpWatch   Op = "watch"
	OpUnwatch Op = "unwatch"
	OpClose   Op = "close"
)

// Request is a client-to-server message.
type Request struct {
	Tag  int64          `json:"tag"`
	Op   Op             `json:"op"`
	Path string         `json:"path,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// Response is a server-to-client message. Event marks an asynchronously
// pushed watch notification rather than a reply to a specific request.
type Response struct {
	Tag   int64        `json:"tag"`
	OK    bool         `json:"ok"`
	Scroll *nine.Scroll `json:"scroll,omitempty"`
	Paths []string     `json:"paths,omitempty"`
	Error string       `json:"error,omitempty"`
	Code  string       `json:"code,omitempty"`
	Event bool         `json:"event,omitempty"`
}

// codeTable maps the closed nine.Class taxonomy to the stable wire codes
// from spec §6.
var codeTable = map[nine.Class]string{
	nine.NotFound:    "not_found",
	nine.InvalidPath: "invalid_path",
	nine.InvalidData: "invalid_data",
	nine.Permission:  "permission",
	nine.Closed:      "closed",
	nine.Timeout:     "timeout",
	nine.Connection:  "connection",
	nine.Unavailable: "unavailable",
	nine.Internal:    "internal",
}

var classTable = func() map[string]nine.Class {
	out := make(map[string]nine.Class, len(codeTable))
	for class, code := range codeTable {
		out[code] = class
	}
	return out
}()

// CodeForError maps err to its stable wire code, defaulting to "internal"
// for errors outside the closed taxonomy.
func CodeForError(err error) string {
	class := nine.ClassOf(err)
	if code, ok := codeTable[class]; ok {
		return code
	}
	return "internal"
}

// ErrorForCode reconstructs a nine.Class from a wire code, mapping unknown
// codes to nine.Internal per spec.
func ErrorForCode(code string) nine.Class {
	if class, ok := classTable[code]; ok {
		return class
	}
	return nine.Internal
}

// ErrorResponse builds the {ok:false, error, code} response for err.
func ErrorResponse(tag int64, err error) Response {
	return Response{
		Tag:   tag,
		OK:    false,
		Error: err.Error(),
		Code:  CodeForError(err),
	}
}

// Framer accumulates bytes from a transport and yields complete
// newline-delimited frames, retaining any incomplete tail across calls.
type Framer struct {
	buf bytes.Buffer
}

// NewFramer returns an empty Framer.
func NewFramer() *Framer { return &Framer{} }

// Feed appends b to the accumulator.
func (f *Framer) Feed(b []byte) { f.buf.Write(b) }

// Next extracts and returns the next complete frame (without its trailing
// newline), or (nil, false) if no complete frame is buffered yet.
func (f *Framer) Next() ([]byte, bool) {
	raw := f.buf.Bytes()
	idx := bytes.IndexByte(raw, '\n')
	if idx < 0 {
		return nil, false
	}
	frame := make([]byte, idx)
	copy(frame, raw[:idx])
	f.buf.Next(idx + 1)
	return frame, true
}

// EncodeRequest serializes req with a trailing newline, ready to write to
// the transport.
func EncodeRequest(req Request) ([]byte, error) {
	return encodeFrame(req)
}

// EncodeResponse serializes resp with a trailing newline.
func EncodeResponse(resp Response) ([]byte, error) {
	return encodeFrame(resp)
}

func encodeFrame(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(raw, '\n'), nil
}

// DecodeRequest parses a single frame as a Request.
func DecodeRequest(frame []byte) (Request, error) {
	var req Request
	err := json.Unmarshal(frame, &req)
	return req, err
}

// DecodeResponse parses a single frame as a Response.
func DecodeResponse(frame []byte) (Response, error) {
	var resp Response
	err := json.Unmarshal(frame, &resp)
	return resp, err
}
