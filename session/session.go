// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session implements the server side of the wire protocol: for
// each accepted connection, a Session reads framed requests, dispatches
// them to a local Namespace, and pushes watch events back as they occur.
package session

import (
	"bufio"
	"io"
	"sync"

	"github.com/beescroll/nines/nine"
	"github.com/beescroll/nines/nine/log"
	"github.com/beescroll/nines/wire"
)

// Transport is the byte stream a Session drives.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Session dispatches one connection's requests against ns, pushing watch
// events for subscriptions it registers on ns's behalf.
type Session struct {
	ns        nine.Namespace
	transport Transport
	writeMu   sync.Mutex

	mu   sync.Mutex
	subs map[int64]*nine.Subscription
	done chan struct{}
}

// New returns a Session dispatching requests from transport against ns.
func New(ns nine.Namespace, transport Transport) *Session {
	return &Session{
		ns:        ns,
		transport: transport,
		subs:      make(map[int64]*nine.Subscription),
		done:      make(chan struct{}),
	}
}

// Serve reads and dispatches requests until reading from the transport
// fails (including when it closes); frames that do not decode are logged
// and skipped. It then cancels every subscription
// this session registered. It is synchronous; callers typically run it in
// its own goroutine per accepted connection.
func (s *Session) Serve() {
	defer s.cancelAll()
	defer log.Debug.Println("session: connection closed")
	reader := bufio.NewReader(s.transport)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if line[len(line)-1] == '\n' {
				line = line[:len(line)-1]
			}
			req, decErr := wire.DecodeRequest(line)
			if decErr != nil {
				log.Error.Printf("session: malformed request frame: %v", decErr)
			} else {
				s.dispatch(req)
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Debug.Printf("session: read error: %v", err)
			}
			return
		}
	}
}

func (s *Session) dispatch(req wire.Request) {
	var resp wire.Response
	switch req.Op {
	case wire.OpRead:
		resp = s.handleRead(req)
	case wire.OpWrite:
		resp = s.handleWrite(req)
	case wire.OpList:
		resp = s.handleList(req)
	case wire.OpWatch:
		resp = s.handleWatch(req)
	case wire.OpUnwatch:
		resp = s.handleUnwatch(req)
	case wire.OpClose:
		resp = s.handleClose(req)
	default:
		resp = wire.Response{Tag: req.Tag, OK: false, Code: "invalid_data", Error: "unknown operation"}
	}
	s.send(resp)
}

func (s *Session) handleRead(req wire.Request) wire.Response {
	scroll, err := s.ns.Read(req.Path)
	if err != nil {
		return wire.ErrorResponse(req.Tag, err)
	}
	return wire.Response{Tag: req.Tag, OK: true, Scroll: scroll}
}

func (s *Session) handleWrite(req wire.Request) wire.Response {
	scroll, err := s.ns.Write(req.Path, req.Data)
	if err != nil {
		return wire.ErrorResponse(req.Tag, err)
	}
	return wire.Response{Tag: req.Tag, OK: true, Scroll: scroll}
}

func (s *Session) handleList(req wire.Request) wire.Response {
	paths, err := s.ns.List(req.Path)
	if err != nil {
		return wire.ErrorResponse(req.Tag, err)
	}
	return wire.Response{Tag: req.Tag, OK: true, Paths: paths}
}

func (s *Session) handleWatch(req wire.Request) wire.Response {
	sub, err := s.ns.Watch(req.Path)
	if err != nil {
		return wire.ErrorResponse(req.Tag, err)
	}
	s.mu.Lock()
	s.subs[req.Tag] = sub
	s.mu.Unlock()
	log.Debug.Printf("session: watch registered tag=%d pattern=%s", req.Tag, req.Path)
	go s.pump(req.Tag, sub)
	return wire.Response{Tag: req.Tag, OK: true}
}

func (s *Session) handleUnwatch(req wire.Request) wire.Response {
	s.mu.Lock()
	sub, ok := s.subs[req.Tag]
	delete(s.subs, req.Tag)
	s.mu.Unlock()
	if ok {
		sub.Close()
	}
	return wire.Response{Tag: req.Tag, OK: true}
}

func (s *Session) handleClose(req wire.Request) wire.Response {
	err := s.ns.Close()
	if err != nil {
		return wire.ErrorResponse(req.Tag, err)
	}
	return wire.Response{Tag: req.Tag, OK: true}
}

// pump forwards events from sub to the client, tagged with tag and marked
// as an asynchronous event, until sub closes.
func (s *Session) pump(tag int64, sub *nine.Subscription) {
	for scroll := range sub.Events() {
		s.send(wire.Response{Tag: tag, OK: true, Event: true, Scroll: scroll})
	}
}

func (s *Session) send(resp wire.Response) {
	raw, err := wire.EncodeResponse(resp)
	if err != nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.transport.Write(raw)
}

// cancelAll cancels every subscription this session registered; called
// once the connection drops.
func (s *Session) cancelAll() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[int64]*nine.Subscription)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
	close(s.done)
}

// Done returns a channel closed once Serve has returned and all
// subscriptions have been cancelled.
func (s *Session) Done() <-chan struct{} { return s.done }
