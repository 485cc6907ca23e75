// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package netns implements NetworkNamespace, the async client proxy for
// the wire protocol. It is grounded in the teacher's remote-store client
// pattern (a thin struct wrapping a transport, one round trip per call)
// generalized into the tag-multiplexed async model the wire protocol
// requires, with pushed watch events routed by tag.
package netns

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"

	"github.com/beescroll/nines/nine"
	"github.com/beescroll/nines/nine/log"
	"github.com/beescroll/nines/wire"
)

// Transport is the byte stream a NetworkNamespace drives. Closing it
// unblocks any in-progress Read.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// NetworkNamespace is a Namespace backed by a wire-protocol connection to
// a remote session. Every operation except Watch suspends until a
// response arrives or the connection fails.
type NetworkNamespace struct {
	transport Transport
	writeMu   sync.Mutex
	nextTag   int64

	mu       sync.Mutex
	pending  map[int64]chan wire.Response
	watching map[int64]*nine.Subscription
	closed   bool
}

var _ nine.Namespace = (*NetworkNamespace)(nil)

// Dial wraps an already-connected Transport and starts the read loop.
func Dial(t Transport) *NetworkNamespace {
	n := &NetworkNamespace{
		transport: t,
		pending:   make(map[int64]chan wire.Response),
		watching:  make(map[int64]*nine.Subscription),
	}
	go n.readLoop()
	return n
}

func (n *NetworkNamespace) readLoop() {
	reader := bufio.NewReader(n.transport)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if line[len(line)-1] == '\n' {
				line = line[:len(line)-1]
			}
			if resp, decErr := wire.DecodeResponse(line); decErr == nil {
				n.route(resp)
			}
		}
		if err != nil {
			n.failAll()
			return
		}
	}
}

func (n *NetworkNamespace) route(resp wire.Response) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if resp.Event {
		if sub, ok := n.watching[resp.Tag]; ok {
			if resp.Scroll != nil {
				if !nine.Deliver(sub, resp.Scroll) {
					sub.Close()
					delete(n.watching, resp.Tag)
				}
			}
		}
		return
	}
	if ch, ok := n.pending[resp.Tag]; ok {
		ch <- resp
		delete(n.pending, resp.Tag)
	}
}

// failAll completes every pending call with Connection and terminates
// every active watch, per the cancellation rules for transport close.
func (n *NetworkNamespace) failAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.closed {
		log.Debug.Println("netns: transport closed, failing outstanding calls")
	}
	n.closed = true
	for tag, ch := range n.pending {
		ch <- wire.Response{Tag: tag, OK: false, Code: "connection", Error: "transport closed"}
		delete(n.pending, tag)
	}
	for tag, sub := range n.watching {
		sub.Close()
		delete(n.watching, tag)
	}
}

func (n *NetworkNamespace) checkOpen(op string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nine.E(op, nine.Closed)
	}
	return nil
}

// call sends req and blocks for its matching response.
func (n *NetworkNamespace) call(op string, req wire.Request) (wire.Response, error) {
	if err := n.checkOpen(op); err != nil {
		return wire.Response{}, err
	}
	tag := atomic.AddInt64(&n.nextTag, 1)
	req.Tag = tag

	ch := make(chan wire.Response, 1)
	n.mu.Lock()
	n.pending[tag] = ch
	n.mu.Unlock()

	raw, err := wire.EncodeRequest(req)
	if err != nil {
		n.mu.Lock()
		delete(n.pending, tag)
		n.mu.Unlock()
		return wire.Response{}, nine.E(op, nine.Internal, err)
	}

	n.writeMu.Lock()
	_, writeErr := n.transport.Write(raw)
	n.writeMu.Unlock()
	if writeErr != nil {
		n.mu.Lock()
		delete(n.pending, tag)
		n.mu.Unlock()
		return wire.Response{}, nine.E(op, nine.Connection, writeErr)
	}

	resp := <-ch
	if !resp.OK {
		return resp, nine.E(op, wire.ErrorForCode(resp.Code), nine.Err(resp.Error))
	}
	return resp, nil
}

// Read implements nine.Namespace.
func (n *NetworkNamespace) Read(p string) (*nine.Scroll, error) {
	resp, err := n.call("netns.Read", wire.Request{Op: wire.OpRead, Path: p})
	if err != nil {
		return nil, err
	}
	return resp.Scroll, nil
}

// Write implements nine.Namespace.
func (n *NetworkNamespace) Write(p string, data map[string]any) (*nine.Scroll, error) {
	resp, err := n.call("netns.Write", wire.Request{Op: wire.OpWrite, Path: p, Data: data})
	if err != nil {
		return nil, err
	}
	return resp.Scroll, nil
}

// WriteScroll implements nine.Namespace. The wire protocol has no
// distinct writeScroll operation, so this delegates to Write with s.Key
// and s.Data only; s.Type and s.Metadata are not sent to the server.
func (n *NetworkNamespace) WriteScroll(s *nine.Scroll) (*nine.Scroll, error) {
	return n.Write(s.Key, s.Data)
}

// List implements nine.Namespace.
func (n *NetworkNamespace) List(prefix string) ([]string, error) {
	resp, err := n.call("netns.List", wire.Request{Op: wire.OpList, Path: prefix})
	if err != nil {
		return nil, err
	}
	return resp.Paths, nil
}

// Watch implements nine.Namespace. It returns immediately after the
// server confirms registration; it does not wait for the first event.
func (n *NetworkNamespace) Watch(pattern string) (*nine.Subscription, error) {
	resp, err := n.call("netns.Watch", wire.Request{Op: wire.OpWatch, Path: pattern})
	if err != nil {
		return nil, err
	}
	sub := nine.NewSubscription(pattern, 64)
	n.mu.Lock()
	n.watching[resp.Tag] = sub
	n.mu.Unlock()
	return sub, nil
}

// Close cancels subscription bookkeeping and closes the transport. It
// sends no protocol close message, per spec.
func (n *NetworkNamespace) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	for tag, sub := range n.watching {
		sub.Close()
		delete(n.watching, tag)
	}
	for tag, ch := range n.pending {
		ch <- wire.Response{Tag: tag, OK: false, Code: "closed", Error: "namespace closed"}
		delete(n.pending, tag)
	}
	n.mu.Unlock()
	return n.transport.Close()
}
