package netns

import (
	"bufio"
	"net"
	"testing"

	"github.com/beescroll/nines/nine"
	"github.com/beescroll/nines/wire"
)

// fakeServer replies to every request with a fixed response, echoing the
// request's tag, until its connection is closed.
func fakeServer(t *testing.T, conn net.Conn, respond func(wire.Request) wire.Response) {
	t.Helper()
	go func() {
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadBytes('\n')
			if len(line) > 0 {
				if line[len(line)-1] == '\n' {
					line = line[:len(line)-1]
				}
				req, decErr := wire.DecodeRequest(line)
				if decErr == nil {
					resp := respond(req)
					resp.Tag = req.Tag
					raw, _ := wire.EncodeResponse(resp)
					conn.Write(raw)
				}
			}
			if err != nil {
				return
			}
		}
	}()
}

func TestNetnsReadWrite(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	fakeServer(t, server, func(req wire.Request) wire.Response {
		switch req.Op {
		case wire.OpWrite:
			return wire.Response{OK: true, Scroll: &nine.Scroll{Key: req.Path, Data: req.Data, Metadata: nine.Metadata{Version: 1}}}
		case wire.OpRead:
			return wire.Response{OK: true, Scroll: &nine.Scroll{Key: req.Path, Data: map[string]any{"v": 1.0}, Metadata: nine.Metadata{Version: 1}}}
		}
		return wire.Response{OK: false, Code: "internal", Error: "unhandled"}
	})

	n := Dial(client)
	s, err := n.Write("/k", map[string]any{"v": 1.0})
	if err != nil {
		t.Fatal(err)
	}
	if s.Key != "/k" {
		t.Fatalf("s.Key = %q", s.Key)
	}
	got, err := n.Read("/k")
	if err != nil {
		t.Fatal(err)
	}
	if got.Data["v"] != 1.0 {
		t.Fatalf("got = %+v", got.Data)
	}
}

func TestNetnsErrorResponseBecomesError(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	fakeServer(t, server, func(req wire.Request) wire.Response {
		return wire.Response{OK: false, Code: "not_found", Error: "nope"}
	})

	n := Dial(client)
	_, err := n.Read("/missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if nine.ClassOf(err) != nine.NotFound {
		t.Fatalf("class = %v, want NotFound", nine.ClassOf(err))
	}
}

func TestNetnsTransportCloseFailsPending(t *testing.T) {
	client, server := net.Pipe()
	n := Dial(client)

	done := make(chan error, 1)
	go func() {
		_, err := n.Read("/k")
		done <- err
	}()
	// Close the server side only once the request has arrived, so the
	// call is pending when the transport drops.
	go func() {
		bufio.NewReader(server).ReadBytes('\n')
		server.Close()
	}()

	err := <-done
	if err == nil || nine.ClassOf(err) != nine.Connection {
		t.Fatalf("expected Connection error after transport close, got %v", err)
	}
}

func TestNetnsCloseIsIdempotentAndClosesTransport(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	n := Dial(client)
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("second close should be idempotent, got %v", err)
	}
	if _, err := n.Read("/x"); err == nil {
		t.Fatal("expected Closed error after Close")
	}
	if _, err := server.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected the transport to be closed")
	}
}
