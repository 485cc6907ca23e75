package session

import (
	"net"
	"testing"
	"time"

	"github.com/beescroll/nines/memory"
	"github.com/beescroll/nines/netns"
)

func TestSessionServesReadWriteList(t *testing.T) {
	client, server := net.Pipe()
	ns := memory.New()
	sess := New(ns, server)
	go sess.Serve()
	defer client.Close()

	c := netns.Dial(client)
	if _, err := c.Write("/a", map[string]any{"v": 1.0}); err != nil {
		t.Fatal(err)
	}
	got, err := c.Read("/a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Data["v"] != 1.0 {
		t.Fatalf("got = %+v", got.Data)
	}
	paths, err := c.List("/")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != "/a" {
		t.Fatalf("paths = %v", paths)
	}
}

func TestSessionPushesWatchEvents(t *testing.T) {
	client, server := net.Pipe()
	ns := memory.New()
	sess := New(ns, server)
	go sess.Serve()
	defer client.Close()

	c := netns.Dial(client)
	sub, err := c.Watch("/a/*")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Write("/a/x", map[string]any{"v": 1.0}); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-sub.Events():
		if s.Key != "/a/x" {
			t.Fatalf("event key = %q", s.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch event")
	}
}

func TestSessionCancelsSubscriptionsOnDisconnect(t *testing.T) {
	client, server := net.Pipe()
	ns := memory.New()
	sess := New(ns, server)
	go sess.Serve()

	c := netns.Dial(client)
	if _, err := c.Watch("/a/*"); err != nil {
		t.Fatal(err)
	}
	client.Close()

	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session to finish after disconnect")
	}
}
