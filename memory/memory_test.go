package memory

import (
	"testing"

	"github.com/beescroll/nines/nine"
	"github.com/beescroll/nines/nine/nstest"
)

func TestConformance(t *testing.T) {
	nstest.Run(t, func() nine.Namespace { return New() })
}

func TestWatcherCapExceeded(t *testing.T) {
	n := New(WithMaxWatchers(2))
	defer n.Close()
	for i := 0; i < 2; i++ {
		if _, err := n.Watch("/a/*"); err != nil {
			t.Fatalf("watch %d: %v", i, err)
		}
	}
	if _, err := n.Watch("/a/*"); !nine.Is(err, nine.Unavailable) {
		t.Fatalf("err = %v, want Unavailable", err)
	}
}

func TestWatcherCapReclaimsOnClose(t *testing.T) {
	n := New(WithMaxWatchers(1))
	defer n.Close()
	sub, err := n.Watch("/a/*")
	if err != nil {
		t.Fatal(err)
	}
	sub.Close()
	if _, err := n.Write("/a/x", map[string]any{}); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Watch("/a/*"); err != nil {
		t.Fatalf("expected cap to be reclaimed after sub.Close, got %v", err)
	}
}
