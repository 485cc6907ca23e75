package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/beescroll/nines/nine"
	"github.com/beescroll/nines/nine/nstest"
)

func TestConformance(t *testing.T) {
	nstest.Run(t, func() nine.Namespace {
		n, err := New(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		return n
	})
}

func TestFileCreatesNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	n, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := n.Write("/a/b/c", map[string]any{"v": 1}); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, scrollsDir, "a", "b", "c.json")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected %s to exist: %v", want, err)
	}
}

func TestFileMalformedJSONIsInternal(t *testing.T) {
	dir := t.TempDir()
	n, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, scrollsDir, "broken.json")
	if err := os.WriteFile(p, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Read("/broken"); !nine.Is(err, nine.Internal) {
		t.Fatalf("err = %v, want Internal reading malformed JSON", err)
	}
}

func TestFileSurvivesProcessRestart(t *testing.T) {
	dir := t.TempDir()
	n1, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := n1.Write("/k", map[string]any{"v": 1.0}); err != nil {
		t.Fatal(err)
	}

	n2, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := n2.Read("/k")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Data["v"] != 1.0 {
		t.Fatalf("got = %+v, want data.v=1 after reopening the same root", got)
	}
}
