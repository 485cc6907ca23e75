package store

import (
	"testing"

	"github.com/beescroll/nines/memory"
	"github.com/beescroll/nines/nine"
	"github.com/beescroll/nines/nine/nstest"
)

func TestConformance(t *testing.T) {
	nstest.Run(t, func() nine.Namespace {
		s, err := New(memory.New(), Config{})
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestStorePlainRoundTrip(t *testing.T) {
	s, err := New(memory.New(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write("/k", map[string]any{"v": 1.0}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Read("/k")
	if err != nil {
		t.Fatal(err)
	}
	if got.Data["v"] != 1.0 {
		t.Fatalf("got = %+v", got.Data)
	}
}

func TestStoreEncryptedRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	s, err := New(memory.New(), Config{Encrypted: true, Key: key})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write("/secret", map[string]any{"v": "hidden"}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Read("/secret")
	if err != nil {
		t.Fatal(err)
	}
	if got.Data["v"] != "hidden" {
		t.Fatalf("got = %+v", got.Data)
	}
}

func TestStoreEncryptedDataOpaqueOnBackend(t *testing.T) {
	key := make([]byte, 32)
	backend := memory.New()
	s, err := New(backend, Config{Encrypted: true, Key: key})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write("/secret", map[string]any{"v": "hidden"}); err != nil {
		t.Fatal(err)
	}
	raw, err := backend.Read("/secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := raw.Data["_encrypted"]; !ok {
		t.Fatalf("expected backend to store opaque _encrypted blob, got %+v", raw.Data)
	}
}

func TestStoreWrongKeyFailsInternal(t *testing.T) {
	key1 := make([]byte, 32)
	key2 := make([]byte, 32)
	key2[0] = 1
	backend := memory.New()
	s1, err := New(backend, Config{Encrypted: true, Key: key1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s1.Write("/secret", map[string]any{"v": "hidden"}); err != nil {
		t.Fatal(err)
	}
	s2, err := New(backend, Config{Encrypted: true, Key: key2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s2.Read("/secret"); !nine.Is(err, nine.Internal) {
		t.Fatalf("expected Internal reading with wrong key, got %v", err)
	}
}

func TestDeriveAppKeyIndependence(t *testing.T) {
	master := []byte("some master secret material, 32 bytes!!")
	k1, err := DeriveAppKey(master, "app-a")
	if err != nil {
		t.Fatal(err)
	}
	k2, err := DeriveAppKey(master, "app-b")
	if err != nil {
		t.Fatal(err)
	}
	if len(k1) != 32 || len(k2) != 32 {
		t.Fatalf("expected 32-byte keys, got %d %d", len(k1), len(k2))
	}
	equal := true
	for i := range k1 {
		if k1[i] != k2[i] {
			equal = false
			break
		}
	}
	if equal {
		t.Fatal("expected independent keys for different appNames")
	}
}

func TestHistoryRingBufferRetention(t *testing.T) {
	s, err := New(memory.New(), Config{History: true, MaxPatches: 3})
	if err != nil {
		t.Fatal(err)
	}
	for v := 1; v <= 5; v++ {
		if _, err := s.Write("/k", map[string]any{"v": float64(v)}); err != nil {
			t.Fatal(err)
		}
	}
	h, err := s.History("/k")
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 3 {
		t.Fatalf("history length = %d, want 3", len(h))
	}
}

func TestStateAtReplaysToExactSequence(t *testing.T) {
	s, err := New(memory.New(), Config{History: true, MaxPatches: 10})
	if err != nil {
		t.Fatal(err)
	}
	for v := 1; v <= 3; v++ {
		if _, err := s.Write("/k", map[string]any{"v": float64(v)}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.StateAt("/k", 3)
	if err != nil {
		t.Fatal(err)
	}
	if got.Data["v"] != 3.0 {
		t.Fatalf("stateAt(3).v = %v, want 3", got.Data["v"])
	}
	got2, err := s.StateAt("/k", 1)
	if err != nil {
		t.Fatal(err)
	}
	if got2.Data["v"] != 1.0 {
		t.Fatalf("stateAt(1).v = %v, want 1", got2.Data["v"])
	}
}

func TestAnchorAndRestore(t *testing.T) {
	s, err := New(memory.New(), Config{History: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write("/p", map[string]any{"state": "orig"}); err != nil {
		t.Fatal(err)
	}
	a, err := s.Anchor("/p", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write("/p", map[string]any{"state": "mod"}); err != nil {
		t.Fatal(err)
	}
	restored, err := s.Restore("/p", a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Data["state"] != "orig" {
		t.Fatalf("restored.Data = %+v", restored.Data)
	}
	current, err := s.Read("/p")
	if err != nil {
		t.Fatal(err)
	}
	if current.Metadata.Version != 3 {
		t.Fatalf("version after restore = %d, want 3", current.Metadata.Version)
	}
}

func TestStateAtAfterRingBufferPrune(t *testing.T) {
	s, err := New(memory.New(), Config{History: true, MaxPatches: 3})
	if err != nil {
		t.Fatal(err)
	}
	for v := 1; v <= 5; v++ {
		if _, err := s.Write("/k", map[string]any{"v": float64(v)}); err != nil {
			t.Fatal(err)
		}
	}
	h, err := s.History("/k")
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 3 {
		t.Fatalf("history length = %d, want 3", len(h))
	}
	if h[0].Seq != 3 || h[len(h)-1].Seq != 5 {
		t.Fatalf("retained seqs = %+v, want [3 4 5]", h)
	}
	got, err := s.StateAt("/k", 3)
	if err != nil {
		t.Fatalf("StateAt(3) after prune: %v", err)
	}
	if got.Data["v"] != 3.0 {
		t.Fatalf("stateAt(3).v = %v, want 3", got.Data["v"])
	}
}

func TestSeqMonotoneAfterSaturation(t *testing.T) {
	s, err := New(memory.New(), Config{History: true, MaxPatches: 3})
	if err != nil {
		t.Fatal(err)
	}
	for v := 1; v <= 5; v++ {
		if _, err := s.Write("/k", map[string]any{"v": float64(v)}); err != nil {
			t.Fatal(err)
		}
	}
	h, err := s.History("/k")
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(h); i++ {
		if h[i].Seq <= h[i-1].Seq {
			t.Fatalf("seq not strictly increasing: %+v", h)
		}
	}
}

func TestStoreEncryptedHashMatchesPlaintextContent(t *testing.T) {
	key := make([]byte, 32)
	s, err := New(memory.New(), Config{Encrypted: true, Key: key})
	if err != nil {
		t.Fatal(err)
	}
	first, err := s.Write("/k", map[string]any{"v": 1.0})
	if err != nil {
		t.Fatal(err)
	}
	wantHash, err := nine.Hash(first.Key, first.Type, first.Data)
	if err != nil {
		t.Fatal(err)
	}
	if first.Metadata.Hash != wantHash {
		t.Fatalf("write hash = %s, want content hash %s", first.Metadata.Hash, wantHash)
	}
	second, err := s.Write("/k", map[string]any{"v": 1.0})
	if err != nil {
		t.Fatal(err)
	}
	if second.Metadata.Hash != first.Metadata.Hash {
		t.Fatalf("identical content produced different hashes across writes: %s vs %s", first.Metadata.Hash, second.Metadata.Hash)
	}
	got, err := s.Read("/k")
	if err != nil {
		t.Fatal(err)
	}
	if got.Metadata.Hash != first.Metadata.Hash {
		t.Fatalf("read hash = %s, want %s", got.Metadata.Hash, first.Metadata.Hash)
	}
}

func TestDurableHistorySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	backend := memory.New()
	s, err := New(backend, Config{History: true, HistoryDir: dir, MaxPatches: 5})
	if err != nil {
		t.Fatal(err)
	}
	for v := 1; v <= 2; v++ {
		if _, err := s.Write("/k", map[string]any{"v": float64(v)}); err != nil {
			t.Fatal(err)
		}
	}
	s2, err := New(backend, Config{History: true, HistoryDir: dir, MaxPatches: 5})
	if err != nil {
		t.Fatal(err)
	}
	h, err := s2.History("/k")
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 2 {
		t.Fatalf("durable history length = %d, want 2", len(h))
	}
	if _, err := s2.Write("/k", map[string]any{"v": 3.0}); err != nil {
		t.Fatal(err)
	}
	h2, err := s2.History("/k")
	if err != nil {
		t.Fatal(err)
	}
	if len(h2) != 3 || h2[2].Seq != 3 {
		t.Fatalf("seq should continue across reopen, got %+v", h2)
	}
}
