package sealed

import (
	"strings"
	"testing"

	"github.com/beescroll/nines/nine"
)

func testScroll() *nine.Scroll {
	return &nine.Scroll{
		Key:  "/notes/1",
		Type: "note",
		Data: map[string]any{"text": "hello"},
	}
}

func TestSealUnsealRoundTripWithPassword(t *testing.T) {
	s, err := Seal(nine.SystemClock{}, nine.CryptoRNG{}, testScroll(), "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if !s.HasPassword {
		t.Fatal("expected HasPassword true")
	}
	got, err := Unseal(s, "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if got.Key != "/notes/1" || got.Data["text"] != "hello" {
		t.Fatalf("got = %+v", got)
	}
}

func TestSealUnsealRoundTripNoPassword(t *testing.T) {
	s, err := Seal(nine.SystemClock{}, nine.CryptoRNG{}, testScroll(), "")
	if err != nil {
		t.Fatal(err)
	}
	if s.HasPassword {
		t.Fatal("expected HasPassword false")
	}
	got, err := Unseal(s, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Key != "/notes/1" {
		t.Fatalf("got = %+v", got)
	}
}

func TestUnsealWrongPasswordFails(t *testing.T) {
	s, err := Seal(nine.SystemClock{}, nine.CryptoRNG{}, testScroll(), "right")
	if err != nil {
		t.Fatal(err)
	}
	_, err = Unseal(s, "wrong")
	if err == nil {
		t.Fatal("expected decryption error for wrong password")
	}
	se, ok := err.(*Error)
	if !ok || se.Kind != Decryption {
		t.Fatalf("err = %v, want Decryption", err)
	}
}

func TestSealContentTooLarge(t *testing.T) {
	big := make(map[string]any)
	big["text"] = strings.Repeat("x", MaxPlaintextBytes)
	s := &nine.Scroll{Key: "/big", Type: "note", Data: big}
	_, err := Seal(nine.SystemClock{}, nine.CryptoRNG{}, s, "")
	if err == nil {
		t.Fatal("expected ContentTooLarge error")
	}
	se, ok := err.(*Error)
	if !ok || se.Kind != ContentTooLarge {
		t.Fatalf("err = %v, want ContentTooLarge", err)
	}
}

func TestURIRoundTrip(t *testing.T) {
	s, err := Seal(nine.SystemClock{}, nine.CryptoRNG{}, testScroll(), "pw")
	if err != nil {
		t.Fatal(err)
	}
	uri, err := ToURI(s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(uri, "beescroll://v1/") {
		t.Fatalf("uri = %q, want beescroll://v1/ prefix", uri)
	}
	back, err := FromURI(uri)
	if err != nil {
		t.Fatal(err)
	}
	if back.Ciphertext != s.Ciphertext {
		t.Fatalf("round-tripped ciphertext mismatch")
	}
}

func TestFromURILegacyPrefix(t *testing.T) {
	s, err := Seal(nine.SystemClock{}, nine.CryptoRNG{}, testScroll(), "pw")
	if err != nil {
		t.Fatal(err)
	}
	uri, err := ToURI(s)
	if err != nil {
		t.Fatal(err)
	}
	legacy := "beenote://v1/" + strings.TrimPrefix(uri, "beescroll://v1/")
	back, err := FromURI(legacy)
	if err != nil {
		t.Fatal(err)
	}
	if back.Ciphertext != s.Ciphertext {
		t.Fatalf("legacy round-trip mismatch")
	}
}

func TestFromURIInvalidFormat(t *testing.T) {
	_, err := FromURI("not-a-valid-uri")
	se, ok := err.(*Error)
	if !ok || se.Kind != InvalidFormat {
		t.Fatalf("err = %v, want InvalidFormat", err)
	}
}
