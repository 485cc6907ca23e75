package patch

import "testing"

func TestDiffGenesisIsSingleReplace(t *testing.T) {
	ops := Diff(nil, map[string]any{"a": 1})
	if len(ops) != 1 || ops[0].Op != Replace || ops[0].Path != "" {
		t.Fatalf("genesis diff = %+v", ops)
	}
}

func TestDiffAddRemoveReplace(t *testing.T) {
	prior := map[string]any{"a": 1, "b": 2}
	current := map[string]any{"a": 1, "c": 3}
	ops := Diff(prior, current)
	byPath := map[string]Op{}
	for _, op := range ops {
		byPath[op.Path] = op
	}
	if op, ok := byPath["/b"]; !ok || op.Op != Remove {
		t.Fatalf("expected Remove /b, got %+v", byPath)
	}
	if op, ok := byPath["/c"]; !ok || op.Op != Add {
		t.Fatalf("expected Add /c, got %+v", byPath)
	}
	if _, ok := byPath["/a"]; ok {
		t.Fatalf("expected no op for unchanged key /a, got %+v", byPath)
	}
}

func TestDiffNestedMapRecurses(t *testing.T) {
	prior := map[string]any{"nested": map[string]any{"x": 1}}
	current := map[string]any{"nested": map[string]any{"x": 2}}
	ops := Diff(prior, current)
	if len(ops) != 1 || ops[0].Op != Replace || ops[0].Path != "/nested/x" {
		t.Fatalf("ops = %+v", ops)
	}
}

func TestDiffListsAreCoarse(t *testing.T) {
	prior := map[string]any{"list": []any{1, 2, 3}}
	current := map[string]any{"list": []any{1, 2}}
	ops := Diff(prior, current)
	if len(ops) != 1 || ops[0].Op != Replace || ops[0].Path != "/list" {
		t.Fatalf("expected single coarse Replace, got %+v", ops)
	}
}

func TestApplyAddRemoveReplace(t *testing.T) {
	data := map[string]any{"a": 1, "b": 2}
	ops := []Op{
		{Op: Remove, Path: "/b"},
		{Op: Add, Path: "/c", Value: 3.0},
		{Op: Replace, Path: "/a", Value: 10.0},
	}
	out, err := Apply(data, ops)
	if err != nil {
		t.Fatal(err)
	}
	if out["a"] != 10.0 || out["c"] != 3.0 {
		t.Fatalf("out = %+v", out)
	}
	if _, ok := out["b"]; ok {
		t.Fatalf("expected b removed, got %+v", out)
	}
	if data["a"] != 1 {
		t.Fatalf("Apply mutated input data: %+v", data)
	}
}

func TestApplyMoveAndCopy(t *testing.T) {
	data := map[string]any{"a": map[string]any{"x": 1.0}}
	ops := []Op{
		{Op: Copy, From: "/a/x", Path: "/a/y"},
		{Op: Move, From: "/a/x", Path: "/b"},
	}
	out, err := Apply(data, ops)
	if err != nil {
		t.Fatal(err)
	}
	a := out["a"].(map[string]any)
	if _, ok := a["x"]; ok {
		t.Fatalf("expected /a/x removed after move, got %+v", a)
	}
	if a["y"] != 1.0 {
		t.Fatalf("expected /a/y copied, got %+v", a)
	}
	if out["b"] != 1.0 {
		t.Fatalf("expected /b from move, got %+v", out)
	}
}

func TestApplyTestFailure(t *testing.T) {
	data := map[string]any{"a": 1.0}
	_, err := Apply(data, []Op{{Op: Test, Path: "/a", Value: 2.0}})
	if err == nil {
		t.Fatal("expected TestFailed error")
	}
	pe, ok := err.(*Error)
	if !ok || pe.Kind != TestFailed {
		t.Fatalf("err = %v, want TestFailed", err)
	}
}

func TestApplyRemoveMissingIsPathNotFound(t *testing.T) {
	data := map[string]any{}
	_, err := Apply(data, []Op{{Op: Remove, Path: "/missing"}})
	pe, ok := err.(*Error)
	if !ok || pe.Kind != PathNotFound {
		t.Fatalf("err = %v, want PathNotFound", err)
	}
}

func TestApplyThroughScalarIsTypeMismatch(t *testing.T) {
	data := map[string]any{"a": 1.0}
	_, err := Apply(data, []Op{{Op: Add, Path: "/a/b", Value: 1.0}})
	pe, ok := err.(*Error)
	if !ok || pe.Kind != TypeMismatch {
		t.Fatalf("err = %v, want TypeMismatch", err)
	}
}

func TestPointerEscaping(t *testing.T) {
	if got := EscapePointerToken("a/b~c"); got != "a~1b~0c" {
		t.Fatalf("escape = %q", got)
	}
	if got := UnescapePointerToken("a~1b~0c"); got != "a/b~c" {
		t.Fatalf("unescape = %q", got)
	}
}

func TestVerify(t *testing.T) {
	if !Verify("", true, "") {
		t.Fatal("genesis should verify against empty parent")
	}
	if Verify("", true, "somehash") {
		t.Fatal("genesis should not verify against non-empty parent")
	}
	if !Verify("h1", false, "h1") {
		t.Fatal("matching hash should verify")
	}
	if Verify("h1", false, "h2") {
		t.Fatal("mismatched hash should not verify")
	}
}
