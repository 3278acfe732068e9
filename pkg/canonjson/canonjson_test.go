package canonjson

import (
	"strings"
	"testing"
)

func TestMarshalSortsKeys(t *testing.T) {
	v := map[string]any{"b": 1, "a": 2, "c": 3}
	got, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"a":2,"b":1,"c":3}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestMarshalNestedDeterministic(t *testing.T) {
	type inner struct {
		Z int `json:"z"`
		A int `json:"a"`
	}
	type outer struct {
		Inner inner  `json:"inner"`
		Name  string `json:"name"`
	}
	a, err := Marshal(outer{Inner: inner{Z: 1, A: 2}, Name: "x"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := Marshal(outer{Inner: inner{Z: 1, A: 2}, Name: "x"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("two marshals of the same value differ: %s vs %s", a, b)
	}
	if !strings.Contains(string(a), `"a":2,"z":1`) {
		t.Fatalf("expected sorted inner keys, got %s", a)
	}
}

func TestCanonicalizeJSONRejectsDuplicateKeys(t *testing.T) {
	_, err := CanonicalizeJSON([]byte(`{"a":1,"a":2}`))
	if err == nil {
		t.Fatal("expected duplicate key error, got nil")
	}
}

func TestCanonicalizeJSONRejectsBOM(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{}`)...)
	if _, err := CanonicalizeJSON(raw); err == nil {
		t.Fatal("expected BOM rejection, got nil")
	}
}

func TestCanonicalizeJSONRejectsTrailingData(t *testing.T) {
	_, err := CanonicalizeJSON([]byte(`{}{}`))
	if err == nil {
		t.Fatal("expected trailing-data error, got nil")
	}
}

func TestEncodeNumberIntegerNoLeadingZero(t *testing.T) {
	got, err := CanonicalizeJSON([]byte(`0`))
	if err != nil {
		t.Fatalf("CanonicalizeJSON: %v", err)
	}
	if string(got) != "0" {
		t.Fatalf("got %s, want 0", got)
	}
}

func TestEncodeNumberNegative(t *testing.T) {
	got, err := CanonicalizeJSON([]byte(`-42`))
	if err != nil {
		t.Fatalf("CanonicalizeJSON: %v", err)
	}
	if string(got) != "-42" {
		t.Fatalf("got %s, want -42", got)
	}
}

func TestEncodeNumberFloatExponentSign(t *testing.T) {
	got, err := CanonicalizeJSON([]byte(`1e20`))
	if err != nil {
		t.Fatalf("CanonicalizeJSON: %v", err)
	}
	if strings.Contains(string(got), "+") {
		t.Fatalf("canonical exponent should drop '+', got %s", got)
	}
}

func TestStringEscapeMinimal(t *testing.T) {
	got, err := Marshal("a/b<c>d&e\n")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `"a/b<c>d&e\n"`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestMarshalRejectsFunc(t *testing.T) {
	v := map[string]any{"f": func() {}}
	if _, err := Marshal(v); err == nil {
		t.Fatal("expected error marshaling a function value")
	}
}

func TestMarshalRejectsCycle(t *testing.T) {
	type node struct {
		Next *node `json:"next"`
	}
	n := &node{}
	n.Next = n
	if _, err := Marshal(n); err == nil {
		t.Fatal("expected error marshaling a cyclic value")
	}
}

func TestHashHexStable(t *testing.T) {
	h1, canon1, err := MarshalHash(map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("MarshalHash: %v", err)
	}
	h2, canon2, err := MarshalHash(map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("MarshalHash: %v", err)
	}
	if h1 != h2 || string(canon1) != string(canon2) {
		t.Fatalf("expected stable hash/canonical bytes")
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h1))
	}
}
