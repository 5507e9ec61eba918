package ordered_test

import (
	"encoding/json"
	"testing"

	"github.com/ossyrian/kdzparse/internal/ordered"
)

func TestMapPreservesInsertionOrder(t *testing.T) {
	m := ordered.New[int]()
	m.Set("z", 1)
	m.Set("a", 2)
	m.Set("m", 3)

	want := []string{"z", "a", "m"}
	if got := m.Keys(); !equalSlices(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}

	var visited []string
	m.Range(func(k string, v int) { visited = append(visited, k) })
	if !equalSlices(visited, want) {
		t.Errorf("Range visited %v, want %v", visited, want)
	}
}

func TestMapSetTwiceKeepsOriginalPosition(t *testing.T) {
	m := ordered.New[int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("a", 99)

	if got := m.Keys(); !equalSlices(got, []string{"a", "b"}) {
		t.Errorf("Keys() = %v, want [a b]", got)
	}
	v, ok := m.Get("a")
	if !ok || v != 99 {
		t.Errorf("Get(a) = %d, %v; want 99, true", v, ok)
	}
}

func TestMapMarshalJSONOrder(t *testing.T) {
	m := ordered.New[int]()
	m.Set("z", 1)
	m.Set("a", 2)

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"z":1,"a":2}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestMapUnmarshalJSONRoundTrip(t *testing.T) {
	input := `{"b":10,"a":20,"c":30}`

	m := ordered.New[int]()
	if err := json.Unmarshal([]byte(input), m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if got := m.Keys(); !equalSlices(got, []string{"b", "a", "c"}) {
		t.Errorf("Keys() = %v, want [b a c]", got)
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("re-Marshal error: %v", err)
	}
	if string(data) != input {
		t.Errorf("round trip = %s, want %s", data, input)
	}
}

func TestMapEmptyLen(t *testing.T) {
	m := ordered.New[string]()
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get on empty map returned ok=true")
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
