package dedup

import (
	"slices"
	"testing"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name, phone, expected string
	}{
		{"Ann", "111", "Ann-111"},
		{"ann", "111", "ann-111"},
		{" Ann", "111", " Ann-111"},
		{"", "", "-"},
	}
	for _, tt := range tests {
		if got := Key(tt.name, tt.phone); got != tt.expected {
			t.Errorf("Key(%q, %q) = %q; want %q", tt.name, tt.phone, got, tt.expected)
		}
	}
}

func TestStoreAddIsIdempotent(t *testing.T) {
	s := New()
	if !s.Add("Ann-111") {
		t.Errorf("first Add returned false")
	}
	if s.Add("Ann-111") {
		t.Errorf("second Add returned true")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d; want 1", s.Len())
	}
	if !s.Has("Ann-111") {
		t.Errorf("Has(Ann-111) = false")
	}
	if s.Has("ann-111") {
		t.Errorf("keys must be case sensitive")
	}
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	s := New()
	s.Add("b")
	s.Add("a")
	snapshot := s.Snapshot()
	if !slices.Equal(snapshot, []string{"b", "a"}) {
		t.Errorf("Snapshot() = %v; want insertion order [b a]", snapshot)
	}
	snapshot[0] = "changed"
	s.Add("c")
	if !s.Has("b") || s.Has("changed") {
		t.Errorf("modifying a snapshot must not change the store")
	}
	if len(snapshot) != 2 {
		t.Errorf("snapshot grew with the store")
	}
}

func TestStoreReset(t *testing.T) {
	s := New()
	s.Add("a")
	s.Reset()
	if s.Len() != 0 || s.Has("a") {
		t.Errorf("Reset did not clear the store")
	}
	if !s.Add("a") {
		t.Errorf("Add after Reset returned false")
	}
}
