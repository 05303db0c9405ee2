package cache

import (
	"testing"
	"time"
)

func TestTTLMapExpiry(t *testing.T) {
	m := NewTTLMap[string, int]()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Set("a", 1, now, time.Minute)
	m.Set("b", 2, now, 0)

	if v, ok := m.Get("a", now.Add(30*time.Second)); !ok || v != 1 {
		t.Fatalf("expected fresh value, got %d ok=%v", v, ok)
	}
	if _, ok := m.Get("a", now.Add(time.Minute)); ok {
		t.Fatal("expected entry to expire at its deadline")
	}
	if _, ok := m.Get("b", now.Add(24*time.Hour)); !ok {
		t.Fatal("zero ttl entry must not expire")
	}
	if n := m.Sweep(now.Add(2 * time.Minute)); n != 1 {
		t.Fatalf("expected one swept entry, got %d", n)
	}
	if m.Len() != 1 {
		t.Fatalf("expected one remaining entry, got %d", m.Len())
	}
	m.Clear()
	if m.Len() != 0 {
		t.Fatal("expected empty map after clear")
	}
}

func TestTTLMapNilSafe(t *testing.T) {
	var m *TTLMap[string, string]
	m.Set("k", "v", time.Now(), time.Second)
	if _, ok := m.Get("k", time.Now()); ok {
		t.Fatal("nil map must report misses")
	}
	m.Delete("k")
	if m.Sweep(time.Now()) != 0 || m.Len() != 0 {
		t.Fatal("nil map must be empty")
	}
}
