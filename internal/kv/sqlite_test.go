package kv

import (
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundtrip(t *testing.T) {
	s := openStore(t)

	in := sample{Name: "Desk", Count: 3}
	if err := s.Put("lights", in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var out sample
	ok, err := s.Get("lights", &out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected the key to exist")
	}
	if out != in {
		t.Fatalf("roundtrip mismatch: %+v != %+v", out, in)
	}
}

func TestPutOverwrites(t *testing.T) {
	s := openStore(t)

	if err := s.Put("lights", sample{Name: "Old"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put("lights", sample{Name: "New"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var out sample
	if _, err := s.Get("lights", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out.Name != "New" {
		t.Fatalf("expected overwritten value, got %q", out.Name)
	}

	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("overwrite should not add a key, got %v", keys)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := openStore(t)

	var out sample
	ok, err := s.Get("nope", &out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("missing key reported as present")
	}
}

func TestKeysAndClear(t *testing.T) {
	s := openStore(t)

	for _, key := range []string{"a", "b", "c"} {
		if err := s.Put(key, sample{Name: key}); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}
	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %v", keys)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	keys, err = s.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys after clear, got %v", keys)
	}
}
