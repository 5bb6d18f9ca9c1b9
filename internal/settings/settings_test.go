package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// ---------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------

func TestDefaults(t *testing.T) {
	s := New("")

	if got := s.ChordDelayMS(); got != 15 {
		t.Errorf("ChordDelayMS() = %d, want 15", got)
	}
	if got := s.ChordTimeoutMS(); got != 500 {
		t.Errorf("ChordTimeoutMS() = %d, want 500", got)
	}
	if !s.DuplicateSuppression() {
		t.Error("DuplicateSuppression() default should be true")
	}
	if s.RawMode() {
		t.Error("RawMode() default should be false")
	}
	if got := s.ArrowUsageUp(); got != 0x29 {
		t.Errorf("ArrowUsageUp() = %#x, want 0x29", got)
	}
}

// ---------------------------------------------------------------------
// Set validation (spec.md §7.4: rejected at the boundary)
// ---------------------------------------------------------------------

func TestSetRange(t *testing.T) {
	cases := []struct {
		name    string
		key     Key
		value   uint32
		wantErr error
	}{
		{"chord delay too low", KeyChordDelayMS, 5, ErrOutOfRange},
		{"chord delay too high", KeyChordDelayMS, 51, ErrOutOfRange},
		{"chord delay in range", KeyChordDelayMS, 10, nil},
		{"bool out of range", KeyRawMode, 2, ErrOutOfRange},
		{"bool in range", KeyRawMode, 1, nil},
		{"unknown key", Key("nonsense"), 1, ErrUnknownKey},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New("")
			err := s.Set(tc.key, tc.value)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("Set(%s, %d) = %v, want nil", tc.key, tc.value, err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("Set(%s, %d) = %v, want %v", tc.key, tc.value, err, tc.wantErr)
			}
		})
	}
}

func TestSetMarksDirty(t *testing.T) {
	s := New("")
	if s.Dirty() {
		t.Fatal("fresh store should not be dirty")
	}
	if err := s.Set(KeyChordDelayMS, 20); err != nil {
		t.Fatal(err)
	}
	if !s.Dirty() {
		t.Error("Set should mark the store dirty")
	}
}

// ---------------------------------------------------------------------
// Commit / Load round-trip
// ---------------------------------------------------------------------

func TestCommitLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.nvs")

	s := New(path)
	if err := s.Set(KeyChordDelayMS, 30); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(KeyArrowMouseEnabled, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit() = %v", err)
	}
	if s.Dirty() {
		t.Error("Commit should clear dirty")
	}

	s2 := New(path)
	if err := s2.Load(); err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if got := s2.ChordDelayMS(); got != 30 {
		t.Errorf("after Load, ChordDelayMS() = %d, want 30", got)
	}
	if !s2.ArrowMouseEnabled() {
		t.Error("after Load, ArrowMouseEnabled() should be true")
	}
	// untouched key keeps its default
	if got := s2.ChordTimeoutMS(); got != 500 {
		t.Errorf("after Load, ChordTimeoutMS() = %d, want untouched default 500", got)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.nvs")
	s := New(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load() on missing file = %v, want nil", err)
	}
	if got := s.ChordDelayMS(); got != 15 {
		t.Errorf("ChordDelayMS() = %d, want default 15", got)
	}
}

func TestCommitIsAtomicNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.nvs")
	s := New(path)
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit() = %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "settings.nvs" {
			t.Errorf("leftover temp file after Commit: %s", e.Name())
		}
	}
}
