// Package settings implements the NVS-like persisted settings namespace of
// spec.md §3/§6: a small set of integer and boolean keys, read constantly by
// the core through bridge.SettingsAccessor, written occasionally through
// Set, and committed to disk explicitly (not per-set) to model the
// firmware's flash-endurance concern.
package settings

import (
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map"
)

// Key names one entry in the namespace, matching spec.md §3 field names.
type Key string

const (
	KeyChordDelayMS             Key = "chord_delay_ms"
	KeyChordTimeoutMS           Key = "chord_timeout_ms"
	KeyKeyRepeatDelayMS         Key = "key_repeat_delay_ms"
	KeyKeyRepeatRateMS          Key = "key_repeat_rate_ms"
	KeyChordPressDeviationMaxMS Key = "chord_press_deviation_max_ms"

	KeyRawMode               Key = "raw_mode"
	KeyDuplicateSuppression  Key = "duplicate_suppression"
	KeyDeviationTracking     Key = "deviation_tracking"
	KeyKeyRepeatEnabled      Key = "key_repeat_enabled"
	KeyArrowMouseEnabled     Key = "arrow_mouse_enabled"
	KeyRequireBothHalves     Key = "require_both_halves"

	KeyArrowUsageUp    Key = "arrow_usage_up"
	KeyArrowUsageDown  Key = "arrow_usage_down"
	KeyArrowUsageLeft  Key = "arrow_usage_left"
	KeyArrowUsageRight Key = "arrow_usage_right"
)

// field describes one entry's type and valid range, for the boundary check
// of spec.md §7.4 ("rejected at the settings boundary, not in core").
type field struct {
	min, max uint32
	isBool   bool
}

var schema = map[Key]field{
	KeyChordDelayMS:             {min: 10, max: 50},
	KeyChordTimeoutMS:           {min: 100, max: 2000},
	KeyKeyRepeatDelayMS:         {min: 1, max: 5000},
	KeyKeyRepeatRateMS:          {min: 1, max: 1000},
	KeyChordPressDeviationMaxMS: {min: 0, max: 5000},

	KeyRawMode:              {isBool: true},
	KeyDuplicateSuppression: {isBool: true},
	KeyDeviationTracking:    {isBool: true},
	KeyKeyRepeatEnabled:     {isBool: true},
	KeyArrowMouseEnabled:    {isBool: true},
	KeyRequireBothHalves:    {isBool: true},

	KeyArrowUsageUp:    {min: 0, max: 255},
	KeyArrowUsageDown:  {min: 0, max: 255},
	KeyArrowUsageLeft:  {min: 0, max: 255},
	KeyArrowUsageRight: {min: 0, max: 255},
}

// Store is the persisted settings namespace. Values are kept as 32-bit
// unsigned integers in an orderedmap.OrderedMap so the on-disk file is
// written in a deterministic key order. Each entry is keyed by its Key name
// string. Store satisfies bridge.SettingsAccessor.
type Store struct {
	mu      sync.RWMutex
	values  *orderedmap.OrderedMap
	path    string
	dirty   bool
}

// New builds a Store seeded with defaults (see defaults.go) and backed by
// path for Commit/Load. path may be empty for a purely in-memory Store
// (used by tests).
func New(path string) *Store {
	s := &Store{values: orderedmap.New(), path: path}
	for _, d := range defaultEntries {
		s.values.Set(string(d.key), d.value)
	}
	return s
}

func (s *Store) getUint(k Key) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values.Get(string(k))
	if !ok {
		return 0
	}
	return v.(uint32)
}

func (s *Store) getBool(k Key) bool {
	return s.getUint(k) != 0
}

// Set validates and writes one key, per spec.md §7.4. It does not persist
// to disk; call Commit for that.
func (s *Store) Set(k Key, v uint32) error {
	f, ok := schema[k]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, k)
	}
	if f.isBool {
		if v != 0 && v != 1 {
			return fmt.Errorf("%w: %s=%d (bool must be 0 or 1)", ErrOutOfRange, k, v)
		}
	} else if v < f.min || v > f.max {
		return fmt.Errorf("%w: %s=%d (want %d..%d)", ErrOutOfRange, k, v, f.min, f.max)
	}
	s.mu.Lock()
	s.values.Set(string(k), v)
	s.dirty = true
	s.mu.Unlock()
	return nil
}

// bridge.SettingsAccessor implementation.

func (s *Store) ChordDelayMS() int             { return int(s.getUint(KeyChordDelayMS)) }
func (s *Store) ChordTimeoutMS() int           { return int(s.getUint(KeyChordTimeoutMS)) }
func (s *Store) KeyRepeatDelayMS() int         { return int(s.getUint(KeyKeyRepeatDelayMS)) }
func (s *Store) KeyRepeatRateMS() int          { return int(s.getUint(KeyKeyRepeatRateMS)) }
func (s *Store) ChordPressDeviationMaxMS() int { return int(s.getUint(KeyChordPressDeviationMaxMS)) }

func (s *Store) RawMode() bool              { return s.getBool(KeyRawMode) }
func (s *Store) DuplicateSuppression() bool { return s.getBool(KeyDuplicateSuppression) }
func (s *Store) DeviationTracking() bool    { return s.getBool(KeyDeviationTracking) }
func (s *Store) KeyRepeatEnabled() bool     { return s.getBool(KeyKeyRepeatEnabled) }
func (s *Store) ArrowMouseEnabled() bool    { return s.getBool(KeyArrowMouseEnabled) }
func (s *Store) RequireBothHalves() bool    { return s.getBool(KeyRequireBothHalves) }

func (s *Store) ArrowUsageUp() uint8    { return uint8(s.getUint(KeyArrowUsageUp)) }
func (s *Store) ArrowUsageDown() uint8  { return uint8(s.getUint(KeyArrowUsageDown)) }
func (s *Store) ArrowUsageLeft() uint8  { return uint8(s.getUint(KeyArrowUsageLeft)) }
func (s *Store) ArrowUsageRight() uint8 { return uint8(s.getUint(KeyArrowUsageRight)) }
