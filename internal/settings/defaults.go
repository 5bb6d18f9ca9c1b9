package settings

// defaultEntry pairs a schema key with its default value.
type defaultEntry struct {
	key   Key
	value uint32
}

// defaultEntries seeds a fresh Store, chosen from the mid-points spec.md §8
// uses for its scenarios and the Open Question decision in SPEC_FULL.md §5
// (arrow-mouse usage codes default to Esc/Backspace/Slash/Period).
var defaultEntries = []defaultEntry{
	{KeyChordDelayMS, 15},
	{KeyChordTimeoutMS, 500},
	{KeyKeyRepeatDelayMS, 500},
	{KeyKeyRepeatRateMS, 50},
	{KeyChordPressDeviationMaxMS, 120},

	{KeyRawMode, 0},
	{KeyDuplicateSuppression, 1},
	{KeyDeviationTracking, 1},
	{KeyKeyRepeatEnabled, 1},
	{KeyArrowMouseEnabled, 0},
	{KeyRequireBothHalves, 0},

	{KeyArrowUsageUp, 0x29},
	{KeyArrowUsageDown, 0x2A},
	{KeyArrowUsageLeft, 0x38},
	{KeyArrowUsageRight, 0x2E},
}
