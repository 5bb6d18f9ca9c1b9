package bridge

// ---------------------------------------------------------------------
// Shared test fakes
// ---------------------------------------------------------------------

// fakeSettings implements SettingsAccessor with the scenario defaults of
// spec.md §8: chord_delay_ms=15, chord_timeout_ms=500,
// key_repeat_delay_ms=500, key_repeat_rate_ms=50, arrow-to-mouse off.
type fakeSettings struct {
	chordDelayMS             int
	chordTimeoutMS           int
	keyRepeatDelayMS         int
	keyRepeatRateMS          int
	chordPressDeviationMaxMS int

	rawMode               bool
	duplicateSuppression  bool
	deviationTracking     bool
	keyRepeatEnabled      bool
	arrowMouseEnabled     bool

	arrowUp, arrowDown, arrowLeft, arrowRight uint8

	requireBothHalves bool
}

func defaultFakeSettings() *fakeSettings {
	return &fakeSettings{
		chordDelayMS:             15,
		chordTimeoutMS:           500,
		keyRepeatDelayMS:         500,
		keyRepeatRateMS:          50,
		chordPressDeviationMaxMS: 120,
		duplicateSuppression:     true,
		deviationTracking:        true,
		keyRepeatEnabled:         true,
	}
}

func (s *fakeSettings) ChordDelayMS() int             { return s.chordDelayMS }
func (s *fakeSettings) ChordTimeoutMS() int           { return s.chordTimeoutMS }
func (s *fakeSettings) KeyRepeatDelayMS() int         { return s.keyRepeatDelayMS }
func (s *fakeSettings) KeyRepeatRateMS() int          { return s.keyRepeatRateMS }
func (s *fakeSettings) ChordPressDeviationMaxMS() int { return s.chordPressDeviationMaxMS }
func (s *fakeSettings) RawMode() bool                 { return s.rawMode }
func (s *fakeSettings) DuplicateSuppression() bool    { return s.duplicateSuppression }
func (s *fakeSettings) DeviationTracking() bool       { return s.deviationTracking }
func (s *fakeSettings) KeyRepeatEnabled() bool        { return s.keyRepeatEnabled }
func (s *fakeSettings) ArrowMouseEnabled() bool       { return s.arrowMouseEnabled }
func (s *fakeSettings) ArrowUsageUp() uint8           { return s.arrowUp }
func (s *fakeSettings) ArrowUsageDown() uint8         { return s.arrowDown }
func (s *fakeSettings) ArrowUsageLeft() uint8         { return s.arrowLeft }
func (s *fakeSettings) ArrowUsageRight() uint8        { return s.arrowRight }
func (s *fakeSettings) RequireBothHalves() bool       { return s.requireBothHalves }

// fakeStatus implements StatusAccessor.
type fakeStatus struct {
	chordingPresent  bool
	bothHalves       bool
}

func (s *fakeStatus) ChordingDevicePresent() bool { return s.chordingPresent }
func (s *fakeStatus) BothHalvesPresent() bool     { return s.bothHalves }

// fakeSink records every report sent to it, optionally failing sends.
type fakeSink struct {
	keyboardReports [][8]byte
	mouseReports    [][3]byte
	failKeyboard    bool
	failMouse       bool
}

func (s *fakeSink) SendKeyboard(report [8]byte) bool {
	if s.failKeyboard {
		return false
	}
	s.keyboardReports = append(s.keyboardReports, report)
	return true
}

func (s *fakeSink) SendMouse(report [3]byte) bool {
	if s.failMouse {
		return false
	}
	s.mouseReports = append(s.mouseReports, report)
	return true
}

// recordingLogger captures warnings for tests that assert on error paths.
type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) Debugf(string, ...any) {}
func (l *recordingLogger) Warnf(format string, args ...any) {
	l.warnings = append(l.warnings, format)
}

// newTestCore builds a Core wired to fresh fakes for ingest-path tests.
func newTestCore() (*Core, *fakeSink, *fakeSettings, *fakeStatus) {
	sink := &fakeSink{}
	settings := defaultFakeSettings()
	status := &fakeStatus{chordingPresent: true, bothHalves: true}
	core := NewCore(sink, settings, status, nil)
	return core, sink, settings, status
}

func kbReport(mods uint8, keys ...uint8) []byte {
	out := make([]byte, 8)
	out[0] = mods
	for i, k := range keys {
		if i >= MaxKeys {
			break
		}
		out[2+i] = k
	}
	return out
}
