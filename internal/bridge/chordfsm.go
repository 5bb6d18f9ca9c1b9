package bridge

import (
	"context"
	"fmt"

	"github.com/qmuntal/stateless"
)

// chordState names the four states of spec.md §4.4.
type chordState string

const (
	chordIdle            chordState = "IDLE"
	chordCollecting      chordState = "COLLECTING"
	chordExpectingOutput chordState = "EXPECTING_OUTPUT"
	chordPassingOutput   chordState = "PASSING_OUTPUT"
)

// chordTrigger names one row of the transition table in spec.md §4.4. The
// guard for each row is evaluated in Go by process() before firing — the
// trigger itself already encodes the guard's outcome, since every guard
// here depends on buffered timestamps process() holds, not on data a
// generic stateless.GuardFunc could inspect in isolation.
type chordTrigger string

const (
	trIdleActivityNoChord   chordTrigger = "idle/activity/no-chord"
	trIdleActivityChordStart chordTrigger = "idle/activity/chord-start"
	trIdleReleaseSuppressed chordTrigger = "idle/release/suppressed"
	trIdleRelease           chordTrigger = "idle/release"

	trCollectingAdd         chordTrigger = "collecting/add"
	trCollectingFastRelease chordTrigger = "collecting/fast-release"
	trCollectingEnterGrace  chordTrigger = "collecting/enter-grace"

	trExpectingTimeout     chordTrigger = "expecting/timeout"
	trExpectingChordOutput chordTrigger = "expecting/chord-output"
	trExpectingExtendGrace chordTrigger = "expecting/extend-grace"

	trPassingContinue       chordTrigger = "passing/continue"
	trPassingBackToExpecting chordTrigger = "passing/back-to-expecting"

	trCollectingSeizedByRepeat chordTrigger = "collecting/seized-by-repeat"
)

// chordBuffer accumulates keys while COLLECTING (spec.md §3 "Chord buffer").
type chordBuffer struct {
	keys             []uint8
	modifiers        uint8
	firstPressTick   Tick
	lastPressTick    Tick
	peakSimultaneous int
	collectStartTick Tick
	haveFirstPress   bool
}

func (b *chordBuffer) reset() {
	*b = chordBuffer{}
}

func (b *chordBuffer) add(modifiers uint8, keys [MaxKeys]uint8, n int, now Tick) {
	b.modifiers |= modifiers
	for i := 0; i < n; i++ {
		k := keys[i]
		if k == 0 {
			continue
		}
		found := false
		for _, existing := range b.keys {
			if existing == k {
				found = true
				break
			}
		}
		if !found && len(b.keys) < 16 {
			b.keys = append(b.keys, k)
		}
	}
	if !b.haveFirstPress {
		b.firstPressTick = now
		b.haveFirstPress = true
	}
	b.lastPressTick = now
	if n > b.peakSimultaneous {
		b.peakSimultaneous = n
	}
}

// deviationQuality labels a chord's press-timing spread per spec.md §4.4.
func deviationQuality(firstPress, lastPress Tick, peak int, deviationMaxMS int) string {
	n := peak
	if n < 1 {
		n = 1
	}
	spread := lastPress.Since(firstPress)
	switch {
	case spread <= int64(10*(n-1)):
		return "PERFECT"
	case spread <= int64(25*(n-1)):
		return "GOOD"
	case spread > int64(deviationMaxMS):
		return "POOR"
	default:
		return "ACCEPTABLE"
	}
}

// keyboardFrame is one keyboard report the FSM decided to emit; process()
// can return more than one per cycle (e.g. a fast single-key press followed
// immediately by its release, spec.md §8 scenario S3).
type keyboardFrame struct {
	modifiers uint8
	keys      [MaxKeys]uint8
	n         int
}

func frameOf(modifiers uint8, keys [MaxKeys]uint8, n int) keyboardFrame {
	return keyboardFrame{modifiers: modifiers, keys: keys, n: n}
}

var releaseFrame = keyboardFrame{}

// chordOutcome reports side effects of one process() call that bridge.go
// needs to relay to the key filter, the stats counters, and the key-repeat
// engine.
type chordOutcome struct {
	frames []keyboardFrame

	armBackspaceFilter bool
	disarmFilter        bool

	enteredExpectingMultiKey bool // feeds chord_reports_delayed (spec.md §9 Open Question)
	chordProcessed           bool // feeds chord_reports_processed

	// seedRepeatKey/seedRepeatMods request the key-repeat engine arm on
	// this single key even though the FSM itself did not emit it directly
	// (spec.md §4.4: "if buffer=1 then also set repeat-active").
	seedRepeat     bool
	seedRepeatKey  uint8
	seedRepeatMods uint8

	// releaseWhileRepeatArmed signals the IDLE/¬A/repeat-armed row of
	// spec.md §4.4 ("suppress — let repeat engine handle release"): the FSM
	// itself emits nothing, but the repeat engine must disarm and the Core
	// must still emit the cleanup zero report, since the physical release
	// would otherwise never reach the Sink.
	releaseWhileRepeatArmed bool
}

// chordFSM drives the four-state machine of spec.md §4.4 on top of
// github.com/qmuntal/stateless, adapted (per SPEC_FULL.md §2) to fire
// synchronously with no goroutines or per-trigger timeouts: every public
// method here is called from a single cooperative thread of control, as
// spec.md §5 requires of the whole core.
type chordFSM struct {
	machine    *stateless.StateMachine
	buf        chordBuffer
	expectTick Tick
}

func newChordFSM() *chordFSM {
	f := &chordFSM{}
	f.machine = stateless.NewStateMachine(chordIdle)

	f.machine.Configure(chordIdle).
		PermitReentry(trIdleActivityNoChord).
		Permit(trIdleActivityChordStart, chordCollecting).
		PermitReentry(trIdleReleaseSuppressed).
		PermitReentry(trIdleRelease)

	f.machine.Configure(chordCollecting).
		PermitReentry(trCollectingAdd).
		Permit(trCollectingFastRelease, chordIdle).
		Permit(trCollectingEnterGrace, chordExpectingOutput).
		Permit(trCollectingSeizedByRepeat, chordIdle)

	f.machine.Configure(chordExpectingOutput).
		Permit(trExpectingTimeout, chordIdle).
		Permit(trExpectingChordOutput, chordPassingOutput).
		PermitReentry(trExpectingExtendGrace)

	f.machine.Configure(chordPassingOutput).
		PermitReentry(trPassingContinue).
		Permit(trPassingBackToExpecting, chordExpectingOutput)

	return f
}

// state returns the FSM's current state.
func (f *chordFSM) state() chordState {
	s, _ := f.machine.State(context.Background())
	cs, _ := s.(chordState)
	return cs
}

// fire advances the machine. A returned error means process() computed a
// trigger illegal for the current state — an internal bug, never a
// consequence of external input — so the caller logs it and treats the
// cycle as a no-op rather than letting the core crash (spec.md §7:
// "nothing in the core is fatal").
func (f *chordFSM) fire(trigger chordTrigger) error {
	if err := f.machine.Fire(trigger); err != nil {
		return fmt.Errorf("chord fsm: %s illegal from %s: %w", trigger, f.state(), err)
	}
	return nil
}

// process runs one aggregate cycle through the FSM and reports what should
// be emitted and which side effects follow, per the transition table in
// spec.md §4.4.
func (f *chordFSM) process(
	agg aggregatedState,
	useChord bool,
	repeatArmed bool,
	settings SettingsAccessor,
	log Logger,
	now Tick,
) chordOutcome {
	active := agg.hasActivity()

	switch f.state() {
	case chordIdle:
		if active {
			if useChord {
				f.buf.reset()
				f.buf.collectStartTick = now
				f.buf.add(agg.modifiers, agg.keys, agg.keyCount, now)
				if err := f.fire(trIdleActivityChordStart); err != nil {
					log.Warnf("%v", err)
					return chordOutcome{}
				}
				return chordOutcome{}
			}
			if err := f.fire(trIdleActivityNoChord); err != nil {
				log.Warnf("%v", err)
			}
			return chordOutcome{frames: []keyboardFrame{frameOf(agg.modifiers, agg.keys, agg.keyCount)}}
		}
		if repeatArmed {
			if err := f.fire(trIdleReleaseSuppressed); err != nil {
				log.Warnf("%v", err)
			}
			return chordOutcome{releaseWhileRepeatArmed: true}
		}
		if err := f.fire(trIdleRelease); err != nil {
			log.Warnf("%v", err)
		}
		return chordOutcome{frames: []keyboardFrame{releaseFrame}}

	case chordCollecting:
		if active {
			f.buf.add(agg.modifiers, agg.keys, agg.keyCount, now)
			if err := f.fire(trCollectingAdd); err != nil {
				log.Warnf("%v", err)
			}
			return chordOutcome{}
		}

		held := now.Since(f.buf.collectStartTick)
		if len(f.buf.keys) == 1 && held < int64(settings.ChordTimeoutMS()) {
			key := f.buf.keys[0]
			mods := f.buf.modifiers
			f.buf.reset()
			if err := f.fire(trCollectingFastRelease); err != nil {
				log.Warnf("%v", err)
			}
			var keys [MaxKeys]uint8
			keys[0] = key
			return chordOutcome{frames: []keyboardFrame{frameOf(mods, keys, 1), releaseFrame}}
		}

		multiKey := len(f.buf.keys) >= 2
		seed := len(f.buf.keys) == 1
		var seedKey, seedMods uint8
		if seed {
			seedKey = f.buf.keys[0]
			seedMods = f.buf.modifiers
		}
		f.expectTick = now
		if err := f.fire(trCollectingEnterGrace); err != nil {
			log.Warnf("%v", err)
		}
		return chordOutcome{
			armBackspaceFilter:       true,
			enteredExpectingMultiKey: multiKey,
			seedRepeat:               seed,
			seedRepeatKey:            seedKey,
			seedRepeatMods:           seedMods,
		}

	case chordExpectingOutput:
		if active {
			f.chordReleaseDeviation(settings, log)
			frame := frameOf(agg.modifiers, agg.keys, agg.keyCount)
			f.buf.reset()
			if err := f.fire(trExpectingChordOutput); err != nil {
				log.Warnf("%v", err)
			}
			return chordOutcome{frames: []keyboardFrame{frame}, chordProcessed: true, disarmFilter: false}
		}
		if now.Since(f.expectTick) >= int64(settings.ChordDelayMS()) {
			f.buf.reset()
			if err := f.fire(trExpectingTimeout); err != nil {
				log.Warnf("%v", err)
			}
			return chordOutcome{disarmFilter: true}
		}
		return chordOutcome{}

	case chordPassingOutput:
		if active {
			if err := f.fire(trPassingContinue); err != nil {
				log.Warnf("%v", err)
			}
			return chordOutcome{frames: []keyboardFrame{frameOf(agg.modifiers, agg.keys, agg.keyCount)}}
		}
		f.expectTick = now
		if err := f.fire(trPassingBackToExpecting); err != nil {
			log.Warnf("%v", err)
		}
		return chordOutcome{frames: []keyboardFrame{releaseFrame}}
	}

	return chordOutcome{}
}

// onFilteredBackspace extends the EXPECTING_OUTPUT grace window, per
// spec.md §4.4 ("filtered-backspace tick -> expect_tick = now").
func (f *chordFSM) onFilteredBackspace(now Tick, log Logger) {
	if f.state() != chordExpectingOutput {
		return
	}
	f.expectTick = now
	if err := f.fire(trExpectingExtendGrace); err != nil {
		log.Warnf("%v", err)
	}
}

// checkTimeout is the tick-driven half of the EXPECTING_OUTPUT row of
// spec.md §4.4 ("timer advancement is done by reading a monotonic tick at
// each entry, not by registering callbacks"). It is only ever called from
// Core.Tick, never from the ingest path, so an idle IDLE/COLLECTING state
// is never re-evaluated (and re-emitted) on every 10ms tick.
func (f *chordFSM) checkTimeout(settings SettingsAccessor, log Logger, now Tick) *chordOutcome {
	if f.state() != chordExpectingOutput {
		return nil
	}
	if now.Since(f.expectTick) < int64(settings.ChordDelayMS()) {
		return nil
	}
	f.buf.reset()
	if err := f.fire(trExpectingTimeout); err != nil {
		log.Warnf("%v", err)
		return nil
	}
	return &chordOutcome{disarmFilter: true}
}

// seizeSingleFromCollecting implements "If the FSM is COLLECTING with a
// single-key buffer and collect_start_tick is older than
// key_repeat_delay_ms, the engine seizes the key" (spec.md §4.7). On
// success the FSM is forced back to IDLE and the seized key/modifiers are
// returned for the key-repeat engine to arm and to emit as a press.
func (f *chordFSM) seizeSingleFromCollecting(repeatDelayMS int, log Logger, now Tick) (key, mods uint8, ok bool) {
	if f.state() != chordCollecting || len(f.buf.keys) != 1 {
		return 0, 0, false
	}
	if now.Since(f.buf.collectStartTick) < int64(repeatDelayMS) {
		return 0, 0, false
	}
	key, mods = f.buf.keys[0], f.buf.modifiers
	f.buf.reset()
	if err := f.fire(trCollectingSeizedByRepeat); err != nil {
		log.Warnf("%v", err)
		return 0, 0, false
	}
	return key, mods, true
}

func (f *chordFSM) chordReleaseDeviation(settings SettingsAccessor, log Logger) {
	if !settings.DeviationTracking() {
		return
	}
	q := deviationQuality(f.buf.firstPressTick, f.buf.lastPressTick, f.buf.peakSimultaneous, settings.ChordPressDeviationMaxMS())
	log.Debugf("chord deviation quality=%s peak=%d spread=%dms", q, f.buf.peakSimultaneous, f.buf.lastPressTick.Since(f.buf.firstPressTick))
}
