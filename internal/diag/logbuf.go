// Package diag reproduces the original firmware's per-boot persisted log
// buffer and startup self-checks (original_source/components/m4g_logging,
// components/m4g_diag), adapted to a logrus hook plus file-backed ring for
// a long-running host process instead of flash NVS.
package diag

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// defaultCapacity bounds the ring, mirroring the firmware's fixed-size NVS
// log namespace.
const defaultCapacity = 256

// LogBuffer is a bounded ring of recent formatted log lines plus the three
// independent verbosity toggles the firmware exposes
// (m4g_log_enable_usb/ble/keypress). Entries survive a process restart by
// being flushed to path and read back (and the file removed) by the next
// process's LoadPreviousBoot, mirroring m4g_log_dump_and_clear.
type LogBuffer struct {
	mu       sync.Mutex
	lines    []string
	capacity int
	path     string

	enableUSB      bool
	enableBLE      bool
	enableKeypress bool
}

// NewLogBuffer builds a ring backed by path (empty for in-memory only,
// used by tests). All three per-source toggles default to enabled, matching
// the firmware's default globals.
func NewLogBuffer(path string) *LogBuffer {
	return &LogBuffer{
		capacity:       defaultCapacity,
		path:           path,
		enableUSB:      true,
		enableBLE:      true,
		enableKeypress: true,
	}
}

func (b *LogBuffer) EnableUSB(en bool)      { b.mu.Lock(); b.enableUSB = en; b.mu.Unlock() }
func (b *LogBuffer) EnableBLE(en bool)      { b.mu.Lock(); b.enableBLE = en; b.mu.Unlock() }
func (b *LogBuffer) EnableKeypress(en bool) { b.mu.Lock(); b.enableKeypress = en; b.mu.Unlock() }

func (b *LogBuffer) IsUSBEnabled() bool      { b.mu.Lock(); defer b.mu.Unlock(); return b.enableUSB }
func (b *LogBuffer) IsBLEEnabled() bool      { b.mu.Lock(); defer b.mu.Unlock(); return b.enableBLE }
func (b *LogBuffer) IsKeypressEnabled() bool { b.mu.Lock(); defer b.mu.Unlock(); return b.enableKeypress }

// Append appends one formatted line, dropping the oldest entry once the
// ring is full.
func (b *LogBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.capacity {
		b.lines = b.lines[len(b.lines)-b.capacity:]
	}
}

// DumpAndClear returns a copy of the buffered lines and empties the ring,
// mirroring m4g_log_dump_and_clear (called once at the start of the next
// boot to surface the previous session's tail).
func (b *LogBuffer) DumpAndClear() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	b.lines = nil
	return out
}

// Flush persists the current ring to disk, overwriting any previous
// contents. Unlike internal/settings.Store.Commit this is not required to
// be crash-atomic — a torn write here only costs diagnostic history, never
// correctness — so it writes directly rather than via temp-file rename.
func (b *LogBuffer) Flush() error {
	if b.path == "" {
		return nil
	}
	b.mu.Lock()
	lines := append([]string(nil), b.lines...)
	b.mu.Unlock()

	f, err := os.Create(b.path)
	if err != nil {
		return fmt.Errorf("diag: flush log buffer: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	return w.Flush()
}

// LoadPreviousBoot reads path written by a prior process's Flush, returning
// its lines without altering the current in-memory ring, then removes the
// file so the next restart doesn't redeliver the same lines twice.
func (b *LogBuffer) LoadPreviousBoot() []string {
	if b.path == "" {
		return nil
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		return nil
	}
	_ = os.Remove(b.path)
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		out = append(out, scanner.Text())
	}
	return out
}

// Hook adapts LogBuffer into a logrus.Hook, so every log line the process
// emits is also staged into the ring, matching LOG_AND_SAVE's "log and
// append" pairing in the original firmware.
type Hook struct {
	buf *LogBuffer
}

// NewHook wraps buf as a logrus.Hook.
func NewHook(buf *LogBuffer) *Hook { return &Hook{buf: buf} }

func (h *Hook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *Hook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	h.buf.Append(line)
	return nil
}
