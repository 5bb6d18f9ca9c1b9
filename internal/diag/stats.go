package diag

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Checker groups the collaborator probes a startup self-check needs,
// mirroring m4g_diag_run_startup_checks's five numbered steps.
type Checker struct {
	// SettingsReadable reports whether the persisted settings store could
	// be opened (step 1, "NVS accessibility").
	SettingsReadable func() bool
	// BLEAdapterPresent reports whether a BLE adapter/sink is registered
	// (step 2, "BLE notification dry run").
	BLEAdapterPresent func() bool
	// InputCollaboratorCount reports how many USB/peer input sources are
	// registered (step 4, "Initial USB HID count").
	InputCollaboratorCount func() int
}

// RunStartupChecks runs the probes in Checker and logs a summary line per
// check, matching the original firmware's LOG_AND_SAVE(true, I, ...) calls.
// It never fails the boot — a missing collaborator is logged and the
// process continues, since "nothing in the core is fatal" applies to the
// whole orchestrator, not just internal/bridge.
func RunStartupChecks(log logrus.FieldLogger, c Checker) {
	log.Info("running startup diagnostics")

	if c.SettingsReadable != nil {
		if c.SettingsReadable() {
			log.Info("settings store: readable")
		} else {
			log.Warn("settings store: not readable, falling back to defaults")
		}
	}

	if c.BLEAdapterPresent != nil {
		if c.BLEAdapterPresent() {
			log.Info("BLE adapter: present")
		} else {
			log.Warn("BLE adapter: not present (expected if not yet connected)")
		}
	}

	if c.InputCollaboratorCount != nil {
		n := c.InputCollaboratorCount()
		log.Infof("input collaborators registered: %d", n)
		if n == 0 {
			log.Warn("no input collaborator registered at startup")
		}
	}

	log.Info("diagnostics complete")
}

// FormatStats renders an arbitrary stats struct (bridge.Stats) for periodic
// logging, avoiding an import cycle back into internal/bridge.
func FormatStats(s any) string {
	return fmt.Sprintf("%+v", s)
}
