// Package automation power-cycles devices on sustained load.
//
// Each enabled device runs a single-shot cycle: monitor until power has
// stayed above the threshold for the sustain duration, switch the device
// off, then switch it back on at the configured restart time and disable.
// State persists across restarts; a persisted last-fired date guards the
// restart window so a missed tick at the exact restart minute delays the
// power-on only until the next tick, never a full day.
package automation
