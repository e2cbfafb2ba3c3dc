package automation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Phase is the automation state machine position for one device.
type Phase string

const (
	// PhaseDisabled means automation is off; no ticks mutate the device.
	PhaseDisabled Phase = "disabled"
	// PhaseMonitoring means the controller is watching for sustained load.
	PhaseMonitoring Phase = "monitoring"
	// PhaseStandby means the controller has powered the device off and is
	// waiting for the restart time.
	PhaseStandby Phase = "standby"
)

// State is one device's persisted automation record.
//
// Created lazily on first enable, destroyed only by explicit reset. The
// transient timers (DeviceOnSince, ThresholdMetSince) are cleared atomically
// with any transition into the disabled phase so no stale timer can fire
// against a disabled device.
type State struct {
	DeviceID          string
	Enabled           bool
	Phase             Phase
	RestartTime       string // HH:MM, local to the site timezone
	ThresholdWatts    float64
	SustainSeconds    int
	DeviceOnSince     *time.Time
	ThresholdMetSince *time.Time
	TurnedOffAt       *time.Time
	LastRestartDate   string // YYYY-MM-DD, guards the restart against double-firing
	LastMessage       string
	UpdatedAt         time.Time
}

// Sustain returns the sustain duration.
func (s *State) Sustain() time.Duration {
	return time.Duration(s.SustainSeconds) * time.Second
}

// DeepCopy returns an independent copy of the state.
func (s *State) DeepCopy() *State {
	copied := *s
	copied.DeviceOnSince = copyTime(s.DeviceOnSince)
	copied.ThresholdMetSince = copyTime(s.ThresholdMetSince)
	copied.TurnedOffAt = copyTime(s.TurnedOffAt)
	return &copied
}

// clearTransient drops every in-flight timer. Called on disable and on
// entry to monitoring so a previous cycle's timers never leak forward.
func (s *State) clearTransient() {
	s.DeviceOnSince = nil
	s.ThresholdMetSince = nil
	s.TurnedOffAt = nil
}

// Validate checks the configurable fields.
func (s *State) Validate() error {
	if s.DeviceID == "" {
		return ErrInvalidDevice
	}
	if _, err := ParseRestartTime(s.RestartTime); err != nil {
		return err
	}
	if s.ThresholdWatts < 0 {
		return fmt.Errorf("%w: threshold %v", ErrInvalidConfig, s.ThresholdWatts)
	}
	if s.SustainSeconds <= 0 {
		return fmt.Errorf("%w: sustain %ds", ErrInvalidConfig, s.SustainSeconds)
	}
	return nil
}

// ParseRestartTime parses an HH:MM string into minutes past midnight.
func ParseRestartTime(value string) (int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: restart time %q", ErrInvalidConfig, value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: restart time %q", ErrInvalidConfig, value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: restart time %q", ErrInvalidConfig, value)
	}
	return hour*60 + minute, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}
