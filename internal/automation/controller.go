package automation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/plugpilot/plugpilot-core/internal/device"
)

// PowerCommander issues power commands to a device. An error means the
// command was not confirmed; the controller leaves its state unchanged and
// retries on the next tick.
type PowerCommander interface {
	SetPower(ctx context.Context, deviceID string, on bool) error
}

// Logger is the minimal logging interface the controller depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Defaults seed a device's state on first enable.
type Defaults struct {
	ThresholdWatts float64
	SustainSeconds int
	RestartTime    string
}

// Controller drives the per-device power-cycling state machine.
//
// Each device cycles Disabled -> Monitoring -> Standby -> Disabled exactly
// once per enable. Monitoring watches for load sustained above the
// threshold; Standby waits for the restart time. Every mutation persists
// before it becomes visible, so a restart resumes mid-cycle.
//
// Locking is per device. Ticks for different devices never serialize
// against each other.
type Controller struct {
	mu     sync.RWMutex // guards the maps, never held across I/O
	states map[string]*State
	locks  map[string]*sync.Mutex

	repo      Repository
	commander PowerCommander
	loc       *time.Location
	defaults  Defaults
	log       Logger
}

// NewController creates a controller. The location anchors restart times
// and date guards; pass nil for UTC. A nil logger discards output.
func NewController(repo Repository, commander PowerCommander, loc *time.Location, defaults Defaults, log Logger) *Controller {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = noopLogger{}
	}
	return &Controller{
		states:    make(map[string]*State),
		locks:     make(map[string]*sync.Mutex),
		repo:      repo,
		commander: commander,
		loc:       loc,
		defaults:  defaults,
		log:       log,
	}
}

// Load hydrates the controller from persisted state. Call once at startup.
func (c *Controller) Load(ctx context.Context) error {
	states, err := c.repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load automation state: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, st := range states {
		c.states[st.DeviceID] = st
	}
	return nil
}

// Enable turns automation on for the device, creating state lazily with the
// controller defaults. Entry to monitoring clears any stale timers from a
// previous cycle.
func (c *Controller) Enable(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return ErrInvalidDevice
	}

	unlock := c.lockDevice(deviceID)
	defer unlock()

	st := c.state(deviceID)
	if st == nil {
		st = &State{
			DeviceID:       deviceID,
			RestartTime:    c.defaults.RestartTime,
			ThresholdWatts: c.defaults.ThresholdWatts,
			SustainSeconds: c.defaults.SustainSeconds,
		}
		if err := st.Validate(); err != nil {
			return err
		}
	}

	st.Enabled = true
	st.Phase = PhaseMonitoring
	st.clearTransient()
	st.LastMessage = "automation enabled"

	if err := c.persist(ctx, st); err != nil {
		return err
	}
	c.log.Info("automation enabled", "device", deviceID)
	return nil
}

// Disable turns automation off from any phase, atomically clearing all
// transient timers so nothing pending can later mutate the device.
func (c *Controller) Disable(ctx context.Context, deviceID string) error {
	unlock := c.lockDevice(deviceID)
	defer unlock()

	st := c.state(deviceID)
	if st == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}

	st.Enabled = false
	st.Phase = PhaseDisabled
	st.clearTransient()
	st.LastMessage = "automation disabled"

	if err := c.persist(ctx, st); err != nil {
		return err
	}
	c.log.Info("automation disabled", "device", deviceID)
	return nil
}

// Configure updates the device's thresholds. Invalid values are rejected
// whole; the prior configuration stays in force.
func (c *Controller) Configure(ctx context.Context, deviceID, restartTime string, thresholdWatts float64, sustainSeconds int) error {
	unlock := c.lockDevice(deviceID)
	defer unlock()

	st := c.state(deviceID)
	if st == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}

	updated := st.DeepCopy()
	updated.RestartTime = restartTime
	updated.ThresholdWatts = thresholdWatts
	updated.SustainSeconds = sustainSeconds
	if err := updated.Validate(); err != nil {
		return err
	}
	return c.persist(ctx, updated)
}

// Reset destroys the device's automation state entirely.
func (c *Controller) Reset(ctx context.Context, deviceID string) error {
	unlock := c.lockDevice(deviceID)
	defer unlock()

	if c.state(deviceID) == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	if err := c.repo.Delete(ctx, deviceID); err != nil {
		return fmt.Errorf("delete automation state %s: %w", deviceID, err)
	}

	c.mu.Lock()
	delete(c.states, deviceID)
	c.mu.Unlock()

	c.log.Info("automation state reset", "device", deviceID)
	return nil
}

// Get returns a copy of the device's state.
func (c *Controller) Get(deviceID string) (*State, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st, ok := c.states[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	return st.DeepCopy(), nil
}

// List returns copies of all states, sorted by device id.
func (c *Controller) List() []*State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*State, 0, len(c.states))
	for _, st := range c.states {
		out = append(out, st.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Tick advances the device's state machine one step.
//
// The live reading drives monitoring; the wall clock drives standby. A
// failed power command leaves the state untouched so the same transition is
// re-attempted next tick. Disabled devices are a no-op.
func (c *Controller) Tick(ctx context.Context, deviceID string, reading device.Reading, now time.Time) error {
	unlock := c.lockDevice(deviceID)
	defer unlock()

	st := c.state(deviceID)
	if st == nil || !st.Enabled {
		return nil
	}

	switch st.Phase {
	case PhaseMonitoring:
		return c.tickMonitoring(ctx, st, reading, now)
	case PhaseStandby:
		return c.tickStandby(ctx, st, now)
	}
	return nil
}

func (c *Controller) tickMonitoring(ctx context.Context, st *State, reading device.Reading, now time.Time) error {
	if reading.State != device.PowerOn {
		// Externally turned off, or state unknown: monitoring continues
		// but the timers restart from scratch.
		if st.DeviceOnSince != nil || st.ThresholdMetSince != nil {
			st.DeviceOnSince = nil
			st.ThresholdMetSince = nil
			return c.persist(ctx, st)
		}
		return nil
	}

	if st.DeviceOnSince == nil {
		on := now
		st.DeviceOnSince = &on
	}

	power := 0.0
	if reading.Power != nil {
		power = *reading.Power
	}
	if power > st.ThresholdWatts {
		if st.ThresholdMetSince == nil {
			met := now
			st.ThresholdMetSince = &met
		}
	} else {
		// A single dip below threshold restarts the sustain clock.
		st.ThresholdMetSince = nil
	}

	sustained := st.ThresholdMetSince != nil &&
		now.Sub(*st.DeviceOnSince) >= st.Sustain() &&
		now.Sub(*st.ThresholdMetSince) >= st.Sustain()
	if !sustained {
		return c.persist(ctx, st)
	}

	if err := c.commander.SetPower(ctx, st.DeviceID, false); err != nil {
		// Preconditions persist; retried next tick.
		c.log.Warn("power-off failed, will retry", "device", st.DeviceID, "error", err)
		return c.persist(ctx, st)
	}

	off := now
	st.Phase = PhaseStandby
	st.TurnedOffAt = &off
	// If today's restart window has already passed, arm for tomorrow.
	if minuteOfDay(now.In(c.loc)) >= c.restartMinute(st) {
		st.LastRestartDate = dateString(now.In(c.loc))
	}
	st.LastMessage = fmt.Sprintf("powered off at %s after sustained load above %.1fW",
		now.In(c.loc).Format("15:04"), st.ThresholdWatts)

	if err := c.persist(ctx, st); err != nil {
		return err
	}
	c.log.Info("device powered off", "device", st.DeviceID, "threshold", st.ThresholdWatts)
	return nil
}

func (c *Controller) tickStandby(ctx context.Context, st *State, now time.Time) error {
	local := now.In(c.loc)
	if minuteOfDay(local) < c.restartMinute(st) || st.LastRestartDate == dateString(local) {
		return nil
	}

	if err := c.commander.SetPower(ctx, st.DeviceID, true); err != nil {
		c.log.Warn("power-on failed, will retry", "device", st.DeviceID, "error", err)
		return nil
	}

	offAt := "unknown"
	if st.TurnedOffAt != nil {
		offAt = st.TurnedOffAt.In(c.loc).Format("Jan 2 15:04")
	}
	st.Enabled = false
	st.Phase = PhaseDisabled
	st.LastRestartDate = dateString(local)
	st.LastMessage = fmt.Sprintf("cycle complete: off %s, back on %s", offAt, local.Format("Jan 2 15:04"))
	st.clearTransient()

	if err := c.persist(ctx, st); err != nil {
		return err
	}
	c.log.Info("device restarted", "device", st.DeviceID, "restart_time", st.RestartTime)
	return nil
}

// restartMinute returns the state's restart time as minutes past midnight.
// The value was validated on the way in, so a parse failure here means a
// corrupt row; fall back to never matching rather than firing at midnight.
func (c *Controller) restartMinute(st *State) int {
	minute, err := ParseRestartTime(st.RestartTime)
	if err != nil {
		c.log.Error("corrupt restart time", "device", st.DeviceID, "value", st.RestartTime)
		return 24 * 60
	}
	return minute
}

// persist writes the state through to the repository and publishes it to
// the cache only on success.
func (c *Controller) persist(ctx context.Context, st *State) error {
	st.UpdatedAt = time.Now().UTC()
	if err := c.repo.Save(ctx, st); err != nil {
		return fmt.Errorf("save automation state %s: %w", st.DeviceID, err)
	}

	c.mu.Lock()
	c.states[st.DeviceID] = st.DeepCopy()
	c.mu.Unlock()
	return nil
}

// state returns the live state pointer for mutation under the device lock.
func (c *Controller) state(deviceID string) *State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st, ok := c.states[deviceID]
	if !ok {
		return nil
	}
	return st.DeepCopy()
}

// lockDevice takes the device's mutex, creating it on first use.
func (c *Controller) lockDevice(deviceID string) func() {
	c.mu.Lock()
	lock, ok := c.locks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[deviceID] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func dateString(t time.Time) string {
	return t.Format("2006-01-02")
}
