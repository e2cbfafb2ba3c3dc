package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/plugpilot/plugpilot-core/internal/device"
)

// ─── Test Helpers ────────────────────────────────────────────────────────────

type mockRepository struct {
	mu     sync.Mutex
	states map[string]*State
}

func newMockRepository() *mockRepository {
	return &mockRepository{states: make(map[string]*State)}
}

func (m *mockRepository) Save(_ context.Context, st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.DeviceID] = st.DeepCopy()
	return nil
}

func (m *mockRepository) Get(_ context.Context, id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return nil, ErrNotFound
	}
	return st.DeepCopy(), nil
}

func (m *mockRepository) GetAll(context.Context) ([]*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*State, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, st.DeepCopy())
	}
	return out, nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	return nil
}

// mockCommander records power commands and can be set to fail.
type mockCommander struct {
	mu       sync.Mutex
	commands []bool // true = on
	fail     bool
}

func (m *mockCommander) SetPower(_ context.Context, _ string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return device.ErrCommandFailed
	}
	m.commands = append(m.commands, on)
	return nil
}

func (m *mockCommander) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.commands)
}

func (m *mockCommander) lastCommand(t *testing.T) bool {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.commands) == 0 {
		t.Fatal("no power command issued")
	}
	return m.commands[len(m.commands)-1]
}

var testDefaults = Defaults{ThresholdWatts: 5, SustainSeconds: 30, RestartTime: "06:00"}

func newTestController(t *testing.T) (*Controller, *mockRepository, *mockCommander) {
	t.Helper()
	repo := newMockRepository()
	cmd := &mockCommander{}
	return NewController(repo, cmd, time.UTC, testDefaults, nil), repo, cmd
}

func onReading(watts float64) device.Reading {
	return device.Reading{Power: &watts, State: device.PowerOn, Online: true}
}

func offReading() device.Reading {
	return device.Reading{State: device.PowerOff, Online: true}
}

func mustTick(t *testing.T, c *Controller, id string, r device.Reading, now time.Time) {
	t.Helper()
	if err := c.Tick(context.Background(), id, r, now); err != nil {
		t.Fatalf("tick at %s: %v", now, err)
	}
}

func phase(t *testing.T, c *Controller, id string) Phase {
	t.Helper()
	st, err := c.Get(id)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	return st.Phase
}

// ─── Full Cycle ──────────────────────────────────────────────────────────────

func TestFullPowerCycle(t *testing.T) {
	c, _, cmd := newTestController(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	if err := c.Enable(ctx, "plug-1"); err != nil {
		t.Fatalf("enable: %v", err)
	}

	// Device already on at 50W, threshold 5W, sustain 30s.
	mustTick(t, c, "plug-1", onReading(50), start)
	if got := phase(t, c, "plug-1"); got != PhaseMonitoring {
		t.Fatalf("phase after first tick = %s, want monitoring", got)
	}
	if cmd.count() != 0 {
		t.Fatal("power command before sustain elapsed")
	}

	// Sustain not yet met at t=29s.
	mustTick(t, c, "plug-1", onReading(50), start.Add(29*time.Second))
	if cmd.count() != 0 {
		t.Fatal("power command before sustain elapsed")
	}

	// At t=30s both clocks have run the full sustain: power off, standby.
	mustTick(t, c, "plug-1", onReading(50), start.Add(30*time.Second))
	if cmd.count() != 1 || cmd.lastCommand(t) {
		t.Fatalf("expected one power-off command, got %v", cmd.commands)
	}
	if got := phase(t, c, "plug-1"); got != PhaseStandby {
		t.Fatalf("phase = %s, want standby", got)
	}
	st, _ := c.Get("plug-1")
	if st.TurnedOffAt == nil {
		t.Error("turned_off_at not recorded")
	}

	// Before restart time nothing fires.
	beforeRestart := time.Date(2026, 3, 16, 5, 59, 0, 0, time.UTC)
	mustTick(t, c, "plug-1", offReading(), beforeRestart)
	if cmd.count() != 1 {
		t.Fatal("power command before restart time")
	}

	// At the restart time the device powers on and the cycle ends.
	restart := time.Date(2026, 3, 16, 6, 0, 0, 0, time.UTC)
	mustTick(t, c, "plug-1", offReading(), restart)
	if cmd.count() != 2 || !cmd.lastCommand(t) {
		t.Fatalf("expected power-on at restart, got %v", cmd.commands)
	}
	st, _ = c.Get("plug-1")
	if st.Phase != PhaseDisabled || st.Enabled {
		t.Errorf("after restart: phase=%s enabled=%v, want disabled/false", st.Phase, st.Enabled)
	}
	if st.LastRestartDate != "2026-03-16" {
		t.Errorf("last_restart_date = %q, want 2026-03-16", st.LastRestartDate)
	}
	if st.LastMessage == "" {
		t.Error("cycle summary message not recorded")
	}
}

// ─── Monitoring Rules ────────────────────────────────────────────────────────

func TestDipBelowThresholdResetsSustain(t *testing.T) {
	c, _, cmd := newTestController(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	if err := c.Enable(ctx, "plug-1"); err != nil {
		t.Fatalf("enable: %v", err)
	}

	mustTick(t, c, "plug-1", onReading(50), start)
	mustTick(t, c, "plug-1", onReading(3), start.Add(15*time.Second)) // dip
	mustTick(t, c, "plug-1", onReading(50), start.Add(20*time.Second))

	// t=35s: device on for 35s, but threshold only met again since t=20s.
	mustTick(t, c, "plug-1", onReading(50), start.Add(35*time.Second))
	if cmd.count() != 0 {
		t.Fatal("powered off despite sustain reset by dip")
	}

	// t=50s: threshold held 30s since the dip ended.
	mustTick(t, c, "plug-1", onReading(50), start.Add(50*time.Second))
	if cmd.count() != 1 {
		t.Fatal("expected power-off once sustain re-elapsed")
	}
}

func TestExternalOffResetsWithoutStandby(t *testing.T) {
	c, _, cmd := newTestController(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	if err := c.Enable(ctx, "plug-1"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	mustTick(t, c, "plug-1", onReading(50), start)

	// Someone switches the plug off at the wall.
	mustTick(t, c, "plug-1", offReading(), start.Add(10*time.Second))
	st, _ := c.Get("plug-1")
	if st.Phase != PhaseMonitoring {
		t.Fatalf("phase = %s, want monitoring after external off", st.Phase)
	}
	if st.DeviceOnSince != nil || st.ThresholdMetSince != nil {
		t.Error("timers not reset on external off")
	}

	// Back on: the sustain clock starts over.
	mustTick(t, c, "plug-1", onReading(50), start.Add(20*time.Second))
	mustTick(t, c, "plug-1", onReading(50), start.Add(45*time.Second))
	if cmd.count() != 0 {
		t.Fatal("powered off without a full sustain after external off")
	}
	mustTick(t, c, "plug-1", onReading(50), start.Add(50*time.Second))
	if cmd.count() != 1 {
		t.Fatal("expected power-off after full sustain from restart")
	}
}

func TestGapReadingCountsAsBelowThreshold(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	if err := c.Enable(ctx, "plug-1"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	mustTick(t, c, "plug-1", onReading(50), start)

	// On, but no power channel: sustain clock must reset.
	mustTick(t, c, "plug-1", device.Reading{State: device.PowerOn, Online: true}, start.Add(10*time.Second))
	st, _ := c.Get("plug-1")
	if st.ThresholdMetSince != nil {
		t.Error("threshold_met_since survived a gap reading")
	}
	if st.DeviceOnSince == nil {
		t.Error("device_on_since cleared by a gap reading while still on")
	}
}

// ─── Failure Handling ────────────────────────────────────────────────────────

func TestFailedPowerOffRetriesNextTick(t *testing.T) {
	c, _, cmd := newTestController(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	if err := c.Enable(ctx, "plug-1"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	mustTick(t, c, "plug-1", onReading(50), start)

	cmd.fail = true
	mustTick(t, c, "plug-1", onReading(50), start.Add(30*time.Second))
	if got := phase(t, c, "plug-1"); got != PhaseMonitoring {
		t.Fatalf("phase advanced despite failed command: %s", got)
	}

	// Command channel recovers; preconditions still hold.
	cmd.fail = false
	mustTick(t, c, "plug-1", onReading(50), start.Add(60*time.Second))
	if cmd.count() != 1 || cmd.lastCommand(t) {
		t.Fatalf("expected retried power-off, got %v", cmd.commands)
	}
	if got := phase(t, c, "plug-1"); got != PhaseStandby {
		t.Fatalf("phase = %s, want standby after retry", got)
	}
}

func TestFailedPowerOnRetriesNextTick(t *testing.T) {
	c, _, cmd := newTestController(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	if err := c.Enable(ctx, "plug-1"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	mustTick(t, c, "plug-1", onReading(50), start)
	mustTick(t, c, "plug-1", onReading(50), start.Add(30*time.Second))

	cmd.fail = true
	restart := time.Date(2026, 3, 16, 6, 0, 0, 0, time.UTC)
	mustTick(t, c, "plug-1", offReading(), restart)
	if got := phase(t, c, "plug-1"); got != PhaseStandby {
		t.Fatalf("phase advanced despite failed power-on: %s", got)
	}

	cmd.fail = false
	mustTick(t, c, "plug-1", offReading(), restart.Add(time.Minute))
	if got := phase(t, c, "plug-1"); got != PhaseDisabled {
		t.Fatalf("phase = %s, want disabled after retried power-on", got)
	}
}

// ─── Restart Window Guard ────────────────────────────────────────────────────

func TestStandbyEnteredAfterRestartTimeArmsForTomorrow(t *testing.T) {
	c, _, cmd := newTestController(t)
	ctx := context.Background()

	// Sustained load detected at 23:00, well past the 06:00 restart time.
	start := time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC)
	if err := c.Enable(ctx, "plug-1"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	mustTick(t, c, "plug-1", onReading(50), start)
	mustTick(t, c, "plug-1", onReading(50), start.Add(30*time.Second))
	if cmd.count() != 1 {
		t.Fatal("expected power-off")
	}

	// 23:01 is past 06:00 on the clock, but today's window is spent.
	mustTick(t, c, "plug-1", offReading(), start.Add(time.Minute))
	if cmd.count() != 1 {
		t.Fatal("restart fired the same evening the device went to standby")
	}

	// Tomorrow at 06:00 it fires.
	mustTick(t, c, "plug-1", offReading(), time.Date(2026, 3, 16, 6, 0, 0, 0, time.UTC))
	if cmd.count() != 2 || !cmd.lastCommand(t) {
		t.Fatalf("expected power-on next morning, got %v", cmd.commands)
	}
}

func TestMissedRestartMinuteStillFires(t *testing.T) {
	c, _, cmd := newTestController(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	if err := c.Enable(ctx, "plug-1"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	mustTick(t, c, "plug-1", onReading(50), start)
	mustTick(t, c, "plug-1", onReading(50), start.Add(30*time.Second))

	// The host slept through 06:00; the next tick lands at 08:17. The
	// date guard means the restart still fires instead of waiting a day.
	mustTick(t, c, "plug-1", offReading(), time.Date(2026, 3, 16, 8, 17, 0, 0, time.UTC))
	if cmd.count() != 2 || !cmd.lastCommand(t) {
		t.Fatalf("missed-minute restart did not fire: %v", cmd.commands)
	}
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

func TestDisableClearsTransientAtomically(t *testing.T) {
	c, repo, _ := newTestController(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	if err := c.Enable(ctx, "plug-1"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	mustTick(t, c, "plug-1", onReading(50), start)

	if err := c.Disable(ctx, "plug-1"); err != nil {
		t.Fatalf("disable: %v", err)
	}

	st, _ := c.Get("plug-1")
	if st.Enabled || st.Phase != PhaseDisabled {
		t.Errorf("after disable: enabled=%v phase=%s", st.Enabled, st.Phase)
	}
	if st.DeviceOnSince != nil || st.ThresholdMetSince != nil || st.TurnedOffAt != nil {
		t.Error("transient timers survived disable")
	}

	// Persisted copy matches.
	persisted, err := repo.Get(ctx, "plug-1")
	if err != nil {
		t.Fatalf("persisted state: %v", err)
	}
	if persisted.DeviceOnSince != nil {
		t.Error("persisted transient timer survived disable")
	}

	// Ticks are a no-op while disabled.
	mustTick(t, c, "plug-1", onReading(500), start.Add(time.Minute))
	if st, _ := c.Get("plug-1"); st.DeviceOnSince != nil {
		t.Error("tick mutated a disabled device")
	}
}

func TestReEnableStartsFreshCycle(t *testing.T) {
	c, _, cmd := newTestController(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	if err := c.Enable(ctx, "plug-1"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	mustTick(t, c, "plug-1", onReading(50), start)
	mustTick(t, c, "plug-1", onReading(50), start.Add(30*time.Second))
	if got := phase(t, c, "plug-1"); got != PhaseStandby {
		t.Fatalf("phase = %s, want standby", got)
	}

	// Re-enabling mid-standby abandons the old cycle.
	if err := c.Enable(ctx, "plug-1"); err != nil {
		t.Fatalf("re-enable: %v", err)
	}
	st, _ := c.Get("plug-1")
	if st.Phase != PhaseMonitoring || st.TurnedOffAt != nil {
		t.Errorf("re-enable: phase=%s turnedOff=%v", st.Phase, st.TurnedOffAt)
	}
	if cmd.count() != 1 {
		t.Errorf("re-enable issued a power command")
	}
}

func TestConfigureRejectsInvalidKeepsPrior(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()

	if err := c.Enable(ctx, "plug-1"); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if err := c.Configure(ctx, "plug-1", "25:00", 10, 60); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("error = %v, want ErrInvalidConfig", err)
	}
	st, _ := c.Get("plug-1")
	if st.RestartTime != "06:00" || st.ThresholdWatts != 5 {
		t.Errorf("invalid configure mutated state: %+v", st)
	}

	if err := c.Configure(ctx, "plug-1", "07:30", 10, 60); err != nil {
		t.Fatalf("valid configure: %v", err)
	}
	st, _ = c.Get("plug-1")
	if st.RestartTime != "07:30" || st.ThresholdWatts != 10 || st.SustainSeconds != 60 {
		t.Errorf("configure not applied: %+v", st)
	}
}

func TestResetDestroysState(t *testing.T) {
	c, repo, _ := newTestController(t)
	ctx := context.Background()

	if err := c.Enable(ctx, "plug-1"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := c.Reset(ctx, "plug-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := c.Get("plug-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("state survived reset in cache")
	}
	if _, err := repo.Get(ctx, "plug-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("state survived reset in repository")
	}
}

func TestLoadResumesStandby(t *testing.T) {
	repo := newMockRepository()
	cmd := &mockCommander{}
	offAt := time.Date(2026, 3, 15, 10, 0, 30, 0, time.UTC)
	repo.states["plug-1"] = &State{
		DeviceID:       "plug-1",
		Enabled:        true,
		Phase:          PhaseStandby,
		RestartTime:    "06:00",
		ThresholdWatts: 5,
		SustainSeconds: 30,
		TurnedOffAt:    &offAt,
	}

	c := NewController(repo, cmd, time.UTC, testDefaults, nil)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	mustTick(t, c, "plug-1", offReading(), time.Date(2026, 3, 16, 6, 0, 0, 0, time.UTC))
	if cmd.count() != 1 || !cmd.lastCommand(t) {
		t.Fatalf("resumed standby did not restart: %v", cmd.commands)
	}
}

// ─── Parsing ─────────────────────────────────────────────────────────────────

func TestParseRestartTime(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"06:00", 360, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{"6:30", 390, false},
		{"24:00", 0, true},
		{"06:60", 0, true},
		{"noon", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRestartTime(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRestartTime(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRestartTime(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRestartTime(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
