package mqttplug

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/plugpilot/plugpilot-core/internal/device"
	"github.com/plugpilot/plugpilot-core/internal/infrastructure/mqtt"
)

// Adapter operation constants.
const (
	// defaultCommandTimeout bounds the wait for a command acknowledgement.
	defaultCommandTimeout = 5 * time.Second

	// defaultStaleAfter is how long after the last message a plug's snapshot
	// is still trusted. Plugs report every 30 seconds; three missed reports
	// means the plug is treated as offline.
	defaultStaleAfter = 90 * time.Second
)

// MQTTClient is the broker surface the adapter needs. Satisfied by
// *mqtt.Client; narrowed for testing.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Logger is the minimal logging surface the adapter uses.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// snapshot is the last-known picture of one plug, built from telemetry,
// state, and availability messages.
type snapshot struct {
	power     *float64
	voltage   *float64
	current   *float64
	state     device.PowerState
	available bool
	lastSeen  time.Time
}

// Options configures an Adapter.
type Options struct {
	// Client is the connected MQTT client. Required.
	Client MQTTClient

	// QoS for subscriptions and command publishes. Defaults to 1.
	QoS byte

	// CommandTimeout bounds SetPower's wait for an acknowledgement.
	CommandTimeout time.Duration

	// StaleAfter is the snapshot trust window.
	StaleAfter time.Duration

	// Logger is optional.
	Logger Logger
}

// Adapter implements device.Capability over MQTT plug topics.
//
// Thread Safety: all methods are safe for concurrent use. Message handlers
// run on the MQTT client's goroutines and share the snapshot map under a
// read-write mutex.
type Adapter struct {
	client         MQTTClient
	qos            byte
	commandTimeout time.Duration
	staleAfter     time.Duration
	log            Logger

	mu    sync.RWMutex
	plugs map[string]*snapshot

	ackMu   sync.Mutex
	pending map[string]chan ackMessage

	// now is replaceable for tests.
	now func() time.Time
}

// NewAdapter creates an adapter. Call Start to subscribe before handing it
// to the adapter table.
func NewAdapter(opts Options) (*Adapter, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("mqttplug: client is required")
	}
	if opts.QoS == 0 {
		opts.QoS = 1
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	return &Adapter{
		client:         opts.Client,
		qos:            opts.QoS,
		commandTimeout: opts.CommandTimeout,
		staleAfter:     opts.StaleAfter,
		log:            opts.Logger,
		plugs:          make(map[string]*snapshot),
		pending:        make(map[string]chan ackMessage),
		now:            time.Now,
	}, nil
}

// Start subscribes to the plug topic families. Subscriptions survive broker
// reconnects via the client's own tracking.
func (a *Adapter) Start() error {
	if !a.client.IsConnected() {
		return ErrNotConnected
	}

	topics := mqtt.Topics{}
	subs := []struct {
		filter  string
		handler mqtt.MessageHandler
	}{
		{topics.AllPlugTelemetry(), a.handleTelemetry},
		{topics.AllPlugStates(), a.handleState},
		{topics.AllPlugAcks(), a.handleAck},
		{topics.AllPlugAvailability(), a.handleAvailability},
	}
	for _, s := range subs {
		if err := a.client.Subscribe(s.filter, a.qos, s.handler); err != nil {
			return fmt.Errorf("mqttplug: subscribe %s: %w", s.filter, err)
		}
	}
	return nil
}

// ─── Message Handlers ────────────────────────────────────────────────────────

func (a *Adapter) handleTelemetry(topic string, payload []byte) error {
	plugID, err := plugIDFromTopic(topic)
	if err != nil {
		return err
	}
	var msg telemetryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("telemetry for %s: %w", plugID, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	snap := a.snapshotLocked(plugID)
	snap.power = msg.Power
	snap.voltage = msg.Voltage
	snap.current = msg.Current
	if state := parsePowerState(msg.State); state != device.PowerUnknown {
		snap.state = state
	}
	snap.available = true
	snap.lastSeen = a.now()
	return nil
}

func (a *Adapter) handleState(topic string, payload []byte) error {
	plugID, err := plugIDFromTopic(topic)
	if err != nil {
		return err
	}
	var msg stateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("state for %s: %w", plugID, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	snap := a.snapshotLocked(plugID)
	snap.state = parsePowerState(msg.State)
	snap.available = true
	snap.lastSeen = a.now()
	return nil
}

func (a *Adapter) handleAvailability(topic string, payload []byte) error {
	plugID, err := plugIDFromTopic(topic)
	if err != nil {
		return err
	}
	var msg availabilityMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("availability for %s: %w", plugID, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	snap := a.snapshotLocked(plugID)
	if msg.Status == "online" {
		snap.available = true
		snap.lastSeen = a.now()
	} else {
		// Offline via last will. Keep the snapshot for PowerState queries
		// but stop trusting readings.
		snap.available = false
	}
	return nil
}

func (a *Adapter) handleAck(topic string, payload []byte) error {
	plugID, err := plugIDFromTopic(topic)
	if err != nil {
		return err
	}
	var msg ackMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("ack for %s: %w", plugID, err)
	}

	a.ackMu.Lock()
	ch, ok := a.pending[msg.CommandID]
	a.ackMu.Unlock()
	if !ok {
		// Late or duplicate ack; the command already timed out.
		a.log.Debug("unmatched ack", "plug_id", plugID, "command_id", msg.CommandID)
		return nil
	}

	select {
	case ch <- msg:
	default:
	}
	return nil
}

// snapshotLocked returns the plug's snapshot, creating it if needed.
// Caller holds a.mu.
func (a *Adapter) snapshotLocked(plugID string) *snapshot {
	snap, ok := a.plugs[plugID]
	if !ok {
		snap = &snapshot{state: device.PowerUnknown}
		a.plugs[plugID] = snap
	}
	return snap
}

func parsePowerState(s string) device.PowerState {
	switch s {
	case "on":
		return device.PowerOn
	case "off":
		return device.PowerOff
	default:
		return device.PowerUnknown
	}
}

// ─── Capability ──────────────────────────────────────────────────────────────

// PowerState returns the last reported relay state, or PowerUnknown when no
// report has been seen.
func (a *Adapter) PowerState(_ context.Context, dev *device.Device) (device.PowerState, error) {
	plugID, err := resolvePlugID(dev.ID, dev.Address)
	if err != nil {
		return device.PowerUnknown, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	snap, ok := a.plugs[plugID]
	if !ok {
		return device.PowerUnknown, nil
	}
	return snap.state, nil
}

// SetPower publishes a switch command and waits for the plug's
// acknowledgement. An error means the switch was not confirmed.
func (a *Adapter) SetPower(ctx context.Context, dev *device.Device, on bool) error {
	plugID, err := resolvePlugID(dev.ID, dev.Address)
	if err != nil {
		return err
	}
	if !a.client.IsConnected() {
		return ErrNotConnected
	}

	cmd := commandMessage{
		CommandID: uuid.NewString(),
		Action:    "off",
	}
	if on {
		cmd.Action = "on"
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("mqttplug: encode command: %w", err)
	}

	ackCh := make(chan ackMessage, 1)
	a.ackMu.Lock()
	a.pending[cmd.CommandID] = ackCh
	a.ackMu.Unlock()
	defer func() {
		a.ackMu.Lock()
		delete(a.pending, cmd.CommandID)
		a.ackMu.Unlock()
	}()

	topic := mqtt.Topics{}.PlugCommand(plugID)
	if err := a.client.Publish(topic, payload, a.qos, false); err != nil {
		return fmt.Errorf("mqttplug: publish command: %w", err)
	}

	select {
	case ack := <-ackCh:
		if !ack.Success {
			if ack.Error != "" {
				return fmt.Errorf("%w: %s", ErrCommandRejected, ack.Error)
			}
			return ErrCommandRejected
		}
	case <-time.After(a.commandTimeout):
		return fmt.Errorf("%w after %v", ErrCommandTimeout, a.commandTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	// Confirmed. Update the cache so state queries reflect the switch
	// before the plug's next report.
	a.mu.Lock()
	snap := a.snapshotLocked(plugID)
	if on {
		snap.state = device.PowerOn
	} else {
		snap.state = device.PowerOff
	}
	snap.lastSeen = a.now()
	a.mu.Unlock()

	return nil
}

// ReadPower serves the last telemetry snapshot. Returns an error when the
// plug has never reported or its snapshot has gone stale, so the poller
// records a gap.
func (a *Adapter) ReadPower(_ context.Context, dev *device.Device) (device.Reading, error) {
	plugID, err := resolvePlugID(dev.ID, dev.Address)
	if err != nil {
		return device.Reading{State: device.PowerUnknown}, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	snap, ok := a.plugs[plugID]
	if !ok {
		return device.Reading{State: device.PowerUnknown}, ErrNoTelemetry
	}
	if !snap.available || a.now().Sub(snap.lastSeen) > a.staleAfter {
		return device.Reading{State: snap.state}, ErrPlugOffline
	}

	return device.Reading{
		Power:   copyFloat(snap.power),
		Voltage: copyFloat(snap.voltage),
		Current: copyFloat(snap.current),
		State:   snap.state,
		Online:  true,
	}, nil
}

// IsOnline reports whether the plug is available and its snapshot is fresh.
func (a *Adapter) IsOnline(_ context.Context, dev *device.Device) bool {
	plugID, err := resolvePlugID(dev.ID, dev.Address)
	if err != nil {
		return false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	snap, ok := a.plugs[plugID]
	if !ok {
		return false
	}
	return snap.available && a.now().Sub(snap.lastSeen) <= a.staleAfter
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
