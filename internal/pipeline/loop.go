package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/plugpilot/plugpilot-core/internal/automation"
	"github.com/plugpilot/plugpilot-core/internal/cost"
	"github.com/plugpilot/plugpilot-core/internal/device"
	"github.com/plugpilot/plugpilot-core/internal/forecast"
	"github.com/plugpilot/plugpilot-core/internal/pricing"
	"github.com/plugpilot/plugpilot-core/internal/telemetry"
)

// Exporter receives pipeline output bound for long-term storage. All
// methods are best-effort: an export failure is logged and dropped, never
// allowed to stall the control loop.
type Exporter interface {
	WriteSample(ctx context.Context, name string, sample telemetry.Sample) error
	WriteUsage(ctx context.Context, rec telemetry.UsageRecord) error
	WriteCost(ctx context.Context, realized, projected cost.Summary, at time.Time) error
}

// Sweeper applies the price retention policy.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (pricing.SweepResult, error)
}

// Logger is the minimal logging interface the pipeline depends on.
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

// Config tunes the pipeline loop.
type Config struct {
	TickInterval   time.Duration
	CommandTimeout time.Duration
}

// Pipeline is the cooperative control loop: each tick polls every device,
// appends telemetry, refreshes forecasts and cost, and advances automation.
//
// Ticks are non-reentrant. If a tick is still in flight when the next one
// fires, the late tick is skipped outright, never queued. Per-device
// failures are isolated; one unreachable plug cannot stall the rest.
type Pipeline struct {
	registry   *device.Registry
	adapters   *device.Adapters
	store      *telemetry.Store
	aggregator *telemetry.Aggregator
	engine     *forecast.Engine
	projector  *cost.Projector
	controller *automation.Controller
	exporter   Exporter
	sweeper    Sweeper
	clock      Clock
	cfg        Config
	log        Logger

	inFlight atomic.Bool
	ticks    atomic.Int64
	skipped  atomic.Int64
}

// New creates a pipeline. Exporter and sweeper may be nil; a nil clock
// means the wall clock, and a nil logger discards output.
func New(registry *device.Registry, adapters *device.Adapters, store *telemetry.Store,
	aggregator *telemetry.Aggregator, engine *forecast.Engine, projector *cost.Projector,
	controller *automation.Controller, exporter Exporter, sweeper Sweeper,
	clock Clock, cfg Config, log Logger) *Pipeline {
	if clock == nil {
		clock = RealClock{}
	}
	if log == nil {
		log = noopLogger{}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = telemetry.SampleInterval
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	return &Pipeline{
		registry:   registry,
		adapters:   adapters,
		store:      store,
		aggregator: aggregator,
		engine:     engine,
		projector:  projector,
		controller: controller,
		exporter:   exporter,
		sweeper:    sweeper,
		clock:      clock,
		cfg:        cfg,
		log:        log,
	}
}

// Run drives ticks until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	p.log.Info("pipeline started", "interval", p.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("pipeline stopped", "ticks", p.ticks.Load(), "skipped", p.skipped.Load())
			return ctx.Err()
		case now := <-ticker.C():
			if !p.inFlight.CompareAndSwap(false, true) {
				p.skipped.Add(1)
				p.log.Warn("tick still in flight, skipping", "at", now)
				continue
			}
			p.tick(ctx, now)
			p.inFlight.Store(false)
		}
	}
}

// TickOnce runs a single tick at the given instant if none is in flight.
// Returns false if the tick was skipped.
func (p *Pipeline) TickOnce(ctx context.Context, now time.Time) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		return false
	}
	defer p.inFlight.Store(false)
	p.tick(ctx, now)
	return true
}

// Ticks returns how many ticks have completed.
func (p *Pipeline) Ticks() int64 { return p.ticks.Load() }

// Skipped returns how many late ticks were dropped.
func (p *Pipeline) Skipped() int64 { return p.skipped.Load() }

func (p *Pipeline) tick(ctx context.Context, now time.Time) {
	devices := p.registry.List()
	ids := make([]string, 0, len(devices))

	for _, dev := range devices {
		ids = append(ids, dev.ID)
		p.pollDevice(ctx, dev, now)
	}

	p.flushUsage(ctx, now)
	p.exportCost(ctx, ids, now)

	if p.sweeper != nil {
		if _, err := p.sweeper.Sweep(ctx, now); err != nil {
			p.log.Warn("retention sweep failed", "error", err)
		}
	}
	p.ticks.Add(1)
}

// pollDevice reads one plug, records the sample, and advances automation.
// Every step tolerates failure; the device keeps its last confirmed state.
func (p *Pipeline) pollDevice(ctx context.Context, dev *device.Device, now time.Time) {
	cap, err := p.adapters.For(dev)
	if err != nil {
		p.log.Error("no adapter for device", "device", dev.ID, "adapter", dev.Adapter)
		return
	}

	pollCtx, cancel := context.WithTimeout(ctx, p.cfg.CommandTimeout)
	defer cancel()

	reading, err := cap.ReadPower(pollCtx, dev)
	if err != nil {
		p.log.Warn("poll failed", "device", dev.ID, "error", err)
		reading = device.Reading{State: device.PowerUnknown, Online: false}
		if err := p.registry.MarkOffline(ctx, dev.ID); err != nil {
			p.log.Warn("mark offline failed", "device", dev.ID, "error", err)
		}
	} else if err := p.registry.MarkSeen(ctx, dev.ID, now); err != nil {
		p.log.Warn("mark seen failed", "device", dev.ID, "error", err)
	}

	sample := p.store.Append(dev.ID, dev.Name, telemetry.Reading{
		Power:   reading.Power,
		Voltage: reading.Voltage,
		Current: reading.Current,
		Status:  string(reading.State),
		Online:  reading.Online,
	}, now)

	if p.aggregator != nil {
		p.aggregator.Add(sample)
	}
	if p.exporter != nil {
		if err := p.exporter.WriteSample(ctx, dev.Name, sample); err != nil {
			p.log.Warn("sample export failed", "device", dev.ID, "error", err)
		}
	}

	if err := p.controller.Tick(ctx, dev.ID, reading, now); err != nil {
		p.log.Error("automation tick failed", "device", dev.ID, "error", err)
	}
}

func (p *Pipeline) flushUsage(ctx context.Context, now time.Time) {
	if p.aggregator == nil {
		return
	}
	for _, rec := range p.aggregator.Flush(now, p.store.DeviceName) {
		if p.exporter == nil {
			continue
		}
		if err := p.exporter.WriteUsage(ctx, rec); err != nil {
			p.log.Warn("usage export failed", "device", rec.DeviceID, "error", err)
		}
	}
}

func (p *Pipeline) exportCost(ctx context.Context, ids []string, now time.Time) {
	if p.exporter == nil || p.projector == nil || len(ids) == 0 {
		return
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	realized := p.projector.Realized(ids, dayStart, now, now)
	projected := p.projector.Projected(ids, now)

	if err := p.exporter.WriteCost(ctx, realized, projected, now); err != nil {
		p.log.Warn("cost export failed", "error", err)
	}
}
