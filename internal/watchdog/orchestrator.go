package watchdog

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jmylchreest/guardarr/internal/controller"
)

// Config holds the orchestrator settings.
type Config struct {
	// PollInterval is how often the controller is queried for active
	// channels.
	PollInterval time.Duration

	// UserAgent identifies the watchdog's own probe sessions among a
	// channel's clients.
	UserAgent string

	// Monitor holds the per-channel detection thresholds.
	Monitor MonitorConfig
}

// Orchestrator reconciles one monitor per active channel against the
// controller's view of the world.
type Orchestrator struct {
	cfg    Config
	client controller.Client
	deps   MonitorDeps
	logger *slog.Logger

	mu       sync.Mutex
	monitors map[string]*Monitor

	stopping sync.WaitGroup
}

// New creates an orchestrator.
func New(cfg Config, client controller.Client, deps MonitorDeps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
		deps.Logger = logger
	}
	return &Orchestrator{
		cfg:      cfg,
		client:   client,
		deps:     deps,
		logger:   logger,
		monitors: make(map[string]*Monitor),
	}
}

// Run polls the controller until the context is cancelled, then tears
// down all monitors.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("watchdog started",
		slog.Duration("poll_interval", o.cfg.PollInterval),
		slog.String("user_agent", o.cfg.UserAgent),
	)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	o.Reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			o.logger.Info("watchdog stopped")
			return nil
		case <-ticker.C:
			o.Reconcile(ctx)
		}
	}
}

// Reconcile aligns the monitor set with the controller's active channels.
// Running it again with the same controller state changes nothing.
func (o *Orchestrator) Reconcile(ctx context.Context) {
	channels, err := o.client.ActiveChannels(ctx)
	if err != nil {
		// Keep existing monitors running; a controller blip must not
		// tear down every probe.
		o.logger.Error("failed to list active channels",
			slog.String("error", err.Error()))
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	seen := make(map[string]bool, len(channels))
	for _, ch := range channels {
		seen[ch.ID] = true
		mon, exists := o.monitors[ch.ID]
		probeConnected := slices.Contains(ch.Clients, o.cfg.UserAgent)
		probeOnlyViewer := probeConnected && len(ch.Clients) == 1

		switch {
		case !exists && !probeConnected:
			o.startMonitor(ctx, ch)

		case exists && probeOnlyViewer:
			// The last real viewer left; without the probe the channel
			// would already be idle.
			o.logger.Info("probe is the only client, releasing channel",
				slog.String("channel_id", ch.ID),
				slog.String("channel_name", ch.Name),
			)
			o.stopMonitor(ch.ID)

		case exists && !probeConnected && o.pastStartupGrace(mon):
			// The controller no longer lists our probe as a client, so
			// its session is stale.
			o.logger.Warn("probe no longer connected, restarting monitor",
				slog.String("channel_id", ch.ID),
				slog.String("channel_name", ch.Name),
			)
			o.stopMonitor(ch.ID)

		case exists:
			mon.Update(ch)
		}
	}

	for id := range o.monitors {
		if !seen[id] {
			o.stopMonitor(id)
		}
	}

	o.logSpeeds()
}

// pastStartupGrace reports whether the monitor has been running long
// enough that its probe should already show up as a controller client.
func (o *Orchestrator) pastStartupGrace(mon *Monitor) bool {
	return time.Since(mon.Status().StartedAt) > 2*o.cfg.PollInterval
}

// startMonitor must be called with o.mu held.
func (o *Orchestrator) startMonitor(ctx context.Context, ch controller.Channel) {
	failover := func(ctx context.Context, channelID string) error {
		return o.client.NextStream(ctx, channelID)
	}
	deps := o.deps
	deps.Failover = failover

	mon := NewMonitor(o.cfg.Monitor, ch, o.client.WatchURL(ch.ID), deps)
	o.monitors[ch.ID] = mon
	mon.Start(ctx)

	o.logger.Info("started monitor",
		slog.String("channel_id", ch.ID),
		slog.String("channel_name", ch.Name),
	)
}

// stopMonitor must be called with o.mu held. Teardown waits for the
// probe's grace period, so it happens off the reconcile path.
func (o *Orchestrator) stopMonitor(id string) {
	mon, ok := o.monitors[id]
	if !ok {
		return
	}
	delete(o.monitors, id)

	o.stopping.Add(1)
	go func() {
		defer o.stopping.Done()
		mon.Stop()
		o.logger.Info("stopped monitor", slog.String("channel_id", id))
	}()
}

// logSpeeds reports the current speed of every monitor, matching the
// per-cycle speed report operators watch for. Must be called with o.mu
// held.
func (o *Orchestrator) logSpeeds() {
	for _, mon := range o.monitors {
		status := mon.Status()
		if !status.HasSpeed || !status.ProbeRunning {
			continue
		}
		o.logger.Info("channel speed",
			slog.String("channel_id", status.ChannelID),
			slog.String("channel_name", status.ChannelName),
			slog.Float64("speed", status.Speed),
		)
	}
}

// shutdown stops every monitor and waits for their probes to exit.
func (o *Orchestrator) shutdown() {
	o.mu.Lock()
	for id := range o.monitors {
		o.stopMonitor(id)
	}
	o.mu.Unlock()
	o.stopping.Wait()
}

// Statuses returns a snapshot of every monitor, ordered by channel ID.
func (o *Orchestrator) Statuses() []Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	statuses := make([]Status, 0, len(o.monitors))
	for _, mon := range o.monitors {
		statuses = append(statuses, mon.Status())
	}
	slices.SortFunc(statuses, func(a, b Status) int {
		switch {
		case a.ChannelID < b.ChannelID:
			return -1
		case a.ChannelID > b.ChannelID:
			return 1
		default:
			return 0
		}
	})
	return statuses
}

// MonitorCount returns the number of active monitors.
func (o *Orchestrator) MonitorCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.monitors)
}
