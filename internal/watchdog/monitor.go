package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/guardarr/internal/controller"
	"github.com/jmylchreest/guardarr/internal/models"
	"github.com/jmylchreest/guardarr/internal/probe"
)

// DefaultMemoryCheckInterval is how often the memory guard samples a
// probe's RSS when no interval is configured.
const DefaultMemoryCheckInterval = 30 * time.Second

// ProbeSession is the view of a running measurement process the monitor
// needs. *probe.Session satisfies it.
type ProbeSession interface {
	Samples() <-chan probe.Sample
	Done() <-chan struct{}
	Stop()
	Kill()
	Pid() int
	MemoryRSS() (uint64, error)
	Err() error
}

// Prober launches a measurement session against a stream URL.
type Prober func(streamURL string) (ProbeSession, error)

// FailoverFunc asks the controller to advance a channel to its next
// source. A nil error means the controller accepted the switch.
type FailoverFunc func(ctx context.Context, channelID string) error

// MonitorConfig holds the detection thresholds for one monitor.
type MonitorConfig struct {
	// BufferSpeedThreshold is the speed below which a sample counts as
	// buffering.
	BufferSpeedThreshold float64

	// BufferTimeThreshold is how long buffering must persist before a
	// failover is requested.
	BufferTimeThreshold time.Duration

	// BufferExtensionTime is the settle time granted to a new source
	// after a successful failover before the next one may fire.
	BufferExtensionTime time.Duration

	// ErrorThreshold is the number of stream errors that trigger a
	// failover. Zero disables error detection.
	ErrorThreshold int

	// ErrorSwitchCooldown suppresses error-triggered failovers this soon
	// after the previous switch.
	ErrorSwitchCooldown time.Duration

	// ErrorResetTime restarts the error count when errors arrive further
	// apart than this window.
	ErrorResetTime time.Duration

	// RestartBackoff is the delay before relaunching a probe that exited
	// unexpectedly.
	RestartBackoff time.Duration

	// MaxMemoryBytes kills and restarts a probe whose RSS grows beyond
	// this. Zero disables the memory guard.
	MaxMemoryBytes uint64

	// MemoryCheckInterval is how often the memory guard samples RSS.
	MemoryCheckInterval time.Duration
}

// MonitorDeps carries the monitor's collaborators.
type MonitorDeps struct {
	Prober   Prober
	Failover FailoverFunc
	Sink     Sink
	Command  *CommandRunner
	Logger   *slog.Logger
}

// Status is a point-in-time snapshot of one monitor.
type Status struct {
	ChannelID      string    `json:"channel_id"`
	ChannelName    string    `json:"channel_name"`
	SourceRef      string    `json:"source_ref,omitempty"`
	Speed          float64   `json:"speed"`
	HasSpeed       bool      `json:"has_speed"`
	Buffering      bool      `json:"buffering"`
	BufferingSince time.Time `json:"buffering_since,omitzero"`
	ErrorCount     int       `json:"error_count"`
	LastSwitchAt   time.Time `json:"last_switch_at,omitzero"`
	ProbePID       int       `json:"probe_pid,omitempty"`
	ProbeRunning   bool      `json:"probe_running"`
	StartedAt      time.Time `json:"started_at"`
}

// Monitor supervises a single channel. All state below the status
// snapshot is owned by the Run goroutine; external callers interact
// through Update, Status and Stop.
type Monitor struct {
	cfg      MonitorConfig
	deps     MonitorDeps
	watchURL string

	channelID string
	name      string
	sourceRef string

	speed     float64
	hasSpeed  bool
	startedAt time.Time

	bufferingSince time.Time
	bufferDeadline time.Time
	lastSwitchAt   time.Time
	errorCount     int
	errorStart     time.Time

	updates chan controller.Channel
	cancel  context.CancelFunc
	done    chan struct{}

	statusMu sync.Mutex
	status   Status
}

// NewMonitor creates a monitor for the channel. Call Start to begin
// supervision.
func NewMonitor(cfg MonitorConfig, ch controller.Channel, watchURL string, deps MonitorDeps) *Monitor {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	m := &Monitor{
		cfg:       cfg,
		deps:      deps,
		watchURL:  watchURL,
		channelID: ch.ID,
		name:      ch.Name,
		sourceRef: ch.SourceRef,
		startedAt: time.Now(),
		updates:   make(chan controller.Channel, 1),
		done:      make(chan struct{}),
	}
	m.publishStatus(false, 0)
	return m
}

// Start launches the supervision goroutine.
func (m *Monitor) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	go m.run(ctx)
}

// Stop cancels supervision and waits for the probe to be torn down.
func (m *Monitor) Stop() {
	m.cancel()
	<-m.done
}

// Update feeds fresh controller data to the monitor. Only the latest
// pending update is kept.
func (m *Monitor) Update(ch controller.Channel) {
	select {
	case <-m.updates:
	default:
	}
	m.updates <- ch
}

// Status returns the monitor's latest snapshot.
func (m *Monitor) Status() Status {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.status
}

// sessionOutcome tells run why a probe session ended.
type sessionOutcome int

const (
	// sessionStopped means the monitor's context was cancelled.
	sessionStopped sessionOutcome = iota
	// sessionExited means the probe ended on its own and should be
	// relaunched after the backoff.
	sessionExited
	// sessionReplaced means the monitor tore the probe down itself and
	// wants a fresh one immediately.
	sessionReplaced
)

// run launches probes until the context is cancelled, restarting after
// unexpected exits with a backoff.
func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	m.record(ctx, models.Event{Type: models.EventMonitorStarted})
	defer m.record(context.WithoutCancel(ctx), models.Event{Type: models.EventMonitorStopped})

	for {
		session, err := m.deps.Prober(m.watchURL)
		if err != nil {
			m.deps.Logger.Error("failed to start probe",
				slog.String("channel_id", m.channelID),
				slog.String("error", err.Error()),
			)
		} else {
			m.publishStatus(true, session.Pid())
			outcome := m.consumeSession(ctx, session)
			m.publishStatus(false, 0)
			switch outcome {
			case sessionStopped:
				return
			case sessionReplaced:
				if ctx.Err() != nil {
					return
				}
				continue
			case sessionExited:
				m.record(ctx, models.Event{
					Type:   models.EventProbeRestarted,
					Detail: exitDetail(session.Err()),
				})
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.RestartBackoff):
		}
	}
}

func exitDetail(err error) string {
	if err == nil {
		return "probe exited"
	}
	return "probe exited: " + err.Error()
}

// consumeSession processes one probe's samples until it ends.
func (m *Monitor) consumeSession(ctx context.Context, session ProbeSession) sessionOutcome {
	var memC <-chan time.Time
	if m.cfg.MaxMemoryBytes > 0 && m.cfg.MemoryCheckInterval > 0 {
		ticker := time.NewTicker(m.cfg.MemoryCheckInterval)
		defer ticker.Stop()
		memC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			teardown(session, false)
			return sessionStopped

		case sample, ok := <-session.Samples():
			if !ok {
				return sessionExited
			}
			m.handleSample(ctx, sample)

		case upd := <-m.updates:
			if m.applyUpdate(ctx, upd) {
				teardown(session, false)
				return sessionReplaced
			}

		case <-memC:
			rss, err := session.MemoryRSS()
			if err != nil || rss <= m.cfg.MaxMemoryBytes {
				continue
			}
			m.record(ctx, models.Event{
				Type:   models.EventMemoryLimitKill,
				Detail: fmt.Sprintf("probe rss %dMB exceeded limit %dMB", rss>>20, m.cfg.MaxMemoryBytes>>20),
			})
			teardown(session, true)
			return sessionExited
		}
	}
}

// teardown stops a session while draining its sample channel so the
// producer can never block mid-shutdown.
func teardown(session ProbeSession, kill bool) {
	go func() {
		for range session.Samples() {
		}
	}()
	if kill {
		session.Kill()
	} else {
		session.Stop()
	}
}

// applyUpdate refreshes channel metadata from the controller. A source
// change means the controller already failed over, so detection state
// restarts from scratch against the new source. It reports whether the
// probe session should be replaced.
func (m *Monitor) applyUpdate(ctx context.Context, ch controller.Channel) bool {
	m.name = ch.Name

	sourceChanged := ch.SourceRef != m.sourceRef
	if sourceChanged {
		m.sourceRef = ch.SourceRef
		m.bufferingSince = time.Time{}
		m.bufferDeadline = time.Time{}
		m.lastSwitchAt = time.Time{}
		m.errorCount = 0
		m.errorStart = time.Time{}
		m.record(ctx, models.Event{Type: models.EventSourceChanged})
	}

	m.refreshStatus()
	return sourceChanged
}

// handleSample advances the buffering and error state machines for one
// probe observation. At most one failover request is issued per sample
// even when both branches qualify.
func (m *Monitor) handleSample(ctx context.Context, sample probe.Sample) {
	attempted := false

	if sample.HasSpeed {
		m.speed = sample.Speed
		m.hasSpeed = true

		if sample.Speed < m.cfg.BufferSpeedThreshold {
			if m.bufferingSince.IsZero() {
				m.bufferingSince = sample.At
				m.bufferDeadline = sample.At.Add(m.cfg.BufferTimeThreshold)
				m.record(ctx, models.Event{
					Type:  models.EventBufferingStarted,
					Speed: sample.Speed,
				})
			}

			if !sample.At.Before(m.bufferDeadline) {
				attempted = true
				if m.attemptFailover(ctx, models.ReasonBuffering, sample, 0) {
					m.lastSwitchAt = sample.At
					m.bufferDeadline = sample.At.Add(m.cfg.BufferExtensionTime)
				}
			}
		} else {
			if !m.bufferingSince.IsZero() {
				m.record(ctx, models.Event{
					Type:  models.EventBufferingRecovered,
					Speed: sample.Speed,
				})
				m.bufferingSince = time.Time{}
				m.bufferDeadline = time.Time{}
			}
			m.lastSwitchAt = time.Time{}
		}
	}

	if sample.Error && m.cfg.ErrorThreshold > 0 {
		if m.errorStart.IsZero() {
			m.errorStart = sample.At
		}
		m.errorCount++
		if sample.At.Sub(m.errorStart) > m.cfg.ErrorResetTime {
			m.errorCount = 1
			m.errorStart = sample.At
		}

		m.deps.Logger.Warn("stream error detected",
			slog.String("channel_id", m.channelID),
			slog.String("channel_name", m.name),
			slog.Int("error_count", m.errorCount),
			slog.String("line", sample.Line),
		)

		if m.errorCount >= m.cfg.ErrorThreshold && !attempted {
			if !m.lastSwitchAt.IsZero() && sample.At.Sub(m.lastSwitchAt) < m.cfg.ErrorSwitchCooldown {
				m.deps.Logger.Debug("switch cooldown active",
					slog.String("channel_id", m.channelID),
					slog.Time("last_switch", m.lastSwitchAt),
				)
			} else {
				m.record(ctx, models.Event{
					Type:       models.EventErrorsDetected,
					ErrorCount: m.errorCount,
					Detail:     sample.Line,
				})
				if m.attemptFailover(ctx, models.ReasonErrors, sample, m.errorCount) {
					m.lastSwitchAt = sample.At
					m.errorCount = 0
					m.errorStart = time.Time{}
				}
			}
		}
	}

	m.refreshStatus()
}

// attemptFailover requests a source switch from the controller. A failed
// request leaves all detection state untouched so the next qualifying
// sample retries.
func (m *Monitor) attemptFailover(ctx context.Context, reason models.FailoverReason, sample probe.Sample, errorCount int) bool {
	m.record(ctx, models.Event{
		Type:       models.EventFailoverRequested,
		Reason:     reason,
		Speed:      sample.Speed,
		ErrorCount: errorCount,
	})

	if err := m.deps.Failover(ctx, m.channelID); err != nil {
		m.record(ctx, models.Event{
			Type:       models.EventFailoverFailed,
			Reason:     reason,
			Speed:      sample.Speed,
			ErrorCount: errorCount,
			Detail:     err.Error(),
		})
		return false
	}

	m.record(ctx, models.Event{
		Type:   models.EventFailoverSucceeded,
		Reason: reason,
		Speed:  sample.Speed,
	})

	if m.deps.Command != nil {
		go m.deps.Command.Run(context.WithoutCancel(ctx))
	}
	return true
}

// record stamps an event with channel identity and forwards it to the sink.
func (m *Monitor) record(ctx context.Context, event models.Event) {
	event.ChannelID = m.channelID
	event.ChannelName = m.name
	if event.SourceRef == "" {
		event.SourceRef = m.sourceRef
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if m.deps.Sink != nil {
		m.deps.Sink.Record(ctx, event)
	}
}

// publishStatus refreshes the snapshot including probe run state.
func (m *Monitor) publishStatus(running bool, pid int) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	m.status = m.snapshot()
	m.status.ProbeRunning = running
	m.status.ProbePID = pid
}

// refreshStatus refreshes the snapshot preserving probe run state.
func (m *Monitor) refreshStatus() {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	running, pid := m.status.ProbeRunning, m.status.ProbePID
	m.status = m.snapshot()
	m.status.ProbeRunning = running
	m.status.ProbePID = pid
}

func (m *Monitor) snapshot() Status {
	return Status{
		ChannelID:      m.channelID,
		ChannelName:    m.name,
		SourceRef:      m.sourceRef,
		Speed:          m.speed,
		HasSpeed:       m.hasSpeed,
		Buffering:      !m.bufferingSince.IsZero(),
		BufferingSince: m.bufferingSince,
		ErrorCount:     m.errorCount,
		LastSwitchAt:   m.lastSwitchAt,
		StartedAt:      m.startedAt,
	}
}
