package probe

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Default session values.
const (
	DefaultStopGracePeriod = 5 * time.Second

	sampleBufferSize = 64
)

// Config holds the settings shared by all probe sessions.
type Config struct {
	// FFmpegPath is the path to the ffmpeg binary.
	FFmpegPath string

	// UserAgent is sent on the stream request. The reconciler relies on
	// this value to recognise the probe among a channel's clients.
	UserAgent string

	// DecodeForErrors selects the decoding pipeline so stream errors
	// surface on stderr. When false the stream is copied instead.
	DecodeForErrors bool

	// StopGracePeriod is how long Stop waits after SIGTERM before
	// escalating to SIGKILL.
	StopGracePeriod time.Duration

	// Logger is the structured logger for session lifecycle events.
	Logger *slog.Logger
}

// Factory launches probe sessions with a shared configuration.
type Factory struct {
	cfg Config
}

// NewFactory creates a session factory.
func NewFactory(cfg Config) *Factory {
	if cfg.StopGracePeriod <= 0 {
		cfg.StopGracePeriod = DefaultStopGracePeriod
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Factory{cfg: cfg}
}

// Start launches an ffmpeg probe against the stream URL and begins
// parsing its stderr output.
func (f *Factory) Start(streamURL string) (*Session, error) {
	cmd := exec.Command(f.cfg.FFmpegPath, buildArgs(f.cfg.UserAgent, streamURL, f.cfg.DecodeForErrors)...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}

	s := &Session{
		cmd:         cmd,
		gracePeriod: f.cfg.StopGracePeriod,
		logger:      f.cfg.Logger,
		samples:     make(chan Sample, sampleBufferSize),
		done:        make(chan struct{}),
	}

	go s.consume(stderr)
	return s, nil
}

// Session is one running ffmpeg measurement process.
type Session struct {
	cmd         *exec.Cmd
	gracePeriod time.Duration
	logger      *slog.Logger

	samples chan Sample
	done    chan struct{}

	stopOnce sync.Once
	mu       sync.Mutex
	waitErr  error
}

// Samples returns the channel of parsed stderr observations. It is closed
// when the process exits and stderr is drained.
func (s *Session) Samples() <-chan Sample {
	return s.samples
}

// Done is closed when the process has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the process exit error, valid after Done is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitErr
}

// Pid returns the process ID of the ffmpeg process.
func (s *Session) Pid() int {
	return s.cmd.Process.Pid
}

// Stop terminates the process, first with SIGTERM and after the grace
// period with SIGKILL, then waits for it to exit.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.cmd.Process.Signal(syscall.SIGTERM)

		select {
		case <-s.done:
		case <-time.After(s.gracePeriod):
			s.logger.Warn("probe did not terminate in time, killing",
				slog.Int("pid", s.Pid()))
			s.cmd.Process.Kill()
			<-s.done
		}
	})
}

// Kill terminates the process immediately without a grace period.
func (s *Session) Kill() {
	s.cmd.Process.Kill()
	<-s.done
}

// MemoryRSS returns the resident set size of the ffmpeg process in bytes.
func (s *Session) MemoryRSS() (uint64, error) {
	proc, err := process.NewProcess(int32(s.Pid()))
	if err != nil {
		return 0, fmt.Errorf("inspecting probe process: %w", err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("reading probe memory: %w", err)
	}
	return mem.RSS, nil
}

// consume parses stderr lines into samples until the process exits.
func (s *Session) consume(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	scanner.Split(scanProgressLines)

	for scanner.Scan() {
		sample, ok := ParseLine(scanner.Text())
		if !ok {
			continue
		}
		sample.At = time.Now()
		s.samples <- sample
	}

	err := s.cmd.Wait()
	s.mu.Lock()
	s.waitErr = err
	s.mu.Unlock()

	close(s.samples)
	close(s.done)
}

// scanProgressLines splits on both \n and \r, since ffmpeg rewrites its
// progress line in place with carriage returns.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
