package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner executes an operator-supplied command when a failover is
// about to be requested. The command is advisory: failures are logged and
// never block the failover itself.
type CommandRunner struct {
	command string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCommandRunner creates a runner for the given command line. Returns
// nil when the command is empty, which callers treat as disabled.
func NewCommandRunner(command string, timeout time.Duration, logger *slog.Logger) *CommandRunner {
	if strings.TrimSpace(command) == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandRunner{
		command: command,
		timeout: timeout,
		logger:  logger,
	}
}

// Run executes the command, killing it if it exceeds the timeout.
func (r *CommandRunner) Run(ctx context.Context) error {
	argv := splitCommand(r.command)
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	output, err := cmd.CombinedOutput()
	runtime := time.Since(start)

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		r.logger.Warn("custom command timed out",
			slog.String("command", argv[0]),
			slog.Duration("timeout", r.timeout),
		)
		return fmt.Errorf("command timed out after %s", r.timeout)
	case err != nil:
		r.logger.Warn("custom command failed",
			slog.String("command", argv[0]),
			slog.String("output", strings.TrimSpace(string(output))),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("running command: %w", err)
	default:
		r.logger.Info("custom command completed",
			slog.String("command", argv[0]),
			slog.Duration("runtime", runtime),
		)
		return nil
	}
}

// splitCommand splits a command line into arguments respecting quotes.
func splitCommand(s string) []string {
	var result []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)
	escaped := false

	for _, r := range s {
		if escaped {
			current.WriteRune(r)
			escaped = false
			continue
		}

		if r == '\\' {
			escaped = true
			continue
		}

		if r == '"' || r == '\'' {
			if !inQuote {
				inQuote = true
				quoteChar = r
			} else if r == quoteChar {
				inQuote = false
			} else {
				current.WriteRune(r)
			}
			continue
		}

		if r == ' ' && !inQuote {
			if current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
			continue
		}

		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}
