package probe

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript writes an executable shell script that stands in for ffmpeg.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func testFactory(path string) *Factory {
	return NewFactory(Config{
		FFmpegPath:      path,
		UserAgent:       "test-agent",
		StopGracePeriod: 2 * time.Second,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestSession_ParsesStderrSamples(t *testing.T) {
	script := writeScript(t, `
printf 'Input #0, mpegts\n' >&2
printf 'speed=0.50x\r' >&2
printf 'error while decoding MB 1 2\n' >&2
printf 'speed=1.02x\n' >&2
`)

	session, err := testFactory(script).Start("http://ignored")
	require.NoError(t, err)

	var samples []Sample
	for sample := range session.Samples() {
		samples = append(samples, sample)
	}

	require.Len(t, samples, 3)
	assert.Equal(t, 0.5, samples[0].Speed)
	assert.True(t, samples[1].Error)
	assert.Equal(t, 1.02, samples[2].Speed)
	assert.False(t, samples[0].At.IsZero())

	<-session.Done()
	assert.NoError(t, session.Err())
}

func TestSession_DoneOnProcessExit(t *testing.T) {
	session, err := testFactory(writeScript(t, "exit 0")).Start("http://ignored")
	require.NoError(t, err)

	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestSession_ReportsExitError(t *testing.T) {
	session, err := testFactory(writeScript(t, "exit 3")).Start("http://ignored")
	require.NoError(t, err)

	<-session.Done()
	assert.Error(t, session.Err())
}

func TestSession_StopTerminatesProcess(t *testing.T) {
	session, err := testFactory(writeScript(t, "exec sleep 30")).Start("http://ignored")
	require.NoError(t, err)

	start := time.Now()
	session.Stop()
	assert.Less(t, time.Since(start), 5*time.Second)

	select {
	case <-session.Done():
	case <-time.After(time.Second):
		t.Fatal("process still running after Stop")
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	session, err := testFactory(writeScript(t, "exec sleep 30")).Start("http://ignored")
	require.NoError(t, err)

	session.Stop()
	session.Stop()
}

func TestSession_MemoryRSS(t *testing.T) {
	session, err := testFactory(writeScript(t, "exec sleep 5")).Start("http://ignored")
	require.NoError(t, err)
	defer session.Stop()

	rss, err := session.MemoryRSS()
	require.NoError(t, err)
	assert.Greater(t, rss, uint64(0))
}

func TestFactory_StartFailsOnMissingBinary(t *testing.T) {
	_, err := testFactory("/nonexistent/ffmpeg").Start("http://ignored")
	require.Error(t, err)
}
