package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// waitDelay bounds how long Wait lingers on output pipes held open by
// children of a killed process.
const waitDelay = 5 * time.Second

// CLIWorker executes a work-directory script or binary.
type CLIWorker struct {
	config *Config
	name   string
}

// NewCLIWorker creates a worker for config.Command.
func NewCLIWorker(config *Config) *CLIWorker {
	name := config.Command
	if parts := strings.Fields(config.Command); len(parts) > 0 {
		name = filepath.Base(parts[0])
	}
	return &CLIWorker{config: config, name: name}
}

// Name returns the base name of the executable.
func (w *CLIWorker) Name() string {
	return w.name
}

// Execute runs the command with args appended. A non-nil error means the
// worker could not be set up; process failures are reported in the Result.
// There is no timeout: a run ends when star stops or ctx is cancelled.
func (w *CLIWorker) Execute(ctx context.Context, args ...string) (*Result, error) {
	fields := strings.Fields(w.config.Command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	argv := append(append(fields[1:len(fields):len(fields)], w.config.Args...), args...)

	logFile, err := w.openLog()
	if err != nil {
		return nil, err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	var transcript lockedBuffer
	cmd := exec.CommandContext(ctx, fields[0], argv...)
	cmd.Dir = w.config.WorkingDir
	cmd.Env = append(os.Environ(), w.config.Env...)
	cmd.Stdin = w.config.Stdin
	cmd.Stdout, cmd.Stderr = w.outputs(&transcript, logFile)
	cmd.WaitDelay = waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return &Result{
			Error:    fmt.Errorf("starting %s: %w", w.name, err),
			ExitCode: -1,
			Duration: time.Since(start),
		}, nil
	}
	waitErr := cmd.Wait()

	result := ParseOutput(transcript.String())
	result.Duration = time.Since(start)

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		result.Interrupted = true
		result.Error = fmt.Errorf("%s interrupted: %w", w.name, ctx.Err())
	case errors.As(waitErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		result.Error = fmt.Errorf("%s exited with code %d", w.name, result.ExitCode)
	case waitErr != nil:
		result.Error = waitErr
	}
	return result, nil
}

// openLog creates the log file, or returns nil when no log is configured.
func (w *CLIWorker) openLog() (*os.File, error) {
	if w.config.LogPath == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(w.config.LogPath), 0755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.Create(w.config.LogPath)
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}
	return f, nil
}

// outputs fans process output out to the transcript, the log and, unless
// quiet, the terminal.
func (w *CLIWorker) outputs(transcript io.Writer, logFile *os.File) (stdout, stderr io.Writer) {
	common := []io.Writer{transcript}
	if logFile != nil {
		common = append(common, logFile)
	}
	if w.config.Quiet {
		sink := io.MultiWriter(common...)
		return sink, sink
	}
	stdout = io.MultiWriter(append(common, orDefault(w.config.Stdout, os.Stdout))...)
	stderr = io.MultiWriter(append(common, orDefault(w.config.Stderr, os.Stderr))...)
	return stdout, stderr
}

// lockedBuffer keeps stdout and stderr interleaved in write order.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func orDefault(w io.Writer, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}
