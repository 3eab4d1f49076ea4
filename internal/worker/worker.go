// Package worker runs the executables of a MESA work directory.
package worker

import (
	"context"
	"io"
	"time"
)

// Result holds the output from one executable run.
type Result struct {
	// Output is the combined stdout and stderr
	Output string

	// Termination is the code MESA reports after "termination code:"
	Termination string

	// StopReason is the text after "stop because"
	StopReason string

	// LastModel is the highest model number seen in save messages
	LastModel int

	// Profiles and Photos written during the run, in order
	Profiles []string
	Photos   []string

	ExitCode int
	Duration time.Duration

	// Error is set when the process could not start or exited non-zero
	Error error

	// Interrupted is set when the context was cancelled before the process exited
	Interrupted bool
}

// Success returns true if the process ran and exited cleanly.
func (r *Result) Success() bool {
	return r.Error == nil && !r.Interrupted
}

// Worker is the interface for work-directory executables.
type Worker interface {
	// Execute runs the executable with the given extra arguments
	Execute(ctx context.Context, args ...string) (*Result, error)

	// Name is the executable base name, used in logs
	Name() string
}

// Config describes how to start one executable.
type Config struct {
	// Command is the executable and its leading arguments (e.g. "./star")
	Command string

	// Args are appended after Command
	Args []string

	// WorkingDir is the MESA work directory
	WorkingDir string

	// Env is appended to the inherited environment
	Env []string

	// LogPath receives a copy of all output when set
	LogPath string

	// Quiet suppresses output to Stdout and Stderr
	Quiet bool

	// Stdin is passed to the process; MESA waits on it when pausing before terminate
	Stdin io.Reader

	// Stdout and Stderr receive live output unless Quiet is set
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultConfig returns a default configuration for command in workDir.
func DefaultConfig(command, workDir string) *Config {
	return &Config{
		Command:    command,
		WorkingDir: workDir,
	}
}

// Factory creates the workers of one work directory.
type Factory struct {
	starConfig    *Config
	restartConfig *Config
	makeConfig    *Config
}

// NewFactory takes the star, restart and make configurations.
func NewFactory(star, restart, mk *Config) *Factory {
	return &Factory{
		starConfig:    star,
		restartConfig: restart,
		makeConfig:    mk,
	}
}

// Star creates a worker for the star executable logging to logPath.
func (f *Factory) Star(logPath string) Worker {
	return NewCLIWorker(f.starConfig.withLog(logPath))
}

// Restart creates a worker for the restart script logging to logPath.
func (f *Factory) Restart(logPath string) Worker {
	return NewCLIWorker(f.restartConfig.withLog(logPath))
}

// Make creates a worker for the build script.
func (f *Factory) Make(logPath string) Worker {
	return NewCLIWorker(f.makeConfig.withLog(logPath))
}

func (c *Config) withLog(path string) *Config {
	cp := *c
	cp.LogPath = path
	return &cp
}
