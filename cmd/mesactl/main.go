// Package main provides the mesactl CLI entry point.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"mesactl/internal/config"
	"mesactl/internal/defaults"
	"mesactl/internal/inlist"
	"mesactl/internal/module"
	"mesactl/internal/orchestrator"
	"mesactl/internal/supervisor"
)

var (
	// Version is set at build time
	Version = "dev"

	// Global flags
	cfgFile  string
	logLevel string
	workDir  string
	quiet    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mesactl",
	Short: "Edit MESA inlists and drive star runs",
	Long: `mesactl edits MESA inlist parameter files against the defaults of the
installation in $MESA_DIR, and runs star in a work directory.

A run copies an inlist into place as 'inlist', starts ./star and counts the
run as successful when the model named by save_model_filename exists once
star exits. Sequences of runs stop at the first failure.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&workDir, "workdir", "C", "", "MESA work directory")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "do not echo star output to the terminal")
}

// env bundles what most commands need.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	fs     afero.Fs
	reg    *defaults.Registry
}

// setup loads configuration with flag overrides and builds the logger.
func setup() (*env, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// Apply flag overrides
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if workDir != "" {
		cfg.WorkDir = workDir
	}
	if quiet {
		cfg.QuietRuns = true
	}

	logger := newLogger(cfg.LogLevel)
	for _, w := range cfg.Validate() {
		logger.Warn("config", "warning", w)
	}

	return &env{cfg: cfg, logger: logger, fs: afero.NewOsFs()}, nil
}

// setupWithRegistry is setup plus the defaults registry from MESA_DIR.
func setupWithRegistry() (*env, error) {
	e, err := setup()
	if err != nil {
		return nil, err
	}
	if err := e.loadRegistry(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *env) loadRegistry() error {
	reg, err := defaults.Load(defaults.Options{
		Root:   e.cfg.MesaDir,
		Fs:     e.fs,
		Logger: e.logger,
	})
	if err != nil {
		return err
	}
	e.reg = reg
	return nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
	return logger
}

// runner builds an orchestrator for the configured work directory, with the
// event stream, hooks and status file wired in.
func (e *env) runner() (*orchestrator.Runner, func(), error) {
	dispatcher, err := e.dispatcher()
	if err != nil {
		return nil, nil, err
	}

	events := supervisor.NewEventWriter(e.fs, e.workPath(e.cfg.EventsFile), dispatcher)
	status := supervisor.NewStatusWriter(e.fs, e.workPath(e.cfg.StatusFile))

	r, err := orchestrator.New(orchestrator.Options{
		Config:            e.cfg,
		Registry:          e.reg,
		Fs:                e.fs,
		Events:            events,
		Status:            status,
		Logger:            e.logger,
		Stdin:             os.Stdin,
		Stdout:            os.Stdout,
		Stderr:            os.Stderr,
		HeartbeatInterval: heartbeat,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		events.Close()
		dispatcher.Wait()
	}
	return r, cleanup, nil
}

// dispatcher returns the hooks from HOOKS, or nil when none are set.
func (e *env) dispatcher() (*module.Dispatcher, error) {
	hooks, err := module.ParseHooks(e.cfg.Hooks)
	if err != nil {
		return nil, fmt.Errorf("HOOKS: %w", err)
	}
	if len(hooks) == 0 {
		return nil, nil
	}
	return module.NewDispatcher(hooks, e.cfg.HookTimeout, e.logger), nil
}

// workPath resolves an optional file setting against the work directory.
func (e *env) workPath(name string) string {
	if name == "" {
		return ""
	}
	return e.cfg.WorkPath(name)
}

// openInlist opens an inlist in the work directory, the active one when
// name is empty.
func (e *env) openInlist(name string) (*inlist.File, error) {
	if name == "" {
		name = e.cfg.InlistName
	}
	path := name
	if !filepath.IsAbs(path) {
		path = e.cfg.WorkPath(name)
	}
	return inlist.Open(inlist.Options{
		Path:     path,
		Fs:       e.fs,
		Registry: e.reg,
		Logger:   e.logger,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM so star is stopped with us.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
