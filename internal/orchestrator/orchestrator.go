// Package orchestrator runs MESA in a work directory: it copies inlists into
// place, starts star, infers success from the saved model and keeps the
// run history.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"mesactl/internal/classify"
	"mesactl/internal/config"
	"mesactl/internal/defaults"
	"mesactl/internal/inlist"
	"mesactl/internal/namelist"
	"mesactl/internal/plan"
	"mesactl/internal/state"
	"mesactl/internal/supervisor"
	"mesactl/internal/util"
	"mesactl/internal/worker"
)

// Runner drives star, re and mk in one work directory.
type Runner struct {
	cfg      *config.Config
	reg      *defaults.Registry
	fs       afero.Fs
	workDir  string
	workers  *worker.Factory
	events   *supervisor.EventWriter
	status   *supervisor.StatusWriter
	store    *state.Store
	logger   *slog.Logger
	interval time.Duration
	failures *classify.Classifier

	// lastInlist is the inlist most recently copied into place
	lastInlist string
}

// Options configures the runner.
type Options struct {
	Config *config.Config

	// Registry is required for runs; Make and the log helpers work without it
	Registry *defaults.Registry

	// Fs is the filesystem holding the work directory. Subprocesses always
	// run on the OS filesystem, so anything other than afero.OsFs is only
	// useful for the file operations.
	Fs afero.Fs

	Events *supervisor.EventWriter
	Status *supervisor.StatusWriter
	Store  *state.Store
	Logger *slog.Logger

	// Stdin, Stdout and Stderr are connected to the subprocesses
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// HeartbeatInterval between progress log lines during a run; zero disables
	HeartbeatInterval time.Duration
}

// RunResult describes one finished run.
type RunResult struct {
	Record state.RunRecord
	Result *worker.Result

	// ModelPath is where the saved model was expected
	ModelPath string

	// Profile is filename_for_profile_when_terminate from the inlist
	Profile string
}

// SequenceResult describes a sequence of runs.
type SequenceResult struct {
	Runs     []RunResult
	Total    int
	Duration time.Duration
}

// Completed returns the number of runs that succeeded.
func (s *SequenceResult) Completed() int {
	n := 0
	for _, r := range s.Runs {
		if r.Record.Status == state.StatusComplete {
			n++
		}
	}
	return n
}

// New creates a runner.
func New(opts Options) (*Runner, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	workDir, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolving work dir: %w", err)
	}
	if info, err := fs.Stat(workDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("work dir %s is not a directory", workDir)
	}

	failures := classify.NewClassifier()
	if err := failures.AddPatternsFromString(cfg.FailurePatterns); err != nil {
		return nil, fmt.Errorf("FAILURE_PATTERNS: %w", err)
	}

	store := opts.Store
	if store == nil {
		store = state.NewStore(fs, filepath.Join(workDir, cfg.HistoryFile))
	}

	return &Runner{
		cfg:      cfg,
		reg:      opts.Registry,
		fs:       fs,
		workDir:  workDir,
		workers:  createWorkerFactory(cfg, workDir, opts),
		events:   opts.Events,
		status:   opts.Status,
		store:    store,
		logger:   logger,
		interval: opts.HeartbeatInterval,
		failures: failures,
	}, nil
}

// createWorkerFactory creates workers based on configuration.
func createWorkerFactory(cfg *config.Config, workDir string, opts Options) *worker.Factory {
	base := func(command string) *worker.Config {
		wc := worker.DefaultConfig(command, workDir)
		wc.Quiet = cfg.QuietRuns
		wc.Stdin = opts.Stdin
		wc.Stdout = opts.Stdout
		wc.Stderr = opts.Stderr
		return wc
	}
	return worker.NewFactory(base(cfg.StarCmd), base(cfg.RestartCmd), base(cfg.MakeCmd))
}

// WorkDir returns the absolute work directory.
func (r *Runner) WorkDir() string {
	return r.workDir
}

// path resolves name against the work directory.
func (r *Runner) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(r.workDir, name)
}

// Run runs each inlist in turn, stopping at the first failure.
func (r *Runner) Run(ctx context.Context, inlists ...string) (*SequenceResult, error) {
	return r.RunPlan(ctx, plan.FromInlists(inlists...))
}

// RunPlan runs the steps of p in order, stopping at the first failure.
func (r *Runner) RunPlan(ctx context.Context, p *plan.Plan) (*SequenceResult, error) {
	if r.reg == nil {
		return nil, errors.New("running requires the defaults registry")
	}

	if err := p.Resolve(r.reg); err != nil {
		return nil, err
	}
	result := p.Validate(plan.Env{
		Fs:           r.fs,
		WorkDir:      r.workDir,
		ActiveInlist: r.cfg.InlistName,
		Registry:     r.reg,
	})
	for _, w := range result.Warnings {
		r.logger.Warn("plan", "warning", w.Error())
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	seq := &SequenceResult{Total: len(p.Steps)}
	r.events.WriteSequenceStart(p.Inlists())
	r.status.StartSequence(seq.Total)

	var runErr error
	for i := range p.Steps {
		step := &p.Steps[i]
		rr, err := r.runStep(ctx, step)
		lastModel := 0
		if rr != nil {
			seq.Runs = append(seq.Runs, *rr)
			lastModel = rr.Record.LastModel
		}
		r.status.FinishRun(err == nil, lastModel)
		if err != nil {
			if i+1 < len(p.Steps) {
				r.logger.Error("aborting since previous inlist failed to run", "inlist", step.Inlist)
			}
			runErr = err
			break
		}
	}

	seq.Duration = time.Since(start)
	r.events.WriteSequenceComplete(seq.Completed(), seq.Total, seq.Duration)
	if runErr != nil {
		return seq, runErr
	}

	r.logger.Info("finished running all inlists", "runs", seq.Total, "duration", seq.Duration.Round(time.Second))
	return seq, nil
}

// runStep prepares the active inlist for step and runs star once.
func (r *Runner) runStep(ctx context.Context, step *plan.Step) (*RunResult, error) {
	active := r.path(r.cfg.InlistName)
	if err := util.RemoveFile(r.fs, active); err != nil {
		return nil, err
	}
	if err := util.RemoveFile(r.fs, r.path(r.cfg.RestartPhoto)); err != nil {
		return nil, err
	}
	if err := copyFile(r.fs, r.path(step.Inlist), active); err != nil {
		return nil, fmt.Errorf("copying %s into place: %w", step.Inlist, err)
	}
	r.lastInlist = step.Inlist

	f, err := r.openActive()
	if err != nil {
		return nil, err
	}

	overrides := make(map[string]string, len(step.Set))
	for _, ov := range step.Set {
		if err := f.Upsert(ov.Name, ov.Value); err != nil {
			return nil, fmt.Errorf("step %s: setting %s: %w", step.Label(), ov.Name, err)
		}
		overrides[ov.Name] = ov.Value.String()
	}

	modelValue, err := f.Get("save_model_filename")
	if err != nil {
		return nil, err
	}
	model := namelistText(modelValue)
	profileValue, err := f.Get("filename_for_profile_when_terminate")
	if err != nil {
		return nil, err
	}
	profile := namelistText(profileValue)

	if v, err := f.Get("save_model_when_terminate"); err == nil {
		if save, ok := v.Bool(); ok && !save {
			r.logger.Warn("save_model_when_terminate is false; the run cannot be confirmed", "inlist", step.Inlist)
		}
	}

	pause, pgstar := r.cfg.Pause, r.cfg.Pgstar
	if step.Pause != nil {
		pause = *step.Pause
	}
	if step.Pgstar != nil {
		pgstar = *step.Pgstar
	}
	if err := f.Upsert("pause_before_terminate", namelist.Bool(pause)); err != nil {
		return nil, err
	}
	if err := f.Upsert("pgstar_flag", namelist.Bool(pgstar)); err != nil {
		return nil, err
	}

	modelPath := r.path(model)
	if model != "" {
		if err := util.RemoveFile(r.fs, modelPath); err != nil {
			return nil, err
		}
	}

	if err := r.requireExecutable(r.cfg.StarCmd); err != nil {
		return nil, err
	}

	rec := state.NewRecord(state.KindRun)
	rec.Inlist = step.Inlist
	rec.Model = model
	if len(overrides) > 0 {
		rec.Overrides = overrides
	}

	r.logger.Info("running", "inlist", step.Inlist, "model", model, "run", shortID(rec.ID))
	res, err := r.execute(ctx, &rec, r.workers.Star, step.Inlist)
	if err != nil {
		return nil, err
	}

	rr := &RunResult{Record: rec, Result: res, ModelPath: modelPath, Profile: profile}

	_, statErr := r.fs.Stat(modelPath)
	switch {
	case res.Interrupted:
		rec.Status = state.StatusInterrupted
	case model != "" && statErr == nil:
		rec.Status = state.StatusComplete
	default:
		rec.Status = state.StatusFailed
	}

	if rec.Status != state.StatusComplete {
		failure := &RunFailedError{
			Inlist:      step.Inlist,
			Model:       model,
			Termination: res.Termination,
			Category:    r.failures.Classify(res.Output),
			Summary:     classify.ExtractErrorMessage(res.Output, 200),
			Err:         res.Error,
		}
		rec.Error = failure.Error()
		rr.Record = rec
		r.saveRecord(rec)
		r.events.WriteRunFailed(rec.ID, step.Inlist, rec.Error)
		r.logFailure(step.Inlist, res, failure.Category, failure.Summary)
		return rr, failure
	}

	rr.Record = rec
	r.saveRecord(rec)
	r.events.WriteRunComplete(rec.ID, step.Inlist, model, res.Duration)
	r.logger.Info("evolving the star finished",
		"inlist", step.Inlist,
		"model", model,
		"termination", res.Termination,
		"duration", res.Duration.Round(time.Second))

	if step.Archive != "" {
		if err := r.CopyLogs(step.Archive, profile); err != nil {
			return rr, err
		}
	}
	return rr, nil
}

// Restart copies the last inlist into place if needed and restarts from
// the named photo with the restart script.
func (r *Runner) Restart(ctx context.Context, photo string) (*RunResult, error) {
	if err := r.ensureActive(); err != nil {
		return nil, err
	}

	photoPath := r.path(filepath.Join(r.cfg.PhotosDir, photo))
	if _, err := r.fs.Stat(photoPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPhoto, photoPath)
	}
	if err := r.requireExecutable(r.cfg.RestartCmd); err != nil {
		return nil, err
	}

	rec := state.NewRecord(state.KindRestart)
	rec.Photo = photo
	rec.Inlist = r.lastInlist

	r.logger.Info("restarting", "photo", photo, "run", shortID(rec.ID))
	r.status.StartSequence(1)
	res, err := r.execute(ctx, &rec, r.workers.Restart, rec.Inlist, photo)
	if err != nil {
		r.status.FinishRun(false, 0)
		return nil, err
	}
	r.status.FinishRun(res.Success(), res.LastModel)

	rec.Status = statusFor(res)
	r.saveRecord(rec)
	rr := &RunResult{Record: rec, Result: res}
	if !res.Success() {
		r.events.WriteRunFailed(rec.ID, rec.Inlist, rec.Error)
		return rr, fmt.Errorf("restart from %s: %w", photo, res.Error)
	}
	r.events.WriteRunComplete(rec.ID, rec.Inlist, "", res.Duration)
	return rr, nil
}

// RestartLatest restarts from the most recently written photo.
func (r *Runner) RestartLatest(ctx context.Context) (*RunResult, error) {
	photo, err := r.LatestPhoto()
	if err != nil {
		return nil, err
	}
	r.logger.Info("restarting with latest photo", "photo", photo)
	return r.Restart(ctx, photo)
}

// Make builds star with the make script.
func (r *Runner) Make(ctx context.Context) (*RunResult, error) {
	if err := r.requireExecutable(r.cfg.MakeCmd); err != nil {
		return nil, err
	}

	rec := state.NewRecord(state.KindMake)
	r.logger.Info("building star", "run", shortID(rec.ID))

	rec.LogPath = r.logPath(rec, "make")
	res, err := r.workers.Make(rec.LogPath).Execute(ctx)
	if err != nil {
		return nil, err
	}
	finish(&rec, res)
	rec.Status = statusFor(res)
	r.saveRecord(rec)
	r.events.WriteBuild(rec.ID, res.Success(), res.Duration)

	rr := &RunResult{Record: rec, Result: res}
	if !res.Success() {
		r.logFailure("", res, r.failures.Classify(res.Output), classify.ExtractErrorMessage(res.Output, 200))
		return rr, fmt.Errorf("build failed: %w", res.Error)
	}
	return rr, nil
}

// execute runs one star or re invocation with monitoring and history.
func (r *Runner) execute(ctx context.Context, rec *state.RunRecord, newWorker func(string) worker.Worker, label string, args ...string) (*worker.Result, error) {
	logPath := r.logPath(*rec, label)
	rec.LogPath = logPath
	r.saveRecord(*rec)
	r.events.WriteRunStart(rec.ID, label, rec.Model)

	monitor := r.startMonitor(rec.ID, label)
	r.status.StartRun(label, rec.ID)

	res, err := newWorker(logPath).Execute(ctx, args...)
	if monitor != nil {
		monitor.Stop()
		r.logger.Debug("run output files", "run", shortID(rec.ID), "count", monitor.Seen())
	}
	if err != nil {
		rec.Status = state.StatusFailed
		rec.Error = err.Error()
		r.saveRecord(*rec)
		return nil, err
	}

	finish(rec, res)
	return res, nil
}

// startMonitor watches for new profiles and photos when the work directory
// is on the OS filesystem. Profiles are looked for where the active inlist
// tells star to write them.
func (r *Runner) startMonitor(runID, label string) *ActivityMonitor {
	if !r.cfg.MonitorEnabled {
		return nil
	}
	if _, ok := r.fs.(*afero.OsFs); !ok {
		return nil
	}

	logDir, prefix := r.logSettings()
	logsDir, photosDir := r.path(logDir), r.path(r.cfg.PhotosDir)
	for _, dir := range []string{logsDir, photosDir} {
		if err := r.fs.MkdirAll(dir, 0755); err != nil {
			r.logger.Warn("creating output dir", "dir", dir, "error", err)
		}
	}

	m := NewActivityMonitor(logsDir, photosDir, prefix, r.interval, r.logger, func(a Activity) {
		r.events.WriteFile(a.Kind, runID, a.Path)
	})
	if err := m.Start(label); err != nil {
		r.logger.Warn("activity monitor disabled", "error", err)
		return nil
	}
	return m
}

func (r *Runner) logPath(rec state.RunRecord, label string) string {
	if r.cfg.RunLogDir == "" {
		return ""
	}
	name := fmt.Sprintf("%s-%s-%s.log", shortID(rec.ID), rec.Kind, util.Slugify(filepath.Base(label), 40))
	return r.path(filepath.Join(r.cfg.RunLogDir, name))
}

func (r *Runner) saveRecord(rec state.RunRecord) {
	if err := r.store.Update(func(h *state.History) error {
		h.Put(rec)
		h.Trim(r.cfg.HistoryMax)
		return nil
	}); err != nil {
		r.logger.Error("failed to save run history", "error", err)
	}
}

// openActive opens the active inlist.
func (r *Runner) openActive() (*inlist.File, error) {
	if r.reg == nil {
		return nil, errors.New("inlist access requires the defaults registry")
	}
	return inlist.Open(inlist.Options{
		Path:     r.path(r.cfg.InlistName),
		Fs:       r.fs,
		Registry: r.reg,
		Logger:   r.logger,
	})
}

// ensureActive copies the last run inlist into place when the active
// inlist is missing.
func (r *Runner) ensureActive() error {
	active := r.path(r.cfg.InlistName)
	if _, err := r.fs.Stat(active); err == nil {
		return nil
	}

	last := r.lastInlist
	if last == "" {
		if h, err := r.store.Load(); err == nil {
			last = h.LastInlist()
		}
	}
	if last == "" {
		return fmt.Errorf("%w: %s is missing and no run is recorded", ErrNoInlist, r.cfg.InlistName)
	}
	if err := copyFile(r.fs, r.path(last), active); err != nil {
		return fmt.Errorf("copying %s into place: %w", last, err)
	}
	r.lastInlist = last
	return nil
}

// requireExecutable checks the leading word of command in the work directory.
func (r *Runner) requireExecutable(command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fmt.Errorf("empty command")
	}
	exe := fields[0]
	if !strings.ContainsRune(exe, os.PathSeparator) {
		// resolved through PATH by the worker
		return nil
	}
	if util.IsExecutable(r.fs, r.path(exe)) {
		return nil
	}
	if command == r.cfg.StarCmd {
		return fmt.Errorf("%w: %s", ErrStarMissing, r.path(exe))
	}
	return fmt.Errorf("%s not found or not executable", r.path(exe))
}

// logFailure reports a failed invocation with its likely cause.
func (r *Runner) logFailure(label string, res *worker.Result, cat classify.Category, summary string) {
	r.logger.Error("run failed",
		"inlist", label,
		"termination", res.Termination,
		"category", cat,
		"output", summary,
		"duration", res.Duration.Round(time.Second))
	r.logger.Info(classify.Suggestions(cat), "retryable", classify.IsRetryable(cat))
}

func finish(rec *state.RunRecord, res *worker.Result) {
	rec.Duration = res.Duration.Seconds()
	rec.ExitCode = res.ExitCode
	rec.Termination = res.Termination
	rec.LastModel = res.LastModel
	if res.Error != nil {
		rec.Error = res.Error.Error()
	}
}

func statusFor(res *worker.Result) state.RunStatus {
	switch {
	case res.Interrupted:
		return state.StatusInterrupted
	case res.Success():
		return state.StatusComplete
	default:
		return state.StatusFailed
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// History loads the run history of the work directory.
func (r *Runner) History() (*state.History, error) {
	return r.store.Load()
}
