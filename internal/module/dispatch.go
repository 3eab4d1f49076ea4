package module

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultHookTimeout applies when NewDispatcher gets a non-positive timeout.
const DefaultHookTimeout = 10 * time.Second

// Dispatcher runs hooks for events. The zero of *Dispatcher (nil) accepts
// events and drops them.
type Dispatcher struct {
	hooks   []*Hook
	timeout time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

func NewDispatcher(hooks []*Hook, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{hooks: hooks, timeout: timeout, logger: logger}
}

// ParseHooks reads a HOOKS setting: comma-separated executable paths, each
// optionally followed by ":" and "+"-joined event names, for example
// "notify.sh:run_complete+run_failed,archive.sh".
func ParseHooks(list string) ([]*Hook, error) {
	var hooks []*Hook
	for _, item := range strings.Split(list, ",") {
		path, names, _ := strings.Cut(strings.TrimSpace(item), ":")
		if path == "" {
			continue
		}
		h := &Hook{Name: filepath.Base(path), Path: path}
		for _, name := range strings.FieldsFunc(names, func(r rune) bool { return r == '+' }) {
			et := EventType(strings.TrimSpace(name))
			if !et.Valid() {
				return nil, fmt.Errorf("hook %s: unknown event %q", h.Name, et)
			}
			h.Events = append(h.Events, et)
		}
		hooks = append(hooks, h)
	}
	return hooks, nil
}

func (d *Dispatcher) Hooks() []*Hook {
	if d == nil {
		return nil
	}
	return d.hooks
}

// HasHandlers reports whether any hook subscribes to et.
func (d *Dispatcher) HasHandlers(et EventType) bool {
	return len(d.matching(et)) > 0
}

func (d *Dispatcher) matching(et EventType) []*Hook {
	var out []*Hook
	for _, h := range d.Hooks() {
		if h.HandlesEvent(et) {
			out = append(out, h)
		}
	}
	return out
}

// Dispatch starts every subscribed hook in the background and returns.
// Failures are logged. Wait blocks until the hooks are done.
func (d *Dispatcher) Dispatch(event *Event) {
	for _, h := range d.matching(event.Type) {
		h := h
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.run(context.Background(), h, event); err != nil {
				d.logger.Warn("hook failed", "hook", h.Name, "event", event.Type, "error", err)
			}
		}()
	}
}

// DispatchSync runs the subscribed hooks one after another and returns one
// error per failed hook.
func (d *Dispatcher) DispatchSync(ctx context.Context, event *Event) []error {
	var errs []error
	for _, h := range d.matching(event.Type) {
		if err := d.run(ctx, h, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
		}
	}
	return errs
}

func (d *Dispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

// run starts hook with the event as JSON on stdin and kills it after the
// dispatcher timeout.
func (d *Dispatcher) run(ctx context.Context, hook *Hook, event *Event) error {
	payload, err := event.JSON()
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, hook.Path, "--event", string(event.Type))
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), event.Environ()...)

	err = cmd.Run()
	switch {
	case err == nil:
		return nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("killed after %v", d.timeout)
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return fmt.Errorf("%w: %s", err, msg)
	}
	return err
}
