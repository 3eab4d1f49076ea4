package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"mesactl/internal/defaults"
	"mesactl/internal/plan"
	"mesactl/internal/state"
	"mesactl/internal/supervisor"
	"mesactl/internal/util"
)

var now = time.Now

var (
	historyLimit int
	historyJSON  bool
)

// historyCmd shows past runs.
var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show the runs made in the work directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		store := state.NewStore(e.fs, e.cfg.WorkPath(e.cfg.HistoryFile))
		h, err := store.Load()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			rec, ok := h.Find(args[0])
			if !ok {
				return fmt.Errorf("no single run matches %q", args[0])
			}
			data, _ := json.MarshalIndent(rec, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		runs := h.Runs
		if historyLimit > 0 && len(runs) > historyLimit {
			runs = runs[len(runs)-historyLimit:]
		}
		if historyJSON {
			data, _ := json.MarshalIndent(runs, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		if len(runs) == 0 {
			fmt.Printf("%s %s\n", text.FgYellow.Sprint("No runs recorded in"), store.Path())
			return nil
		}

		t := newTable()
		t.AppendHeader(table.Row{"ID", "KIND", "STARTED", "INLIST", "MODEL", "STATUS", "DURATION", "TERMINATION"})
		for _, r := range runs {
			target := r.Inlist
			if r.Kind == state.KindRestart {
				target = "photos/" + r.Photo
			}
			t.AppendRow(table.Row{
				shortID(r.ID),
				r.Kind,
				r.StartedAt,
				target,
				r.Model,
				colorStatus(r.Status),
				r.Elapsed().Round(time.Second),
				r.Termination,
			})
		}
		t.Render()
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func colorStatus(s state.RunStatus) string {
	switch s {
	case state.StatusComplete:
		return text.FgGreen.Sprint(s)
	case state.StatusFailed:
		return text.FgRed.Sprint(s)
	case state.StatusInterrupted, state.StatusRunning:
		return text.FgYellow.Sprint(s)
	default:
		return string(s)
	}
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "show the last n runs (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(historyCmd)
}

// eventsCmd prints the event log.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print the run event log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		if e.cfg.EventsFile == "" {
			return fmt.Errorf("EVENTS_FILE is not configured")
		}
		events, err := supervisor.ReadEvents(e.fs, e.cfg.WorkPath(e.cfg.EventsFile))
		if err != nil {
			return err
		}
		for _, ev := range events {
			data, _ := json.Marshal(ev.Data)
			fmt.Printf("%s  %-17s %s %s\n", ev.Timestamp, ev.Type, ev.Inlist, data)
		}
		return nil
	},
}

// statusCmd prints the status file.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the progress of the current or last sequence",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		if e.cfg.StatusFile == "" {
			return fmt.Errorf("STATUS_FILE is not configured")
		}
		st, err := supervisor.NewStatusWriter(e.fs, e.cfg.WorkPath(e.cfg.StatusFile)).Read()
		if err != nil {
			return err
		}
		if st == nil {
			fmt.Println("no sequence has run")
			return nil
		}

		outcome := text.FgGreen.Sprint("ok")
		if st.Failed {
			outcome = text.FgRed.Sprint("failed")
		}
		fmt.Printf("%d/%d runs  %s", st.Done, st.Total, outcome)
		if st.Current != "" {
			elapsed := time.Duration(st.Elapsed) * time.Second
			if t, err := time.Parse(time.RFC3339, st.StartedAt); err == nil && !st.Failed {
				elapsed = now().Sub(t).Round(time.Second)
			}
			fmt.Printf("  current: %s (%s)", st.Current, elapsed)
		}
		if st.LastModel > 0 {
			fmt.Printf("  model %d", st.LastModel)
		}
		fmt.Println()
		return nil
	},
}

// validateCmd checks a plan without running it.
var validateCmd = &cobra.Command{
	Use:   "validate <plan.yaml>",
	Short: "Check a run plan against the work directory and the defaults",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setupWithRegistry()
		if err != nil {
			return err
		}
		p, err := plan.Load(e.fs, args[0])
		if err != nil {
			return err
		}
		if err := p.Resolve(e.reg); err != nil {
			return err
		}

		result := p.Validate(plan.Env{
			Fs:           e.fs,
			WorkDir:      e.cfg.WorkDir,
			ActiveInlist: e.cfg.InlistName,
			Registry:     e.reg,
		})

		// Print errors
		if len(result.Errors) > 0 {
			fmt.Println("Errors:")
			for _, err := range result.Errors {
				fmt.Printf("  %s %s\n", text.FgRed.Sprint("✗"), err)
			}
		}

		// Print warnings
		if len(result.Warnings) > 0 {
			fmt.Println("Warnings:")
			for _, w := range result.Warnings {
				fmt.Printf("  %s %s\n", text.FgYellow.Sprint("⚠"), w)
			}
		}

		if result.IsValid() {
			fmt.Printf("%s plan is valid: %d steps\n", text.FgGreen.Sprint("✓"), len(p.Steps))
			if names := p.OverrideNames(); len(names) > 0 {
				fmt.Printf("  overrides: %s\n", strings.Join(names, ", "))
			}
			if validatePrint {
				data, err := p.Marshal()
				if err != nil {
					return err
				}
				fmt.Print(string(data))
			}
			return nil
		}
		return fmt.Errorf("validation failed with %d errors", len(result.Errors))
	},
}

// versionCmd prints versions.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mesactl and MESA versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		fmt.Printf("mesactl %s\n", Version)
		fmt.Printf("MESA    %s (%s)\n", util.MesaVersion(e.fs, e.cfg.MesaDir), e.cfg.MesaDir)
		if e.cfg.MesaDir != "" {
			fmt.Printf("defaults %s\n", filepath.Join(e.cfg.MesaDir, defaults.Subdir))
		}
		if p := e.cfg.Path(); p != "" {
			fmt.Printf("config  %s\n", p)
		}
		return nil
	},
}

var validatePrint bool

func init() {
	validateCmd.Flags().BoolVar(&validatePrint, "print", false, "print the plan with values converted to their parameter types")
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}
