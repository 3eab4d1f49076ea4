package main

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"mesactl/internal/orchestrator"
	"mesactl/internal/plan"
	"mesactl/internal/state"
)

var (
	planFile  string
	noPgstar  bool
	noPause   bool
	latest    bool
	heartbeat time.Duration
)

// runCmd runs inlists or a plan in sequence.
var runCmd = &cobra.Command{
	Use:   "run [inlist...]",
	Short: "Run star once per inlist, stopping at the first failure",
	Long: `Run star once for each inlist, in order.

Each inlist is copied into place as 'inlist' before its run. A run succeeds
when the model file named by save_model_filename exists afterwards. With
--plan, steps come from a YAML plan that can override parameters per run:

  name: mass-grid
  steps:
    - inlist: inlist_to_zams
    - inlist: inlist_to_tams
      set:
        initial_mass: 2.0
        x_ctrl(1): 0.5
      archive: LOGS_2M`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if planFile == "" && len(args) == 0 {
			return fmt.Errorf("give at least one inlist or --plan")
		}
		if planFile != "" && len(args) > 0 {
			return fmt.Errorf("inlists and --plan are mutually exclusive")
		}

		e, err := setupWithRegistry()
		if err != nil {
			return err
		}
		if noPgstar {
			e.cfg.Pgstar = false
		}
		if noPause {
			e.cfg.Pause = false
		}

		var p *plan.Plan
		if planFile != "" {
			if p, err = plan.Load(e.fs, planFile); err != nil {
				return err
			}
		} else {
			p = plan.FromInlists(args...)
		}

		r, cleanup, err := e.runner()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		seq, err := r.RunPlan(ctx, p)
		if seq != nil {
			printSequence(seq)
		}
		return err
	},
}

func init() {
	runCmd.Flags().StringVarP(&planFile, "plan", "p", "", "YAML run plan")
	runCmd.Flags().BoolVar(&noPgstar, "no-pgstar", false, "set pgstar_flag = .false. for the runs")
	runCmd.Flags().BoolVar(&noPause, "no-pause", false, "set pause_before_terminate = .false. for the runs")
	runCmd.Flags().DurationVar(&heartbeat, "heartbeat", 5*time.Minute, "progress log interval during runs (0 disables)")
	rootCmd.AddCommand(runCmd)
}

func printSequence(seq *orchestrator.SequenceResult) {
	for _, rr := range seq.Runs {
		mark := text.FgGreen.Sprint("✓")
		if rr.Record.Status != state.StatusComplete {
			mark = text.FgRed.Sprint("✗")
		}
		fmt.Printf("%s %s  %s  %s\n", mark, rr.Record.Inlist, rr.Record.Model, rr.Record.Elapsed().Round(time.Second))
	}
	fmt.Printf("%d/%d runs complete in %s\n", seq.Completed(), seq.Total, seq.Duration.Round(time.Second))
}

// restartCmd restarts from a photo.
var restartCmd = &cobra.Command{
	Use:   "restart [photo]",
	Short: "Restart star from a photo with ./re",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if latest == (len(args) == 1) {
			return fmt.Errorf("give a photo name or --latest")
		}

		e, err := setupWithRegistry()
		if err != nil {
			return err
		}
		r, cleanup, err := e.runner()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		var rr *orchestrator.RunResult
		if latest {
			rr, err = r.RestartLatest(ctx)
		} else {
			rr, err = r.Restart(ctx, args[0])
		}
		if rr != nil {
			fmt.Printf("restart from %s: %s (%s)\n", rr.Record.Photo, rr.Record.Status, rr.Record.Elapsed().Round(time.Second))
		}
		return err
	},
}

func init() {
	restartCmd.Flags().BoolVar(&latest, "latest", false, "restart from the most recent photo")
	rootCmd.AddCommand(restartCmd)
}

// makeCmd builds star.
var makeCmd = &cobra.Command{
	Use:   "make",
	Short: "Build star with ./mk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		r, cleanup, err := e.runner()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		if !e.cfg.QuietRuns {
			_, err := r.Make(ctx)
			return err
		}

		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Writer = os.Stderr
		s.Suffix = " Building star..."
		s.Start()
		defer s.Stop()

		rr, err := r.Make(ctx)
		if err != nil {
			s.FinalMSG = text.FgRed.Sprint("Build failed") + "\n"
			return err
		}
		s.FinalMSG = text.FgGreen.Sprintf("Built star in %s", rr.Result.Duration.Round(time.Second)) + "\n"
		return nil
	},
}

func init() {
	rootCmd.AddCommand(makeCmd)
}
