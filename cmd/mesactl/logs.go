package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mesactl/internal/util"
)

var profile string

// cleanCmd removes run output.
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove png/*.png, LOGS/*.data and every photo",
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

		report, err := r.CleanLogs()
		if err != nil {
			return err
		}
		fmt.Printf("removed %d images, %d log files, %d photos\n", report.Images, report.Profiles, report.Photos)
		return nil
	},
}

// copyLogsCmd archives LOGS.
var copyLogsCmd = &cobra.Command{
	Use:   "copy-logs [dest]",
	Short: "Copy LOGS to a directory and move the final profile there",
	Long: `Copy the LOGS directory to dest and move the profile named by
filename_for_profile_when_terminate into it. Without dest, the directory is
named after the last inlist run and the current time.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setupOptionalRegistry()
		if err != nil {
			return err
		}
		r, cleanup, err := e.runner()
		if err != nil {
			return err
		}
		defer cleanup()

		dest := ""
		if len(args) == 1 {
			dest = args[0]
		}
		if dest == "" {
			last := ""
			if h, err := r.History(); err == nil {
				last = h.LastInlist()
			}
			dest = util.ArchiveName(e.cfg.LogsDir, last, now())
		}

		if err := r.CopyLogs(dest, profile); err != nil {
			return err
		}
		fmt.Println(dest)
		return nil
	},
}

// latestProfileCmd prints the newest profile.
var latestProfileCmd = &cobra.Command{
	Use:   "latest-profile",
	Short: "Print the path of the most recent profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setupOptionalRegistry()
		if err != nil {
			return err
		}
		r, cleanup, err := e.runner()
		if err != nil {
			return err
		}
		defer cleanup()

		path, err := r.LatestProfile()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	copyLogsCmd.Flags().StringVar(&profile, "profile", "", "terminal profile to move (default: from the active inlist)")
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(copyLogsCmd)
	rootCmd.AddCommand(latestProfileCmd)
}

// setupOptionalRegistry loads the registry when MESA_DIR allows and
// carries on without it otherwise; the log commands only use it to read
// the active inlist.
func setupOptionalRegistry() (*env, error) {
	e, err := setup()
	if err != nil {
		return nil, err
	}
	if err := e.loadRegistry(); err != nil {
		e.logger.Debug("defaults unavailable; using configured directories", "error", err)
	}
	return e, nil
}
