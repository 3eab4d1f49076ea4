package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mesactl/internal/inlist"
	"mesactl/internal/namelist"
)

var (
	inlistName string
	setInsert  bool
	setAll     bool
	showDiff   bool
	dryRun     bool
	outFormat  string
)

// getCmd prints parameter values.
var getCmd = &cobra.Command{
	Use:   "get <parameter>...",
	Short: "Print parameter values from an inlist, falling back to the defaults",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setupWithRegistry()
		if err != nil {
			return err
		}
		f, err := e.openInlist(inlistName)
		if err != nil {
			return err
		}

		for _, name := range args {
			v, err := f.Get(name)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				fmt.Println(v)
			} else {
				fmt.Printf("%s = %s\n", name, v)
			}
		}
		return nil
	},
}

func init() {
	getCmd.Flags().StringVarP(&inlistName, "inlist", "i", "", "inlist to read (default: the active inlist)")
	rootCmd.AddCommand(getCmd)
}

// setCmd writes a parameter value.
var setCmd = &cobra.Command{
	Use:   "set <parameter> <value>",
	Short: "Set a parameter in an inlist",
	Long: `Set a parameter in an inlist, rewriting only its value.

The value is read as a namelist literal of the parameter's kind, so
'set initial_mass 1.5', 'set save_model_filename final.mod' and
'set pgstar_flag .false.' all work. Parameters not yet in the file are
refused unless --insert is given, which adds a line before the closing '/'
of the owning namelist group.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setupWithRegistry()
		if err != nil {
			return err
		}

		name := args[0]
		res, err := e.reg.Resolve(name, namelist.Value{})
		if err != nil {
			return err
		}
		// unknown parameters take whatever kind the literal reads as
		want := namelist.KindInvalid
		if res.Known() {
			want = res.Value.Kind()
		}
		v, err := namelist.ParseAs(args[1], want)
		if err != nil && want == namelist.KindInvalid {
			v, err = namelist.Text(args[1]), nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		targets := []string{inlistName}
		if setAll {
			if inlistName != "" {
				return fmt.Errorf("--all and --inlist are mutually exclusive")
			}
			if targets, err = inlist.List(e.fs, e.cfg.WorkDir); err != nil {
				return err
			}
			if len(targets) == 0 {
				return fmt.Errorf("no inlists in %s", e.cfg.WorkDir)
			}
		}

		for _, target := range targets {
			f, err := e.openInlist(target)
			if err != nil {
				return err
			}
			if err := setOne(f, name, v); err != nil {
				if setAll && errors.Is(err, inlist.ErrNotInFile) {
					e.logger.Info("skipping inlist without parameter", "inlist", f.Path(), "parameter", name)
					continue
				}
				return err
			}
		}
		return nil
	},
}

func setOne(f *inlist.File, name string, v namelist.Value) error {
	if showDiff || dryRun {
		before, after, err := f.Preview(name, v, setInsert)
		if err != nil {
			return err
		}
		fmt.Printf("--- %s\n+++ %s\n", f.Path(), f.Path())
		fmt.Print(lineDiff(before, after))
		if dryRun {
			return nil
		}
	}
	if setInsert {
		return f.Insert(name, v)
	}
	return f.Set(name, v)
}

// lineDiff renders the changed lines between two texts with -/+ markers.
func lineDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		var marker string
		var color text.Color
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			marker, color = "-", text.FgRed
		case diffmatchpatch.DiffInsert:
			marker, color = "+", text.FgGreen
		default:
			continue
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(color.Sprint(marker+strings.TrimSuffix(line, "\n")) + "\n")
		}
	}
	return sb.String()
}

func init() {
	setCmd.Flags().StringVarP(&inlistName, "inlist", "i", "", "inlist to edit (default: the active inlist)")
	setCmd.Flags().BoolVar(&setInsert, "insert", false, "add the parameter if the inlist does not set it")
	setCmd.Flags().BoolVar(&setAll, "all", false, "edit every inlist in the work directory that sets the parameter")
	setCmd.Flags().BoolVar(&showDiff, "diff", false, "print the change")
	setCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the change without writing it")
	rootCmd.AddCommand(setCmd)
}

// showEntry is the yaml form of one inlist assignment.
type showEntry struct {
	Name    string `yaml:"name"`
	Group   string `yaml:"group"`
	Value   any    `yaml:"value"`
	Default any    `yaml:"default,omitempty"`
	Line    int    `yaml:"line"`
}

// showCmd lists the parameters an inlist sets.
var showCmd = &cobra.Command{
	Use:   "show [inlist]",
	Short: "List the parameters an inlist sets, with their defaults",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setupWithRegistry()
		if err != nil {
			return err
		}
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		f, err := e.openInlist(name)
		if err != nil {
			return err
		}
		entries, err := f.Entries()
		if err != nil {
			return err
		}

		switch outFormat {
		case "yaml":
			out := make([]showEntry, 0, len(entries))
			for _, en := range entries {
				se := showEntry{Name: en.Name, Group: en.Group, Value: en.Value.Interface(), Line: en.Line}
				if !en.Default.IsZero() {
					se.Default = en.Default.Interface()
				}
				out = append(out, se)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(out)
		case "table", "":
		default:
			return fmt.Errorf("unknown output format %q", outFormat)
		}

		if len(entries) == 0 {
			fmt.Printf("%s sets no parameters\n", f.Path())
			return nil
		}

		t := newTable()
		t.AppendHeader(table.Row{"LINE", "GROUP", "PARAMETER", "VALUE", "DEFAULT"})
		for _, en := range entries {
			def := text.FgHiBlack.Sprint("unknown")
			if !en.Default.IsZero() {
				def = en.Default.String()
			}
			value := en.Value.String()
			if !en.Default.IsZero() && !en.Value.Equal(en.Default) {
				value = text.FgYellow.Sprint(value)
			}
			t.AppendRow(table.Row{en.Line, en.Group, en.Name, value, def})
		}
		t.Render()
		return nil
	},
}

func init() {
	showCmd.Flags().StringVarP(&outFormat, "output", "o", "table", "output format (table, yaml)")
	rootCmd.AddCommand(showCmd)
}

// listCmd lists the inlists of the work directory.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the inlists in the work directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		names, err := inlist.List(e.fs, e.cfg.WorkDir)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// defaultsCmd searches the installation defaults.
var defaultsCmd = &cobra.Command{
	Use:   "defaults <pattern>",
	Short: "Search the MESA defaults, e.g. 'defaults \"*mass*\"'",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setupWithRegistry()
		if err != nil {
			return err
		}
		found, err := e.reg.Search(args[0])
		if err != nil {
			return err
		}
		if len(found) == 0 {
			fmt.Printf("%s %s\n", text.FgYellow.Sprint("No defaults match"), args[0])
			return nil
		}

		t := newTable()
		t.AppendHeader(table.Row{"SECTION", "PARAMETER", "KIND", "DEFAULT"})
		for _, en := range found {
			t.AppendRow(table.Row{en.Section, en.Key, en.Value.Kind(), en.Value.String()})
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(defaultsCmd)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	return t
}
