package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"mesactl/internal/module"
)

// hooksCmd lists the hooks from HOOKS.
var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "List the configured hook executables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		d, err := e.dispatcher()
		if err != nil {
			return err
		}
		if d == nil {
			fmt.Println("no hooks configured (set HOOKS)")
			return nil
		}

		t := newTable()
		t.AppendHeader(table.Row{"HOOK", "PATH", "EVENTS"})
		for _, h := range d.Hooks() {
			events := "all"
			if len(h.Events) > 0 {
				names := make([]string, len(h.Events))
				for i, et := range h.Events {
					names[i] = string(et)
				}
				events = strings.Join(names, " ")
			}
			t.AppendRow(table.Row{h.Name, h.Path, events})
		}
		t.Render()
		return nil
	},
}

// hooksTestCmd fires a sample event at the hooks and waits for them.
var hooksTestCmd = &cobra.Command{
	Use:   "test <event>",
	Short: "Send a sample event to the hooks that handle it",
	Args:  cobra.ExactArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var names []string
		for _, et := range module.AllEventTypes() {
			names = append(names, string(et))
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		et := module.EventType(args[0])
		if !et.Valid() {
			return fmt.Errorf("unknown event %q", et)
		}
		e, err := setup()
		if err != nil {
			return err
		}
		d, err := e.dispatcher()
		if err != nil {
			return err
		}
		if !d.HasHandlers(et) {
			fmt.Printf("%s %s\n", text.FgYellow.Sprint("no hook handles"), et)
			return nil
		}

		errs := d.DispatchSync(cmd.Context(), module.SampleEvent(et))
		for _, err := range errs {
			fmt.Printf("  %s %s\n", text.FgRed.Sprint("✗"), err)
		}
		if len(errs) > 0 {
			return fmt.Errorf("%d hooks failed", len(errs))
		}
		fmt.Printf("%s %s delivered\n", text.FgGreen.Sprint("✓"), et)
		return nil
	},
}

func init() {
	hooksCmd.AddCommand(hooksTestCmd)
	rootCmd.AddCommand(hooksCmd)
}
