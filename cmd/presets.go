package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/neo/interview_agent/internal/character"
	"github.com/spf13/cobra"
)

var showInstructions string

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List and validate persona presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if showInstructions != "" {
			fmt.Fprintln(out, character.ResolveInstructions(showInstructions))
			return nil
		}
		return listPresets(out)
	},
}

func init() {
	presetsCmd.Flags().StringVar(&showInstructions, "show", "", "print the assembled instructions of a preset")
	rootCmd.AddCommand(presetsCmd)
}

func listPresets(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tCONSTRAINTS\tINSTRUCTION LENGTH")
	fmt.Fprintf(w, "%s\t-\t%d\n", character.CustomPreset, len(character.AssembleDefault()))
	for _, name := range character.Names() {
		p, _ := character.Lookup(name)
		fmt.Fprintf(w, "%s\t%d\t%d\n", name, len(p.Constraints), len(character.PresetInstructions(name)))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	errs := character.Validate()
	for _, err := range errs {
		fmt.Fprintln(out, "invalid:", err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d invalid presets", len(errs))
	}
	fmt.Fprintf(out, "persona version %s: all presets valid\n", character.Version)
	return nil
}
