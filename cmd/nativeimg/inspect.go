package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kyra-lang/nativeimage/pipeline"
	"github.com/kyra-lang/nativeimage/unit"
)

var inspectFlags struct {
	symbols bool
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <unit-file>",
	Short: "Print unit statistics and symbol table",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().BoolVarP(&inspectFlags.symbols, "symbols", "s", false, "list the symbol table")
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read unit: %w", err)
	}
	u, err := unit.Load(data)
	if err != nil {
		return fmt.Errorf("load unit: %w", err)
	}

	stats := unit.ComputeStats(u)
	threads := pipeline.ComputeThreadCount(stats, u.Target, pipeline.Config{})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Target:       %s/%s (%s)\n", u.Target.OS, u.Target.Arch, u.Target.Format)
	fmt.Fprintf(out, "Symbols:      %d\n", u.Len())
	fmt.Fprintf(out, "Globals:      %d\n", stats.Globals)
	fmt.Fprintf(out, "Functions:    %d\n", stats.Funcs)
	fmt.Fprintf(out, "Blocks:       %d\n", stats.Blocks)
	fmt.Fprintf(out, "Instructions: %d\n", stats.Insts)
	fmt.Fprintf(out, "Clones:       %d\n", stats.Clones)
	fmt.Fprintf(out, "Weight:       %d\n", stats.Weight)
	fmt.Fprintf(out, "Shards:       %d (default heuristic)\n", threads)

	if !inspectFlags.symbols {
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tDEF\tWEIGHT\tREFS")
	for _, s := range u.Symbols() {
		def := "decl"
		if s.IsDefinition() {
			def = "def"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", s.Name, s.Kind, def, unit.SymbolWeight(s), len(s.Refs))
	}
	return w.Flush()
}
