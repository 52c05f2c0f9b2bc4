package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/kyra-lang/nativeimage/archive"
	"github.com/kyra-lang/nativeimage/backend"
	"github.com/kyra-lang/nativeimage/backend/wasmbe"
	"github.com/kyra-lang/nativeimage/pipeline"
	"github.com/kyra-lang/nativeimage/unit"
)

var compileFlags struct {
	outDir   string
	base     string
	unopt    bool
	opt      bool
	obj      bool
	asm      bool
	threads  string
	fallback string
	timings  bool
	verify   bool
	preamble string
	noMeta   bool
	plain    bool
}

var compileCmd = &cobra.Command{
	Use:   "compile <unit-file>",
	Short: "Compile a unit into per-shard archives",
	Long: `Reads a serialized compilation unit, partitions it into shards, compiles
each shard in parallel and writes one ar archive per requested output
kind into the output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

func init() {
	f := compileCmd.Flags()
	f.StringVarP(&compileFlags.outDir, "out", "o", ".", "output directory")
	f.StringVar(&compileFlags.base, "base", "img", "output archive base name")
	f.BoolVar(&compileFlags.unopt, "unopt", false, "emit pre-optimization intermediate form")
	f.BoolVar(&compileFlags.opt, "opt", false, "emit optimized intermediate form")
	f.BoolVar(&compileFlags.obj, "obj", true, "emit object code")
	f.BoolVar(&compileFlags.asm, "asm", false, "emit assembly listings")
	f.StringVar(&compileFlags.threads, "threads", "", "shard count override")
	f.StringVar(&compileFlags.fallback, "fallback-threads", "", "shard count cap when no override is given")
	f.BoolVar(&compileFlags.timings, "timings", false, "report per-shard phase timings")
	f.BoolVar(&compileFlags.verify, "verify", false, "verify the partitioning before compiling")
	f.StringVar(&compileFlags.preamble, "preamble", "", "file whose contents become the preamble data unit")
	f.BoolVar(&compileFlags.noMeta, "no-metadata", false, "skip the metadata unit")
	f.BoolVar(&compileFlags.plain, "plain", false, "disable the interactive progress view")
}

func runCompile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read unit: %w", err)
	}
	u, err := unit.Load(data)
	if err != nil {
		return fmt.Errorf("load unit: %w", err)
	}

	compiler := wasmbe.New(ctx)
	defer compiler.Close(ctx)

	cfg := pipeline.Config{
		Emit: backend.Request{
			Unopt: compileFlags.unopt,
			Opt:   compileFlags.opt,
			Obj:   compileFlags.obj,
			Asm:   compileFlags.asm,
		},
		ThreadOverride:   compileFlags.threads,
		FallbackOverride: compileFlags.fallback,
		ReportTimings:    compileFlags.timings,
		Debug:            compileFlags.verify,
		SkipMetadata:     compileFlags.noMeta,
	}
	if compileFlags.preamble != "" {
		pre, err := os.ReadFile(compileFlags.preamble)
		if err != nil {
			return fmt.Errorf("read preamble: %w", err)
		}
		cfg.PreambleData = pre
	}

	target := u.Target
	var res *pipeline.Result
	if interactiveTerminal() {
		res, err = runWithProgress(ctx, u, compiler, cfg)
	} else {
		cfg.Progress = logProgress
		res, err = pipeline.Run(ctx, u, compiler, cfg)
	}
	if err != nil {
		return err
	}

	if err := archive.WriteOutputs(compileFlags.outDir, compileFlags.base, target, cfg.Emit, res.Shards, res.Metadata, res.Preamble); err != nil {
		return err
	}
	logger.Info("image written",
		zap.Int("shards", res.Threads),
		zap.String("dir", compileFlags.outDir),
		zap.String("base", compileFlags.base),
	)
	return nil
}

func interactiveTerminal() bool {
	return !compileFlags.plain && !verbose && term.IsTerminal(int(os.Stdout.Fd()))
}

// logProgress is the non-interactive fallback for the progress callback.
func logProgress(e pipeline.Event) {
	logger.Debug("shard progress",
		zap.Int("shard", e.Shard),
		zap.Stringer("state", e.State),
	)
}

// runWithProgress drives the pipeline under the terminal progress view.
// The pipeline runs in its own goroutine and feeds worker events to the
// bubbletea program; the final result message shuts the view down.
func runWithProgress(ctx context.Context, u *unit.Unit, compiler backend.Compiler, cfg pipeline.Config) (*pipeline.Result, error) {
	p := tea.NewProgram(newProgressModel())
	cfg.Progress = func(e pipeline.Event) {
		p.Send(eventMsg(e))
	}

	type outcome struct {
		res *pipeline.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := pipeline.Run(ctx, u, compiler, cfg)
		done <- outcome{res, err}
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		return nil, fmt.Errorf("progress view: %w", err)
	}
	out := <-done
	return out.res, out.err
}
