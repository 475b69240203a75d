package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
)

type compileResult struct {
	Source string            `json:"source"`
	Script choreo.Script     `json:"script"`
	SpanMs int64             `json:"span_ms"`
	Final  choreo.ActorState `json:"final"`
}

func newCompileCmd() *cobra.Command {
	var (
		mode   string
		policy string
		timing = choreo.DefaultTiming()
	)

	cmd := &cobra.Command{
		Use:   "compile [FILE...]",
		Short: "Compile tutor messages and play them on a fresh actor",
		Long: `Reads each FILE (or stdin when none is given or FILE is "-") as one tutor
message, extracts its reset and animate commands, and prints the schedule
and the pose the actor ends in.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := choreo.Mode(mode)
			if !m.Valid() {
				return fmt.Errorf("unknown mode %q", mode)
			}
			timing.Policy = choreo.SequencerPolicy(policy)
			if err := timing.Validate(); err != nil {
				return err
			}
			if len(args) == 0 {
				args = []string{"-"}
			}

			results := make([]compileResult, len(args))
			var g errgroup.Group
			for i, src := range args {
				text, err := readSource(cmd.InOrStdin(), src)
				if err != nil {
					return err
				}
				g.Go(func() error {
					results[i] = compile(src, text, m, timing)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			for _, r := range results {
				printResult(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(choreo.ModeAlgebraic), "teaching mode: algebraic, number-line or number-line-basic")
	cmd.Flags().StringVar(&policy, "policy", string(choreo.PolicyAdvance), "sequencer policy: advance or consumer-serialized")
	cmd.Flags().DurationVar(&timing.BaseDelay, "base-delay", timing.BaseDelay, "delay before the first command")
	cmd.Flags().DurationVar(&timing.ResetSettle, "reset-settle", timing.ResetSettle, "pause after a reset")
	cmd.Flags().DurationVar(&timing.PerMove, "per-move", timing.PerMove, "duration of one move")
	cmd.Flags().DurationVar(&timing.Buffer, "buffer", timing.Buffer, "pause after an animation")
	return cmd
}

func readSource(stdin io.Reader, src string) (string, error) {
	if src == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", src, err)
	}
	return string(b), nil
}

func compile(src, text string, mode choreo.Mode, t choreo.Timing) compileResult {
	script := choreo.Compile(text, mode, t)
	actor := choreo.NewActor()
	for _, ev := range script.Events {
		actor.Apply(ev)
	}
	return compileResult{
		Source: src,
		Script: script,
		SpanMs: script.Span.Milliseconds(),
		Final:  actor.State(),
	}
}

func printResult(out io.Writer, r compileResult) {
	bold := color.New(color.Bold)
	moves := color.New(color.FgCyan)

	bold.Fprintf(out, "%s\n", r.Source)
	fmt.Fprintf(out, "%s\n\n", r.Script.DisplayText)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SEQ\tKIND\tDELAY\tMOVES")
	for _, ev := range r.Script.Events {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", ev.Seq, ev.Kind, ev.Delay, moves.Sprint(choreo.FormatMoves(ev.Moves, r.Script.Mode)))
	}
	w.Flush()

	fmt.Fprintf(out, "\nspan %dms, final position %d facing %s", r.SpanMs, r.Final.Position, r.Final.Facing)
	if r.Script.ReflectUsed {
		fmt.Fprint(out, ", reflect used")
	}
	fmt.Fprint(out, "\n\n")
}
