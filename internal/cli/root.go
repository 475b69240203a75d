// Package cli implements the choreo command: offline compilation of tutor
// messages and lesson inspection.
package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree. Input is read from in and output
// written to out.
func NewRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "choreo",
		Short:         "Compile tutor messages into animation scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.PersistentFlags().Bool("json", false, "print JSON instead of a table")

	root.AddCommand(newCompileCmd(), newLessonsCmd())
	return root
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Root().PersistentFlags().GetBool("json")
	return v
}
