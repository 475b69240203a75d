package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hypatia-tutor/hypatia/pkg/lesson"
)

func newLessonsCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "lessons",
		Short: "List built-in lessons and those in --dir",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, err := loadLessons(dir)
			if err != nil {
				return err
			}
			infos := make([]lesson.Info, 0)
			for _, l := range loader.All() {
				infos = append(infos, l.Info())
			}

			if jsonOutput(cmd) {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "NAME\tMODE\tREFLECT\tTITLE")
			for _, i := range infos {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", i.Name, i.Mode, i.Reflect, i.Title)
			}
			return w.Flush()
		},
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "directory with additional lesson YAML files")

	var vars []string
	prompt := &cobra.Command{
		Use:   "prompt NAME",
		Short: "Render the system prompt of a lesson",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := loadLessons(dir)
			if err != nil {
				return err
			}
			l, ok := loader.Get(args[0])
			if !ok {
				return fmt.Errorf("lesson %q not found", args[0])
			}

			overrides := make(map[string]string, len(vars))
			for _, kv := range vars {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("--var %q: want KEY=VALUE", kv)
				}
				overrides[k] = v
			}

			text, err := l.RenderPrompt(overrides)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
	prompt.Flags().StringArrayVar(&vars, "var", nil, "override a lesson variable, KEY=VALUE")

	cmd.AddCommand(prompt)
	return cmd
}

func loadLessons(dir string) (*lesson.Loader, error) {
	loader := lesson.NewLoader(dir)
	if _, err := loader.LoadAll(); err != nil {
		return nil, err
	}
	return loader, nil
}
