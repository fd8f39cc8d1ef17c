package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/tbckr/posture/internal/config"
	"github.com/tbckr/posture/internal/output"
)

// settingsView is the effective configuration, rendered as a table or a JSON object.
type settingsView struct {
	rows [][2]string
}

func (v settingsView) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(v.rows))
	for _, r := range v.rows {
		m[r[0]] = r[1]
	}
	return json.Marshal(m)
}

func (v settingsView) WriteText(w io.Writer) error {
	table := output.NewTable(w, 30, false)
	table.Header([]string{"Key", "Value"})
	rows := make([][]string, 0, len(v.rows))
	for _, r := range v.rows {
		rows = append(rows, []string{r[0], r[1]})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func newConfigCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Inspect and change the posture config file",
		GroupID: "utility",
		Long: `Settings resolve from flags, POSTURE_* environment variables and the config file,
in that order. show and get print the effective value; set and edit change only
the file.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), d.cfg.ConfigFile)
				return err
			},
		},
		&cobra.Command{
			Use:     "show",
			Aliases: []string{"cat"},
			Short:   "Print every effective setting",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return writeResult(cmd.OutOrStdout(), d, settingsView{rows: d.cfg.EffectiveRows()})
			},
		},
		&cobra.Command{
			Use:               "get <key>",
			Short:             "Print the effective value of one setting",
			Args:              cobra.ExactArgs(1),
			ValidArgsFunction: completeKeyThenValue(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := config.ValidateKey(args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), d.cfg.Value(args[0]))
				return err
			},
		},
		&cobra.Command{
			Use:               "set <key> <value>",
			Short:             "Write one setting to the config file",
			Args:              cobra.ExactArgs(2),
			ValidArgsFunction: completeKeyThenValue(2),
			RunE: func(_ *cobra.Command, args []string) error {
				return config.SetFileValue(d.cfg.ConfigFile, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "edit",
			Short: "Open the config file in $VISUAL or $EDITOR",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				c := exec.CommandContext(cmd.Context(), editor(os.Getenv), d.cfg.ConfigFile) //nolint:gosec // editor comes from the user's environment
				c.Stdin, c.Stdout, c.Stderr = cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()
				return c.Run()
			},
		},
	)
	return cmd
}

// completeKeyThenValue completes a setting name first and, when n allows a second argument,
// that setting's allowed values.
func completeKeyThenValue(n int) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
		switch {
		case len(args) == 0:
			return config.ValidKeys(), cobra.ShellCompDirectiveNoFileComp
		case len(args) == 1 && n > 1:
			return config.KeyCompletions(config.NormalizeKey(args[0])), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}

func editor(getenv func(string) string) string {
	for _, name := range []string{"VISUAL", "EDITOR"} {
		if e := getenv(name); e != "" {
			return e
		}
	}
	return "vi"
}
