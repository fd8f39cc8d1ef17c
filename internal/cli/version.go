package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tbckr/posture/internal/version"
)

// versionView adapts version.Info to the output formatter.
type versionView struct {
	version.Info
}

func (v versionView) WriteText(w io.Writer) error {
	_, err := fmt.Fprintln(w, v.String())
	return err
}

func newVersionCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Print the posture version",
		Args:    cobra.NoArgs,
		GroupID: "utility",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeResult(cmd.OutOrStdout(), d, versionView{version.Get()})
		},
	}
}
