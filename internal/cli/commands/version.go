package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/lisahligono/semantique/pkg/datacube"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display semantique version, build information and the registered data cube drivers.`,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "semantique v%s\n", version)
			_, _ = fmt.Fprintf(out, "commit %s, built %s with %s\n", commit, date, runtime.Version())
			_, _ = fmt.Fprintf(out, "data cube drivers: %v\n", datacube.List())
		},
	}
}
