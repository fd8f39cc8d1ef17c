package config

import "github.com/spf13/cobra"

// RegisterFlagCompletions registers shell completion for every enumerated setting.
// The flags must already be registered on cmd.
func RegisterFlagCompletions(cmd *cobra.Command) {
	for key, spec := range keys {
		if len(spec.enum) == 0 {
			continue
		}
		values := spec.enum
		_ = cmd.RegisterFlagCompletionFunc(flagName(key), func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return values, cobra.ShellCompDirectiveNoFileComp
		})
	}
}
