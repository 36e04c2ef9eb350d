package cmd

import (
	"github.com/spf13/cobra"

	"github.com/praetorian-inc/tenantscan/internal/message"
	"github.com/praetorian-inc/tenantscan/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tenantscan version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		message.Info("%s", version.FullVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
