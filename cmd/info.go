package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tokex-dev/tokex/internal/buildinfo"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show version information of the remote tokex server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := getClient()
		if err != nil {
			return err
		}

		info, _, err := cli.Info(cmd.Context())
		if err != nil {
			return err
		}

		local := buildinfo.GetBuildInfo()
		fmt.Printf("Server: %s (commit: %s)\n", info.Version, info.CommitHash)
		fmt.Printf("Client: %s (commit: %s)\n", local.Version, local.CommitHash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
