package cli

import (
	"encoding/json"
	"fmt"

	"github.com/chainreact/chainreact/internal/version"

	"github.com/spf13/cobra"
)

func NewVersionCommand() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if short, _ := cmd.Flags().GetBool("short"); short {
				fmt.Println(version.Short())
				return nil
			}

			info, err := json.MarshalIndent(version.Get(), "", "  ")
			if err != nil {
				return err
			}

			fmt.Println(string(info))

			return nil
		},
	}

	versionCmd.Flags().Bool("short", false, "Print only the version string")

	return versionCmd
}
