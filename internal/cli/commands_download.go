package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// downloadCmd resolves and installs the server without running it.
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download and install the VS Code server without starting it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := App(cmd)
		a.Terminal.Info(fmt.Sprintf("Resolving version %s...", a.Config.Resolver.APIVersion))
		if err := ensureWithRetries(cmd.Context(), a); err != nil {
			a.Terminal.Error(fmt.Sprintf("Download failed: %v", err))
			return err
		}

		info := a.Manager.Info()
		a.Terminal.Success(fmt.Sprintf("Server %s (%s) is installed", info.Commit, info.Platform))
		return nil
	},
}
