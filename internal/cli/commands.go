// Package cli provides the command-line interface for codeops
package cli

// init registers all commands and their flags
func init() {
	rootCmd.AddCommand(runCmd, downloadCmd, cacheCmd, healthCheckCmd, initCmd)
	cacheCmd.AddCommand(cacheListCmd, cacheClearCmd)

	runCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "port to serve on")
	runCmd.Flags().StringVar(&flagHost, "host", "", "interface to bind")
	runCmd.Flags().StringVar(&flagServerDir, "server-dir", "", "server cache directory")
	runCmd.Flags().StringVar(&flagAPIVersion, "api-version", "", "monaco-vscode-api version (or \"latest\")")
	runCmd.Flags().StringArrayVar(&flagExtraArgs, "extra-arg", nil, "extra server argument (repeatable)")
	runCmd.Flags().StringVar(&flagToken, "connection-token", "", "connection token (\"auto\" generates one)")
	runCmd.Flags().IntVar(&flagRetries, "retries", 0, "retry failed downloads this many times")
	runCmd.Flags().BoolVar(&flagFacade, "facade", false, "serve the HTTP control surface")

	downloadCmd.Flags().StringVar(&flagServerDir, "server-dir", "", "server cache directory")
	downloadCmd.Flags().StringVar(&flagAPIVersion, "api-version", "", "monaco-vscode-api version (or \"latest\")")
	downloadCmd.Flags().IntVar(&flagRetries, "retries", 0, "retry failed downloads this many times")

	cacheClearCmd.Flags().StringArrayVar(&flagKeep, "keep", nil, "glob of cache entries to keep (repeatable)")

	initCmd.Flags().StringVarP(&outputPath, "output", "o", "", "config path")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite")
}
