package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"codeops/internal/config"
)

var (
	cfgFile string
	debug   bool

	// Version is set by ldflags during build
	Version = "dev"
)

// AppKey is the context key for the AppContainer
type AppKey struct{}

// rootCmd defines the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "codeops",
	Short: "VS Code server lifecycle management",
	Long: `CodeOps downloads, caches, and supervises VS Code server builds
matched to a monaco-vscode-api release.

Features:
  - Version resolution against published releases
  - Idempotent download and extraction into a commit-keyed cache
  - Process supervision (start, stop, restart, readiness)
  - Optional HTTP control surface for host applications
  - Lifecycle webhooks and health checks`,
	PersistentPreRunE: initApp,
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		if a, ok := cmd.Context().Value(AppKey{}).(*AppContainer); ok {
			a.Close()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	rootCmd.Version = Version
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug mode")
	rootCmd.SetVersionTemplate("CodeOps v{{.Version}}\n")
	rootCmd.Run = func(cmd *cobra.Command, _ []string) { _ = cmd.Help() }
}

// initApp handles configuration loading and dependency injection for all commands
func initApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if debug {
		cfg.Debug = true
		cfg.Logging.Level = "DEBUG"
	}
	applyFlagOverrides(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	application, err := NewApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	// Inject the application container into the command context to avoid global state "lock-in"
	ctx := context.WithValue(cmd.Context(), AppKey{}, application)
	cmd.SetContext(ctx)
	return nil
}

// applyFlagOverrides layers per-command flags over the loaded config so a
// flag always beats both file and environment.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = flagPort
	}
	if flags.Changed("host") {
		cfg.Server.Host = flagHost
	}
	if flags.Changed("server-dir") {
		cfg.Cache.Dir = flagServerDir
	}
	if flags.Changed("api-version") {
		cfg.Resolver.APIVersion = flagAPIVersion
	}
	if flags.Changed("extra-arg") {
		cfg.Server.ExtraArgs = append(cfg.Server.ExtraArgs, flagExtraArgs...)
	}
	if flags.Changed("connection-token") {
		cfg.Server.ConnectionToken = flagToken
	}
}

// App extracts the AppContainer from the command context
func App(cmd *cobra.Command) *AppContainer {
	if a, ok := cmd.Context().Value(AppKey{}).(*AppContainer); ok {
		return a
	}
	return nil
}
