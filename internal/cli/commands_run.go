package cli

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"codeops/internal/util"
)

var (
	flagPort       int
	flagHost       string
	flagServerDir  string
	flagAPIVersion string
	flagExtraArgs  []string
	flagToken      string
	flagRetries    int
	flagFacade     bool
)

// runCmd downloads the server if needed, starts it, and blocks until
// interrupted.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Download (if needed) and run the VS Code server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := App(cmd)
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a.Terminal.Info(fmt.Sprintf("Preparing server (version %s)...", a.Config.Resolver.APIVersion))
		if err := ensureWithRetries(ctx, a); err != nil {
			a.Terminal.Error(fmt.Sprintf("Failed to prepare server: %v", err))
			return err
		}

		a.Terminal.Info("Starting server...")
		if err := a.Manager.Start(ctx); err != nil {
			a.Terminal.Error(fmt.Sprintf("Failed to start server: %v", err))
			return err
		}

		info := a.Manager.Info()
		a.Terminal.Success(fmt.Sprintf("Server is running at %s", info.URL))
		if info.ConnectionToken != "" {
			a.Terminal.Info(fmt.Sprintf("Connection token: %s", info.ConnectionToken))
		}

		facadeErr := make(chan error, 1)
		if flagFacade || a.Config.Facade.Enabled {
			ln, err := net.Listen("tcp", a.Config.Facade.Listen)
			if err != nil {
				a.Terminal.Error(fmt.Sprintf("Failed to bind control surface: %v", err))
				_ = a.Manager.Stop(context.Background())
				return err
			}
			a.Terminal.Info(fmt.Sprintf("Control surface at http://%s", ln.Addr()))
			go func() { facadeErr <- a.Facade.Serve(ctx, ln) }()
		}

		select {
		case <-ctx.Done():
			a.Terminal.Info("Shutting down...")
		case err := <-facadeErr:
			a.Terminal.Error(fmt.Sprintf("Control surface failed: %v", err))
		}

		if err := a.Manager.Stop(context.Background()); err != nil {
			a.Terminal.Error(fmt.Sprintf("Failed to stop server: %v", err))
			return err
		}
		a.Terminal.Success("Server has been stopped")
		return nil
	},
}

// ensureWithRetries runs EnsureServer, retrying transient failures when
// --retries is set. Non-retryable failures abort immediately.
func ensureWithRetries(ctx context.Context, a *AppContainer) error {
	if flagRetries <= 0 {
		_, err := a.Manager.EnsureServer(ctx)
		return err
	}
	return util.WithRetry(ctx, util.RetryConfig{MaxRetries: flagRetries, RetryDelay: 2}, func() error {
		_, err := a.Manager.EnsureServer(ctx)
		return err
	})
}
