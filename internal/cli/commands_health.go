package cli

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"codeops/internal/domain"
)

// healthCheckCmd runs an end-to-end diagnostic suite
var healthCheckCmd = &cobra.Command{
	Use:   "health-check",
	Short: "Run system health checks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()
		a := App(cmd)
		a.Terminal.Section("System Health Check")

		var allChecks []domain.HealthCheck
		a.Terminal.Step(1, 3, "Checking external endpoints...")
		allChecks = append(allChecks, a.Manager.HealthCheck(ctx)...)
		a.Terminal.Step(2, 3, "Checking port availability...")
		allChecks = append(allChecks, checkPort(a))
		a.Terminal.Step(3, 3, "Checking cached installs...")
		allChecks = append(allChecks, checkCache(a))

		a.Terminal.Section("Detailed Results")
		a.Terminal.HealthCheckTable(allChecks)
		return displayHealthSummary(a, allChecks)
	},
}

// checkPort verifies the configured server port can be bound right now.
func checkPort(a *AppContainer) domain.HealthCheck {
	check := domain.HealthCheck{Name: "Server port"}
	addr := net.JoinHostPort(a.Config.Server.Host, strconv.Itoa(a.Config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		check.Status = domain.StatusWarn
		check.Message = fmt.Sprintf("%s is already in use", addr)
		return check
	}
	_ = ln.Close()
	check.Status = domain.StatusOK
	check.Message = fmt.Sprintf("%s is available", addr)
	return check
}

// checkCache reports how many complete installs the cache holds.
func checkCache(a *AppContainer) domain.HealthCheck {
	check := domain.HealthCheck{Name: "Cached installs"}
	installs, err := a.Store.List()
	if err != nil {
		check.Status = domain.StatusError
		check.Message = err.Error()
		return check
	}
	check.Status = domain.StatusOK
	check.Message = fmt.Sprintf("%d install(s) cached", len(installs))
	return check
}

// displayHealthSummary aggregates check results into a final terminal report
func displayHealthSummary(a *AppContainer, checks []domain.HealthCheck) error {
	var p, w, f int
	for _, c := range checks {
		switch c.Status {
		case domain.StatusOK:
			p++
		case domain.StatusWarn:
			w++
		case domain.StatusError:
			f++
		}
	}

	a.Terminal.Section("Summary")
	if f > 0 {
		a.Terminal.Error(fmt.Sprintf("%d failed, %d warnings, %d passed", f, w, p))
		return fmt.Errorf("%d health checks failed", f)
	}

	if w > 0 {
		a.Terminal.Warning(fmt.Sprintf("%d warnings, %d passed", w, p))
	} else {
		a.Terminal.Success(fmt.Sprintf("All %d checks passed!", p))
	}
	return nil
}
