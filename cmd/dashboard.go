// File: cmd/dashboard.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mpellegro/wasend-cli/internal/browser"
	"github.com/mpellegro/wasend-cli/internal/contacts"
	"github.com/mpellegro/wasend-cli/internal/dashboard"
	"github.com/mpellegro/wasend-cli/internal/driver"
	"github.com/mpellegro/wasend-cli/internal/history"
	"github.com/mpellegro/wasend-cli/internal/observability"
	"github.com/mpellegro/wasend-cli/internal/orchestrator"
)

// newDashboardCmd creates and configures the `dashboard` command. It keeps
// the browser attached and waits for campaigns to be started over HTTP.
func newDashboardCmd() *cobra.Command {
	dashCmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serves the HTTP control surface for starting and steering campaigns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := *appCfg

			source, err := contacts.NewSheetSource(ctx, cfg.Sheets, logger)
			if err != nil {
				return fmt.Errorf("connect to sheet: %w", err)
			}

			connector := browser.NewConnector(cfg.Browser, logger)
			handle, err := connector.Attach(ctx)
			if err != nil {
				return err
			}
			defer handle.Detach()

			if err := handle.EnsureFrontend(ctx); err != nil {
				return err
			}

			page := browser.NewPage(handle, logger)
			injector, err := browser.NewChooserInjector(handle, logger)
			if err != nil {
				return err
			}
			defer injector.Disarm()

			deliverer := driver.New(page, injector, cfg.Send, logger)

			store, err := history.Open(cfg.History.Path)
			if err != nil {
				logger.Warn("Run history unavailable", zap.Error(err))
				store = nil
			} else {
				defer store.Close()
			}

			state := orchestrator.NewSessionState()
			var recorder orchestrator.HistoryRecorder
			if store != nil {
				recorder = store
			}
			orch := orchestrator.New(cfg, source, deliverer, state, recorder, logger)

			start := func(runCtx context.Context, count int) error {
				return orch.Run(runCtx, count)
			}

			addr, _ := cmd.Flags().GetString("listen")
			srv := dashboard.NewServer(ctx, state, start, logger)
			return srv.ListenAndServe(ctx, addr)
		},
	}

	dashCmd.Flags().String("listen", "127.0.0.1:8077", "address the control surface listens on")
	return dashCmd
}
