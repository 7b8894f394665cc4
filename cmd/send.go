// File: cmd/send.go
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mpellegro/wasend-cli/internal/browser"
	"github.com/mpellegro/wasend-cli/internal/contacts"
	"github.com/mpellegro/wasend-cli/internal/driver"
	"github.com/mpellegro/wasend-cli/internal/history"
	"github.com/mpellegro/wasend-cli/internal/observability"
	"github.com/mpellegro/wasend-cli/internal/orchestrator"
)

// newSendCmd creates and configures the `send` command.
func newSendCmd() *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Runs one send campaign over the pending sheet contacts",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind only the flags the operator actually set, so unset flag
			// defaults never shadow the config file or environment.
			bindings := map[string]string{
				"delay":    "send.delay",
				"image":    "send.image_path",
				"template": "send.template",
			}
			for flag, key := range bindings {
				if cmd.Flags().Changed(flag) {
					if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
						return err
					}
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := *appCfg

			// Flag bindings landed after PersistentPreRunE unmarshaled the
			// config, so pick up the final resolved values here.
			cfg.Send.Delay = viper.GetDuration("send.delay")
			cfg.Send.ImagePath = viper.GetString("send.image_path")
			cfg.Send.Template = viper.GetString("send.template")

			if cfg.Send.ImagePath == "" {
				return fmt.Errorf("an image attachment is required; set --image or send.image_path")
			}
			if _, err := os.Stat(cfg.Send.ImagePath); err != nil {
				return fmt.Errorf("image attachment not readable: %w", err)
			}

			count, _ := cmd.Flags().GetInt("count")

			source, err := contacts.NewSheetSource(ctx, cfg.Sheets, logger)
			if err != nil {
				return fmt.Errorf("connect to sheet: %w", err)
			}
			if sheetURL, _ := cmd.Flags().GetString("sheet-url"); sheetURL != "" {
				id := contacts.ExtractSheetID(sheetURL)
				if id == "" {
					return fmt.Errorf("could not extract a spreadsheet id from %q", sheetURL)
				}
				source = source.WithSpreadsheetID(id)
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

			// Refuse to start against a logged-out session; the operator
			// has to scan the QR code by hand first.
			connected, err := deliverer.Connected(ctx)
			if err != nil {
				return fmt.Errorf("probe session: %w", err)
			}
			if !connected {
				return fmt.Errorf("whatsapp session is not authenticated; open the browser and scan the QR code")
			}

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

			started := time.Now()
			if err := orch.Run(ctx, count); err != nil {
				return err
			}

			snap := state.Snapshot()
			fmt.Printf("Done: %d sent, %d failed of %d planned in %s\n",
				snap.Sent, snap.Failed, snap.Planned, time.Since(started).Round(time.Second))
			return nil
		},
	}

	sendCmd.Flags().Int("count", 0, "how many contacts to attempt (0 = daily limit)")
	sendCmd.Flags().Duration("delay", 20*time.Second, "base delay between messages; jittered, never below send.min_delay")
	sendCmd.Flags().String("sheet-url", "", "full Google Sheets URL overriding the configured spreadsheet id")
	sendCmd.Flags().String("image", "", "path of the image to attach")
	sendCmd.Flags().String("template", "", "message template; {first_name} is substituted per contact")

	return sendCmd
}
