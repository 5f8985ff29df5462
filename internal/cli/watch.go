package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/caps-indicator/internal/control"
	"github.com/Dicklesworthstone/caps-indicator/internal/daemon"
	"github.com/Dicklesworthstone/caps-indicator/internal/tui"
	"github.com/Dicklesworthstone/caps-indicator/internal/x11"
)

var flagTheme string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of Caps-Lock and daemon state",
	Long: `Open an interactive view that follows the Caps-Lock indicator and the
daemon's pid file and socket. Press a or d to toggle the input-method
overlay, r to refresh, q to quit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		x11.RouteLogs(nil)

		keyboard, err := x11.OpenMonitor(cfg.Display, logger.WithPrefix("keyboard"))
		if err != nil {
			return err
		}
		defer keyboard.Close()

		opts := tui.Options{
			Indicator: keyboard,
			Probe: func(ctx context.Context) daemon.StatusInfo {
				return daemon.Probe(ctx, cfg.PIDFile, cfg.SocketPath)
			},
			Send: func(ctx context.Context, c control.Command) error {
				return control.Send(ctx, cfg.SocketPath, c)
			},
			Theme: flagTheme,
		}

		watcher, err := daemon.NewWatcher(cfg.PIDFile, cfg.SocketPath, logger.WithPrefix("watch"))
		if err != nil {
			logger.Warn("file watching unavailable, refresh with r", "err", err)
		} else {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			watcher.Start(ctx)
			defer watcher.Stop()
			opts.Events = watcher.Events()
		}

		return tui.Run(opts)
	},
}

func init() {
	watchCmd.Flags().StringVar(&flagTheme, "theme", "mocha", "colour theme: mocha, latte")
	rootCmd.AddCommand(watchCmd)
}
