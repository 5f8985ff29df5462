package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/caps-indicator/internal/config"
	"github.com/Dicklesworthstone/caps-indicator/internal/control"
	"github.com/Dicklesworthstone/caps-indicator/internal/daemon"
	"github.com/Dicklesworthstone/caps-indicator/internal/overlay"
	"github.com/Dicklesworthstone/caps-indicator/internal/x11"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the indicator daemon",
	Long: `Start the indicator daemon.

Only one instance runs per pid file. Unless --foreground is given the daemon
detaches from the terminal once it holds the lock.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd)
	},
}

func init() {
	addDaemonFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

// runDaemon continues whichever detach stage this process was started in.
func runDaemon(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	switch stage := daemon.CurrentStage(); stage {
	case daemon.StageSession:
		return daemon.ContinueDetach(cfg.PIDFile, logger)

	case daemon.StageDaemon:
		lock := daemon.InheritedLock(cfg.PIDFile)
		defer lock.Close()
		// The session leader held the lock and has exited; take it back.
		if err := lock.Lock(); err != nil {
			return fmt.Errorf("re-acquiring %s: %w", cfg.PIDFile, err)
		}
		return serve(cmd.Context(), cfg, lock, logger)

	default:
		lock, err := daemon.OpenPIDLock(cfg.PIDFile)
		if err != nil {
			return fmt.Errorf("cannot start caps-indicator: %w", err)
		}
		defer lock.Close()
		if err := lock.TryLock(); err != nil {
			return fmt.Errorf("cannot start caps-indicator: %w", err)
		}
		if cfg.Foreground {
			return serve(cmd.Context(), cfg, lock, logger)
		}
		return daemon.Detach(lock, logger)
	}
}

// serve runs the daemon until a signal arrives or the keyboard monitor dies.
func serve(parent context.Context, cfg config.Config, lock *daemon.PIDLock, logger *log.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	logger = logger.With("instance", uuid.NewString())
	x11.RouteLogs(logger)

	if err := lock.WritePID(os.Getpid()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keyboard, err := x11.OpenMonitor(cfg.Display, logger.WithPrefix("keyboard"))
	if err != nil {
		return fmt.Errorf("cannot monitor the keyboard: %w", err)
	}

	server, err := control.Listen(cfg.SocketPath, logger.WithPrefix("control"),
		control.WithReadTimeout(cfg.ReadTimeout()))
	if err != nil {
		keyboard.Close()
		return err
	}

	display := x11.NewDisplay(cfg.Display)
	caps := overlay.NewController("caps",
		overlay.NewRenderer(display, overlay.Options{
			Corner: overlay.BottomLeft,
			Mask:   overlay.MaskFrame,
			Border: cfg.Border,
			Color:  cfg.Color(),
		}, logger),
		logger)
	inputMethod := overlay.NewController("input-method",
		overlay.NewRenderer(display, overlay.Options{
			Corner: overlay.BottomRight,
			Mask:   overlay.MaskCorner,
			Border: cfg.Border,
			Color:  cfg.Color(),
		}, logger),
		logger)

	sup, err := daemon.NewSupervisor(daemon.ServerOptions{
		Keyboard:    keyboard,
		Control:     server,
		Caps:        caps,
		InputMethod: inputMethod,
		Logger:      logger,
	})
	if err != nil {
		server.Close()
		keyboard.Close()
		return err
	}

	logger.Info("caps-indicator started",
		"pid", os.Getpid(),
		"socket", server.Path(),
		"pid_file", lock.Path(),
	)
	if err := sup.Run(ctx); err != nil {
		logger.Error("caps-indicator stopped", "err", err)
		return err
	}
	logger.Info("caps-indicator stopped")
	return nil
}
