package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/caps-indicator/internal/daemon"
	"github.com/Dicklesworthstone/caps-indicator/internal/x11"
)

const statusTimeout = 2 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the daemon is running and the Caps-Lock state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out, err := writer(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
		defer cancel()

		view := statusView{StatusInfo: daemon.Probe(ctx, cfg.PIDFile, cfg.SocketPath)}
		if on, err := readCapsLock(cfg.Display); err != nil {
			view.DisplayError = err.Error()
		} else {
			view.CapsLock = &on
		}
		return out.Write(view)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusView struct {
	daemon.StatusInfo `yaml:",inline"`
	CapsLock          *bool  `json:"caps_lock,omitempty" yaml:"caps_lock,omitempty"`
	DisplayError      string `json:"display_error,omitempty" yaml:"display_error,omitempty"`
}

func readCapsLock(display string) (bool, error) {
	m, err := x11.OpenMonitor(display, nil)
	if err != nil {
		return false, err
	}
	defer m.Close()
	return m.CapsLock()
}

func (v statusView) Text() string {
	var (
		label = lipgloss.NewStyle().Bold(true).Width(12)
		ok    = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
		bad   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
		dim   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7086"))
	)

	state := bad.Render(v.Status.String())
	if v.Status == daemon.DaemonRunning {
		state = ok.Render(v.Status.String())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", label.Render("daemon"), state)
	if v.PID > 0 {
		fmt.Fprintf(&b, "%s %d\n", label.Render("pid"), v.PID)
	}
	fmt.Fprintf(&b, "%s %s\n", label.Render("pid file"), v.PIDFile)

	socket := v.SocketPath + dim.Render(" (no answer)")
	if v.SocketAlive {
		socket = v.SocketPath + ok.Render(" (listening)")
	}
	fmt.Fprintf(&b, "%s %s\n", label.Render("socket"), socket)

	switch {
	case v.CapsLock == nil:
		fmt.Fprintf(&b, "%s %s\n", label.Render("caps lock"), dim.Render("unknown: "+v.DisplayError))
	case *v.CapsLock:
		fmt.Fprintf(&b, "%s %s\n", label.Render("caps lock"), bad.Render("ON"))
	default:
		fmt.Fprintf(&b, "%s %s\n", label.Render("caps lock"), "off")
	}
	if v.Message != "" {
		fmt.Fprintf(&b, "%s", dim.Render(v.Message))
	}
	return strings.TrimRight(b.String(), "\n")
}
