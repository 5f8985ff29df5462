// Package cli implements the Cobra command-line interface for caps-indicator.
package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Dicklesworthstone/caps-indicator/internal/config"
	"github.com/Dicklesworthstone/caps-indicator/internal/output"
)

// Version information set by goreleaser
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flag values
var (
	flagOutput      string
	flagVerbose     bool
	flagLogLevel    string
	flagDisplay     string
	flagSocket      string
	flagPIDFile     string
	flagBorder      int
	flagColor       string
	flagReadTimeout int
	flagForeground  bool
)

// flagKeys maps flag names to the config keys they override.
var flagKeys = map[string]string{
	"display":      "display",
	"socket":       "socket_path",
	"pid-file":     "pid_file",
	"border":       "border",
	"color":        "accent_color",
	"read-timeout": "read_timeout_ms",
	"foreground":   "foreground",
	"log-level":    "log_level",
}

var rootCmd = &cobra.Command{
	Use:   "caps-indicator",
	Short: "Show an on-screen frame while Caps Lock is on",
	Long: `caps-indicator draws a thin click-through frame around the screen while
Caps Lock is on. A second bracket in the bottom-right corner follows an
input method, which toggles it through a local socket:

  caps-indicator activate     (or: printf a | nc -U /tmp/caps-indicator.socket)
  caps-indicator deactivate

Without a subcommand the daemon is started, as with 'caps-indicator run'.
Settings come from flags and CAPS_INDICATOR_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := versionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: date,
			GoVersion: runtime.Version(),
		}
		out, err := writer(cmd)
		if err != nil {
			return err
		}
		return out.Write(payload)
	},
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func (v versionInfo) Text() string {
	return fmt.Sprintf("caps-indicator %s\n  commit:  %s\n  built:   %s\n  go:      %s",
		v.Version, v.Commit, v.BuildDate, v.GoVersion)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves the configuration, letting explicitly set flags win.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	overrides := map[string]any{}
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		overrides[key] = f.Value.String()
	}
	return config.Load(config.LoadOptions{FlagOverrides: overrides})
}

// newLogger writes human-readable text to a terminal and logfmt otherwise.
func newLogger(cfg config.Config) *log.Logger {
	formatter := log.LogfmtFormatter
	if term.IsTerminal(int(os.Stderr.Fd())) {
		formatter = log.TextFormatter
	}
	level := cfg.Level()
	if flagVerbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		Prefix:          "caps-indicator",
		ReportTimestamp: true,
		Formatter:       formatter,
	})
}

func writer(cmd *cobra.Command) (*output.Writer, error) {
	format, err := output.ParseFormat(flagOutput)
	if err != nil {
		return nil, err
	}
	return output.New(format,
		output.WithOutput(cmd.OutOrStdout()),
		output.WithErrorOutput(cmd.ErrOrStderr()),
	), nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagOutput, "output", "o", "text", "output format: text, json, yaml")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error (env: CAPS_INDICATOR_LOG_LEVEL)")
	pf.StringVar(&flagDisplay, "display", "", "X display, defaults to $DISPLAY (env: CAPS_INDICATOR_DISPLAY)")
	pf.StringVar(&flagSocket, "socket", "/tmp/caps-indicator.socket", "control socket path (env: CAPS_INDICATOR_SOCKET_PATH)")
	pf.StringVar(&flagPIDFile, "pid-file", "/tmp/capslock.pid", "pid lock file (env: CAPS_INDICATOR_PID_FILE)")

	addDaemonFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
}

// addDaemonFlags registers the flags shared by the root and run commands.
func addDaemonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVarP(&flagForeground, "foreground", "f", false, "stay attached to the terminal (env: CAPS_INDICATOR_FOREGROUND)")
	f.IntVar(&flagBorder, "border", 24, "frame thickness in pixels (env: CAPS_INDICATOR_BORDER)")
	f.StringVar(&flagColor, "color", "#DC143C", "bracket colour (env: CAPS_INDICATOR_ACCENT_COLOR)")
	f.IntVar(&flagReadTimeout, "read-timeout", 500, "control socket read timeout in ms (env: CAPS_INDICATOR_READ_TIMEOUT_MS)")
}
