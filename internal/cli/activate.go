package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/caps-indicator/internal/control"
)

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Show the input-method overlay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommand(cmd, control.Activate)
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Hide the input-method overlay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommand(cmd, control.Deactivate)
	},
}

func init() {
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(deactivateCmd)
}

func sendCommand(cmd *cobra.Command, c control.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, err := writer(cmd)
	if err != nil {
		return err
	}
	if err := control.Send(cmd.Context(), cfg.SocketPath, c); err != nil {
		return fmt.Errorf("%s: %w", c, err)
	}
	out.Success(fmt.Sprintf("sent %s to %s", c, cfg.SocketPath))
	return nil
}
