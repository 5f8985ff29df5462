package cli

import (
	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/caps-indicator/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration the daemon would run with after applying
CAPS_INDICATOR_* environment variables and flags. Text output is TOML.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out, err := writer(cmd)
		if err != nil {
			return err
		}
		if out.Format() == output.FormatText {
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
		}
		return out.Write(cfg)
	},
}

func init() {
	addDaemonFlags(configCmd)
	rootCmd.AddCommand(configCmd)
}
