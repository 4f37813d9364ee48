package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/rota/am"
	"github.com/teranos/rota/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: `Show rota configuration ("I am")`,
	Long: `am - rota configuration ("I am")

Configuration sources (in order of precedence):
1. Command line flags (--config, --db)
2. Environment variables (ROTA_* prefix, e.g. ROTA_PULSE_WORKERS)
3. Project config (./am.toml)
4. User config (~/.rota/am.toml)
5. Default values

Examples:
  rota am show                    # Show effective configuration
  rota am show --format json      # Show configuration as JSON
  rota am validate                # Validate configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		var data []byte
		switch format {
		case "toml":
			data, err = am.Marshal(cfg)
		case "json":
			data, err = json.MarshalIndent(cfg, "", "  ")
		case "yaml":
			data, err = yaml.Marshal(cfg)
		default:
			return errors.NewInvalidRequestError("unsupported format %q (use toml, json or yaml)", format)
		}
		if err != nil {
			return errors.Wrap(err, "failed to render config")
		}
		fmt.Print(string(data))
		return nil
	},
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		pterm.Success.Println("Configuration is valid")
		return nil
	},
}

func init() {
	amShowCmd.Flags().String("format", "toml", "Output format: toml, json, yaml")
	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amValidateCmd)
}
