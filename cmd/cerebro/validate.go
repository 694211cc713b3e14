package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cerebro-ai/cerebro/pkg/cli"
	"cerebro-ai/cerebro/pkg/config"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting the server.

The validate command applies defaults and environment overrides exactly
as the run command would, then reports every validation error found.

Examples:
  # Validate the default config
  cerebro validate

  # Validate a specific file
  cerebro validate --config /etc/cerebro/config.yaml

  # Machine-readable output
  cerebro validate --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

type validateResult struct {
	Valid  bool     `json:"valid"`
	Config string   `json:"config"`
	Errors []string `json:"errors,omitempty"`
}

func validateConfig(cmd *cobra.Command, args []string) error {
	result := validateResult{Config: cfgFile}

	_, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err == nil {
		result.Valid = true
	} else {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, fe := range verr.Errors {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
			}
		} else {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	if validateFlags.format == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		if err := formatter.FormatTo(os.Stdout, result); err != nil {
			return cli.NewCommandError("validate", err)
		}
	} else {
		if result.Valid {
			fmt.Printf("✓ Configuration valid: %s\n", cfgFile)
		} else {
			fmt.Printf("✗ Configuration invalid: %s\n", cfgFile)
			for _, msg := range result.Errors {
				fmt.Printf("  - %s\n", msg)
			}
		}
	}

	if !result.Valid {
		return cli.NewConfigError("", fmt.Sprintf("%d validation error(s)", len(result.Errors)))
	}
	return nil
}
