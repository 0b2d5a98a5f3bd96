package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nymtech/ephemera/config"
)

var (
	updateConfigFile     string
	updateConfigProperty string
	updateConfigValue    string
)

var updateConfigCmd = &cobra.Command{
	Use:   "update-config",
	Short: "Update a single property in an existing config file",
	RunE:  runUpdateConfig,
}

func init() {
	rootCmd.AddCommand(updateConfigCmd)
	updateConfigCmd.Flags().StringVar(&updateConfigFile, "config-file", "config.yaml", "path to the config file")
	updateConfigCmd.Flags().StringVar(&updateConfigProperty, "property", "", "config field to update (required)")
	updateConfigCmd.Flags().StringVar(&updateConfigValue, "value", "", "new value for the property")
}

func runUpdateConfig(cmd *cobra.Command, args []string) error {
	if updateConfigProperty == "" {
		return configErr(fmt.Errorf("--property is required"))
	}

	cfg, err := config.Load(updateConfigFile)
	if err != nil {
		return configErr(err)
	}
	if err := cfg.SetProperty(updateConfigProperty, updateConfigValue); err != nil {
		return configErr(err)
	}
	if err := config.Save(cfg, updateConfigFile); err != nil {
		return ioErr(fmt.Errorf("write config: %w", err))
	}

	fmt.Printf("Set %s = %s in %s\n", updateConfigProperty, updateConfigValue, updateConfigFile)
	return nil
}
