package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "config-init",
	Short: "Write a config.yaml with the current effective settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := os.Stat("config.yaml"); err == nil && !configInitForce {
			return eris.New("config.yaml already exists (use --force to overwrite)")
		}

		// cfg already holds defaults merged with env overrides.
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return eris.Wrap(err, "config-init: marshal")
		}
		if err := os.WriteFile("config.yaml", out, 0o644); err != nil {
			return eris.Wrap(err, "config-init: write")
		}

		zap.L().Info("wrote config.yaml")
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config.yaml")
	rootCmd.AddCommand(configInitCmd)
}
