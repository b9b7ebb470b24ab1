package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/biostream/internal/config"
)

func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the default configuration",
		Long:  `Print every setting at its default value as YAML, ready to be edited and passed back with --config.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(config.Defaults())
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
