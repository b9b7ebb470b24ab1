package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/biostream/internal/catalog"
	"github.com/banshee-data/biostream/internal/config"
	"github.com/banshee-data/biostream/internal/stream"
)

// streamInfos builds the stream declarations for cfg under sourceID.
func streamInfos(cfg *config.Config, sourceID string) []stream.Info {
	return stream.Infos(catalog.Default(), stream.Identity{
		Prefix:       cfg.GetStreamPrefix(),
		SourceID:     sourceID,
		Manufacturer: cfg.GetManufacturer(),
		RawRate:      float64(cfg.GetRawSampleRate()),
	})
}

func NewCatalogCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the stream layouts",
		Long:  `Print the declaration of each outbound stream: name, type, rate and channel labels.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			infos := streamInfos(cfg, cfg.GetSourceID())
			jsonB, err := json.MarshalIndent(infos, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonB))
			return nil
		},
	}
}
