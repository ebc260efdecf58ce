package main

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/example/go-news-bulletin/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	var showSecrets bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if !showSecrets {
				cfg = redact(cfg)
			}

			data, err := toml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	show.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print API keys and credentials in clear text")
	cmd.AddCommand(show)

	return cmd
}

const redacted = "<redacted>"

func redact(cfg config.Config) config.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cfg.TTS.OpenAI.APIKey)
	mask(&cfg.Publish.S3.AccessKey)
	mask(&cfg.Publish.S3.SecretKey)
	mask(&cfg.Publish.AzuraCast.APIKey)

	return cfg
}
