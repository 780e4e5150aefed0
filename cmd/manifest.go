package main

import (
	"github.com/spf13/cobra"

	"github.com/kythours/modelvol/internal/manifest"
)

func newManifestCmd(o *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Print the download manifest",
		Long: `Print the manifest the next run would reconcile, with every template
expanded. The toml output is itself a valid --manifest file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			m, err := loadManifest(cfg)
			if err != nil {
				return err
			}
			return manifest.Write(cmd.OutOrStdout(), m, format)
		},
	}
	cmd.Flags().StringVar(&o.manifest, "manifest", "", "manifest file (json or toml); built-in list when empty")
	cmd.Flags().StringVarP(&format, "format", "f", manifest.FormatJSON, "output format: json, toml")
	return cmd
}
