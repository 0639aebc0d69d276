package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"inkink/config"
	"inkink/generator"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with API keys masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			masked := *cfg
			masked.Text.APIKey = config.MaskKey(cfg.Text.APIKey)
			masked.Image.APIKey = config.MaskKey(cfg.Image.APIKey)
			out, err := toml.Marshal(masked)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			source := ctx.configPath
			if !ctx.configExists {
				source += " (not found, using defaults)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n%s", source, out)
			return nil
		},
	})

	var timeout time.Duration
	testCmd := &cobra.Command{
		Use:       "test [text|image]",
		Short:     "Check that a provider is reachable with the configured credentials",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"text", "image"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			targets := []string{"text", "image"}
			if len(args) == 1 {
				targets = args
			}
			var failed int
			for _, target := range targets {
				provider := cfg.Text
				if target == "image" {
					provider = cfg.Image
				}
				settings := provider.Settings()
				settings.MaxRetries = 0

				testCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
				err := generator.TestConnection(testCtx, settings)
				cancel()
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%-5s %s (%s): %v\n", target, provider.Name, provider.Model, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-5s %s (%s): 连接成功\n", target, provider.Name, provider.Model)
			}
			if failed > 0 {
				return fmt.Errorf("%d provider(s) unreachable", failed)
			}
			return nil
		},
	}
	testCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Per-provider timeout")
	configCmd.AddCommand(testCmd)
	return configCmd
}
