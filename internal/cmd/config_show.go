package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sentinel-privacy/sentinel/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect Sentinel configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration (keys are masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "config.show")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		w := cmd.OutOrStdout()
		dirState := "(not created)"
		if dirExists(cfg.DataDir) {
			dirState = "(exists)"
		}
		source := viper.ConfigFileUsed()
		if source == "" {
			source = "(none, env and defaults only)"
		}
		keySource := "explicit"
		if cfg.UsingDefaultSigningKey() {
			keySource = "derived default"
		}

		fmt.Fprintf(w, "Config file:      %s\n", source)
		fmt.Fprintf(w, "Data directory:   %s %s\n", cfg.DataDir, dirState)
		fmt.Fprintf(w, "Listen address:   %s\n", cfg.Addr)
		fmt.Fprintf(w, "Entities:         %s\n", strings.Join(cfg.Entities, ", "))
		if len(cfg.DisabledEntities) > 0 {
			fmt.Fprintf(w, "Disabled:         %s\n", strings.Join(cfg.DisabledEntities, ", "))
		}
		fmt.Fprintf(w, "Min score:        %.2f\n", cfg.MinScore)
		fmt.Fprintf(w, "Pattern file:     %s\n", valueOr(cfg.PatternFile, "(embedded only)"))
		fmt.Fprintf(w, "API keys:         %d configured\n", len(cfg.APIKeys))
		fmt.Fprintf(w, "Rate limit:       %s\n", describeRateLimit(cfg))
		fmt.Fprintf(w, "Audit trail:      %t\n", cfg.AuditEnabled)
		fmt.Fprintf(w, "Audit DB:         %s\n", cfg.AuditDBPath())
		fmt.Fprintf(w, "Signing key:      %s (%s)\n", maskSecret(cfg.SigningKey), keySource)
		fmt.Fprintf(w, "Max body bytes:   %d\n", cfg.MaxBodyBytes)
		fmt.Fprintf(w, "CORS origins:     %s\n", valueOr(strings.Join(cfg.CORSOrigins, ", "), "(none)"))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func describeRateLimit(cfg *config.Config) string {
	if cfg.RateLimitRPS <= 0 {
		return "disabled"
	}
	backend := "memory"
	if cfg.RedisURL != "" {
		backend = "redis"
	}
	return fmt.Sprintf("%g rps, burst %d (%s)", cfg.RateLimitRPS, cfg.RateLimitBurst, backend)
}

// maskSecret keeps the first four characters.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", 8)
}
