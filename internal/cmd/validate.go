package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sentinel-privacy/sentinel/internal/classifier"
)

var validateCmd = &cobra.Command{
	Use:   "validate [recognizer-file]",
	Short: "Validate a recognizer YAML file",
	Long:  "Parses a Presidio-compatible recognizer file and compiles every pattern and deny list.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "validate")
		defer span.End()

		path := args[0]
		file, err := classifier.LoadRecognizerFile(path)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		if file == nil {
			return fmt.Errorf("validation failed: %s does not exist", path)
		}

		patterns, err := classifier.CompilePIIPatterns(file.Recognizers)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("recognizer_validation_failed")
			return fmt.Errorf("validation failed: %w", err)
		}

		entities := make(map[string]int)
		for _, p := range patterns {
			entities[p.Entity]++
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "✓ Recognizers valid: %s\n", path)
		fmt.Fprintf(w, "  Recognizers: %d\n", len(file.Recognizers))
		fmt.Fprintf(w, "  Patterns:    %d\n", len(patterns))
		fmt.Fprintf(w, "  Entities:    %d\n", len(entities))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
