package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinel-privacy/sentinel/internal/anonymizer"
	"github.com/sentinel-privacy/sentinel/internal/config"
)

var anonymizeCmd = &cobra.Command{
	Use:   "anonymize",
	Short: "Replace PII in text with placeholders (reads stdin unless --text is set)",
	Long: `Prints {"clean_text": ..., "mapping": {...}} as JSON. Keep the output:
"sentinel deanonymize --mapping" needs it to restore the values.`,
	Args: cobra.NoArgs,
	RunE: runAnonymize,
}

var deanonymizeCmd = &cobra.Command{
	Use:   "deanonymize",
	Short: "Restore placeholders in text using a mapping file (reads stdin unless --text is set)",
	Args:  cobra.NoArgs,
	RunE:  runDeanonymize,
}

func init() {
	anonymizeCmd.Flags().String("text", "", "text to anonymize")
	deanonymizeCmd.Flags().String("text", "", "AI response to restore")
	deanonymizeCmd.Flags().String("mapping", "", "JSON file with the mapping (bare object or full anonymize output)")
	_ = deanonymizeCmd.MarkFlagRequired("mapping")

	rootCmd.AddCommand(anonymizeCmd)
	rootCmd.AddCommand(deanonymizeCmd)
}

// inputText returns --text when given, otherwise all of stdin.
func inputText(cmd *cobra.Command) (string, error) {
	if cmd.Flags().Changed("text") {
		return cmd.Flags().GetString("text")
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(b), nil
}

func runAnonymize(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "anonymize")
	defer span.End()

	text, err := inputText(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	scanner, err := buildScanner(cfg)
	if err != nil {
		return err
	}

	res, err := anonymizer.New(scanner).Anonymize(ctx, text)
	if err != nil {
		return fmt.Errorf("anonymizing: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(map[string]interface{}{
		"clean_text": res.CleanText,
		"mapping":    res.Mapping,
	})
}

func runDeanonymize(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "deanonymize")
	defer span.End()

	mappingPath, _ := cmd.Flags().GetString("mapping")
	mapping, err := loadMappingFile(mappingPath)
	if err != nil {
		return err
	}

	text, err := inputText(cmd)
	if err != nil {
		return err
	}

	restored, err := anonymizer.Deanonymize(ctx, text, mapping)
	if err != nil {
		return fmt.Errorf("deanonymizing: %w", err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), restored)
	return err
}

// loadMappingFile accepts either a bare placeholder → value object or the
// full output of "sentinel anonymize".
func loadMappingFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}

	var wrapped struct {
		CleanText *string           `json:"clean_text"`
		Mapping   map[string]string `json:"mapping"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.CleanText != nil {
		if wrapped.Mapping == nil {
			return map[string]string{}, nil
		}
		return wrapped.Mapping, nil
	}

	var mapping map[string]string
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("parsing mapping file %s: %w", path, err)
	}
	return mapping, nil
}
