package classifier

import (
	"fmt"
	"regexp"

	"github.com/sentinel-privacy/sentinel/patterns"
)

// PIIPattern represents a compiled, ready-to-use PII detection pattern.
type PIIPattern struct {
	Name         string
	Entity       string // SCREAMING_SNAKE entity type, e.g. "EMAIL_ADDRESS"
	Pattern      *regexp.Regexp
	Group        int
	Score        float64
	ContextWords []string
	Validate     string
	Sensitivity  int // 1-3, higher = more sensitive
}

// DefaultRecognizers returns the built-in PII recognizers parsed from the
// embedded pii_en.yaml file. This is the first layer in the merge chain.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIENYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded PII patterns: %w", err)
	}
	return rf.Recognizers, nil
}

// IBANLengths maps ISO 3166 country codes to the total IBAN length.
var IBANLengths = map[string]int{
	"AD": 24, "AE": 23, "AT": 20, "BE": 16, "BG": 22, "BH": 22, "CH": 21,
	"CY": 28, "CZ": 24, "DE": 22, "DK": 18, "EE": 20, "ES": 24, "FI": 18,
	"FO": 18, "FR": 27, "GB": 22, "GI": 23, "GL": 18, "GR": 27, "HR": 21,
	"HU": 28, "IE": 22, "IL": 23, "IS": 26, "IT": 27, "LI": 21, "LT": 20,
	"LU": 20, "LV": 21, "MC": 27, "MT": 31, "NL": 18, "NO": 15, "PL": 28,
	"PT": 25, "RO": 24, "SA": 24, "SE": 24, "SI": 19, "SK": 24, "SM": 27,
	"TR": 26,
}
