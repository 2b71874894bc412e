// Package classifier detects PII in free text using Presidio-compatible
// pattern recognizers loaded from YAML.
package classifier

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	sentinelotel "github.com/sentinel-privacy/sentinel/internal/otel"
)

var tracer = sentinelotel.Tracer("github.com/sentinel-privacy/sentinel/internal/classifier")

const (
	// DefaultMinScore is the Presidio-compatible minimum confidence threshold.
	// Matches below this score are discarded unless boosted by context words.
	DefaultMinScore = 0.5

	// ContextSimilarityFactor is the score boost applied when context words are
	// found near a match. Matches Presidio's default context_similarity_factor.
	ContextSimilarityFactor = 0.35

	// ContextWindowChars is the number of characters to search before and after
	// a match when looking for context words.
	ContextWindowChars = 100
)

// PIIEntity represents a detected PII instance. Start and End are byte offsets.
type PIIEntity struct {
	Type        string  `json:"type"`
	Value       string  `json:"value"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Confidence  float64 `json:"confidence"`
	Sensitivity int     `json:"sensitivity"` // 1-3 from recognizer; 0 means unset (treated as 1 for tiering)
	Recognizer  string  `json:"recognizer"`
}

// Classification holds the result of PII scanning.
type Classification struct {
	HasPII   bool        `json:"has_pii"`
	Entities []PIIEntity `json:"entities"`
	Tier     int         `json:"tier"` // 0-2
}

// Types returns the distinct entity types in the classification, sorted.
func (c *Classification) Types() []string {
	seen := make(map[string]bool)
	types := []string{}
	for _, e := range c.Entities {
		if !seen[e.Type] {
			seen[e.Type] = true
			types = append(types, e.Type)
		}
	}
	sort.Strings(types)
	return types
}

// Scanner detects PII in text using configurable regex patterns.
// A Scanner is immutable after construction and safe for concurrent use.
type Scanner struct {
	patterns []PIIPattern
	minScore float64
}

// ScannerOption configures a Scanner via the functional options pattern.
type ScannerOption func(*scannerConfig)

type scannerConfig struct {
	patternFile       string
	enabledEntities   []string
	disabledEntities  []string
	customRecognizers []RecognizerConfig
	minScore          *float64
}

// WithMinScore overrides the default minimum confidence threshold for matches.
// A score of 0 keeps every match.
func WithMinScore(score float64) ScannerOption {
	return func(c *scannerConfig) { c.minScore = &score }
}

// WithPatternFile loads additional recognizers from a patterns.yaml file.
// If the file does not exist, it is silently skipped.
func WithPatternFile(path string) ScannerOption {
	return func(c *scannerConfig) { c.patternFile = path }
}

// WithEnabledEntities sets a whitelist of entity types. When non-empty, only
// recognizers with a matching supported_entity will be active.
func WithEnabledEntities(entities []string) ScannerOption {
	return func(c *scannerConfig) { c.enabledEntities = entities }
}

// WithDisabledEntities sets a blacklist of entity types to exclude.
func WithDisabledEntities(entities []string) ScannerOption {
	return func(c *scannerConfig) { c.disabledEntities = entities }
}

// WithCustomRecognizers adds recognizer definitions on top of the file layers.
func WithCustomRecognizers(recognizers []RecognizerConfig) ScannerOption {
	return func(c *scannerConfig) { c.customRecognizers = recognizers }
}

// NewScanner creates a PII scanner. Without options it uses every embedded
// recognizer. Options layer a pattern file and custom recognizers on top.
func NewScanner(opts ...ScannerOption) (*Scanner, error) {
	var cfg scannerConfig
	for _, o := range opts {
		o(&cfg)
	}

	// Layer 1: embedded defaults
	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, fmt.Errorf("loading default recognizers: %w", err)
	}

	// Layer 2: pattern file (optional)
	var fileRecs []*RecognizerConfig
	if cfg.patternFile != "" {
		rf, err := LoadRecognizerFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		if rf != nil {
			fileRecs = toPtrSlice(rf.Recognizers)
		}
	}

	// Layer 3: custom recognizers
	var customRecs []*RecognizerConfig
	if len(cfg.customRecognizers) > 0 {
		customRecs = toPtrSlice(cfg.customRecognizers)
	}

	merged := MergeRecognizers(toPtrSlice(defaults), fileRecs, customRecs)
	merged = FilterByEntities(merged, cfg.enabledEntities, cfg.disabledEntities)

	compiled, err := CompilePIIPatterns(merged)
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}

	minScore := DefaultMinScore
	if cfg.minScore != nil {
		minScore = *cfg.minScore
	}

	return &Scanner{patterns: compiled, minScore: minScore}, nil
}

// MustNewScanner is like NewScanner but panics on error. Useful for zero-config
// startup where the embedded defaults are expected to always compile.
func MustNewScanner(opts ...ScannerOption) *Scanner {
	s, err := NewScanner(opts...)
	if err != nil {
		panic(fmt.Sprintf("classifier.NewScanner: %v", err))
	}
	return s
}

// Entities returns the distinct entity types the scanner can detect, sorted.
func (s *Scanner) Entities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range s.patterns {
		if !seen[p.Entity] {
			seen[p.Entity] = true
			out = append(out, p.Entity)
		}
	}
	sort.Strings(out)
	return out
}

// Scan analyzes text for PII and returns a classification result. Entities
// may overlap; use Resolve to obtain a non-overlapping set. Matches that hit
// the same span with the same type are collapsed to the highest confidence.
func (s *Scanner) Scan(ctx context.Context, text string) *Classification {
	_, span := tracer.Start(ctx, "classifier.scan")
	defer span.End()

	result := &Classification{
		HasPII:   false,
		Entities: []PIIEntity{},
		Tier:     0,
	}
	if text == "" {
		return result
	}

	type spanKey struct {
		start, end int
		entity     string
	}
	best := make(map[spanKey]int)

	for i := range s.patterns {
		pattern := &s.patterns[i]
		for _, m := range pattern.Pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2*pattern.Group], m[2*pattern.Group+1]
			if start < 0 || end <= start {
				continue
			}
			value := text[start:end]

			if !passesValidation(pattern.Validate, value) {
				continue
			}

			// Presidio-style confidence: base score + context word boost
			confidence := enhanceScoreWithContext(text, start, end, pattern.Score, pattern.ContextWords)
			if confidence < s.minScore {
				continue
			}

			entity := PIIEntity{
				Type:        pattern.Entity,
				Value:       value,
				Start:       start,
				End:         end,
				Confidence:  confidence,
				Sensitivity: pattern.Sensitivity,
				Recognizer:  pattern.Name,
			}
			key := spanKey{start: start, end: end, entity: pattern.Entity}
			if idx, ok := best[key]; ok {
				if confidence > result.Entities[idx].Confidence {
					result.Entities[idx] = entity
				}
				continue
			}
			best[key] = len(result.Entities)
			result.Entities = append(result.Entities, entity)
		}
	}

	sort.SliceStable(result.Entities, func(i, j int) bool {
		if result.Entities[i].Start != result.Entities[j].Start {
			return result.Entities[i].Start < result.Entities[j].Start
		}
		return result.Entities[i].End < result.Entities[j].End
	})
	result.HasPII = len(result.Entities) > 0
	result.Tier = determineTier(result.Entities)

	span.SetAttributes(
		attribute.Bool("pii.detected", result.HasPII),
		attribute.Int("pii.entity_count", len(result.Entities)),
		attribute.Int("pii.tier", result.Tier),
	)

	return result
}

// Resolve removes overlapping entities the way Presidio's anonymizer does:
// the higher confidence wins, then the longer span, then the higher
// sensitivity. The result is ordered by start offset and never overlaps.
func Resolve(entities []PIIEntity) []PIIEntity {
	if len(entities) == 0 {
		return []PIIEntity{}
	}
	ranked := make([]PIIEntity, len(entities))
	copy(ranked, entities)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if la, lb := a.End-a.Start, b.End-b.Start; la != lb {
			return la > lb
		}
		if a.Sensitivity != b.Sensitivity {
			return a.Sensitivity > b.Sensitivity
		}
		return a.Start < b.Start
	})

	var kept []PIIEntity
	for _, cand := range ranked {
		overlaps := false
		for _, k := range kept {
			if cand.Start < k.End && k.Start < cand.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, cand)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

// determineTier classifies data sensitivity based on detected entities.
// Tier 0 = no PII, Tier 1 = low-sensitivity PII, Tier 2 = any entity whose
// recognizer sensitivity is 2 or higher. Sensitivity 0 is treated as 1.
func determineTier(entities []PIIEntity) int {
	if len(entities) == 0 {
		return 0
	}
	for _, entity := range entities {
		if entity.Sensitivity >= 2 {
			return 2
		}
	}
	return 1
}

func passesValidation(validator, value string) bool {
	switch validator {
	case ValidateIBAN:
		clean := strings.ReplaceAll(value, " ", "")
		return validateIBANLength(clean) && validateIBANChecksum(clean)
	case ValidateLuhn:
		return luhnValid(stripNonDigits(value))
	default:
		return true
	}
}

// luhnValid checks whether a digit string passes the Luhn algorithm (ISO/IEC 7812).
func luhnValid(number string) bool {
	n := len(number)
	if n < 2 {
		return false
	}
	sum := 0
	alt := false
	for i := n - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

// validateIBANChecksum verifies the MOD-97 check digits per ISO 13616.
// The IBAN is rearranged (country+check moved to end) and converted to digits
// (A=10, B=11, ..., Z=35) then checked: remainder must equal 1.
func validateIBANChecksum(iban string) bool {
	if len(iban) < 5 {
		return false
	}
	rearranged := iban[4:] + iban[:4]
	var numStr strings.Builder
	for _, ch := range rearranged {
		switch {
		case ch >= '0' && ch <= '9':
			numStr.WriteRune(ch)
		case ch >= 'A' && ch <= 'Z':
			fmt.Fprintf(&numStr, "%d", ch-'A'+10)
		default:
			return false
		}
	}
	n := new(big.Int)
	if _, ok := n.SetString(numStr.String(), 10); !ok {
		return false
	}
	mod := new(big.Int)
	mod.Mod(n, big.NewInt(97))
	return mod.Int64() == 1
}

// validateIBANLength checks that the IBAN has the correct length for its country code.
func validateIBANLength(iban string) bool {
	if len(iban) < 2 {
		return false
	}
	expected, ok := IBANLengths[iban[:2]]
	if !ok {
		return false
	}
	return len(iban) == expected
}

// enhanceScoreWithContext boosts a match's base score if a context word is
// found within ContextWindowChars characters on either side of the match.
// This mirrors Presidio's LemmaContextAwareEnhancer with a fixed factor, and
// like Presidio the result never exceeds 1.0.
func enhanceScoreWithContext(text string, start, end int, baseScore float64, contextWords []string) float64 {
	if len(contextWords) == 0 {
		return baseScore
	}
	lo := start - ContextWindowChars
	if lo < 0 {
		lo = 0
	}
	hi := end + ContextWindowChars
	if hi > len(text) {
		hi = len(text)
	}
	window := strings.ToLower(text[lo:start] + " " + text[end:hi])

	for _, cw := range contextWords {
		if containsWord(window, strings.ToLower(cw)) {
			return math.Min(1.0, baseScore+ContextSimilarityFactor)
		}
	}
	return baseScore
}

// containsWord reports whether word occurs in s delimited by non-letters, so
// "son" does not fire inside "person".
func containsWord(s, word string) bool {
	if word == "" {
		return false
	}
	for offset := 0; offset < len(s); {
		idx := strings.Index(s[offset:], word)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(word)
		if (start == 0 || !isASCIILetter(s[start-1])) && (end == len(s) || !isASCIILetter(s[end])) {
			return true
		}
		offset = start + 1
	}
	return false
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// stripNonDigits removes all non-digit characters from s.
func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
