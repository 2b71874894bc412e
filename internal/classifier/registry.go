package classifier

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RecognizerFile is the top-level YAML structure for a recognizer config file.
// Mirrors Presidio's recognizer registry YAML format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig mirrors Presidio's YAML recognizer schema with Sentinel extensions.
type RecognizerConfig struct {
	Name               string            `yaml:"name" json:"name"`
	SupportedEntity    string            `yaml:"supported_entity" json:"supported_entity"`
	Enabled            *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns           []PatternConfig   `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	SupportedLanguages []LanguageContext `yaml:"supported_languages,omitempty" json:"supported_languages,omitempty"`
	DenyList           []string          `yaml:"deny_list,omitempty" json:"deny_list,omitempty"`
	DenyListScore      float64           `yaml:"deny_list_score,omitempty" json:"deny_list_score,omitempty"`
	// Sentinel extensions (Presidio ignores unknown fields)
	Sensitivity int    `yaml:"sensitivity,omitempty" json:"sensitivity,omitempty"`
	Validate    string `yaml:"validate,omitempty" json:"validate,omitempty"` // "luhn" or "iban"
}

// PatternConfig is a single regex pattern within a recognizer.
// Group selects the capture group that delimits the entity; 0 means the whole match.
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score" json:"score"`
	Group int     `yaml:"group,omitempty" json:"group,omitempty"`
}

// LanguageContext holds context words for a specific language.
type LanguageContext struct {
	Language string   `yaml:"language" json:"language"`
	Context  []string `yaml:"context,omitempty" json:"context,omitempty"`
}

// Validators accepted in RecognizerConfig.Validate.
const (
	ValidateLuhn = "luhn"
	ValidateIBAN = "iban"
)

// defaultDenyListScore matches Presidio's deny-list recognizer default.
const defaultDenyListScore = 1.0

// isEnabled returns true if the recognizer is enabled (defaults to true when nil).
func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// contextWords flattens the context words of every supported language.
func (r *RecognizerConfig) contextWords() []string {
	var words []string
	for _, lc := range r.SupportedLanguages {
		words = append(words, lc.Context...)
	}
	return words
}

// ParseRecognizerFile parses recognizer YAML bytes into a RecognizerFile.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing global config as a no-op.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// MergeRecognizers merges recognizer layers in order. Later layers override
// earlier ones by matching on the recognizer Name field. New recognizers are appended.
func MergeRecognizers(layers ...[]*RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if rc == nil {
				continue
			}
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = *rc
			} else {
				index[rc.Name] = len(merged)
				merged = append(merged, *rc)
			}
		}
	}

	return merged
}

func toPtrSlice(configs []RecognizerConfig) []*RecognizerConfig {
	ptrs := make([]*RecognizerConfig, len(configs))
	for i := range configs {
		ptrs[i] = &configs[i]
	}
	return ptrs
}

// CompilePIIPatterns converts recognizer configs into the compiled patterns
// used by the Scanner at runtime. Disabled recognizers are skipped. Each regex
// pattern produces one PIIPattern; a non-empty deny list produces one more.
func CompilePIIPatterns(recognizers []RecognizerConfig) ([]PIIPattern, error) {
	var patterns []PIIPattern

	for _, rec := range recognizers {
		if !rec.isEnabled() {
			continue
		}
		entity := NormalizeEntity(rec.SupportedEntity)
		if entity == "" {
			return nil, fmt.Errorf("recognizer %q has no supported_entity", rec.Name)
		}
		switch rec.Validate {
		case "", ValidateLuhn, ValidateIBAN:
		default:
			return nil, fmt.Errorf("recognizer %q: unknown validator %q", rec.Name, rec.Validate)
		}
		ctxWords := rec.contextWords()

		for _, p := range rec.Patterns {
			compiled, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rec.Name, err)
			}
			if p.Group < 0 || p.Group > compiled.NumSubexp() {
				return nil, fmt.Errorf("pattern %q in recognizer %q: group %d out of range", p.Name, rec.Name, p.Group)
			}
			patterns = append(patterns, PIIPattern{
				Name:         rec.Name,
				Entity:       entity,
				Pattern:      compiled,
				Group:        p.Group,
				Score:        p.Score,
				ContextWords: ctxWords,
				Validate:     rec.Validate,
				Sensitivity:  rec.Sensitivity,
			})
		}

		if len(rec.DenyList) > 0 {
			compiled, err := compileDenyList(rec.DenyList)
			if err != nil {
				return nil, fmt.Errorf("compiling deny list in recognizer %q: %w", rec.Name, err)
			}
			score := rec.DenyListScore
			if score == 0 {
				score = defaultDenyListScore
			}
			patterns = append(patterns, PIIPattern{
				Name:         rec.Name,
				Entity:       entity,
				Pattern:      compiled,
				Score:        score,
				ContextWords: ctxWords,
				Validate:     rec.Validate,
				Sensitivity:  rec.Sensitivity,
			})
		}
	}

	return patterns, nil
}

// compileDenyList builds a case-insensitive, word-bounded alternation. Longer
// terms come first so "New York City" wins over "New York".
func compileDenyList(terms []string) (*regexp.Regexp, error) {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(t))
	}
	if len(quoted) == 0 {
		return nil, fmt.Errorf("deny list has no terms")
	}
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// FilterByEntities applies enabled/disabled entity filters to a recognizer list.
// If enabledEntities is non-empty, only recognizers with matching supported_entity
// are kept (whitelist). Then any recognizer in disabledEntities is removed (blacklist).
func FilterByEntities(recognizers []RecognizerConfig, enabledEntities, disabledEntities []string) []RecognizerConfig {
	result := recognizers

	if len(enabledEntities) > 0 {
		allowed := entitySet(enabledEntities)
		var filtered []RecognizerConfig
		for _, r := range result {
			if allowed[NormalizeEntity(r.SupportedEntity)] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	if len(disabledEntities) > 0 {
		blocked := entitySet(disabledEntities)
		var filtered []RecognizerConfig
		for _, r := range result {
			if !blocked[NormalizeEntity(r.SupportedEntity)] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	return result
}

func entitySet(entities []string) map[string]bool {
	set := make(map[string]bool, len(entities))
	for _, e := range entities {
		set[NormalizeEntity(e)] = true
	}
	return set
}

// NormalizeEntity converts an entity name to the SCREAMING_SNAKE form used in
// placeholders (e.g. "email address" -> "EMAIL_ADDRESS").
func NormalizeEntity(entity string) string {
	entity = strings.TrimSpace(entity)
	entity = strings.Join(strings.Fields(entity), "_")
	entity = strings.ReplaceAll(entity, "-", "_")
	return strings.ToUpper(entity)
}
