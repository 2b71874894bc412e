// Package anonymizer replaces detected PII spans with typed placeholders and
// reverses the substitution from a caller-held mapping.
//
// The mapping never leaves the request: Anonymize returns it to the caller,
// and Deanonymize receives it back. Nothing in this package persists text.
package anonymizer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/sentinel-privacy/sentinel/internal/classifier"
	sentinelotel "github.com/sentinel-privacy/sentinel/internal/otel"
	"github.com/sentinel-privacy/sentinel/internal/requestctx"
)

var tracer = sentinelotel.Tracer("github.com/sentinel-privacy/sentinel/internal/anonymizer")

// ErrEmptyPlaceholder is returned by Deanonymize when the mapping has an empty key.
var ErrEmptyPlaceholder = errors.New("mapping contains an empty placeholder")

// Analyzer finds PII candidates in text. *classifier.Scanner implements it.
type Analyzer interface {
	Scan(ctx context.Context, text string) *classifier.Classification
}

// Result is the outcome of Anonymize.
type Result struct {
	CleanText string
	// Mapping maps each placeholder to the original substring it replaced.
	Mapping map[string]string
	// Entities are the non-overlapping spans that were replaced, in text order.
	Entities []classifier.PIIEntity
	Tier     int
}

// Types returns the distinct entity types that were replaced, sorted.
func (r *Result) Types() []string {
	c := classifier.Classification{Entities: r.Entities}
	return c.Types()
}

// Anonymizer substitutes PII with placeholders. It holds no per-request state
// and is safe for concurrent use.
type Anonymizer struct {
	analyzer Analyzer
}

// New creates an Anonymizer backed by the given analyzer.
func New(analyzer Analyzer) *Anonymizer {
	return &Anonymizer{analyzer: analyzer}
}

// Anonymize detects PII in text and replaces every resolved span with a
// placeholder of the form <ENTITY_TYPE>. The first distinct value of a type
// gets <ENTITY_TYPE>, further distinct values get <ENTITY_TYPE_2>,
// <ENTITY_TYPE_3> and so on, and a repeated value reuses its placeholder.
// Placeholders that already occur in text are skipped.
func (a *Anonymizer) Anonymize(ctx context.Context, text string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "anonymizer.anonymize")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	classification := a.analyzer.Scan(ctx, text)
	entities := classifier.Resolve(classification.Entities)

	alloc := newAllocator(text)
	placeholders := make([]string, len(entities))
	for i, e := range entities {
		placeholders[i] = alloc.placeholderFor(e.Type, e.Value)
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for i, e := range entities {
		b.WriteString(text[last:e.Start])
		b.WriteString(placeholders[i])
		last = e.End
	}
	b.WriteString(text[last:])

	res := &Result{
		CleanText: b.String(),
		Mapping:   alloc.mapping,
		Entities:  entities,
		Tier:      classification.Tier,
	}
	if len(entities) == 0 {
		res.Tier = 0
	}

	tenantID := requestctx.TenantIDOrDefault(ctx)
	span.SetAttributes(sentinelotel.AnonymizeAttributes(tenantID, len(entities), len(res.Mapping), res.Tier)...)
	recordAnonymize(ctx, tenantID, entities)

	return res, nil
}

// Deanonymize restores original values in text using mapping. Replacement is a
// single left-to-right pass: at each position the longest matching placeholder
// wins, and restored values are never rescanned, so a value that happens to
// contain another placeholder is left intact.
func Deanonymize(ctx context.Context, text string, mapping map[string]string) (string, error) {
	_, span := tracer.Start(ctx, "anonymizer.deanonymize",
		trace.WithAttributes(sentinelotel.DeanonymizeAttributes(requestctx.TenantIDOrDefault(ctx), len(mapping))...))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(mapping) == 0 {
		recordDeanonymize(ctx, requestctx.TenantIDOrDefault(ctx))
		return text, nil
	}

	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		if k == "" {
			return "", ErrEmptyPlaceholder
		}
		keys = append(keys, k)
	}
	// strings.Replacer tries old strings in argument order at each position.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, mapping[k])
	}

	recordDeanonymize(ctx, requestctx.TenantIDOrDefault(ctx))
	return strings.NewReplacer(pairs...).Replace(text), nil
}

// Placeholder formats the n-th (1-based) placeholder for an entity type.
func Placeholder(entityType string, n int) string {
	if n <= 1 {
		return "<" + entityType + ">"
	}
	return fmt.Sprintf("<%s_%d>", entityType, n)
}

type allocator struct {
	text    string
	mapping map[string]string
	byValue map[string]string
	next    map[string]int
}

func newAllocator(text string) *allocator {
	return &allocator{
		text:    text,
		mapping: make(map[string]string),
		byValue: make(map[string]string),
		next:    make(map[string]int),
	}
}

func (a *allocator) placeholderFor(entityType, value string) string {
	key := entityType + "\x00" + value
	if ph, ok := a.byValue[key]; ok {
		return ph
	}
	for {
		a.next[entityType]++
		ph := Placeholder(entityType, a.next[entityType])
		if _, taken := a.mapping[ph]; taken || strings.Contains(a.text, ph) {
			continue
		}
		a.mapping[ph] = value
		a.byValue[key] = ph
		return ph
	}
}
