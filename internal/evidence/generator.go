package evidence

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Generator creates and persists audit records.
type Generator struct {
	store *Store
	now   func() time.Time
}

// NewGenerator creates an audit record generator backed by the given store.
func NewGenerator(store *Store) *Generator {
	return &Generator{store: store, now: time.Now}
}

// GenerateParams holds all inputs for creating an audit record.
// Input and Output are stored only as keyed digests.
type GenerateParams struct {
	TenantID         string
	Operation        string // OperationAnonymize or OperationDeanonymize
	EntityTypes      []string
	EntityCount      int
	PlaceholderCount int // placeholders created (anonymize) or mapping entries supplied (deanonymize)
	Tier             int
	Input            string
	Output           string
	Duration         time.Duration
	Error            string
}

// Generate creates and stores an audit record from the given parameters.
func (g *Generator) Generate(ctx context.Context, params GenerateParams) (*Record, error) {
	types := append([]string{}, params.EntityTypes...)
	sort.Strings(types)

	rec := &Record{
		ID:               "aud_" + uuid.New().String(),
		Timestamp:        g.now().UTC(),
		TenantID:         params.TenantID,
		Operation:        params.Operation,
		EntityTypes:      types,
		EntityCount:      params.EntityCount,
		PlaceholderCount: params.PlaceholderCount,
		Tier:             params.Tier,
		InputHash:        g.store.signer.Digest(params.Input),
		OutputHash:       g.store.signer.Digest(params.Output),
		DurationMS:       params.Duration.Milliseconds(),
		Error:            params.Error,
	}

	if err := g.store.Store(ctx, rec); err != nil {
		return nil, err
	}

	return rec, nil
}
