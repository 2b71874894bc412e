package otel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymizeAttributes(t *testing.T) {
	tests := []struct {
		name         string
		tenant       string
		entityCount  int
		placeholders int
		tier         int
	}{
		{"no PII", "default", 0, 0, 0},
		{"repeated person", "acme", 3, 1, 1},
		{"high sensitivity", "acme", 2, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := AnonymizeAttributes(tt.tenant, tt.entityCount, tt.placeholders, tt.tier)
			require.Len(t, attrs, 5)

			assert.Equal(t, "sentinel.operation", string(attrs[0].Key))
			assert.Equal(t, "anonymize", attrs[0].Value.AsString())

			assert.Equal(t, "sentinel.tenant_id", string(attrs[1].Key))
			assert.Equal(t, tt.tenant, attrs[1].Value.AsString())

			assert.Equal(t, "pii.entity_count", string(attrs[2].Key))
			assert.Equal(t, int64(tt.entityCount), attrs[2].Value.AsInt64())

			assert.Equal(t, "pii.placeholder_count", string(attrs[3].Key))
			assert.Equal(t, int64(tt.placeholders), attrs[3].Value.AsInt64())

			assert.Equal(t, "pii.tier", string(attrs[4].Key))
			assert.Equal(t, int64(tt.tier), attrs[4].Value.AsInt64())
		})
	}
}

func TestDeanonymizeAttributes(t *testing.T) {
	attrs := DeanonymizeAttributes("acme", 4)
	require.Len(t, attrs, 3)
	assert.Equal(t, "deanonymize", attrs[0].Value.AsString())
	assert.Equal(t, "acme", attrs[1].Value.AsString())
	assert.Equal(t, "pii.mapping_entries", string(attrs[2].Key))
	assert.Equal(t, int64(4), attrs[2].Value.AsInt64())
}

func TestPrivacyAttributeKeys(t *testing.T) {
	tests := []struct {
		key      string
		wantName string
	}{
		{string(SentinelOperation), "sentinel.operation"},
		{string(SentinelTenant), "sentinel.tenant_id"},
		{string(PIIEntityType), "pii.entity_type"},
		{string(PIIEntityCount), "pii.entity_count"},
		{string(PIIPlaceholders), "pii.placeholder_count"},
		{string(PIITier), "pii.tier"},
		{string(PIIMappingEntries), "pii.mapping_entries"},
	}
	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			assert.Equal(t, tt.wantName, tt.key)
		})
	}
}
