package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// Privacy attribute keys shared by spans and metrics. Values are counts and
// entity type names only; detected text never becomes an attribute.
const (
	SentinelOperation = attribute.Key("sentinel.operation") // "anonymize" or "deanonymize"
	SentinelTenant    = attribute.Key("sentinel.tenant_id")

	PIIEntityType     = attribute.Key("pii.entity_type") // e.g. "PERSON"
	PIIEntityCount    = attribute.Key("pii.entity_count")
	PIIPlaceholders   = attribute.Key("pii.placeholder_count")
	PIITier           = attribute.Key("pii.tier")
	PIIMappingEntries = attribute.Key("pii.mapping_entries")
)

// AnonymizeAttributes creates span attributes for an anonymize call.
func AnonymizeAttributes(tenantID string, entityCount, placeholders, tier int) []attribute.KeyValue {
	return []attribute.KeyValue{
		SentinelOperation.String("anonymize"),
		SentinelTenant.String(tenantID),
		PIIEntityCount.Int(entityCount),
		PIIPlaceholders.Int(placeholders),
		PIITier.Int(tier),
	}
}

// DeanonymizeAttributes creates span attributes for a deanonymize call.
func DeanonymizeAttributes(tenantID string, mappingEntries int) []attribute.KeyValue {
	return []attribute.KeyValue{
		SentinelOperation.String("deanonymize"),
		SentinelTenant.String(tenantID),
		PIIMappingEntries.Int(mappingEntries),
	}
}
