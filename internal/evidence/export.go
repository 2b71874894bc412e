package evidence

import (
	"strconv"
	"strings"
	"time"
)

// ExportRecord is a flattened audit record for `sentinel audit export`.
// Valid reports whether the stored signature still matches.
type ExportRecord struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	TenantID         string    `json:"tenant_id"`
	Operation        string    `json:"operation"`
	EntityTypes      []string  `json:"entity_types,omitempty"`
	EntityCount      int       `json:"entity_count"`
	PlaceholderCount int       `json:"placeholder_count"`
	Tier             int       `json:"tier"`
	DurationMS       int64     `json:"duration_ms"`
	HasError         bool      `json:"has_error"`
	InputHash        string    `json:"input_hash"`
	OutputHash       string    `json:"output_hash"`
	Valid            bool      `json:"signature_valid"`
}

// CSVHeader is the column order produced by ExportRecord.CSVRow.
var CSVHeader = []string{
	"id", "timestamp", "tenant_id", "operation", "entity_types", "entity_count",
	"placeholder_count", "tier", "duration_ms", "has_error", "input_hash", "output_hash",
	"signature_valid",
}

// ToExportRecord builds an ExportRecord from a stored Record.
func ToExportRecord(r *Record, valid bool) ExportRecord {
	rec := ExportRecord{
		ID:               r.ID,
		Timestamp:        r.Timestamp,
		TenantID:         r.TenantID,
		Operation:        r.Operation,
		EntityCount:      r.EntityCount,
		PlaceholderCount: r.PlaceholderCount,
		Tier:             r.Tier,
		DurationMS:       r.DurationMS,
		HasError:         r.Error != "",
		InputHash:        r.InputHash,
		OutputHash:       r.OutputHash,
		Valid:            valid,
	}
	if len(r.EntityTypes) > 0 {
		rec.EntityTypes = append([]string(nil), r.EntityTypes...)
	}
	return rec
}

// CSVRow renders the record in CSVHeader order. Entity types are joined with "|"
// so the cell never needs quoting.
func (r *ExportRecord) CSVRow() []string {
	return []string{
		r.ID,
		r.Timestamp.UTC().Format(time.RFC3339),
		r.TenantID,
		r.Operation,
		strings.Join(r.EntityTypes, "|"),
		strconv.Itoa(r.EntityCount),
		strconv.Itoa(r.PlaceholderCount),
		strconv.Itoa(r.Tier),
		strconv.FormatInt(r.DurationMS, 10),
		strconv.FormatBool(r.HasError),
		r.InputHash,
		r.OutputHash,
		strconv.FormatBool(r.Valid),
	}
}
