package evidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToExportRecord(t *testing.T) {
	rec := &Record{
		ID:               "aud_1",
		Timestamp:        time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC),
		TenantID:         "default",
		Operation:        OperationAnonymize,
		EntityTypes:      []string{"EMAIL_ADDRESS", "PHONE_NUMBER"},
		EntityCount:      3,
		PlaceholderCount: 2,
		Tier:             1,
		InputHash:        "hmac-sha256:abc",
		OutputHash:       "hmac-sha256:def",
		DurationMS:       4,
		Error:            "context canceled",
	}

	exp := ToExportRecord(rec, true)

	assert.Equal(t, "aud_1", exp.ID)
	assert.Equal(t, OperationAnonymize, exp.Operation)
	assert.Equal(t, []string{"EMAIL_ADDRESS", "PHONE_NUMBER"}, exp.EntityTypes)
	assert.True(t, exp.HasError)
	assert.True(t, exp.Valid)

	row := exp.CSVRow()
	assert.Len(t, row, len(CSVHeader))
	assert.Equal(t, []string{
		"aud_1", "2026-02-21T12:00:00Z", "default", "anonymize", "EMAIL_ADDRESS|PHONE_NUMBER",
		"3", "2", "1", "4", "true", "hmac-sha256:abc", "hmac-sha256:def", "true",
	}, row)
}

func TestToExportRecord_CopiesEntityTypes(t *testing.T) {
	rec := &Record{EntityTypes: []string{"PERSON"}}
	exp := ToExportRecord(rec, false)
	rec.EntityTypes[0] = "CHANGED"
	assert.Equal(t, []string{"PERSON"}, exp.EntityTypes)
	assert.False(t, exp.HasError)
}
