package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name    string
		version string
		enabled bool
	}{
		{"enabled", "1.0.0", true},
		{"dev version", "dev", true},
		{"disabled", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			shutdown, err := Setup("sentinel", tt.version, tt.enabled, WithWriter(&buf))
			require.NoError(t, err)
			require.NotNil(t, shutdown)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			assert.NoError(t, shutdown(ctx))
		})
	}
}

func TestSetup_ExportsSpansToWriter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup("sentinel-test", "0.0.1", true, WithWriter(&buf))
	require.NoError(t, err)

	_, span := Tracer("github.com/sentinel-privacy/sentinel/internal/otel/test").Start(context.Background(), "anonymizer.anonymize")
	assert.True(t, span.SpanContext().IsValid(), "span context should be valid after Setup()")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, shutdown(ctx))

	out := buf.String()
	assert.Contains(t, out, "anonymizer.anonymize")
	assert.Contains(t, out, "sentinel-test")
}

func TestTracer_SpansImplementInterfaceWithoutSetup(t *testing.T) {
	tr := Tracer("github.com/sentinel-privacy/sentinel/internal/noop")
	_, span := tr.Start(context.Background(), "noop.operation")
	defer span.End()

	assert.Implements(t, (*trace.Span)(nil), span)
}
