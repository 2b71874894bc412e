//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-privacy/sentinel/internal/ratelimit"
	"github.com/sentinel-privacy/sentinel/internal/server"
	"github.com/sentinel-privacy/sentinel/internal/testutil"
)

// Two replicas sharing a Redis limiter enforce one budget per tenant.
func TestRedisRateLimit_SharedAcrossReplicas(t *testing.T) {
	rdb := redisClient(t)
	prefix := "sentinel-it:" + uuid.NewString()

	a := StartServer(t, nil, ratelimit.NewRedis(rdb, 2, 2, ratelimit.WithKeyPrefix(prefix)))
	b := StartServer(t, nil, ratelimit.NewRedis(rdb, 2, 2, ratelimit.WithKeyPrefix(prefix)))

	// Start at the top of a window so all requests land in the same second.
	time.Sleep(time.Until(time.Now().Truncate(time.Second).Add(time.Second)))

	body := `{"text": "hello"}`
	assert.Equal(t, http.StatusOK, post(t, a.URL+"/anonymize", body).StatusCode)
	assert.Equal(t, http.StatusOK, post(t, b.URL+"/anonymize", body).StatusCode)

	resp := post(t, a.URL+"/anonymize", body)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, http.StatusTooManyRequests, post(t, b.URL+"/anonymize", body).StatusCode)

	time.Sleep(1100 * time.Millisecond)
	assert.Equal(t, http.StatusOK, post(t, b.URL+"/anonymize", body).StatusCode)
}

func TestAuditTrail_RecordsAnonymize(t *testing.T) {
	store := testutil.NewTestEvidenceStore(t)
	ts := StartServer(t, store, ratelimit.Nop{})

	resp := post(t, ts.URL+"/anonymize", `{"text": "mail carol@example.net"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := resp.Header.Get(server.AuditIDHeader)
	require.NotEmpty(t, id)

	rec, err := store.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestTenant, rec.TenantID)
	assert.Contains(t, rec.EntityTypes, "EMAIL_ADDRESS")

	valid, err := store.Verify(t.Context(), id)
	require.NoError(t, err)
	assert.True(t, valid)
}
