//go:build integration

package integration

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-privacy/sentinel/internal/anonymizer"
	"github.com/sentinel-privacy/sentinel/internal/classifier"
	"github.com/sentinel-privacy/sentinel/internal/evidence"
	"github.com/sentinel-privacy/sentinel/internal/ratelimit"
	"github.com/sentinel-privacy/sentinel/internal/server"
	"github.com/sentinel-privacy/sentinel/internal/testutil"
)

// redisClient connects to SENTINEL_TEST_REDIS_URL or skips the test.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("SENTINEL_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SENTINEL_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	require.NoError(t, rdb.Ping(t.Context()).Err())
	return rdb
}

// StartServer serves a full Sentinel handler stack with real SQLite audit
// storage and the embedded recognizers.
func StartServer(t *testing.T, store *evidence.Store, limiter ratelimit.Limiter) *httptest.Server {
	t.Helper()
	scanner, err := classifier.NewScanner()
	require.NoError(t, err)

	opts := []server.Option{server.WithRateLimiter(limiter)}
	if store != nil {
		opts = append(opts, server.WithAuditStore(store))
	}
	srv := server.NewServer(anonymizer.New(scanner), map[string]string{testutil.TestAPIKey: testutil.TestTenant}, opts...)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(server.APIKeyHeader, testutil.TestAPIKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
