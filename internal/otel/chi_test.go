package otel

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareWithStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{"explicit 200", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }, http.StatusOK},
		{"implicit 200", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("{}")) }, http.StatusOK},
		{"500", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) }, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			MiddlewareWithStatus()(tt.handler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/anonymize", nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	assert.Equal(t, http.StatusOK, rec.statusCode())

	rec.WriteHeader(http.StatusTooManyRequests)
	rec.WriteHeader(http.StatusOK)
	_, _ = rec.Write([]byte("slow down"))
	assert.Equal(t, http.StatusTooManyRequests, rec.statusCode())
	assert.Equal(t, 9, rec.bytes)
}

func TestRoutePattern(t *testing.T) {
	var pattern string
	r := chi.NewRouter()
	r.Get("/v1/audit/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		pattern = routePattern(r)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/audit/aud_123", nil))
	assert.Equal(t, "/v1/audit/{id}", pattern)

	req := httptest.NewRequest(http.MethodGet, "/unrouted", nil)
	assert.Equal(t, "/unrouted", routePattern(req))
}
