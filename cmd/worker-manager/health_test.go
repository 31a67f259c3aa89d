package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHealthServer_Ready(t *testing.T) {
	tests := []struct {
		name       string
		checks     readinessChecks
		wantCode   int
		wantStatus string
	}{
		{
			name: "all dependencies up",
			checks: readinessChecks{
				"zeebe":    func(context.Context) error { return nil },
				"postgres": func(context.Context) error { return nil },
			},
			wantCode:   http.StatusOK,
			wantStatus: "ready",
		},
		{
			name: "postgres down",
			checks: readinessChecks{
				"zeebe":    func(context.Context) error { return nil },
				"postgres": func(context.Context) error { return errors.New("connection refused") },
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not_ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHealthServer(":0", tt.checks, nil, zaptest.NewLogger(t))

			rec := httptest.NewRecorder()
			h.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.Len(t, body["dependencies"], len(tt.checks))
		})
	}
}

func TestHealthServer_HealthAndMetrics(t *testing.T) {
	h := newHealthServer(":0", readinessChecks{}, nil, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = httptest.NewRecorder()
	h.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
