package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type readiness bool

func (r readiness) Ready() bool { return bool(r) }

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		ready          bool
		redis          Pinger
		expectedStatus int
		expectedHealth string
		expectedModel  string
		expectedRedis  string
	}{
		{
			name:           "configured without redis",
			ready:          true,
			expectedStatus: http.StatusOK,
			expectedHealth: "healthy",
			expectedModel:  "configured",
			expectedRedis:  "disabled",
		},
		{
			name:           "configured with healthy redis",
			ready:          true,
			redis:          &fakeThrottle{},
			expectedStatus: http.StatusOK,
			expectedHealth: "healthy",
			expectedModel:  "configured",
			expectedRedis:  "healthy",
		},
		{
			name:           "unhealthy redis",
			ready:          true,
			redis:          &fakeThrottle{err: errors.New("connection refused")},
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: "degraded",
			expectedModel:  "configured",
			expectedRedis:  "unhealthy",
		},
		{
			name:           "missing credential",
			ready:          false,
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: "degraded",
			expectedModel:  "missing",
			expectedRedis:  "disabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(readiness(tt.ready), tt.redis, "gemini-2.0-flash", discardLogger())

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status code %d, got %d", tt.expectedStatus, w.Code)
			}

			var response HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}

			if response.Status != tt.expectedHealth {
				t.Errorf("Expected health status %s, got %s", tt.expectedHealth, response.Status)
			}
			if response.Service != "divergence-engine" {
				t.Errorf("Expected service divergence-engine, got %s", response.Service)
			}
			if response.Components["model"] != tt.expectedModel {
				t.Errorf("Expected model status %s, got %s", tt.expectedModel, response.Components["model"])
			}
			if response.Components["redis"] != tt.expectedRedis {
				t.Errorf("Expected redis status %s, got %s", tt.expectedRedis, response.Components["redis"])
			}
		})
	}
}
