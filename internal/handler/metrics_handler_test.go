package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/course-feedback-api/internal/service"
)

type pingerStub struct{ err error }

func (p pingerStub) PingContext(ctx context.Context) error { return p.err }

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), pingerStub{})
	w := serve(t, http.MethodGet, "/ready", httptest.NewRequest(http.MethodGet, "/ready", nil), nil, h.Ready)
	assert.Equal(t, http.StatusOK, w.Code)

	h = NewMetricsHandler(service.NewMetricsService(), pingerStub{err: errors.New("connection refused")})
	w = serve(t, http.MethodGet, "/ready", httptest.NewRequest(http.MethodGet, "/ready", nil), nil, h.Ready)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.ObserveHTTPRequest(http.MethodGet, "/api/v1/courses", http.StatusOK, 0)
	h := NewMetricsHandler(metrics, nil)

	w := serve(t, http.MethodGet, "/metrics", httptest.NewRequest(http.MethodGet, "/metrics", nil), nil, h.Prometheus)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/courses")

	w = serve(t, http.MethodGet, "/metrics", httptest.NewRequest(http.MethodGet, "/metrics", nil), nil, NewMetricsHandler(nil, nil).Prometheus)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
