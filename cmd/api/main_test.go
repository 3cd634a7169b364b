package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/teletherapy-platform/internal/config"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Env:                "development",
		JWTSecret:          "test-secret",
		PaymentCurrency:    "usd",
		PlatformFeeBPS:     2000,
		VideoAutoProvision: true,
		DefaultTimezone:    "UTC",
	}
}

func TestBuildHandlerServesHealthAndMetrics(t *testing.T) {
	h, err := buildHandler(context.Background(), testConfig(), nil, nil, prometheus.NewRegistry(), logging.New("error"))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestBuildHandlerRequiresAuthForBooking(t *testing.T) {
	h, err := buildHandler(context.Background(), testConfig(), nil, nil, prometheus.NewRegistry(), logging.New("error"))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/booking", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestBuildHandlerRefusesInMemoryProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	_, err := buildHandler(context.Background(), cfg, nil, nil, prometheus.NewRegistry(), logging.New("error"))
	assert.Error(t, err)
}

func TestHealthCheckReportsRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rr := httptest.NewRecorder()
	healthCheck(nil, client)(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	mr.Close()
	rr = httptest.NewRecorder()
	healthCheck(nil, client)(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"redis":"unavailable"`)
}
