package infrastructure

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidsync/internal/config"
)

func testTelemetryConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		ServiceName:    "vidsync-test",
		ServiceVersion: "test",
		Environment:    "test",
		TraceExporter:  "stdout",
		MetricExporter: "prometheus",
		SampleRatio:    1,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestOTelInitialization(t *testing.T) {
	var traces bytes.Buffer
	providers, err := InitializeOTel(testTelemetryConfig(), discardLogger(), WithTraceWriter(&traces), WithoutGlobals())
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.PrometheusHTTP)
	assert.Same(t, providers.TracerProvider, providers.TracerProviderOrGlobal())

	_, span := providers.Tracer.Start(context.Background(), "startup")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, providers.Shutdown(ctx))
	assert.Contains(t, traces.String(), "startup")
}

func TestOTelDisabledExporters(t *testing.T) {
	cfg := testTelemetryConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	providers, err := InitializeOTel(cfg, discardLogger(), WithoutGlobals())
	require.NoError(t, err)

	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.MeterProvider)
	assert.Nil(t, providers.PrometheusHTTP)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.TracerProviderOrGlobal())
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestOTelUnsupportedExporter(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.TelemetryConfig)
	}{
		{"trace", func(c *config.TelemetryConfig) { c.TraceExporter = "otlp" }},
		{"metric", func(c *config.TelemetryConfig) { c.MetricExporter = "statsd" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testTelemetryConfig()
			tt.mutate(&cfg)
			_, err := InitializeOTel(cfg, discardLogger(), WithTraceWriter(io.Discard), WithoutGlobals())
			assert.Error(t, err)
		})
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	cfg := testTelemetryConfig()
	cfg.TraceExporter = "none"

	// two initializations must not collide on one registry
	for i := 0; i < 2; i++ {
		providers, err := InitializeOTel(cfg, discardLogger(), WithoutGlobals())
		require.NoError(t, err)

		counter, err := providers.Meter.Int64Counter("status_checks")
		require.NoError(t, err)
		counter.Add(context.Background(), 3)

		server := httptest.NewServer(providers.PrometheusHTTP)
		resp, err := http.Get(server.URL)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		server.Close()

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "status_checks_total")
		require.NoError(t, providers.Shutdown(context.Background()))
	}
}
