package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidsync/internal/config"
	"vidsync/internal/infrastructure"
	"vidsync/internal/realtime"
)

// blockingDialer never completes a handshake until the dial is cancelled
type blockingDialer struct{}

func (blockingDialer) Dial(ctx context.Context, _ string, _ http.Header) (realtime.Connection, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8090,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			IdleTimeout:     5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Logging: config.LoggingConfig{Level: "debug", Output: "console"},
		Realtime: config.RealtimeConfig{
			URL:               "ws://127.0.0.1:1/ws",
			HeartbeatInterval: 30 * time.Second,
			PollingInterval:   5 * time.Second,
			DuplexGrace:       time.Minute,
			BaseBackoff:       time.Second,
			MaxBackoff:        30 * time.Second,
			HandshakeTimeout:  10 * time.Second,
		},
		Widgets: config.WidgetsConfig{
			Dashboard:     true,
			DashboardDays: 7,
			Workers:       true,
			Preview:       true,
		},
		Telemetry: config.TelemetryConfig{
			ServiceName:    "vidsync-test",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1,
		},
		RateLimit: config.RateLimitConfig{Enabled: true, RPS: 100, Burst: 100},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRealtimeConfig(t *testing.T) {
	src := testConfig().Realtime
	src.PollURL = "http://127.0.0.1:1"
	src.Endpoints = map[string]string{"workers": "/w"}

	t.Run("without token", func(t *testing.T) {
		rc := RealtimeConfig(src)
		assert.Equal(t, src.URL, rc.URL)
		assert.Equal(t, src.PollURL, rc.PollURL)
		assert.Equal(t, src.DuplexGrace, rc.DuplexGrace)
		assert.Equal(t, src.MaxBackoff, rc.MaxBackoff)
		assert.Equal(t, "/w", rc.Endpoints["workers"])
		assert.Nil(t, rc.Header)

		rc.Endpoints["workers"] = "/changed"
		assert.Equal(t, "/w", src.Endpoints["workers"])
	})

	t.Run("with token", func(t *testing.T) {
		withToken := src
		withToken.AuthToken = "s3cret"
		rc := RealtimeConfig(withToken)
		assert.Equal(t, "Bearer s3cret", rc.Header.Get("Authorization"))
	})
}

func TestBuildWidgetSelection(t *testing.T) {
	tests := []struct {
		name          string
		widgets       config.WidgetsConfig
		wantDashboard bool
		wantWorkers   bool
		wantPreview   bool
	}{
		{"all", config.WidgetsConfig{Dashboard: true, DashboardDays: 7, Workers: true, Preview: true}, true, true, true},
		{"workers only", config.WidgetsConfig{Workers: true, DashboardDays: 7}, false, true, false},
		{"none", config.WidgetsConfig{DashboardDays: 7}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Widgets = tt.widgets

			a, err := Build(cfg, testLogger(),
				WithOTelOptions(infrastructure.WithoutGlobals()),
				WithRealtimeOptions(realtime.WithDialer(blockingDialer{})))
			require.NoError(t, err)
			t.Cleanup(func() { _ = a.OTel.Shutdown(context.Background()) })

			assert.Equal(t, tt.wantDashboard, a.Dashboard != nil)
			assert.Equal(t, tt.wantWorkers, a.Workers != nil)
			assert.Equal(t, tt.wantPreview, a.Preview != nil)
			assert.Equal(t, "127.0.0.1:8090", a.Server.Addr)
			assert.Len(t, a.startables(), countTrue(tt.wantDashboard, tt.wantWorkers, tt.wantPreview))
		})
	}
}

func TestBuildInvalidTelemetry(t *testing.T) {
	cfg := testConfig()
	cfg.Telemetry.TraceExporter = "jaeger"

	_, err := Build(cfg, testLogger(), WithOTelOptions(infrastructure.WithoutGlobals()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenTelemetry")
}

func TestStartServeStop(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	a, err := Build(testConfig(), testLogger(),
		WithListener(listener),
		WithOTelOptions(infrastructure.WithoutGlobals()),
		WithRealtimeOptions(realtime.WithDialer(blockingDialer{})))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))

	base := "http://" + listener.Addr().String()

	var health map[string]interface{}
	getJSON(t, base+"/api/health", &health)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "connecting", health["connection"])

	var conn realtime.ConnectionSnapshot
	getJSON(t, base+"/api/connection", &conn)
	assert.Equal(t, realtime.StateConnecting, conn.State)
	assert.Len(t, conn.Subscriptions, 3)

	resp, err := http.Get(base + "/api/widgets/workers")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "http_requests_total")

	require.NoError(t, a.Stop(ctx))
	assert.Equal(t, realtime.StateDisconnected, a.Manager.State())
	require.NoError(t, a.Wait(ctx))

	_, err = http.Get(base + "/api/health")
	assert.Error(t, err)
}

func getJSON(t *testing.T, url string, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func countTrue(vals ...bool) int {
	n := 0
	for _, v := range vals {
		if v {
			n++
		}
	}
	return n
}
