package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SALES_ACCOUNT_ID", "41")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	require.Equal(t, int64(41), cfg.SalesAccountID)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.Equal(t, "15 2 * * *", cfg.ReconcileCron)
	require.False(t, cfg.IsProduction())
}

func TestConfigValidate(t *testing.T) {
	valid := Config{StoreDriver: StoreDriverMemory, RateLimitPerMinute: 1}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Config){
		"driver":     func(c *Config) { c.StoreDriver = "sqlite" },
		"account":    func(c *Config) { c.PurchaseAccountID = -1 },
		"rate limit": func(c *Config) { c.RateLimitPerMinute = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, &Config{AppEnv: "production", LogFormat: "json"}).Debug("hidden")
	require.Zero(t, buf.Len())

	newLogger(&buf, &Config{AppEnv: "production", LogFormat: "json"}).Info("settled", slog.Int64("invoice_id", 7))
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "production", line["env"])
	require.Equal(t, float64(7), line["invoice_id"])

	buf.Reset()
	newLogger(&buf, &Config{AppEnv: "development"}).Debug("visible")
	require.Contains(t, buf.String(), "msg=visible")
}

func TestOpenStoresMemory(t *testing.T) {
	stores, err := OpenStores(context.Background(), &Config{StoreDriver: StoreDriverMemory})
	require.NoError(t, err)
	defer stores.Close()
	require.NoError(t, stores.Ping(context.Background()))
	require.NotNil(t, stores.Settlement)

	_, err = OpenStores(context.Background(), &Config{StoreDriver: "sqlite"})
	require.Error(t, err)
}

func TestRouterHealthzUsesReadiness(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ready := errors.New("pool closed")
	router := NewRouter(RouterParams{
		Logger:  logger,
		Config:  &Config{AppEnv: "test", RateLimitPerMinute: 100},
		Metrics: observability.NewMetrics(),
		Ready:   func(context.Context) error { return ready },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rec.Header().Get("X-Frame-Options"))

	ready = nil
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settlements/1", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
