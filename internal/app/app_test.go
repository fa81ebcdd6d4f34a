package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/observability"
	"github.com/odyssey-erp/fulfillment/internal/sequence"
	"github.com/odyssey-erp/fulfillment/internal/shared"
	_ "github.com/odyssey-erp/fulfillment/internal/testing/guard"
)

type fixedPreviewer struct{}

func (fixedPreviewer) Preview(ctx context.Context, kind sequence.Kind, at time.Time) (string, error) {
	return sequence.Format(kind, at, 1), nil
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.EqualValues(t, 5000, cfg.ShippingVolumetricDivisor)
	require.Equal(t, 5*time.Minute, cfg.ViewCacheTTL)
	require.False(t, cfg.IsProduction())

	rate, err := cfg.ShippingRate()
	require.NoError(t, err)
	require.Equal(t, "10000", rate.String())
}

func TestLoadConfigRejectsInvalidShipping(t *testing.T) {
	t.Setenv("SHIPPING_VOLUMETRIC_DIVISOR", "0")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("SHIPPING_VOLUMETRIC_DIVISOR", "6000")
	t.Setenv("SHIPPING_RATE_PER_KG", "abc")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "SHIPPING_RATE_PER_KG")

	t.Setenv("SHIPPING_RATE_PER_KG", "-1")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("SHIPPING_RATE_PER_KG", "12500.50")
	t.Setenv("APP_ENV", "production")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
}

func TestActorMiddleware(t *testing.T) {
	var seen int64
	h := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActorHeader, "42")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.EqualValues(t, 42, seen)

	seen = -1
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Zero(t, seen)

	for _, bad := range []string{"abc", "-3", "0"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(ActorHeader, bad)
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code, bad)
	}
}

func TestRouterMountsRoutes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{
		Logger:          logger,
		Config:          &Config{AppRequestTimeout: time.Second, RateLimitPerMinute: 100},
		SequenceHandler: sequence.NewHandler(logger, fixedPreviewer{}),
		Metrics:         metrics,
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sequences/invoice/preview", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "INV-")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "fulfillment_http_requests_total")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/backorders", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGuardEnablesTestMode(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())
}
