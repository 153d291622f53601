package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shortkit/redirector/internal/cache"
	"github.com/shortkit/redirector/internal/domain"
	"github.com/shortkit/redirector/internal/geo"
	"github.com/shortkit/redirector/internal/metrics"
	"github.com/shortkit/redirector/internal/service"
	serviceMocks "github.com/shortkit/redirector/internal/service/mocks"
)

func newTestHandler(redirector *serviceMocks.RedirectService) *Handler {
	return NewHandler(redirector, geo.HeaderLocator{}, metrics.New())
}

func TestHandler_Redirect(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		resolution   service.Resolution
		wantStatus   int
		wantLocation string
		wantHeaders  map[string]string
	}{
		{
			name:         "resolved",
			path:         "/abc123",
			resolution:   service.Resolution{Status: service.StatusRedirect, URL: "https://example.com"},
			wantStatus:   http.StatusFound,
			wantLocation: "https://example.com",
		},
		{
			name:        "blocked",
			path:        "/abc123",
			resolution:  service.Resolution{Status: service.StatusBlocked, RetryAfter: 30 * time.Second},
			wantStatus:  http.StatusTooManyRequests,
			wantHeaders: map[string]string{"Retry-After": "30"},
		},
		{
			name:        "blocked with sub-second retry rounds up",
			path:        "/abc123",
			resolution:  service.Resolution{Status: service.StatusBlocked, RetryAfter: 100 * time.Millisecond},
			wantStatus:  http.StatusTooManyRequests,
			wantHeaders: map[string]string{"Retry-After": "1"},
		},
		{
			name:       "not found",
			path:       "/abc123",
			resolution: service.Resolution{Status: service.StatusNotFound},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "gone",
			path:       "/abc123",
			resolution: service.Resolution{Status: service.StatusGone},
			wantStatus: http.StatusGone,
		},
		{
			name:        "unavailable",
			path:        "/abc123",
			resolution:  service.Resolution{Status: service.StatusUnavailable},
			wantStatus:  http.StatusServiceUnavailable,
			wantHeaders: map[string]string{"Retry-After": "5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			redirector := &serviceMocks.RedirectService{}
			redirector.On("Redirect", mock.Anything, mock.AnythingOfType("service.Input")).
				Return(tt.resolution)

			handler := newTestHandler(redirector)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			handler.Redirect(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			}
			for key, value := range tt.wantHeaders {
				assert.Equal(t, value, rec.Header().Get(key))
			}
			redirector.AssertExpectations(t)
		})
	}
}

func TestHandler_RedirectExtractsRequestFields(t *testing.T) {
	redirector := &serviceMocks.RedirectService{}
	redirector.On("Redirect", mock.Anything, mock.MatchedBy(func(in service.Input) bool {
		return in.ShortCode == "abc123" &&
			in.ClientIP == "203.0.113.9" &&
			in.Country == "DE" &&
			in.Device == "mobile" &&
			in.Referer == "https://referrer.example.com/"
	})).Return(service.Resolution{Status: service.StatusRedirect, URL: "https://example.com"})

	handler := newTestHandler(redirector)

	req := httptest.NewRequest(http.MethodGet, "/abc123", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("CF-IPCountry", "DE")
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148")
	req.Header.Set("Referer", "https://referrer.example.com/")
	rec := httptest.NewRecorder()

	handler.Redirect(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	redirector.AssertExpectations(t)
}

func TestHandler_RedirectRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "root path", method: http.MethodGet, path: "/", wantStatus: http.StatusNotFound},
		{name: "short code too long", method: http.MethodGet, path: "/" + strings.Repeat("a", 65), wantStatus: http.StatusBadRequest},
		{name: "short code with slash", method: http.MethodGet, path: "/abc/def", wantStatus: http.StatusBadRequest},
		{name: "post not allowed", method: http.MethodPost, path: "/abc123", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			redirector := &serviceMocks.RedirectService{}
			handler := newTestHandler(redirector)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()

			handler.Redirect(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			redirector.AssertNotCalled(t, "Redirect", mock.Anything, mock.Anything)
		})
	}
}

func TestHandler_RefreshCache(t *testing.T) {
	t.Run("returns refreshed record", func(t *testing.T) {
		record := &domain.URLRecord{
			ShortCode:   "abc123",
			OriginalURL: "https://example.com",
			Active:      true,
			Clicks:      7,
		}

		redirector := &serviceMocks.RedirectService{}
		redirector.On("RefreshCache", mock.Anything, "abc123").Return(record, nil)

		handler := newTestHandler(redirector)

		req := httptest.NewRequest(http.MethodPost, "/urls/abc123/refresh-cache", nil)
		rec := httptest.NewRecorder()

		handler.RefreshCache(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got domain.URLRecord
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "abc123", got.ShortCode)
		assert.Equal(t, int64(7), got.Clicks)
	})

	t.Run("unknown short code", func(t *testing.T) {
		redirector := &serviceMocks.RedirectService{}
		redirector.On("RefreshCache", mock.Anything, "missing").Return(nil, domain.ErrNotFound)

		handler := newTestHandler(redirector)

		req := httptest.NewRequest(http.MethodPost, "/urls/missing/refresh-cache", nil)
		rec := httptest.NewRecorder()

		handler.RefreshCache(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("store unavailable", func(t *testing.T) {
		redirector := &serviceMocks.RedirectService{}
		redirector.On("RefreshCache", mock.Anything, "abc123").Return(nil, domain.ErrUpstreamUnavailable)

		handler := newTestHandler(redirector)

		req := httptest.NewRequest(http.MethodPost, "/urls/abc123/refresh-cache", nil)
		rec := httptest.NewRecorder()

		handler.RefreshCache(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("rejects bad paths and methods", func(t *testing.T) {
		tests := []struct {
			method     string
			path       string
			wantStatus int
		}{
			{http.MethodGet, "/urls/abc123/refresh-cache", http.StatusMethodNotAllowed},
			{http.MethodPost, "/urls/abc123", http.StatusBadRequest},
			{http.MethodPost, "/urls//refresh-cache", http.StatusBadRequest},
		}

		for _, tt := range tests {
			redirector := &serviceMocks.RedirectService{}
			handler := newTestHandler(redirector)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()

			handler.RefreshCache(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, "%s %s", tt.method, tt.path)
			redirector.AssertNotCalled(t, "RefreshCache", mock.Anything, mock.Anything)
		}
	})
}

func TestHandler_Stats(t *testing.T) {
	redirector := &serviceMocks.RedirectService{}
	redirector.On("Stats", mock.Anything).Return(cache.Stats{Hits: 10, Misses: 3, Size: 5}, nil)

	handler := newTestHandler(redirector)

	req := httptest.NewRequest(http.MethodGet, "/metrics/stats", nil)
	rec := httptest.NewRecorder()

	handler.Stats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got statsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, int64(10), got.Cache.Hits)
	assert.Equal(t, int64(3), got.Cache.Misses)
	assert.Equal(t, int64(5), got.Cache.Size)
}

func TestHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		health     map[string]bool
		wantStatus int
	}{
		{
			name:       "all up",
			health:     map[string]bool{"store": true, "cache": true, "broker": true},
			wantStatus: http.StatusOK,
		},
		{
			name:       "degraded cache and broker still healthy",
			health:     map[string]bool{"store": true, "cache": false, "broker": false},
			wantStatus: http.StatusOK,
		},
		{
			name:       "store down is unhealthy",
			health:     map[string]bool{"store": false, "cache": true, "broker": true},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			redirector := &serviceMocks.RedirectService{}
			redirector.On("Healthy", mock.Anything).Return(tt.health)

			handler := newTestHandler(redirector)

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()

			handler.Health(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)

			var got map[string]bool
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.health, got)
		})
	}
}

func TestDeviceType(t *testing.T) {
	tests := []struct {
		userAgent string
		want      string
	}{
		{"", "unknown"},
		{"Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0", "desktop"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148", "mobile"},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8)", "mobile"},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", "tablet"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, deviceType(tt.userAgent), tt.userAgent)
	}
}
