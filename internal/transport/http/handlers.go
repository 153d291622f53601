package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/shortkit/redirector/internal/cache"
	"github.com/shortkit/redirector/internal/domain"
	"github.com/shortkit/redirector/internal/geo"
	"github.com/shortkit/redirector/internal/metrics"
	"github.com/shortkit/redirector/internal/service"
)

var shortCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Handler holds the HTTP handlers for the redirect service
type Handler struct {
	redirector service.RedirectService
	locator    geo.Locator
	metrics    *metrics.Metrics
}

// NewHandler creates a new HTTP handler
func NewHandler(redirector service.RedirectService, locator geo.Locator, m *metrics.Metrics) *Handler {
	return &Handler{
		redirector: redirector,
		locator:    locator,
		metrics:    m,
	}
}

// Redirect handles GET /{shortCode}
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	shortCode := strings.TrimPrefix(r.URL.Path, "/")
	if shortCode == "" {
		http.NotFound(w, r)
		return
	}
	if !shortCodePattern.MatchString(shortCode) {
		h.metrics.IncRequests()
		h.metrics.IncErrors("invalid")
		http.Error(w, "Invalid short code", http.StatusBadRequest)
		return
	}

	requestID := RequestID(r.Context())
	in := service.Input{
		ShortCode: shortCode,
		ClientIP:  geo.ClientIP(r),
		UserAgent: r.UserAgent(),
		Accept:    r.Header.Get("Accept"),
		Referer:   r.Referer(),
		Country:   h.locator.Country(r),
		Device:    deviceType(r.UserAgent()),
		RequestID: requestID,
	}

	resolution := h.redirector.Redirect(r.Context(), in)

	switch resolution.Status {
	case service.StatusRedirect:
		http.Redirect(w, r, resolution.URL, http.StatusFound)
	case service.StatusBlocked:
		seconds := int(resolution.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		http.Error(w, "Too many requests, retry after "+strconv.Itoa(seconds)+"s", http.StatusTooManyRequests)
	case service.StatusNotFound:
		http.Error(w, "Link not found", http.StatusNotFound)
	case service.StatusGone:
		http.Error(w, "Link expired or disabled", http.StatusGone)
	case service.StatusUnavailable:
		w.Header().Set("Retry-After", "5")
		http.Error(w, "Temporarily unavailable, safe to retry", http.StatusServiceUnavailable)
	default:
		log.Printf("[ERROR] unexpected resolution status %d for '%s' (request %s)", resolution.Status, shortCode, requestID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// RefreshCache handles POST /urls/{shortCode}/refresh-cache
func (h *Handler) RefreshCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/urls/")
	shortCode, ok := strings.CutSuffix(rest, "/refresh-cache")
	if !ok || !shortCodePattern.MatchString(shortCode) {
		http.Error(w, "Invalid short code", http.StatusBadRequest)
		return
	}

	record, err := h.redirector.RefreshCache(r.Context(), shortCode)
	if err != nil {
		log.Printf("[ERROR] cache refresh failed for '%s' (request %s): %v", shortCode, RequestID(r.Context()), err)
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Link not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Temporarily unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(record); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// statsResponse is the JSON body of the stats endpoint
type statsResponse struct {
	Cache    cache.Stats      `json:"cache"`
	Counters metrics.Snapshot `json:"counters"`
}

// Stats handles GET /metrics/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cacheStats, err := h.redirector.Stats(r.Context())
	if err != nil {
		// Counters still have value when the cache backend is down
		log.Printf("[ERROR] failed to read cache stats: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(statsResponse{
		Cache:    cacheStats,
		Counters: h.metrics.Snapshot(),
	}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// Health handles GET /healthz. Only a down store makes the service unhealthy;
// cache and broker outages are served degraded.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := h.redirector.Healthy(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if !health["store"] {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// deviceType buckets the user agent into the coarse categories the analytics
// events carry
func deviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return "unknown"
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone"):
		return "mobile"
	default:
		return "desktop"
	}
}
