package domain

import (
	"encoding/json"
	"time"
)

// Event names double as broker subjects.
const (
	EventURLCreated       = "urls.created"
	EventRedirectOccurred = "urls.redirected"
)

// Event is the immutable envelope exchanged through the event gateway.
type Event struct {
	Name      string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
}

// URLCreatedPayload carries enough of a URLRecord to make the short code
// resolvable without a follow-up read.
type URLCreatedPayload struct {
	ShortCode   string            `json:"short_code"`
	OriginalURL string            `json:"original_url"`
	UserID      string            `json:"user_id,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Record builds the authoritative record implied by a creation event. Building
// it the same way on every delivery keeps the consumer idempotent.
func (p *URLCreatedPayload) Record(at time.Time) *URLRecord {
	return &URLRecord{
		ShortCode:   p.ShortCode,
		OriginalURL: p.OriginalURL,
		OwnerID:     p.UserID,
		Active:      true,
		ExpiresAt:   p.ExpiresAt,
		CreatedAt:   at,
		Metadata:    p.Metadata,
	}
}

// RedirectOccurredPayload describes one successful redirect for downstream
// analytics.
type RedirectOccurredPayload struct {
	ShortCode   string    `json:"short_code"`
	Timestamp   time.Time `json:"timestamp"`
	CountryCode string    `json:"country_code,omitempty"`
	DeviceType  string    `json:"device_type,omitempty"`
	Referer     string    `json:"referer,omitempty"`
}
