package geo

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// Locator resolves the caller's country code from a request
type Locator interface {
	// Country returns an ISO 3166-1 alpha-2 code, or "" when unknown
	Country(r *http.Request) string
	Close() error
}

// HeaderLocator trusts country headers set by an upstream proxy or CDN
type HeaderLocator struct{}

// Country returns the first trusted country header present
func (HeaderLocator) Country(r *http.Request) string {
	if code := r.Header.Get("CF-IPCountry"); code != "" && code != "XX" {
		return code
	}
	return r.Header.Get("X-Country-Code")
}

// Close is a no-op
func (HeaderLocator) Close() error {
	return nil
}

// MaxMindLocator resolves the client IP against a GeoLite2/GeoIP2 database,
// falling back to trusted headers when the IP is unknown to the database.
type MaxMindLocator struct {
	reader   *geoip2.Reader
	fallback HeaderLocator
}

// OpenMaxMind opens a MaxMind database file
func OpenMaxMind(path string) (*MaxMindLocator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geo database: %w", err)
	}
	return &MaxMindLocator{reader: reader}, nil
}

// Country resolves the client IP to a country code
func (l *MaxMindLocator) Country(r *http.Request) string {
	ip := net.ParseIP(ClientIP(r))
	if ip != nil {
		record, err := l.reader.Country(ip)
		if err == nil && record.Country.IsoCode != "" {
			return record.Country.IsoCode
		}
	}
	return l.fallback.Country(r)
}

// Close closes the database reader
func (l *MaxMindLocator) Close() error {
	return l.reader.Close()
}

// ClientIP extracts the originating client address, preferring the first
// X-Forwarded-For hop over the socket peer.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
