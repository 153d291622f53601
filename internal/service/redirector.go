package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shortkit/redirector/internal/cache"
	"github.com/shortkit/redirector/internal/domain"
	"github.com/shortkit/redirector/internal/events"
	"github.com/shortkit/redirector/internal/geo"
	"github.com/shortkit/redirector/internal/guard"
	"github.com/shortkit/redirector/internal/metrics"
	"github.com/shortkit/redirector/internal/store"
)

// Status is the terminal state of one redirect request
type Status int

const (
	// StatusRedirect means the request resolved and a 3xx should be emitted
	StatusRedirect Status = iota
	// StatusBlocked means the abuse guard rejected the request
	StatusBlocked
	// StatusNotFound means no record exists for the short code
	StatusNotFound
	// StatusGone means the record is disabled or expired
	StatusGone
	// StatusUnavailable means the authoritative store could not be reached
	StatusUnavailable
)

// Input carries the request fields the orchestrator needs, extracted by the
// transport layer so this package stays free of net/http.
type Input struct {
	ShortCode string
	ClientIP  string
	UserAgent string
	Accept    string
	Referer   string
	Country   string
	Device    string
	RequestID string
}

// Resolution is the outcome of one redirect request
type Resolution struct {
	Status     Status
	URL        string
	RetryAfter time.Duration
}

// Config holds orchestrator tunables
type Config struct {
	// CacheTTL bounds staleness for cache entries
	CacheTTL time.Duration
	// VisitorTTL is the unique-visitor marker lifetime
	VisitorTTL time.Duration
	// StoreTimeout bounds every store call
	StoreTimeout time.Duration
	// PublishTimeout bounds every broker publish
	PublishTimeout time.Duration
	// WarmCount is how many top records to pre-warm at startup
	WarmCount int
	// Workers is the background bookkeeping worker count
	Workers int
	// QueueSize bounds the background task queue; a full queue drops tasks
	QueueSize int
}

func (c Config) withDefaults() Config {
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.VisitorTTL <= 0 {
		c.VisitorTTL = 24 * time.Hour
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 2 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 2 * time.Second
	}
	if c.WarmCount <= 0 {
		c.WarmCount = 100
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	return c
}

// accessTask is the post-response bookkeeping for one successful redirect
type accessTask struct {
	shortCode string
	clientIP  string
	userAgent string
	country   string
	device    string
	referer   string
	requestID string
	at        time.Time
}

// flight tracks one in-progress store read so concurrent misses for the same
// hot short code share a single lookup
type flight struct {
	done   chan struct{}
	record *domain.URLRecord
	err    error
}

// Redirector is the request-handling state machine: abuse guard, cache-aside
// resolution against the store, geo override, and detached post-response
// bookkeeping over a bounded queue.
type Redirector struct {
	store   store.URLStore
	cache   cache.Cache
	guard   *guard.Guard
	rules   *geo.RuleTable
	gateway events.Gateway
	metrics *metrics.Metrics
	cfg     Config

	tasks   chan accessTask
	wg      sync.WaitGroup
	closing atomic.Bool
	closeMu sync.RWMutex

	flightMu sync.Mutex
	flights  map[string]*flight
}

// New creates a redirector. Call Start before serving and Close on shutdown.
func New(urlStore store.URLStore, urlCache cache.Cache, abuseGuard *guard.Guard,
	rules *geo.RuleTable, gateway events.Gateway, m *metrics.Metrics, cfg Config) *Redirector {
	cfg = cfg.withDefaults()
	return &Redirector{
		store:   urlStore,
		cache:   urlCache,
		guard:   abuseGuard,
		rules:   rules,
		gateway: gateway,
		metrics: m,
		cfg:     cfg,
		tasks:   make(chan accessTask, cfg.QueueSize),
		flights: make(map[string]*flight),
	}
}

// Start connects the event gateway, registers the creation-event consumer,
// pre-warms the cache, and launches the bookkeeping workers.
func (r *Redirector) Start(ctx context.Context) error {
	if err := r.gateway.Connect(ctx); err != nil {
		// The redirect path works without a broker; publishes are dropped
		// and counted while it stays unreachable
		log.Printf("[ERROR] broker connect failed, continuing without events: %v", err)
	} else if err := r.gateway.Subscribe(domain.EventURLCreated, r.HandleURLCreated); err != nil {
		log.Printf("[ERROR] failed to subscribe to %s: %v", domain.EventURLCreated, err)
	}

	if err := r.WarmCache(ctx); err != nil {
		log.Printf("[ERROR] cache pre-warm failed: %v", err)
	}

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}

	return nil
}

// Redirect runs the state machine for one request:
// received -> guarded -> resolved -> geo-adjusted -> responded.
func (r *Redirector) Redirect(ctx context.Context, in Input) Resolution {
	r.metrics.IncRequests()
	now := time.Now()

	// guarded
	decision, err := r.guard.Check(ctx, in.ClientIP, in.ShortCode, in.UserAgent, in.Accept)
	if err != nil {
		// A broken limiter must not take down the redirect path
		log.Printf("[ERROR] guard check failed for '%s' (request %s): %v", in.ShortCode, in.RequestID, err)
	} else if !decision.Allowed {
		r.metrics.IncErrors("blocked")
		return Resolution{Status: StatusBlocked, RetryAfter: decision.RetryAfter}
	}

	// resolved: cache first, store on miss
	var destination string
	if entry, hit := r.cache.Get(ctx, in.ShortCode); hit {
		if !entry.Redirectable(now) {
			r.invalidate(ctx, in.ShortCode, in.RequestID)
			r.metrics.IncErrors("gone")
			return Resolution{Status: StatusGone}
		}
		destination = entry.OriginalURL
	} else {
		record, err := r.lookup(ctx, in.ShortCode)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				r.metrics.IncErrors("not_found")
				return Resolution{Status: StatusNotFound}
			}
			log.Printf("[ERROR] store read failed for '%s' (request %s): %v", in.ShortCode, in.RequestID, err)
			r.metrics.IncErrors("unavailable")
			return Resolution{Status: StatusUnavailable}
		}

		if !record.Redirectable(now) {
			// A stale positive entry may still exist from before the change
			r.invalidate(ctx, in.ShortCode, in.RequestID)
			r.metrics.IncErrors("gone")
			return Resolution{Status: StatusGone}
		}

		if err := r.cache.Put(ctx, record, r.cfg.CacheTTL); err != nil {
			log.Printf("[ERROR] cache put failed for '%s' (request %s): %v", in.ShortCode, in.RequestID, err)
		}
		destination = record.OriginalURL
	}

	// geo-adjusted
	destination = r.rules.Resolve(in.ShortCode, in.Country, destination)

	// responded: bookkeeping happens off the response path
	r.enqueue(accessTask{
		shortCode: in.ShortCode,
		clientIP:  in.ClientIP,
		userAgent: in.UserAgent,
		country:   in.Country,
		device:    in.Device,
		referer:   in.Referer,
		requestID: in.RequestID,
		at:        now,
	})

	r.metrics.IncRedirects()
	return Resolution{Status: StatusRedirect, URL: destination}
}

// lookup reads the store with a bounded timeout, coalescing concurrent reads
// for the same short code into one store call.
func (r *Redirector) lookup(ctx context.Context, shortCode string) (*domain.URLRecord, error) {
	r.flightMu.Lock()
	if f, exists := r.flights[shortCode]; exists {
		r.flightMu.Unlock()
		select {
		case <-f.done:
			return f.record, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f := &flight{done: make(chan struct{})}
	r.flights[shortCode] = f
	r.flightMu.Unlock()

	storeCtx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	f.record, f.err = r.store.GetURL(storeCtx, shortCode)
	cancel()

	r.flightMu.Lock()
	delete(r.flights, shortCode)
	r.flightMu.Unlock()
	close(f.done)

	return f.record, f.err
}

// invalidate removes a cache entry, best-effort
func (r *Redirector) invalidate(ctx context.Context, shortCode, requestID string) {
	if err := r.cache.Invalidate(ctx, shortCode); err != nil {
		log.Printf("[ERROR] cache invalidate failed for '%s' (request %s): %v", shortCode, requestID, err)
	}
}

// enqueue hands a task to the background workers without blocking; when the
// queue is full the task is dropped and counted. The read lock keeps the
// closing check and the send atomic with respect to Close closing the channel.
func (r *Redirector) enqueue(task accessTask) {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()

	if r.closing.Load() {
		return
	}
	select {
	case r.tasks <- task:
	default:
		r.metrics.IncTasksDropped()
		log.Printf("[ERROR] task queue full, dropping bookkeeping for '%s'", task.shortCode)
	}
}

// worker drains the task queue until Close
func (r *Redirector) worker() {
	defer r.wg.Done()
	for task := range r.tasks {
		r.processAccess(task)
	}
}

// processAccess performs the detached side effects of one redirect: the
// unique-visitor check, the counter update, and the analytics event. Each is
// independently fallible and bounded; none can reach back into the response.
func (r *Redirector) processAccess(task accessTask) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.StoreTimeout)
	defer cancel()

	uniqueVisitor := false
	first, err := r.cache.FirstSeen(ctx, task.shortCode, visitorHash(task.clientIP, task.userAgent), r.cfg.VisitorTTL)
	if err != nil {
		log.Printf("[ERROR] visitor marker failed for '%s': %v", task.shortCode, err)
	} else {
		uniqueVisitor = first
	}

	if err := r.store.RecordAccess(ctx, task.shortCode, task.at, uniqueVisitor); err != nil {
		log.Printf("[ERROR] failed to record access for '%s' (request %s): %v", task.shortCode, task.requestID, err)
	}

	publishCtx, cancelPublish := context.WithTimeout(context.Background(), r.cfg.PublishTimeout)
	defer cancelPublish()

	payload := domain.RedirectOccurredPayload{
		ShortCode:   task.shortCode,
		Timestamp:   task.at.UTC(),
		CountryCode: task.country,
		DeviceType:  task.device,
		Referer:     task.referer,
	}
	if err := r.gateway.Publish(publishCtx, domain.EventRedirectOccurred, payload); err != nil {
		r.metrics.IncEventsDropped()
		log.Printf("[ERROR] failed to publish redirect event for '%s' (request %s): %v", task.shortCode, task.requestID, err)
		return
	}
	r.metrics.IncEventsPublished()
}

// HandleURLCreated consumes a creation event: upsert the store, then seed the
// cache. Both writes carry the same authoritative fields on every delivery,
// so replays converge on the same state.
func (r *Redirector) HandleURLCreated(ctx context.Context, event *domain.Event) error {
	r.metrics.IncEventsConsumed()

	var payload domain.URLCreatedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		// Malformed payloads can never succeed; drop instead of redelivering
		log.Printf("[ERROR] dropping malformed %s payload: %v", event.Name, err)
		return nil
	}
	if payload.ShortCode == "" || payload.OriginalURL == "" {
		log.Printf("[ERROR] dropping incomplete %s payload for '%s'", event.Name, payload.ShortCode)
		return nil
	}

	createdAt := event.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	record := payload.Record(createdAt)

	storeCtx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	if err := r.store.UpsertURL(storeCtx, record); err != nil {
		// Store failure is retryable; the broker will redeliver
		return fmt.Errorf("failed to upsert '%s': %w", payload.ShortCode, err)
	}

	if err := r.cache.Put(ctx, record, r.cfg.CacheTTL); err != nil {
		log.Printf("[ERROR] cache put failed for created '%s': %v", payload.ShortCode, err)
	}

	return nil
}

// RefreshCache re-reads the record from the store and repopulates or clears
// the cache entry accordingly.
func (r *Redirector) RefreshCache(ctx context.Context, shortCode string) (*domain.URLRecord, error) {
	storeCtx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	record, err := r.store.GetURL(storeCtx, shortCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.invalidate(ctx, shortCode, "")
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	if record.Redirectable(time.Now()) {
		if err := r.cache.Put(ctx, record, r.cfg.CacheTTL); err != nil {
			log.Printf("[ERROR] cache refresh put failed for '%s': %v", shortCode, err)
		}
	} else {
		r.invalidate(ctx, shortCode, "")
	}

	return record, nil
}

// WarmCache bulk-loads the most-clicked active records so a restart does not
// start from an all-miss cache.
func (r *Redirector) WarmCache(ctx context.Context) error {
	storeCtx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	records, err := r.store.TopURLs(storeCtx, r.cfg.WarmCount)
	if err != nil {
		return fmt.Errorf("failed to load top URLs: %w", err)
	}

	now := time.Now()
	warm := records[:0]
	for _, record := range records {
		if record.Redirectable(now) {
			warm = append(warm, record)
		}
	}
	if len(warm) == 0 {
		return nil
	}

	if err := r.cache.PreWarm(ctx, warm, r.cfg.CacheTTL); err != nil {
		return fmt.Errorf("failed to pre-warm cache: %w", err)
	}

	log.Printf("Pre-warmed cache with %d entries", len(warm))
	return nil
}

// Stats returns the cache counters for the stats endpoint
func (r *Redirector) Stats(ctx context.Context) (cache.Stats, error) {
	return r.cache.Stats(ctx)
}

// Healthy reports collaborator reachability for the health endpoint
func (r *Redirector) Healthy(ctx context.Context) map[string]bool {
	storeCtx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	return map[string]bool{
		"store":  r.store.Ping(storeCtx) == nil,
		"cache":  r.cache.Ping(ctx) == nil,
		"broker": r.gateway.Connected(),
	}
}

// Close drains the background workers, then closes the gateway, cache, and
// store in that order.
func (r *Redirector) Close() error {
	if r.closing.Swap(true) {
		return nil
	}
	// The write lock waits out any enqueue that read closing as false
	r.closeMu.Lock()
	close(r.tasks)
	r.closeMu.Unlock()
	r.wg.Wait()

	if err := r.gateway.Close(); err != nil {
		return fmt.Errorf("failed to close gateway: %w", err)
	}
	if err := r.cache.Close(); err != nil {
		return fmt.Errorf("failed to close cache: %w", err)
	}
	if err := r.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

// visitorHash derives a stable, non-reversible visitor key from the client
// address and user agent
func visitorHash(clientIP, userAgent string) string {
	h := fnv.New64a()
	h.Write([]byte(clientIP))
	h.Write([]byte{'|'})
	h.Write([]byte(userAgent))
	return fmt.Sprintf("%016x", h.Sum64())
}
