package guard

import (
	"context"
	"fmt"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Decision is the outcome of the abuse guard for one request
type Decision struct {
	Allowed    bool
	Bot        bool
	Signals    []string
	RetryAfter time.Duration
}

// Config holds the per-tier request rates
type Config struct {
	// HumanLimit is the window limit for requests classified as human
	HumanLimit int64
	// BotLimit is the strict window limit for classified bots
	BotLimit int64
	// Window is the rate limiting window for both tiers
	Window time.Duration
}

// Guard combines bot classification with two-tier rate limiting. It runs
// before any cache or store access; limiter state lives in process memory so
// a rejection never costs a lookup.
type Guard struct {
	human  *limiter.Limiter
	strict *limiter.Limiter
}

// New creates a guard with in-memory limiter stores
func New(cfg Config) *Guard {
	return &Guard{
		human: limiter.New(memory.NewStore(), limiter.Rate{
			Period: cfg.Window,
			Limit:  cfg.HumanLimit,
		}),
		strict: limiter.New(memory.NewStore(), limiter.Rate{
			Period: cfg.Window,
			Limit:  cfg.BotLimit,
		}),
	}
}

// Check classifies the request and applies the matching rate tier, keyed by
// client IP and short code together so one hot link cannot exhaust a client's
// budget across all links.
func (g *Guard) Check(ctx context.Context, clientIP, shortCode, userAgent, accept string) (Decision, error) {
	classification := Classify(userAgent, accept)

	tier := g.human
	if classification.Bot {
		tier = g.strict
	}

	lctx, err := tier.Get(ctx, clientIP+":"+shortCode)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	decision := Decision{
		Allowed: !lctx.Reached,
		Bot:     classification.Bot,
		Signals: classification.Signals,
	}

	if lctx.Reached {
		retryAfter := time.Until(time.Unix(lctx.Reset, 0))
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		decision.RetryAfter = retryAfter
	}

	return decision, nil
}
