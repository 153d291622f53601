package guard

import (
	"strings"
)

// Classification is the result of bot heuristics over request headers
type Classification struct {
	Bot     bool
	Signals []string
}

// crawler and automation user-agent fragments, matched case-insensitively
var botSignatures = []string{
	"bot",
	"crawler",
	"spider",
	"scraper",
	"curl",
	"wget",
	"python-requests",
	"go-http-client",
	"java/",
	"okhttp",
	"headlesschrome",
	"phantomjs",
	"facebookexternalhit",
	"slackbot",
	"twitterbot",
	"whatsapp",
}

// Classify applies header heuristics to decide whether a request looks
// automated. Pure function of its inputs, no I/O.
func Classify(userAgent, accept string) Classification {
	var signals []string

	if userAgent == "" {
		signals = append(signals, "empty-user-agent")
	} else {
		ua := strings.ToLower(userAgent)
		for _, signature := range botSignatures {
			if strings.Contains(ua, signature) {
				signals = append(signals, "user-agent:"+signature)
				break
			}
		}
	}

	// Browsers always send an Accept header on navigation
	if accept == "" {
		signals = append(signals, "missing-accept")
	}

	return Classification{
		Bot:     len(signals) > 0,
		Signals: signals,
	}
}
