package llmclient

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitHeaders represents normalized provider rate-limit signals.
type RateLimitHeaders struct {
	RetryAfterSeconds int

	LimitRequests     int
	LimitTokens       int
	RemainingRequests int
	RemainingTokens   int

	ResetRequests time.Duration
	ResetTokens   time.Duration
}

type RateLimitHeaderHandler func(headers RateLimitHeaders)

// RateLimitHeaderAwareClient is an optional interface for clients that expose
// parsed provider rate-limit headers.
type RateLimitHeaderAwareClient interface {
	SetRateLimitHeaderHandler(handler RateLimitHeaderHandler)
	LastRateLimitHeaders() (RateLimitHeaders, bool)
}

// RateLimitControlAdapter converts provider rate-limit signals to a wait duration.
type RateLimitControlAdapter interface {
	NextWait(headers RateLimitHeaders) time.Duration
}

// HeaderRateLimitControlAdapter waits for retry-after first, then for the
// reset of whichever budget is exhausted.
type HeaderRateLimitControlAdapter struct{}

func (HeaderRateLimitControlAdapter) NextWait(headers RateLimitHeaders) time.Duration {
	if headers.RetryAfterSeconds > 0 {
		return time.Duration(headers.RetryAfterSeconds) * time.Second
	}
	if headers.LimitTokens > 0 && headers.RemainingTokens == 0 && headers.ResetTokens > 0 {
		return headers.ResetTokens
	}
	if headers.LimitRequests > 0 && headers.RemainingRequests == 0 && headers.ResetRequests > 0 {
		return headers.ResetRequests
	}
	return 0
}

// parseRateLimitHeaders reads the x-ratelimit-* family shared by
// OpenAI-compatible providers (groq, openrouter).
func parseRateLimitHeaders(h http.Header) (RateLimitHeaders, bool) {
	out := RateLimitHeaders{}
	found := false

	readInt := func(key string, dst *int) {
		v := strings.TrimSpace(h.Get(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return
		}
		*dst = n
		found = true
	}
	readDur := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(h.Get(key))
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			// some providers send plain seconds
			secs, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil {
				return
			}
			d = time.Duration(secs * float64(time.Second))
		}
		*dst = d
		found = true
	}

	readInt("retry-after", &out.RetryAfterSeconds)
	readInt("x-ratelimit-limit-requests", &out.LimitRequests)
	readInt("x-ratelimit-limit-tokens", &out.LimitTokens)
	readInt("x-ratelimit-remaining-requests", &out.RemainingRequests)
	readInt("x-ratelimit-remaining-tokens", &out.RemainingTokens)
	readDur("x-ratelimit-reset-requests", &out.ResetRequests)
	readDur("x-ratelimit-reset-tokens", &out.ResetTokens)

	return out, found
}
