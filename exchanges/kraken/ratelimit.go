package kraken

import (
	"time"

	"github.com/jhonabreul/krakenbrokerage/exchanges/request"
)

// Kraken's published REST limits: public endpoints allow one call per
// second; the private counter decays at roughly one call per two seconds
// for a starter tier account.
const (
	publicRateLimit request.EndpointLimit = iota
	privateRateLimit
)

// GetRateLimits returns the Kraken REST rate limits
func GetRateLimits() request.RateLimitDefinitions {
	return request.RateLimitDefinitions{
		publicRateLimit:  request.NewRateLimit(time.Second, 1),
		privateRateLimit: request.NewRateLimit(2*time.Second, 1),
	}
}
