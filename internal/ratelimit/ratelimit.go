// Package ratelimit provides per-key token buckets and client IP extraction.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL is how long an unused key keeps its bucket.
const idleTTL = 10 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Keyed holds one limiter per key (an IP, a client id) allowing perMinute
// events per minute with a burst of the same size.
type Keyed struct {
	perMinute int
	now       func() time.Time

	mu        sync.Mutex
	entries   map[string]*entry
	lastPrune time.Time
}

// NewKeyed returns a limiter allowing perMinute events per key.
func NewKeyed(perMinute int) *Keyed {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &Keyed{
		perMinute: perMinute,
		now:       time.Now,
		entries:   make(map[string]*entry),
	}
}

// PerMinute returns the configured limit.
func (k *Keyed) PerMinute() int {
	return k.perMinute
}

// Allow consumes one event for key and reports whether it was permitted.
func (k *Keyed) Allow(key string) bool {
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	k.prune(now)
	e, ok := k.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(k.perMinute)), k.perMinute)}
		k.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// RetryAfter is how long a rejected key should wait for its next event.
func (k *Keyed) RetryAfter() time.Duration {
	return time.Minute / time.Duration(k.perMinute)
}

// Forget drops the bucket of key.
func (k *Keyed) Forget(key string) {
	k.mu.Lock()
	delete(k.entries, key)
	k.mu.Unlock()
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// prune drops idle buckets at most once per idleTTL. Callers hold k.mu.
func (k *Keyed) prune(now time.Time) {
	if now.Sub(k.lastPrune) < idleTTL {
		return
	}
	k.lastPrune = now
	for key, e := range k.entries {
		if now.Sub(e.lastSeen) > idleTTL {
			delete(k.entries, key)
		}
	}
}

// trustedProxies may set X-Forwarded-For and X-Real-IP.
var trustedProxies = mustParseCIDRs(
	"127.0.0.1/32",
	"::1/128",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

func isTrustedProxy(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range trustedProxies {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// ClientIP returns the caller's IP. Forwarding headers are honoured only
// when the connection comes from a loopback or private address.
func ClientIP(r *http.Request) string {
	connIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		connIP = r.RemoteAddr
	}
	if !isTrustedProxy(connIP) {
		return connIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return connIP
}
