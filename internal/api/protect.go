package api

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	BotModeDryRun = "dry_run"
	BotModeLive   = "live"

	categorySearchEngine = "SEARCH_ENGINE"
	categoryMonitor      = "MONITOR"
	categoryPreview      = "PREVIEW"
	categoryAutomated    = "AUTOMATED"
)

// Known User-Agent fragments per bot category, lower case.
var botSignatures = []struct {
	category  string
	fragments []string
}{
	{categorySearchEngine, []string{"googlebot", "bingbot", "duckduckbot", "yandexbot", "baiduspider", "slurp", "applebot"}},
	{categoryMonitor, []string{"uptimerobot", "pingdom", "statuscake", "betteruptime", "site24x7", "datadog"}},
	{categoryPreview, []string{"facebookexternalhit", "twitterbot", "slackbot", "discordbot", "linkedinbot", "telegrambot", "whatsapp"}},
	{categoryAutomated, []string{"curl", "wget", "python-requests", "go-http-client", "scrapy", "httpclient", "headless", "bot", "crawler", "spider"}},
}

// classifyUserAgent returns the bot category of a User-Agent, or "" for a
// browser. An empty User-Agent counts as automated.
func classifyUserAgent(ua string) string {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return categoryAutomated
	}
	for _, sig := range botSignatures {
		for _, fragment := range sig.fragments {
			if strings.Contains(ua, fragment) {
				return sig.category
			}
		}
	}
	return ""
}

type ProtectOptions struct {
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	BotMode        string
	// BotAllow holds "CATEGORY:<name>" and "ip:<addr>" entries.
	BotAllow []string
}

// Protector guards the API with a per-IP token bucket and User-Agent based
// bot detection.
type Protector struct {
	limiters *rateLimiterStore
	botMode  string

	allowCategories map[string]bool
	allowIPs        map[string]bool

	decisions *prometheus.CounterVec
	logger    *slog.Logger
}

func NewProtector(opts ProtectOptions, reg prometheus.Registerer, logger *slog.Logger) *Protector {
	if opts.Capacity <= 0 {
		opts.Capacity = 10
	}
	if opts.RefillTokens <= 0 {
		opts.RefillTokens = 5
	}
	if opts.RefillInterval <= 0 {
		opts.RefillInterval = 10 * time.Second
	}

	p := &Protector{
		limiters:        newRateLimiterStore(rate.Limit(float64(opts.RefillTokens)/opts.RefillInterval.Seconds()), opts.Capacity),
		botMode:         strings.ToLower(opts.BotMode),
		allowCategories: make(map[string]bool),
		allowIPs:        make(map[string]bool),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subtracker",
			Subsystem: "api",
			Name:      "protect_decisions_total",
			Help:      "Requests denied or flagged by the protection middleware.",
		}, []string{"rule", "decision"}),
		logger: logger,
	}
	if reg != nil {
		reg.MustRegister(p.decisions)
	}

	for _, entry := range opts.BotAllow {
		kind, value, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok {
			continue
		}
		switch strings.ToLower(kind) {
		case "category":
			p.allowCategories[strings.ToUpper(value)] = true
		case "ip":
			p.allowIPs[value] = true
		}
	}

	return p
}

// Stop releases the limiter cleanup goroutine. It is safe to call twice.
func (p *Protector) Stop() {
	p.limiters.stop()
}

func (p *Protector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if category := classifyUserAgent(r.UserAgent()); category != "" && !p.allowed(ip, category) {
			if p.botMode == BotModeLive {
				p.decisions.WithLabelValues("bot", "deny").Inc()
				p.logger.Warn("Bot request denied", "ip", ip, "category", category, "user_agent", r.UserAgent())
				respondError(w, http.StatusForbidden, "bot detected")
				return
			}
			p.decisions.WithLabelValues("bot", "dry_run").Inc()
			p.logger.Info("Bot request detected", "ip", ip, "category", category, "user_agent", r.UserAgent())
		}

		reservation := p.limiters.get(ip).Reserve()
		if d := reservation.Delay(); d > 0 {
			reservation.Cancel()
			retryAfter := int(math.Ceil(d.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			p.decisions.WithLabelValues("rate_limit", "deny").Inc()
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (p *Protector) allowed(ip, category string) bool {
	return p.allowIPs[ip] || p.allowCategories[category]
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	r        rate.Limit
	b        int
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newRateLimiterStore(r rate.Limit, b int) *rateLimiterStore {
	s := &rateLimiterStore{
		limiters: make(map[string]*ipLimiter),
		r:        r,
		b:        b,
		stopCh:   make(chan struct{}),
	}
	go s.cleanup()
	return s
}

func (s *rateLimiterStore) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			for ip, l := range s.limiters {
				if time.Since(l.lastSeen) > 10*time.Minute {
					delete(s.limiters, ip)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

func (s *rateLimiterStore) get(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(s.r, s.b)}
		s.limiters[ip] = l
	}
	l.lastSeen = time.Now()
	return l.limiter
}

func (s *rateLimiterStore) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// clientIP keys the limiter on the connection peer. Proxy headers are only
// honoured when the router rewrites RemoteAddr from them.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
