// Package fetch is the rate-limited, policy-aware HTTP retrieval layer.
// Every page and external document in a run comes through here: per-host
// token buckets, user-agent rotation, robots.txt, anti-bot block detection,
// and retry with exponential backoff. Failures are always typed (*Error);
// nothing is dropped silently.
package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/compintel/internal/model"
	"github.com/sells-group/compintel/internal/quota"
	"github.com/sells-group/compintel/internal/resilience"
)

// Policy controls how the fetcher treats each host.
type Policy struct {
	// PerHostRate is the sustained request rate per host (req/sec).
	PerHostRate float64
	// Burst is the token bucket depth per host.
	Burst int
	// PerHostBudget caps total requests per host for the life of the
	// fetcher (one run). 0 means unlimited.
	PerHostBudget int64
	// MaxRetries is the total attempt count for transient failures.
	MaxRetries int
	// Timeout bounds a single request.
	Timeout time.Duration
	// WaitTimeout bounds how long a call may block on a rate-limit token
	// before failing with a rate_limit error. 0 means wait as long as the
	// caller's context allows.
	WaitTimeout time.Duration
	// UserAgents is the rotation set. The first entry identifies us to
	// robots.txt.
	UserAgents []string
	// RespectRobots enables robots.txt checks before every request.
	RespectRobots bool
	// Allow is the injected access-policy hook, consulted before every
	// fetch. nil allows everything.
	Allow func(rawURL string) bool
	// MaxBodyBytes caps the response body read. Default 1 MiB.
	MaxBodyBytes int64
}

// DefaultPolicy returns the fetch policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		PerHostRate:   2,
		Burst:         4,
		MaxRetries:    3,
		Timeout:       15 * time.Second,
		WaitTimeout:   30 * time.Second,
		UserAgents:    []string{"Mozilla/5.0 (compatible; CompIntelBot/1.0)"},
		RespectRobots: true,
		MaxBodyBytes:  1 << 20,
	}
}

// Fetcher retrieves URLs under a Policy. Safe for concurrent use; the
// per-host limiters, robots cache, and blocked-host set are shared by all
// callers within a run.
type Fetcher struct {
	client *http.Client
	policy Policy
	budget *quota.Counter
	uaIdx  atomic.Uint32

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	robots   map[string]*robotsRules
	blocked  map[string]BlockType
}

// New creates a Fetcher with the given policy. Zero-valued policy fields
// fall back to DefaultPolicy values.
func New(policy Policy) *Fetcher {
	def := DefaultPolicy()
	if policy.PerHostRate <= 0 {
		policy.PerHostRate = def.PerHostRate
	}
	if policy.Burst <= 0 {
		policy.Burst = def.Burst
	}
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = def.MaxRetries
	}
	if policy.Timeout <= 0 {
		policy.Timeout = def.Timeout
	}
	if len(policy.UserAgents) == 0 {
		policy.UserAgents = def.UserAgents
	}
	if policy.MaxBodyBytes <= 0 {
		policy.MaxBodyBytes = def.MaxBodyBytes
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: policy.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
			},
		},
		policy:   policy,
		budget:   quota.NewCounter(),
		limiters: make(map[string]*rate.Limiter),
		robots:   make(map[string]*robotsRules),
		blocked:  make(map[string]BlockType),
	}
}

// Fetch retrieves the URL and returns it as a RawDocument. The error, when
// non-nil, is always a *Error carrying the failure kind.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*model.RawDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, &Error{URL: rawURL, Kind: KindNetwork, Err: eris.Wrap(err, "parse url")}
	}
	host := u.Host

	if f.policy.Allow != nil && !f.policy.Allow(rawURL) {
		return nil, &Error{URL: rawURL, Kind: KindPolicy, Err: eris.New("access policy refused url")}
	}

	if bt, isBlocked := f.hostBlocked(host); isBlocked {
		return nil, &Error{URL: rawURL, Kind: KindBlocked, Err: eris.Errorf("host blocked earlier in run (%s)", bt)}
	}

	if f.policy.RespectRobots {
		allowed, robotsErr := f.robotsAllow(ctx, u)
		if robotsErr != nil {
			return nil, robotsErr
		}
		if !allowed {
			f.markBlocked(host, BlockNone)
			return nil, &Error{URL: rawURL, Kind: KindBlocked, Err: eris.New("robots.txt disallow")}
		}
	}

	if f.policy.PerHostBudget > 0 && !f.budget.TryAcquire(host, f.policy.PerHostBudget) {
		return nil, &Error{URL: rawURL, Kind: KindRateLimit, Err: eris.Errorf("per-host budget of %d exhausted", f.policy.PerHostBudget)}
	}

	if err := f.waitForToken(ctx, host); err != nil {
		return nil, &Error{URL: rawURL, Kind: KindRateLimit, Err: err}
	}

	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = f.policy.MaxRetries
	cfg.OnRetry = resilience.RetryLogger("fetch", host)

	doc, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*model.RawDocument, error) {
		return f.attempt(ctx, rawURL)
	})
	if err == nil {
		return doc, nil
	}

	// A typed error from attempt() passes through; transient errors that
	// exhausted retries collapse to a network failure, unless the final
	// status was a block signal (403/429) in which case the host is done
	// for this run.
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Kind == KindBlocked {
			f.markBlocked(host, BlockNone)
		}
		return nil, fe
	}
	var te *resilience.TransientError
	if errors.As(err, &te) && (te.StatusCode == http.StatusForbidden || te.StatusCode == http.StatusTooManyRequests) {
		f.markBlocked(host, BlockNone)
		return nil, &Error{URL: rawURL, Kind: KindBlocked, Status: te.StatusCode, Err: err}
	}
	return nil, &Error{URL: rawURL, Kind: KindNetwork, Err: err}
}

// attempt performs one HTTP round trip and classifies the outcome.
func (f *Fetcher) attempt(ctx context.Context, rawURL string) (*model.RawDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.nextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.policy.MaxBodyBytes))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "read body"), resp.StatusCode)
	}

	if isBlocked, bt := detectBlock(resp, body); isBlocked {
		f.markBlocked(req.URL.Host, bt)
		return nil, &Error{URL: rawURL, Kind: KindBlocked, Status: resp.StatusCode, Err: eris.Errorf("anti-bot block (%s)", bt)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		doc := model.NewRawDocument(rawURL, string(body), time.Now().UTC())
		return &doc, nil
	case resilience.IsTransientHTTPStatus(resp.StatusCode) || resp.StatusCode == http.StatusForbidden:
		// 403 and 429 retry like transients; if they persist past the
		// retry budget Fetch converts them to a block.
		return nil, resilience.NewTransientError(eris.Errorf("http %d", resp.StatusCode), resp.StatusCode)
	default:
		return nil, &Error{URL: rawURL, Kind: KindNetwork, Status: resp.StatusCode, Err: eris.Errorf("http %d", resp.StatusCode)}
	}
}

// waitForToken blocks on the host's token bucket, bounded by WaitTimeout.
func (f *Fetcher) waitForToken(ctx context.Context, host string) error {
	lim := f.limiterFor(host)
	waitCtx := ctx
	if f.policy.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, f.policy.WaitTimeout)
		defer cancel()
	}
	if err := lim.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return eris.Wrap(err, "rate limit token wait timed out")
	}
	return nil
}

func (f *Fetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(f.policy.PerHostRate), f.policy.Burst)
		f.limiters[host] = lim
	}
	return lim
}

func (f *Fetcher) hostBlocked(host string) (BlockType, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bt, ok := f.blocked[host]
	return bt, ok
}

func (f *Fetcher) markBlocked(host string, bt BlockType) {
	f.mu.Lock()
	f.blocked[host] = bt
	f.mu.Unlock()
	zap.L().Warn("fetch: host blocked for remainder of run",
		zap.String("host", host),
		zap.String("block_type", string(bt)),
	)
}

func (f *Fetcher) nextUserAgent() string {
	i := f.uaIdx.Add(1)
	return f.policy.UserAgents[int(i-1)%len(f.policy.UserAgents)]
}

// robotsAllow fetches the host's robots.txt once and checks the URL's path.
// A missing or unreadable robots.txt allows everything.
func (f *Fetcher) robotsAllow(ctx context.Context, u *url.URL) (bool, error) {
	f.mu.Lock()
	rules, cached := f.robots[u.Host]
	f.mu.Unlock()

	if !cached {
		rules = f.loadRobots(ctx, u)
		f.mu.Lock()
		f.robots[u.Host] = rules
		f.mu.Unlock()
	}
	return rules.Allows(u.Path), nil
}

func (f *Fetcher) loadRobots(ctx context.Context, u *url.URL) *robotsRules {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return &robotsRules{}
	}
	req.Header.Set("User-Agent", f.policy.UserAgents[0])

	resp, err := f.client.Do(req)
	if err != nil {
		return &robotsRules{}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &robotsRules{}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 128*1024))
	if err != nil {
		return &robotsRules{}
	}
	return parseRobots(string(body), f.policy.UserAgents[0])
}
