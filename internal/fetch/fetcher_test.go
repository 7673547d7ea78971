package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compintel/internal/model"
)

func testPolicy() Policy {
	return Policy{
		PerHostRate:   1000,
		Burst:         1000,
		MaxRetries:    2,
		Timeout:       5 * time.Second,
		UserAgents:    []string{"CompIntelBot/1.0"},
		RespectRobots: false,
	}
}

// TestFetch_Success verifies a 200 response comes back as a RawDocument with
// its content hash populated.
func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>pricing page</body></html>")) //nolint:errcheck
	}))
	defer srv.Close()

	f := New(testPolicy())
	doc, err := f.Fetch(context.Background(), srv.URL+"/pricing")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/pricing", doc.SourceURL)
	assert.Contains(t, doc.Content, "pricing page")
	assert.Equal(t, model.HashContent(doc.Content), doc.ContentHash)
	assert.False(t, doc.FetchedAt.IsZero())
}

// TestFetch_RobotsDisallow verifies a robots.txt disallow surfaces as a
// blocked error and no page request is made.
func TestFetch_RobotsDisallow(t *testing.T) {
	var pageHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private\n")) //nolint:errcheck
	})
	mux.HandleFunc("/private/data", func(w http.ResponseWriter, r *http.Request) {
		pageHits++
		w.Write([]byte("secret")) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := testPolicy()
	p.RespectRobots = true
	f := New(p)

	_, err := f.Fetch(context.Background(), srv.URL+"/private/data")
	require.Error(t, err)
	assert.True(t, IsBlocked(err))
	assert.Contains(t, err.Error(), "robots")
	assert.Equal(t, 0, pageHits)
}

// TestFetch_RobotsAllowsOtherPaths confirms disallow rules are prefix-scoped.
func TestFetch_RobotsAllowsOtherPaths(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /admin\n")) //nolint:errcheck
	})
	mux.HandleFunc("/pricing", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plans and pricing")) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := testPolicy()
	p.RespectRobots = true
	f := New(p)

	doc, err := f.Fetch(context.Background(), srv.URL+"/pricing")
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "plans")
}

// TestFetch_CloudflareBlockMarksHost verifies a 403 with cf headers is a
// definitive block and that subsequent fetches to the host short-circuit
// without touching the network.
func TestFetch_CloudflareBlockMarksHost(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("cf-ray", "8a2f3-EWR")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("Access denied")) //nolint:errcheck
	}))
	defer srv.Close()

	f := New(testPolicy())

	_, err := f.Fetch(context.Background(), srv.URL+"/pricing")
	require.Error(t, err)
	assert.True(t, IsBlocked(err))
	hitsAfterFirst := hits

	_, err = f.Fetch(context.Background(), srv.URL+"/features")
	require.Error(t, err)
	assert.True(t, IsBlocked(err))
	assert.Equal(t, hitsAfterFirst, hits, "blocked host must not be fetched again")
}

// TestFetch_Persistent429BecomesBlock verifies 429s retry and then convert
// to a block once the retry budget is spent.
func TestFetch_Persistent429BecomesBlock(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := New(testPolicy())
	_, err := f.Fetch(context.Background(), srv.URL+"/")
	require.Error(t, err)
	assert.True(t, IsBlocked(err))
	assert.Equal(t, 2, hits)
}

// TestFetch_TransientThenSuccess verifies a 503 is retried and the retry
// succeeds.
func TestFetch_TransientThenSuccess(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered")) //nolint:errcheck
	}))
	defer srv.Close()

	f := New(testPolicy())
	doc, err := f.Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "recovered")
	assert.Equal(t, 2, hits)
}

// TestFetch_NotFoundIsNetworkError verifies a 404 fails once, with the
// status recorded, and is not retried.
func TestFetch_NotFoundIsNetworkError(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := New(testPolicy())
	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindNetwork, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.Equal(t, 1, hits)
}

// TestFetch_PolicyHookRefusesURL verifies the injected access policy is
// consulted before any network activity.
func TestFetch_PolicyHookRefusesURL(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	p := testPolicy()
	p.Allow = func(rawURL string) bool { return false }
	f := New(p)

	_, err := f.Fetch(context.Background(), srv.URL+"/")
	require.Error(t, err)

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindPolicy, fe.Kind)
	assert.Equal(t, 0, hits)
}

// TestFetch_UserAgentRotation verifies consecutive requests cycle through
// the configured user agents.
func TestFetch_UserAgentRotation(t *testing.T) {
	var mu sync.Mutex
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.Header.Get("User-Agent"))
		mu.Unlock()
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	p := testPolicy()
	p.UserAgents = []string{"agent-a", "agent-b"}
	f := New(p)

	for i := 0; i < 4; i++ {
		_, err := f.Fetch(context.Background(), srv.URL+"/")
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"agent-a", "agent-b", "agent-a", "agent-b"}, agents)
}

// TestFetch_PerHostRateLimit verifies requests beyond the burst are paced at
// the configured per-host rate.
func TestFetch_PerHostRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	p := testPolicy()
	p.PerHostRate = 50
	p.Burst = 1
	f := New(p)

	const n = 4
	start := time.Now()
	for i := 0; i < n; i++ {
		_, err := f.Fetch(context.Background(), srv.URL+"/")
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	// Burst covers the first request; the remaining three wait for tokens
	// at 50/sec, so the loop cannot finish faster than 60ms.
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

// TestFetch_PerHostBudgetExhausted verifies the per-run host budget fails
// with a rate_limit error once spent.
func TestFetch_PerHostBudgetExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	p := testPolicy()
	p.PerHostBudget = 2
	f := New(p)

	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), srv.URL+"/")
		require.NoError(t, err)
	}

	_, err := f.Fetch(context.Background(), srv.URL+"/")
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}

// TestFetch_InvalidURL verifies unparseable URLs fail without panicking.
func TestFetch_InvalidURL(t *testing.T) {
	f := New(testPolicy())
	_, err := f.Fetch(context.Background(), "://not-a-url")
	require.Error(t, err)
}

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		body    string
		blocked bool
		bt      BlockType
	}{
		{
			name:    "cloudflare 403 with cf-ray",
			status:  403,
			headers: map[string]string{"cf-ray": "abc"},
			body:    "denied",
			blocked: true,
			bt:      BlockCloudflare,
		},
		{
			name:    "cloudflare challenge body",
			status:  200,
			body:    "Checking your browser before accessing",
			blocked: true,
			bt:      BlockCloudflare,
		},
		{
			name:    "captcha body",
			status:  200,
			body:    "<div class=\"g-recaptcha\"></div>",
			blocked: true,
			bt:      BlockCaptcha,
		},
		{
			name:    "js shell",
			status:  200,
			body:    "<html><noscript>Please enable JavaScript</noscript></html>",
			blocked: true,
			bt:      BlockJSShell,
		},
		{
			name:    "plain page",
			status:  200,
			body:    "<html><body>Our pricing starts at $49/mo</body></html>",
			blocked: false,
			bt:      BlockNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: http.Header{}}
			for k, v := range tt.headers {
				resp.Header.Set(k, v)
			}
			blocked, bt := detectBlock(resp, []byte(tt.body))
			assert.Equal(t, tt.blocked, blocked)
			assert.Equal(t, tt.bt, bt)
		})
	}
}

func TestParseRobots(t *testing.T) {
	body := `
# comments are ignored
User-agent: *
Disallow: /private

User-agent: CompIntelBot
Disallow: /internal

User-agent: OtherBot
Disallow: /everything
`
	rules := parseRobots(body, "Mozilla/5.0 (compatible; CompIntelBot/1.0)")

	assert.False(t, rules.Allows("/private/page"))
	assert.False(t, rules.Allows("/internal"))
	assert.True(t, rules.Allows("/everything"))
	assert.True(t, rules.Allows("/pricing"))
	assert.True(t, rules.Allows(""))
}
