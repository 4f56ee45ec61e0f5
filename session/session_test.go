package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aluiziolira/go-scrape-fuel/config"
	"github.com/aluiziolira/go-scrape-fuel/parser"
	"github.com/jarcoal/httpmock"
)

const testBaseURL = "http://precodahora.test/produtos/"

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = testBaseURL
	cfg.BundleDelay = 0
	return cfg
}

func landingResponder(body string, cookies ...string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	for _, c := range cookies {
		resp.Header.Add("Set-Cookie", c)
	}
	return httpmock.ResponderFromResponse(resp)
}

func TestBootstrapSuccess(t *testing.T) {
	cfg := testConfig()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBaseURL, landingResponder(
		`<html><input name="csrf_token" value="tok-abc"></html>`,
		"session=s-123; Path=/",
	))

	b, err := NewBootstrapper(cfg)
	if err != nil {
		t.Fatalf("new bootstrapper: %v", err)
	}
	b.SetTransport(transport)

	sess, err := b.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if sess.Token != "tok-abc" {
		t.Fatalf("token = %q, want %q", sess.Token, "tok-abc")
	}
	if !sess.HasCookie("session") {
		t.Fatalf("expected session cookie, got %v", sess.Cookies)
	}
	if sess.CreatedAt.IsZero() {
		t.Fatalf("created at should be set")
	}
}

func TestBootstrapMissingSessionCookie(t *testing.T) {
	cfg := testConfig()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBaseURL, landingResponder(
		`<html><input name="csrf_token" value="tok-abc"></html>`,
	))

	b, err := NewBootstrapper(cfg)
	if err != nil {
		t.Fatalf("new bootstrapper: %v", err)
	}
	b.SetTransport(transport)

	_, err = b.Bootstrap(context.Background())
	var bootErr ErrBootstrap
	if !errors.As(err, &bootErr) {
		t.Fatalf("expected ErrBootstrap, got %v", err)
	}
}

func TestBootstrapNon200(t *testing.T) {
	cfg := testConfig()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBaseURL, httpmock.NewStringResponder(503, "maintenance"))

	b, err := NewBootstrapper(cfg)
	if err != nil {
		t.Fatalf("new bootstrapper: %v", err)
	}
	b.SetTransport(transport)

	_, err = b.Bootstrap(context.Background())
	var bootErr ErrBootstrap
	if !errors.As(err, &bootErr) {
		t.Fatalf("expected ErrBootstrap, got %v", err)
	}
}

func TestBootstrapTokenNotFound(t *testing.T) {
	cfg := testConfig()
	cfg.ScanBundles = false

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBaseURL, landingResponder(
		`<html><body>no secrets here</body></html>`,
		"session=s-123; Path=/",
	))

	b, err := NewBootstrapper(cfg)
	if err != nil {
		t.Fatalf("new bootstrapper: %v", err)
	}
	b.SetTransport(transport)

	_, err = b.Bootstrap(context.Background())
	if !errors.Is(err, parser.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func countingResponder(counter *int32, responder httpmock.Responder) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(counter, 1)
		return responder(req)
	}
}

func TestBootstrapBundleFallback(t *testing.T) {
	cfg := testConfig()

	landing := `<html>` +
		`<script src="/static/one.js"></script>` +
		`<script src="/static/two.js"></script>` +
		`</html>`

	var oneCalls, twoCalls int32
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBaseURL, landingResponder(landing, "session=s-123; Path=/"))
	transport.RegisterResponder("GET", "http://precodahora.test/static/one.js",
		countingResponder(&oneCalls, httpmock.NewStringResponder(200, "var nothing = 1;")))
	transport.RegisterResponder("GET", "http://precodahora.test/static/two.js",
		countingResponder(&twoCalls, httpmock.NewStringResponder(200, `auth("ImZha2U.sig-mid.tail2")`)))

	b, err := NewBootstrapper(cfg)
	if err != nil {
		t.Fatalf("new bootstrapper: %v", err)
	}
	b.SetTransport(transport)

	sess, err := b.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if sess.Token != "ImZha2U.sig-mid.tail2" {
		t.Fatalf("token = %q, want bundle token", sess.Token)
	}
	if got := atomic.LoadInt32(&oneCalls); got != 1 {
		t.Fatalf("first bundle fetched %d times, want 1", got)
	}
	if got := atomic.LoadInt32(&twoCalls); got != 1 {
		t.Fatalf("second bundle fetched %d times, want 1", got)
	}

	// A refresh repeats the bootstrap; the scan cache must answer
	// without refetching any bundle.
	sess2, err := b.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if sess2.Token != sess.Token {
		t.Fatalf("second token = %q, want %q", sess2.Token, sess.Token)
	}
	if got := atomic.LoadInt32(&oneCalls); got != 1 {
		t.Fatalf("first bundle fetched %d times after cache hit, want 1", got)
	}
	if got := atomic.LoadInt32(&twoCalls); got != 1 {
		t.Fatalf("second bundle fetched %d times after cache hit, want 1", got)
	}
}

func TestBundleScanHonorsCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxScriptBundles = 2

	landing := `<html>` +
		`<script src="/static/one.js"></script>` +
		`<script src="/static/two.js"></script>` +
		`<script src="/static/three.js"></script>` +
		`</html>`

	var threeCalls int32
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBaseURL, landingResponder(landing, "session=s-123; Path=/"))
	transport.RegisterResponder("GET", "http://precodahora.test/static/one.js",
		httpmock.NewStringResponder(200, "one"))
	transport.RegisterResponder("GET", "http://precodahora.test/static/two.js",
		httpmock.NewStringResponder(200, "two"))
	transport.RegisterResponder("GET", "http://precodahora.test/static/three.js",
		countingResponder(&threeCalls, httpmock.NewStringResponder(200, `x("ImNhcA.sig.tail")`)))

	b, err := NewBootstrapper(cfg)
	if err != nil {
		t.Fatalf("new bootstrapper: %v", err)
	}
	b.SetTransport(transport)

	_, err = b.Bootstrap(context.Background())
	if !errors.Is(err, parser.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound with capped scan, got %v", err)
	}
	if got := atomic.LoadInt32(&threeCalls); got != 0 {
		t.Fatalf("bundle beyond cap fetched %d times, want 0", got)
	}
}

func TestManagerRefreshSingleton(t *testing.T) {
	cfg := testConfig()

	var bootstraps int32
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBaseURL, countingResponder(&bootstraps, landingResponder(
		`<input name="csrf_token" value="tok-1">`,
		"session=s-123; Path=/",
	)))

	b, err := NewBootstrapper(cfg)
	if err != nil {
		t.Fatalf("new bootstrapper: %v", err)
	}
	b.SetTransport(transport)

	m := NewManager(b)
	initial, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := atomic.LoadInt32(&bootstraps); got != 1 {
		t.Fatalf("bootstraps = %d, want 1", got)
	}

	// Many holders of the same stale session race to refresh; only one
	// network bootstrap may happen.
	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = m.Refresh(context.Background(), initial)
		}(i)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&bootstraps); got != 2 {
		t.Fatalf("bootstraps after racing refresh = %d, want 2", got)
	}
	if got := m.Refreshes(); got != 1 {
		t.Fatalf("refreshes = %d, want 1", got)
	}

	// Refreshing with the long-replaced session reuses the current one.
	current := m.Current()
	again, err := m.Refresh(context.Background(), initial)
	if err != nil {
		t.Fatalf("refresh with stale: %v", err)
	}
	if again != current {
		t.Fatalf("expected current session to be reused")
	}
	if got := atomic.LoadInt32(&bootstraps); got != 2 {
		t.Fatalf("bootstraps after stale refresh = %d, want 2", got)
	}
}

func TestManagerStartFailure(t *testing.T) {
	cfg := testConfig()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBaseURL, httpmock.NewStringResponder(500, "boom"))

	b, err := NewBootstrapper(cfg)
	if err != nil {
		t.Fatalf("new bootstrapper: %v", err)
	}
	b.SetTransport(transport)

	m := NewManager(b)
	if _, err := m.Start(context.Background()); err == nil {
		t.Fatalf("expected bootstrap failure")
	}
	if m.Current() != nil {
		t.Fatalf("no session should be held after failed start")
	}
}
