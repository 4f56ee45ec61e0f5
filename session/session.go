// Package session establishes and refreshes the browser-equivalent state
// required by the upstream site: the cookies granted by the landing page
// and the anti-forgery token embedded in it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-fuel/config"
	"github.com/aluiziolira/go-scrape-fuel/models"
	"github.com/aluiziolira/go-scrape-fuel/parser"
	"github.com/go-resty/resty/v2"
)

// ErrBootstrap indicates the landing request failed or did not grant a
// usable session.
type ErrBootstrap struct {
	Err error
}

func (e ErrBootstrap) Error() string {
	return fmt.Errorf("bootstrap: %w", e.Err).Error()
}

func (e ErrBootstrap) Unwrap() error {
	return e.Err
}

// Bootstrapper performs the unauthenticated landing GET and extracts the
// anti-forgery token. Safe to call repeatedly; each call yields a fresh
// Session. Calls are serialized by Manager.
type Bootstrapper struct {
	cfg       *config.Config
	base      *url.URL
	http      *resty.Client
	extractor *parser.Extractor
	scanner   *bundleScanner
}

// NewBootstrapper builds a bootstrapper configured from cfg.
func NewBootstrapper(cfg *config.Config) (*Bootstrapper, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	extractor, err := parser.NewExtractor(cfg.TokenPatterns...)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))
	client.SetHeaders(map[string]string{
		"User-Agent":      cfg.UserAgent,
		"Accept-Language": "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7",
		"Connection":      "keep-alive",
	})

	b := &Bootstrapper{
		cfg:       cfg,
		base:      base,
		http:      client,
		extractor: extractor,
	}

	if cfg.ScanBundles {
		scanner, err := newBundleScanner(cfg, base, extractor)
		if err != nil {
			return nil, err
		}
		b.scanner = scanner
	}

	return b, nil
}

// SetTransport replaces the HTTP transport on the landing client and the
// bundle scanner. Used by tests and instrumentation.
func (b *Bootstrapper) SetTransport(rt http.RoundTripper) {
	b.http.SetTransport(rt)
	if b.scanner != nil {
		b.scanner.collector.WithTransport(rt)
	}
}

// Bootstrap performs the landing GET with a fresh cookie jar, validates
// that the expected session cookie was granted, and extracts the token
// from the page body, falling back to the script bundle scan when
// enabled. No side effects beyond the network.
func (b *Bootstrapper) Bootstrap(ctx context.Context) (*models.Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, ErrBootstrap{Err: err}
	}
	b.http.SetCookieJar(jar)

	res, err := b.http.R().SetContext(ctx).Get(b.cfg.BaseURL)
	if err != nil {
		return nil, ErrBootstrap{Err: err}
	}
	if res.StatusCode() != http.StatusOK {
		return nil, ErrBootstrap{Err: fmt.Errorf("landing returned status %d", res.StatusCode())}
	}

	if b.cfg.DebugBootstrapFile != "" {
		if err := os.WriteFile(b.cfg.DebugBootstrapFile, res.Body(), 0o644); err != nil {
			slog.Warn("writing bootstrap debug dump failed", slog.Any("error", err))
		}
	}

	cookies := jar.Cookies(b.base)
	if !hasCookie(cookies, b.cfg.SessionCookie) {
		return nil, ErrBootstrap{Err: fmt.Errorf("session cookie %q not granted", b.cfg.SessionCookie)}
	}

	body := res.String()
	token, err := b.extractor.Extract(body)
	if errors.Is(err, parser.ErrTokenNotFound) && b.scanner != nil {
		token, err = b.scanner.scan(ctx, body, cookies)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("session established",
		slog.Int("cookies", len(cookies)),
		slog.Bool("token_found", token != ""),
	)

	return &models.Session{
		Cookies:   cookies,
		Token:     token,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func hasCookie(cookies []*http.Cookie, name string) bool {
	for _, c := range cookies {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Manager owns the current Session and serializes refreshes. Concurrent
// callers holding the same stale session trigger a single re-bootstrap;
// the guard stays held across the network call so waiters receive the
// replacement session.
type Manager struct {
	mu           sync.Mutex
	bootstrapper *Bootstrapper
	current      *models.Session
	refreshes    int
}

// NewManager returns a manager with no session yet.
func NewManager(b *Bootstrapper) *Manager {
	return &Manager{bootstrapper: b}
}

// Start bootstraps the initial session. Subsequent calls return the
// session already held.
func (m *Manager) Start(ctx context.Context) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return m.current, nil
	}
	s, err := m.bootstrapper.Bootstrap(ctx)
	if err != nil {
		return nil, err
	}
	m.current = s
	return s, nil
}

// Current returns the session in effect.
func (m *Manager) Current() *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Refresh replaces stale with a freshly bootstrapped session. If another
// caller already replaced it, the existing replacement is returned
// without touching the network.
func (m *Manager) Refresh(ctx context.Context, stale *models.Session) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current != stale {
		return m.current, nil
	}
	s, err := m.bootstrapper.Bootstrap(ctx)
	if err != nil {
		return nil, err
	}
	m.current = s
	m.refreshes++
	return s, nil
}

// Refreshes returns how many refreshes have been performed.
func (m *Manager) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}
