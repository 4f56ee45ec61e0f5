package session

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/aluiziolira/go-scrape-fuel/config"
	"github.com/aluiziolira/go-scrape-fuel/parser"
	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// bundleScanner is the token fallback: when the landing HTML carries no
// extractable token, the script bundles it references are fetched in
// document order and scanned for a signed token. Scan results are cached
// per bundle URL so a refresh does not refetch bundles within a run.
type bundleScanner struct {
	cfg       *config.Config
	base      *url.URL
	extractor *parser.Extractor
	collector *colly.Collector
	cache     *lru.Cache[string, string]

	mu    sync.Mutex
	found string
}

func newBundleScanner(cfg *config.Config, base *url.URL, extractor *parser.Extractor) (*bundleScanner, error) {
	cache, err := lru.New[string, string](cfg.BundleCacheSize)
	if err != nil {
		return nil, err
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob: "*",
		Delay:      cfg.BundleDelay,
	}); err != nil {
		return nil, err
	}

	s := &bundleScanner{
		cfg:       cfg,
		base:      base,
		extractor: extractor,
		collector: collector,
		cache:     cache,
	}

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Referer", cfg.BaseURL)
		r.Headers.Set("Accept", "*/*")
	})

	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode != http.StatusOK {
			return
		}
		bundleURL := r.Request.URL.String()
		token, ok := s.extractor.ExtractSigned(string(r.Body))
		if !ok {
			s.cache.Add(bundleURL, "")
			return
		}
		s.cache.Add(bundleURL, token)
		s.mu.Lock()
		if s.found == "" {
			s.found = token
		}
		s.mu.Unlock()
		slog.Info("token found in script bundle", slog.String("url", bundleURL))
	})

	collector.OnError(func(r *colly.Response, err error) {
		bundleURL := ""
		if r != nil && r.Request != nil && r.Request.URL != nil {
			bundleURL = r.Request.URL.String()
		}
		slog.Debug("script bundle fetch failed",
			slog.String("url", bundleURL),
			slog.Any("error", err),
		)
	})

	return s, nil
}

// scan visits the bundles referenced by body until a token turns up.
// Visits run sequentially so the first hit in document order wins, and
// stop as soon as a token is found or ctx is canceled.
func (s *bundleScanner) scan(ctx context.Context, body string, cookies []*http.Cookie) (string, error) {
	urls := parser.ScriptSources(body, s.base)
	if max := s.cfg.MaxScriptBundles; len(urls) > max {
		urls = urls[:max]
	}

	pending := make([]string, 0, len(urls))
	for _, u := range urls {
		if token, ok := s.cache.Get(u); ok {
			if token != "" {
				return token, nil
			}
			continue
		}
		pending = append(pending, u)
	}
	if len(pending) == 0 {
		return "", parser.ErrTokenNotFound
	}

	slog.Info("token not in page body, scanning script bundles", slog.Int("bundles", len(pending)))

	// Ride the bootstrap session: cookie jar lookups only expose
	// name/value, so rescope to the site root.
	scoped := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		scoped = append(scoped, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	if err := s.collector.SetCookies(s.cfg.BaseURL, scoped); err != nil {
		slog.Debug("setting scan cookies failed", slog.Any("error", err))
	}

	s.mu.Lock()
	s.found = ""
	s.mu.Unlock()

	for _, u := range pending {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := s.collector.Visit(u); err != nil {
			slog.Debug("bundle visit failed", slog.String("url", u), slog.Any("error", err))
		}
		s.mu.Lock()
		token := s.found
		s.mu.Unlock()
		if token != "" {
			return token, nil
		}
	}

	return "", parser.ErrTokenNotFound
}
