package client

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aluiziolira/go-scrape-fuel/config"
	"github.com/aluiziolira/go-scrape-fuel/models"
)

// Client issues paced, retried page requests against the products endpoint.
// All workers share one Client so the pace interval holds globally.
type Client struct {
	cfg     *config.Config
	http    *resty.Client
	pacer   *pacer
	metrics *Metrics
	clk     Clock
}

// New builds a client from cfg. A nil clock selects the real one; a nil
// metrics disables instrumentation.
func New(cfg *config.Config, metrics *Metrics, clk Clock) (*Client, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if clk == nil {
		clk = realClock{}
	}

	origin := (&url.URL{Scheme: parsed.Scheme, Host: parsed.Host}).String()

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsed.Hostname())).
		SetHeaders(map[string]string{
			"User-Agent":       cfg.UserAgent,
			"Accept":           "*/*",
			"X-Requested-With": "XMLHttpRequest",
			"Origin":           origin,
			"Referer":          cfg.BaseURL,
		})

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		pacer:   newPacer(cfg.PaceInterval, clk),
		metrics: metrics,
		clk:     clk,
	}, nil
}

// SetTransport swaps the underlying round tripper.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.http.SetTransport(rt)
}

// Send posts one page request with the session's cookies and CSRF token and
// returns the raw response payload. It retries rate limits and transient
// failures under their separate budgets; auth rejections and other client
// errors return immediately.
func (c *Client) Send(ctx context.Context, sess *models.Session, req models.PageRequest) ([]byte, error) {
	if sess == nil {
		return nil, ErrFatalRequest{Err: fmt.Errorf("nil session")}
	}

	var rateRetries, serverRetries int
	for {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		c.metrics.IncRequest(string(req.Category))
		start := time.Now()
		res, err := c.http.R().
			SetContext(ctx).
			SetHeader("X-CSRFToken", sess.Token).
			SetCookies(sess.Cookies).
			SetFormData(req.FormData()).
			Post(c.cfg.BaseURL)
		c.metrics.ObserveDuration(time.Since(start))

		out := c.classify(ctx, res, err)
		switch out.kind {
		case outcomeSuccess:
			return res.Body(), nil

		case outcomeRetryRate:
			if rateRetries >= c.cfg.RateLimitRetries {
				return nil, out.err
			}
			rateRetries++
			wait := out.delay
			if wait <= 0 {
				wait = c.backoff(rateRetries)
			}
			slog.Warn("rate limited, backing off",
				slog.String("category", string(req.Category)),
				slog.Int("page", req.Query.Page),
				slog.Int("attempt", rateRetries),
				slog.Duration("wait", wait),
			)
			c.metrics.IncRetries()
			c.clk.Sleep(wait)

		case outcomeRetryServer:
			if serverRetries >= c.cfg.ServerErrorRetries {
				return nil, out.err
			}
			serverRetries++
			wait := c.backoff(serverRetries)
			slog.Warn("transient failure, retrying",
				slog.String("category", string(req.Category)),
				slog.Int("page", req.Query.Page),
				slog.Int("attempt", serverRetries),
				slog.Duration("wait", wait),
				slog.Any("error", out.err),
			)
			c.metrics.IncRetries()
			c.clk.Sleep(wait)

		default:
			return nil, out.err
		}
	}
}

const (
	outcomeSuccess = iota
	outcomeRetryRate
	outcomeRetryServer
	outcomeFatal
)

type outcome struct {
	kind  int
	delay time.Duration
	err   error
}

func (c *Client) classify(ctx context.Context, res *resty.Response, err error) outcome {
	if err != nil {
		if ctx.Err() != nil {
			return outcome{kind: outcomeFatal, err: ctx.Err()}
		}
		return outcome{kind: outcomeRetryServer, err: ErrTransient{Err: err}}
	}

	code := res.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return outcome{kind: outcomeSuccess}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return outcome{kind: outcomeFatal, err: ErrAuth{Err: fmt.Errorf("http status %d", code)}}
	case code == http.StatusTooManyRequests:
		return outcome{
			kind:  outcomeRetryRate,
			delay: retryAfter(res.Header().Get("Retry-After")),
			err:   ErrRateLimited{Err: fmt.Errorf("http status %d", code)},
		}
	case code >= 500:
		return outcome{kind: outcomeRetryServer, err: ErrTransient{Err: fmt.Errorf("http status %d", code)}}
	default:
		return outcome{kind: outcomeFatal, err: ErrFatalRequest{Err: fmt.Errorf("http status %d", code)}}
	}
}

// retryAfter parses the integer-seconds form of the header. HTTP-date values
// are ignored and fall back to backoff.
func retryAfter(header string) time.Duration {
	v := strings.TrimSpace(header)
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := c.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := c.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	if c.cfg.JitterMax > 0 {
		fraction := c.cfg.JitterMin + rand.Float64()*(c.cfg.JitterMax-c.cfg.JitterMin)
		delay += time.Duration(fraction * float64(delay))
		if max := c.cfg.RetryBackoffMax; max > 0 && delay > max {
			delay = max
		}
	}
	return delay
}
