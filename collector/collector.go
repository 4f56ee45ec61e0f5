// Package collector drives one collection run: a session bootstrap, then
// paginated page requests per fuel category, streaming every raw result
// into the output artifact and finishing with a run manifest.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-fuel/client"
	"github.com/aluiziolira/go-scrape-fuel/config"
	"github.com/aluiziolira/go-scrape-fuel/models"
	"github.com/aluiziolira/go-scrape-fuel/pipeline"
	"github.com/aluiziolira/go-scrape-fuel/session"
)

// RecordSink receives raw records as they are produced.
type RecordSink interface {
	Append(rec *models.RawRecord) error
}

// Options wires the collector's collaborators.
type Options struct {
	Config   *config.Config
	Sessions *session.Manager
	Client   *client.Client
	Sink     RecordSink
	Recorder *pipeline.Recorder
	Metrics  *client.Metrics
	RunID    string
}

// Collector runs the collection for every configured category.
type Collector struct {
	cfg      *config.Config
	sessions *session.Manager
	client   *client.Client
	sink     RecordSink
	recorder *pipeline.Recorder
	metrics  *client.Metrics
	runID    string

	mu       sync.Mutex
	fatalErr error
}

// New validates the wiring and builds a collector.
func New(opts Options) (*Collector, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("nil config")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("nil session manager")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("nil client")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("nil record sink")
	}
	if opts.Recorder == nil {
		return nil, fmt.Errorf("nil recorder")
	}
	if opts.RunID == "" {
		return nil, fmt.Errorf("empty run id")
	}
	return &Collector{
		cfg:      opts.Config,
		sessions: opts.Sessions,
		client:   opts.Client,
		sink:     opts.Sink,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		runID:    opts.RunID,
	}, nil
}

// QueryFromConfig builds the page query shared by every request of a run.
func QueryFromConfig(cfg *config.Config) models.QueryParams {
	return models.QueryParams{
		Hours:     cfg.Hours,
		Latitude:  cfg.Latitude,
		Longitude: cfg.Longitude,
		RadiusKm:  cfg.RadiusKm,
		Order:     cfg.Order,
	}
}

// CategoriesFromConfig converts the configured category names.
func CategoriesFromConfig(cfg *config.Config) []models.Category {
	out := make([]models.Category, 0, len(cfg.Categories))
	for _, name := range cfg.Categories {
		out = append(out, models.Category(name))
	}
	return out
}

// Run executes the full run and returns the final manifest. A failed
// category does not stop the others; a write failure aborts everything,
// since the shared artifact can no longer be trusted.
func (c *Collector) Run(ctx context.Context) (models.RunManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := c.sessions.Start(ctx); err != nil {
		kind := kindOf(err)
		c.recorder.RecordError(kind, "", err)
		c.metrics.IncError(kind)
		slog.Error("initial bootstrap failed", slog.Any("error", err))
		manifest, ferr := c.recorder.Finish()
		if ferr != nil {
			return manifest, ferr
		}
		return manifest, err
	}
	c.recorder.MarkBootstrapped()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	categories := CategoriesFromConfig(c.cfg)
	workers := c.cfg.Parallelism
	if workers <= 0 {
		workers = 1
	}
	if workers > len(categories) {
		workers = len(categories)
	}

	jobs := make(chan models.Category)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cat := range jobs {
				c.collectCategory(runCtx, cancel, cat)
			}
		}()
	}
	for _, cat := range categories {
		jobs <- cat
	}
	close(jobs)
	wg.Wait()

	manifest, err := c.recorder.Finish()
	if err != nil {
		return manifest, err
	}
	if fatal := c.fatal(); fatal != nil {
		return manifest, fatal
	}
	return manifest, nil
}

func (c *Collector) collectCategory(ctx context.Context, abort context.CancelFunc, cat models.Category) {
	if err := ctx.Err(); err != nil {
		c.recorder.RecordError(kindOf(err), cat, err)
		c.recorder.FinishCategory(cat, models.CategoryResult{Status: models.CategoryFailed})
		return
	}

	c.recorder.StartCategory(cat)
	slog.Info("collecting category", slog.String("category", string(cat)))

	result, err := c.collectPages(ctx, cat)
	if err != nil {
		kind := kindOf(err)
		result.Status = models.CategoryFailed
		c.recorder.FinishCategory(cat, result)
		c.recorder.RecordError(kind, cat, err)
		c.metrics.IncError(kind)
		slog.Error("category failed",
			slog.String("category", string(cat)),
			slog.String("kind", kind),
			slog.Any("error", err),
		)

		var writeErr pipeline.ErrWrite
		if errors.As(err, &writeErr) {
			c.setFatal(err)
			abort()
		}
		return
	}

	result.Status = models.CategoryDone
	c.recorder.FinishCategory(cat, result)
	slog.Info("category done",
		slog.String("category", string(cat)),
		slog.Int("pages", result.Pages),
		slog.Int("records", result.Records),
	)
}

func (c *Collector) collectPages(ctx context.Context, cat models.Category) (models.CategoryResult, error) {
	result := models.CategoryResult{Status: models.CategoryInProgress}
	query := QueryFromConfig(c.cfg)

	for page := 1; page <= c.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		req := models.NewPageRequest(cat, page, query)
		payload, err := c.send(ctx, req)
		if err != nil {
			return result, err
		}

		var resp models.ProductsResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			return result, client.ErrFatalRequest{Err: fmt.Errorf("decode page %d: %w", page, err)}
		}

		result.TotalPagesReported = resp.TotalPages
		result.TotalRecordsReported = resp.TotalRecords

		if len(resp.Results) == 0 {
			slog.Debug("empty page, stopping",
				slog.String("category", string(cat)),
				slog.Int("page", page),
			)
			break
		}

		collectedAt := time.Now().UTC()
		for _, item := range resp.Results {
			rec := &models.RawRecord{
				CollectedAt: collectedAt,
				RunID:       c.runID,
				Source:      c.cfg.Source,
				Category:    cat,
				Query:       req.Query,
				Raw:         item,
			}
			if err := c.sink.Append(rec); err != nil {
				return result, err
			}
			result.Records++
		}
		c.metrics.AddRecords(len(resp.Results))
		result.Pages++

		reported := resp.TotalPages
		if reported <= 0 {
			reported = 1
		}
		if page >= reported {
			break
		}
	}

	return result, nil
}

// send issues one page request with the current session. On an auth
// rejection it refreshes the session once and retries; a second rejection
// is returned to the caller.
func (c *Collector) send(ctx context.Context, req models.PageRequest) ([]byte, error) {
	sess := c.sessions.Current()
	payload, err := c.client.Send(ctx, sess, req)

	var authErr client.ErrAuth
	if !errors.As(err, &authErr) {
		return payload, err
	}

	slog.Warn("session rejected, refreshing",
		slog.String("category", string(req.Category)),
		slog.Int("page", req.Query.Page),
	)
	fresh, refreshErr := c.sessions.Refresh(ctx, sess)
	if refreshErr != nil {
		return nil, refreshErr
	}
	return c.client.Send(ctx, fresh, req)
}

func (c *Collector) setFatal(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fatalErr == nil {
		c.fatalErr = err
	}
}

func (c *Collector) fatal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatalErr
}
