package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-fuel/models"
)

// RunInfo seeds a recorder with the identifiers shared by every artifact of
// one run.
type RunInfo struct {
	RunID      string
	Source     string
	BaseURL    string
	Query      models.QueryParams
	Categories []models.Category
	Paths      RunPaths
}

// Recorder tracks run progress and writes the manifest exactly once at the
// end. All methods are safe for concurrent use by category workers.
type Recorder struct {
	mu       sync.Mutex
	paths    RunPaths
	manifest models.RunManifest
	written  bool
}

// NewRecorder starts a manifest in INIT with every category PENDING.
func NewRecorder(info RunInfo) *Recorder {
	categories := make(map[models.Category]models.CategoryResult, len(info.Categories))
	for _, cat := range info.Categories {
		categories[cat] = models.CategoryResult{Status: models.CategoryPending}
	}
	return &Recorder{
		paths: info.Paths,
		manifest: models.RunManifest{
			RunID:      info.RunID,
			Source:     info.Source,
			BaseURL:    info.BaseURL,
			DataFile:   filepath.Base(info.Paths.DataFile),
			StartedAt:  time.Now().UTC(),
			Status:     models.RunInit,
			Query:      info.Query,
			Categories: categories,
		},
	}
}

// MarkBootstrapped advances the run out of INIT once the first session is
// established.
func (r *Recorder) MarkBootstrapped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.manifest.Status == models.RunInit {
		r.manifest.Status = models.RunBootstrapped
	}
}

// StartCategory marks a category in progress and the run as collecting.
func (r *Recorder) StartCategory(cat models.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.manifest.Status == models.RunBootstrapped {
		r.manifest.Status = models.RunCollecting
	}
	res := r.manifest.Categories[cat]
	res.Status = models.CategoryInProgress
	r.manifest.Categories[cat] = res
}

// FinishCategory stores a category's terminal result.
func (r *Recorder) FinishCategory(cat models.Category, result models.CategoryResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifest.Categories[cat] = result
}

// RecordError appends one failure to the manifest. An empty category marks
// a run-level failure.
func (r *Recorder) RecordError(kind string, cat models.Category, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifest.Errors = append(r.manifest.Errors, models.RunError{
		Kind:     kind,
		Category: cat,
		Message:  err.Error(),
	})
}

// Finish computes the terminal status, writes the manifest file, and
// returns the final snapshot. Categories never finished count as failed.
// After the first successful write, later calls return the stored result
// without touching disk.
func (r *Recorder) Finish() (models.RunManifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.written {
		return r.snapshotLocked(), nil
	}

	r.manifest.Status = models.RunFinalizing

	var done, failed int
	var total int64
	for cat, res := range r.manifest.Categories {
		switch res.Status {
		case models.CategoryDone:
			done++
		default:
			failed++
			if res.Status != models.CategoryFailed {
				res.Status = models.CategoryFailed
				r.manifest.Categories[cat] = res
			}
		}
		total += int64(res.Records)
	}
	r.manifest.TotalRecords = total
	r.manifest.FinishedAt = time.Now().UTC()

	switch {
	case done > 0 && failed == 0:
		r.manifest.Status = models.RunCompleted
	case done > 0:
		r.manifest.Status = models.RunCompletedWithErrors
	default:
		r.manifest.Status = models.RunFailed
	}

	payload, err := json.MarshalIndent(r.manifest, "", "  ")
	if err != nil {
		return r.snapshotLocked(), ErrWrite{Err: fmt.Errorf("encode manifest: %w", err)}
	}
	payload = append(payload, '\n')
	if err := os.WriteFile(r.paths.ManifestFile, payload, 0o644); err != nil {
		return r.snapshotLocked(), ErrWrite{Err: fmt.Errorf("write manifest: %w", err)}
	}
	r.written = true

	return r.snapshotLocked(), nil
}

func (r *Recorder) snapshotLocked() models.RunManifest {
	out := r.manifest
	out.Categories = make(map[models.Category]models.CategoryResult, len(r.manifest.Categories))
	for k, v := range r.manifest.Categories {
		out.Categories[k] = v
	}
	out.Errors = append([]models.RunError(nil), r.manifest.Errors...)
	return out
}
