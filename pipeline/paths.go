package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var slugPattern = regexp.MustCompile(`[^a-zA-Z0-9_\-=.]`)

// safeSlug keeps partition segments filesystem friendly.
func safeSlug(s string) string {
	return slugPattern.ReplaceAllString(s, "_")
}

// RunPaths locates one run's artifacts inside the partitioned output tree:
// <base>/source=<source>/dt=<YYYY-MM-DD>/run_id=<id>/.
type RunPaths struct {
	Root         string
	DataFile     string
	ManifestFile string
}

// NewRunPaths computes the partition for a run started at now. The date
// segment uses local time, matching how operators browse the tree.
func NewRunPaths(baseDir, source, runID string, now time.Time) RunPaths {
	root := filepath.Join(
		baseDir,
		"source="+safeSlug(source),
		"dt="+now.Format("2006-01-02"),
		"run_id="+safeSlug(runID),
	)
	return RunPaths{
		Root:         root,
		DataFile:     filepath.Join(root, "data.jsonl"),
		ManifestFile: filepath.Join(root, "manifest.json"),
	}
}

// Ensure creates the run directory.
func (p RunPaths) Ensure() error {
	if err := os.MkdirAll(p.Root, 0o755); err != nil {
		return fmt.Errorf("create run directory %q: %w", p.Root, err)
	}
	return nil
}
