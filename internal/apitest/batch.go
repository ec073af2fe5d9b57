package apitest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"oasisrun/internal/model"
)

// BatchOptions configures a concurrent soak run against a lookup service.
type BatchOptions struct {
	// Analyses is the number of key resolutions to perform.
	Analyses int
	// Workers bounds how many run at once.
	Workers int
	// SourceExposuresPath is the CSV posted by every analysis.
	SourceExposuresPath string
	// WorkDir receives one result directory per analysis. A temp dir is
	// used when empty.
	WorkDir string
}

// RunBatch resolves keys Analyses times on a bounded worker pool, each
// analysis writing its results into its own directory. One analysis
// failing never stops the others; the outcome tally is returned along with
// an error only when the batch could not run at all.
func (c *Client) RunBatch(ctx context.Context, opts BatchOptions) (*model.RunCounters, error) {
	if opts.Analyses < 1 {
		return nil, fmt.Errorf("batch needs at least 1 analysis")
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	workDir := opts.WorkDir
	if workDir == "" {
		dir, err := os.MkdirTemp("", "oasisrun-apitest-")
		if err != nil {
			return nil, fmt.Errorf("create batch work dir: %w", err)
		}
		workDir = dir
	}

	counters := &model.RunCounters{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 1; i <= opts.Analyses; i++ {
		i := i
		g.Go(func() error {
			if err := c.runOne(gctx, workDir, i, opts.SourceExposuresPath); err != nil {
				counters.AddFailed()
				if c.Logger != nil {
					c.Logger.Printf("analysis %d failed: %v", i, err)
				}
				return nil
			}
			counters.AddCompleted()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return counters, err
	}
	if c.Logger != nil {
		c.Logger.Printf("batch finished: %d completed, %d failed", counters.Completed(), counters.Failed())
	}
	return counters, nil
}

// runOne performs a single analysis in its own directory.
func (c *Client) runOne(ctx context.Context, workDir string, n int, exposuresPath string) error {
	dir := filepath.Join(workDir, fmt.Sprintf("analysis_%d", n))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create analysis dir: %w", err)
	}

	items, err := c.GetKeys(ctx, exposuresPath)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no key records returned")
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "keys.json"), data, 0644)
}
