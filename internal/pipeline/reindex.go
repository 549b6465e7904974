package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/kraklabs/codex-index/internal/errs"
	"github.com/kraklabs/codex-index/internal/snapshot"
)

// ReindexByChange implements spec §4.7's reindex_by_change: it uses C4's
// diff to find added/removed/modified relative paths, removes the
// documents belonging to removed and modified paths, then re-runs steps
// 3-10 of the pipeline against the added+modified subset.
func (p *Pipeline) ReindexByChange(ctx context.Context, synchronizer *snapshot.Synchronizer, opts IndexOptions) (ReindexResult, error) {
	diff, err := synchronizer.CheckForChanges(ctx)
	if err != nil {
		return ReindexResult{}, fmt.Errorf("pipeline: reindex: check for changes: %w", err)
	}
	if diff.Empty() {
		return ReindexResult{}, nil
	}

	for _, rel := range append(append([]string{}, diff.Removed...), diff.Modified...) {
		if err := p.deleteByRelativePath(ctx, opts.CollectionName, rel); err != nil {
			return ReindexResult{}, errs.StoreError(errs.StoreQuery, "reindex: delete stale documents for "+rel, err)
		}
	}

	subset := append(append([]string{}, diff.Added...), diff.Modified...)
	if len(subset) > 0 {
		subsetOpts := opts
		subsetOpts.Subset = subset
		if _, err := p.run(ctx, subsetOpts); err != nil {
			return ReindexResult{}, err
		}
	}

	if err := synchronizer.Commit(); err != nil {
		return ReindexResult{}, fmt.Errorf("pipeline: reindex: commit snapshot: %w", err)
	}

	return ReindexResult{
		Added:    len(diff.Added),
		Removed:  len(diff.Removed),
		Modified: len(diff.Modified),
	}, nil
}

// deleteByRelativePath queries C6 for document ids whose relative_path
// equals rel (path separators normalized to '/' per spec §9's path
// normalization note, the filter dialect's own escaping need) and deletes
// them.
func (p *Pipeline) deleteByRelativePath(ctx context.Context, collection, rel string) error {
	rel = strings.ReplaceAll(rel, `\`, "/")
	docs, err := p.deps.Store.Query(ctx, collection, "relative_path="+rel, nil, 0)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return p.deps.Store.Delete(ctx, collection, ids)
}
