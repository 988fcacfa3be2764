package archive

import (
	"context"
	"fmt"
	"path/filepath"
)

// Artifacts names the local report files produced by one analysis run,
// any of which may be empty when that output was not requested.
type Artifacts struct {
	SummaryPath    string
	DOTPath        string
	FlamegraphPath string
}

// UploadResult maps each uploaded artifact kind to its public COS URL.
type UploadResult struct {
	SummaryURL    string
	DOTURL        string
	FlamegraphURL string
}

// UploadRun uploads every non-empty artifact under a key prefix derived
// from runID, so repeated runs against the same bucket do not collide.
func (a *Archiver) UploadRun(ctx context.Context, runID string, artifacts Artifacts) (*UploadResult, error) {
	result := &UploadResult{}

	if artifacts.SummaryPath != "" {
		key := fmt.Sprintf("heapdom/%s/%s", runID, filepath.Base(artifacts.SummaryPath))
		if err := a.UploadFile(ctx, key, artifacts.SummaryPath); err != nil {
			return nil, err
		}
		result.SummaryURL = a.URL(key)
	}

	if artifacts.DOTPath != "" {
		key := fmt.Sprintf("heapdom/%s/%s", runID, filepath.Base(artifacts.DOTPath))
		if err := a.UploadFile(ctx, key, artifacts.DOTPath); err != nil {
			return nil, err
		}
		result.DOTURL = a.URL(key)
	}

	if artifacts.FlamegraphPath != "" {
		key := fmt.Sprintf("heapdom/%s/%s", runID, filepath.Base(artifacts.FlamegraphPath))
		if err := a.UploadFile(ctx, key, artifacts.FlamegraphPath); err != nil {
			return nil, err
		}
		result.FlamegraphURL = a.URL(key)
	}

	return result, nil
}
