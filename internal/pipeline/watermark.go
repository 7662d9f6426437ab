package pipeline

import (
	"context"
)

// Watermarker stamps transformed images before they reach the user. The
// stage is best-effort: a failed stamp never fails the run.
type Watermarker interface {
	Apply(ctx context.Context, data []byte, mimeType string) ([]byte, error)
}

// NoopWatermarker returns the image unchanged. The pixel work lives in a
// downstream service; the pipeline owns only the stage bookkeeping.
type NoopWatermarker struct{}

func (NoopWatermarker) Apply(_ context.Context, data []byte, _ string) ([]byte, error) {
	return data, nil
}
