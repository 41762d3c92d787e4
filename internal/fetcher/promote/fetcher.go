// Package promote combines a plain HTTP fetcher with a headless one: pages
// are fetched cheaply first and only re-rendered when the detector flags the
// response as a script shell.
package promote

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-harvester/internal/harvest"
)

// Detector flags responses that need rendering.
type Detector interface {
	ShouldPromote(resp harvest.FetchResponse) bool
}

// Fetcher implements harvest.Fetcher.
type Fetcher struct {
	probe    harvest.Fetcher
	headless harvest.Fetcher
	detector Detector
	logger   *zap.Logger
}

// New returns a promoting fetcher. With a nil headless fetcher or detector
// it behaves exactly like probe.
func New(probe, headless harvest.Fetcher, detector Detector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{probe: probe, headless: headless, detector: detector, logger: logger.Named("promote")}
}

// Fetch probes the page and promotes it when needed. A failed headless
// fetch falls back to the probe response.
func (f *Fetcher) Fetch(ctx context.Context, request harvest.FetchRequest) (harvest.FetchResponse, error) {
	resp, err := f.probe.Fetch(ctx, request)
	if err != nil || f.headless == nil || f.detector == nil || !f.detector.ShouldPromote(resp) {
		return resp, err
	}

	rendered, err := f.headless.Fetch(ctx, request)
	if err != nil {
		f.logger.Warn("headless promotion failed", zap.String("url", request.URL), zap.Error(err))
		return resp, nil
	}
	f.logger.Debug("headless promotion applied", zap.String("url", request.URL))
	return rendered, nil
}
