package fetcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/civicgraph/harvester/internal/crawler"
)

// Detector decides whether a probe fetch needs a headless rerun.
type Detector interface {
	ShouldPromote(html string) bool
}

// Promoting fetches with a cheap HTTP probe first and reruns the page in a
// headless browser when the probe looks like an unrendered script shell. A
// failed headless rerun falls back to the probe snapshot rather than failing
// the fetch.
type Promoting struct {
	probe    crawler.Fetcher
	headless crawler.Fetcher
	detector Detector
	logger   *zap.Logger
}

// NewPromoting wires the probe, detector, and headless fetchers together.
// headless may be nil, in which case promotion is disabled.
func NewPromoting(probe crawler.Fetcher, headless crawler.Fetcher, detector Detector, logger *zap.Logger) *Promoting {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{probe: probe, headless: headless, detector: detector, logger: logger}
}

// Fetch implements crawler.Fetcher.
func (p *Promoting) Fetch(ctx context.Context, url string) (crawler.PageSnapshot, error) {
	snap, err := p.probe.Fetch(ctx, url)
	if err != nil {
		return crawler.PageSnapshot{}, err
	}
	if p.headless == nil || p.detector == nil || !p.detector.ShouldPromote(snap.HTML) {
		return snap, nil
	}

	rendered, err := p.headless.Fetch(ctx, url)
	if err != nil {
		p.logger.Warn("headless promotion failed, keeping probe snapshot",
			zap.String("url", url), zap.Error(err))
		return snap, nil
	}
	return rendered, nil
}
