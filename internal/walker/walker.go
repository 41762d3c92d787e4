// Package walker drives the page walk for one target: fetch a page, extract
// its reviews, follow the next-page link, until the listing is exhausted or
// a fetch fails.
package walker

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-harvester/internal/harvest"
)

// Config controls Walker behavior.
type Config struct {
	// UserAgent is sent with every page request.
	UserAgent string
	// MaxPages stops a walk after this many pages; 0 means unbounded.
	MaxPages int
}

type state int

const (
	stateFetching state = iota
	stateExtracting
	stateDone
	stateFailed
)

// Walker executes page walks. A Walker is safe for concurrent use as long
// as its Fetcher and extractor are.
type Walker struct {
	fetcher   harvest.Fetcher
	extractor harvest.PageExtractor
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Walker.
func New(fetcher harvest.Fetcher, extractor harvest.PageExtractor, cfg Config, logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{
		fetcher:   fetcher,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
	}
}

// run is the mutable state of a single walk.
type run struct {
	current     string
	body        []byte
	accumulated []harvest.Record
	pages       []harvest.PageStat
	err         error
}

// Walk follows the listing that starts at seedURL. Pages are fetched
// strictly one after another. Any failure discards the records gathered so
// far and yields a failed result.
func (w *Walker) Walk(ctx context.Context, seedURL string) harvest.WalkResult {
	r := &run{current: seedURL}
	st := stateFetching
	for st != stateDone && st != stateFailed {
		switch st {
		case stateFetching:
			st = w.fetch(ctx, r)
		case stateExtracting:
			st = w.extract(r)
		}
	}

	if st == stateFailed {
		w.logger.Warn("walk failed",
			zap.String("seed", seedURL),
			zap.String("url", r.current),
			zap.Int("pages", len(r.pages)),
			zap.Error(r.err),
		)
		return harvest.WalkResult{Failed: true, Err: r.err, Pages: r.pages}
	}
	return harvest.WalkResult{Records: r.accumulated, Pages: r.pages}
}

func (w *Walker) fetch(ctx context.Context, r *run) state {
	if w.fetcher == nil {
		r.err = &harvest.FetchError{URL: r.current, Err: errors.New("no fetcher configured")}
		return stateFailed
	}
	headers := http.Header{}
	if w.cfg.UserAgent != "" {
		headers.Set("User-Agent", w.cfg.UserAgent)
	}
	resp, err := w.fetcher.Fetch(ctx, harvest.FetchRequest{URL: r.current, Headers: headers})
	stat := harvest.PageStat{
		URL:        r.current,
		StatusCode: resp.StatusCode,
		Bytes:      len(resp.Body),
		Duration:   resp.Duration,
	}
	r.pages = append(r.pages, stat)

	if err != nil {
		var fetchErr *harvest.FetchError
		if !errors.As(err, &fetchErr) {
			err = &harvest.FetchError{URL: r.current, StatusCode: resp.StatusCode, Err: err}
		}
		r.err = err
		return stateFailed
	}
	if resp.StatusCode != http.StatusOK {
		r.err = &harvest.FetchError{URL: r.current, StatusCode: resp.StatusCode}
		return stateFailed
	}

	w.logger.Debug("processing reviews", zap.String("url", r.current), zap.Int("bytes", len(resp.Body)))
	r.body = resp.Body
	return stateExtracting
}

func (w *Walker) extract(r *run) state {
	page, err := w.extractor.Extract(r.body)
	r.body = nil
	if err != nil {
		var malformed *harvest.MalformedRecordError
		if errors.As(err, &malformed) && malformed.URL == "" {
			malformed.URL = r.current
		}
		r.err = err
		return stateFailed
	}

	r.accumulated = append(r.accumulated, page.Records...)
	r.pages[len(r.pages)-1].Records = len(page.Records)

	if !page.HasNext() {
		w.logger.Debug("no next page", zap.String("url", r.current), zap.Int("records", len(r.accumulated)))
		return stateDone
	}
	if w.cfg.MaxPages > 0 && len(r.pages) >= w.cfg.MaxPages {
		w.logger.Warn("page limit reached, stopping walk",
			zap.String("url", r.current),
			zap.Int("max_pages", w.cfg.MaxPages),
		)
		return stateDone
	}
	r.current = page.NextURL
	return stateFetching
}
