package walker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-harvester/internal/extract"
	"github.com/JakeFAU/review-harvester/internal/harvest"
)

const testUA = "harvest-test-agent"

func TestWalkSinglePageFetchesOnce(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["https://h/seed"] = fakePage{status: http.StatusOK, body: "p1"}
	ex := &fakeExtractor{results: map[string]harvest.PageResult{
		"p1": {Records: []harvest.Record{{ReviewerName: "a"}, {ReviewerName: "b"}}},
	}}

	w := New(fetcher, ex, Config{UserAgent: testUA}, zap.NewNop())
	result := w.Walk(context.Background(), "https://h/seed")

	require.False(t, result.Failed)
	require.NoError(t, result.Err)
	require.Equal(t, []string{"https://h/seed"}, fetcher.Calls())
	require.Equal(t, []string{"a", "b"}, names(result.Records))
	require.Len(t, result.Pages, 1)
	require.Equal(t, 2, result.Pages[0].Records)
	require.Equal(t, testUA, fetcher.LastUserAgent())
}

func TestWalkFollowsChainInPageOrder(t *testing.T) {
	t.Parallel()

	const n = 5
	fetcher := newFakeFetcher()
	ex := &fakeExtractor{results: map[string]harvest.PageResult{}}
	for i := 1; i <= n; i++ {
		url := fmt.Sprintf("https://h/p%d", i)
		body := fmt.Sprintf("body%d", i)
		fetcher.pages[url] = fakePage{status: http.StatusOK, body: body}
		next := ""
		if i < n {
			next = fmt.Sprintf("https://h/p%d", i+1)
		}
		ex.results[body] = harvest.PageResult{
			Records: []harvest.Record{
				{ReviewerName: fmt.Sprintf("%d-top", i)},
				{ReviewerName: fmt.Sprintf("%d-bottom", i)},
			},
			NextURL: next,
		}
	}

	w := New(fetcher, ex, Config{}, nil)
	result := w.Walk(context.Background(), "https://h/p1")

	require.False(t, result.Failed)
	require.Len(t, fetcher.Calls(), n)
	require.Len(t, result.Pages, n)
	want := make([]string, 0, 2*n)
	for i := 1; i <= n; i++ {
		want = append(want, fmt.Sprintf("%d-top", i), fmt.Sprintf("%d-bottom", i))
	}
	require.Equal(t, want, names(result.Records))
}

func TestWalkNonOKStatusFailsAndDiscardsRecords(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["https://h/p1"] = fakePage{status: http.StatusOK, body: "p1"}
	fetcher.pages["https://h/p2"] = fakePage{status: http.StatusForbidden}
	ex := &fakeExtractor{results: map[string]harvest.PageResult{
		"p1": {Records: []harvest.Record{{ReviewerName: "a"}}, NextURL: "https://h/p2"},
	}}

	w := New(fetcher, ex, Config{}, zap.NewNop())
	result := w.Walk(context.Background(), "https://h/p1")

	require.True(t, result.Failed)
	require.Nil(t, result.Records)
	require.Len(t, fetcher.Calls(), 2)

	var fetchErr *harvest.FetchError
	require.ErrorAs(t, result.Err, &fetchErr)
	require.Equal(t, http.StatusForbidden, fetchErr.StatusCode)
	require.Equal(t, "https://h/p2", fetchErr.URL)
}

func TestWalkTransportErrorFails(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["https://h/seed"] = fakePage{err: errors.New("dial tcp: refused")}

	w := New(fetcher, &fakeExtractor{}, Config{}, zap.NewNop())
	result := w.Walk(context.Background(), "https://h/seed")

	require.True(t, result.Failed)
	var fetchErr *harvest.FetchError
	require.ErrorAs(t, result.Err, &fetchErr)
	require.Contains(t, fetchErr.Error(), "refused")
	require.Len(t, fetcher.Calls(), 1)
}

func TestWalkMalformedPageFailsWithURL(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["https://h/seed"] = fakePage{status: http.StatusOK, body: "bad"}
	ex := &fakeExtractor{errs: map[string]error{
		"bad": &harvest.MalformedRecordError{Index: 0, Field: "score", Value: "x"},
	}}

	w := New(fetcher, ex, Config{}, zap.NewNop())
	result := w.Walk(context.Background(), "https://h/seed")

	require.True(t, result.Failed)
	var malformed *harvest.MalformedRecordError
	require.ErrorAs(t, result.Err, &malformed)
	require.Equal(t, "https://h/seed", malformed.URL)
}

func TestWalkMaxPagesStopsEarly(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["https://h/p1"] = fakePage{status: http.StatusOK, body: "p1"}
	fetcher.pages["https://h/p2"] = fakePage{status: http.StatusOK, body: "p2"}
	ex := &fakeExtractor{results: map[string]harvest.PageResult{
		"p1": {Records: []harvest.Record{{ReviewerName: "a"}}, NextURL: "https://h/p2"},
		"p2": {Records: []harvest.Record{{ReviewerName: "b"}}, NextURL: "https://h/p1"},
	}}

	w := New(fetcher, ex, Config{MaxPages: 2}, zap.NewNop())
	result := w.Walk(context.Background(), "https://h/p1")

	require.False(t, result.Failed)
	require.Equal(t, []string{"a", "b"}, names(result.Records))
	require.Len(t, fetcher.Calls(), 2)
}

func TestWalkWithRealExtractorScenario(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["https://www.booking.com/hotelx/review"] = fakePage{
		status: http.StatusOK,
		body: `<html><body><ul><li itemprop="review">` +
			`<p class="review_item_date">Reviewed: 3 March 2021</p>` +
			`<span class="review-score-badge">8.5</span>` +
			`<p class="review_pos"><span itemprop="reviewBody">Great stay</span></p>` +
			`</li></ul></body></html>`,
	}
	ex, err := extract.New("https://www.booking.com")
	require.NoError(t, err)

	w := New(fetcher, ex, Config{UserAgent: testUA}, zap.NewNop())
	result := w.Walk(context.Background(), "https://www.booking.com/hotelx/review")

	require.False(t, result.Failed)
	require.Len(t, result.Records, 1)
	require.Equal(t, "3 March 2021", result.Records[0].Date)
	require.InDelta(t, 8.5, result.Records[0].Score, 1e-9)
	require.Equal(t, "Great stay ", result.Records[0].Content)
	require.Len(t, fetcher.Calls(), 1)
}

func TestWalkWithoutFetcherFails(t *testing.T) {
	t.Parallel()

	w := New(nil, &fakeExtractor{}, Config{}, nil)
	result := w.Walk(context.Background(), "https://h/seed")
	require.True(t, result.Failed)
	require.Error(t, result.Err)
}

func names(records []harvest.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ReviewerName)
	}
	return out
}

type fakePage struct {
	status int
	body   string
	err    error
}

type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]fakePage
	calls  []string
	lastUA string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]fakePage{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, req harvest.FetchRequest) (harvest.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.URL)
	f.lastUA = req.Headers.Get("User-Agent")
	p, ok := f.pages[req.URL]
	if !ok {
		return harvest.FetchResponse{URL: req.URL, StatusCode: http.StatusNotFound}, nil
	}
	if p.err != nil {
		return harvest.FetchResponse{}, p.err
	}
	return harvest.FetchResponse{URL: req.URL, StatusCode: p.status, Body: []byte(p.body)}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeFetcher) LastUserAgent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUA
}

type fakeExtractor struct {
	results map[string]harvest.PageResult
	errs    map[string]error
}

func (e *fakeExtractor) Extract(body []byte) (harvest.PageResult, error) {
	if err, ok := e.errs[string(body)]; ok {
		return harvest.PageResult{}, err
	}
	return e.results[string(body)], nil
}
