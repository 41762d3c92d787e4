package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/review-harvester/internal/harvest"
	"github.com/JakeFAU/review-harvester/internal/progress"
)

func TestProgressLine(t *testing.T) {
	t.Parallel()

	target := harvest.Target{City: "Auckland", Name: "Hotel X"}
	assert.Equal(t, "Scraped! Hotel X in Auckland. -> 12.50% (1/8)", ProgressLine(target, 1, 8))
	assert.Equal(t, "Scraped! Hotel X in Auckland. -> 100.00% (3/3)", ProgressLine(target, 3, 3))
	assert.Equal(t, "Scraped! Hotel X in Auckland. -> 0.00% (0/0)", ProgressLine(target, 0, 0))
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, &scriptedWalker{}, nil, nil)
	require.Error(t, err)
	_, err = New(Config{}, newFakeStore(), nil, nil, nil)
	require.Error(t, err)

	s, err := New(Config{}, newFakeStore(), &scriptedWalker{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConcurrency, s.cfg.Concurrency)
	assert.Equal(t, DefaultConcurrency, s.cfg.QueueDepth)
}

func TestRunClassifiesOutcomes(t *testing.T) {
	t.Parallel()

	targets := []harvest.Target{
		{City: "Auckland", Name: "Done", SeedURL: "https://x/done"},
		{City: "Auckland", Name: "Already", SeedURL: "https://x/already"},
		{City: "Auckland", Name: "Empty", SeedURL: "https://x/empty"},
		{City: "Nelson", Name: "Broken", SeedURL: "https://x/broken"},
		{City: "Nelson", Name: "Unwritable", SeedURL: "https://x/unwritable"},
	}
	store := newFakeStore()
	store.complete[targets[1].Key()] = true
	store.persistErr[targets[4].Key()] = errors.New("disk full")

	walker := &scriptedWalker{results: map[string]harvest.WalkResult{
		"https://x/done":       {Records: []harvest.Record{{Score: 8}}, Pages: []harvest.PageStat{{URL: "https://x/done", StatusCode: 200}}},
		"https://x/empty":      {Pages: []harvest.PageStat{{URL: "https://x/empty", StatusCode: 200}}},
		"https://x/broken":     {Failed: true, Err: &harvest.FetchError{URL: "https://x/broken", StatusCode: 503}, Pages: []harvest.PageStat{{URL: "https://x/broken", StatusCode: 503}}},
		"https://x/unwritable": {Records: []harvest.Record{{Score: 6}}},
	}}
	emitter := &recordingEmitter{}
	core, logs := observer.New(zapcore.InfoLevel)
	runID := uuid.MustParse("00000000-0000-0000-0000-000000000042")

	s, err := New(Config{Concurrency: 2}, store, walker, emitter, zap.New(core), WithRunIDs(fixedIDs{id: runID}))
	require.NoError(t, err)

	stats, err := s.Run(context.Background(), targets)
	require.NoError(t, err)
	assert.Equal(t, Stats{
		RunID:         runID,
		Total:         5,
		Skipped:       1,
		Pending:       4,
		Done:          1,
		Empty:         1,
		Failed:        2,
		PersistErrors: 1,
	}, stats)

	assert.Equal(t, 1, store.Flushes())
	assert.Len(t, store.Persisted(), 4)
	assert.NotContains(t, walker.Seen(), "https://x/already")

	lines := logs.FilterMessageSnippet("Scraped! ").All()
	require.Len(t, lines, 4)
	assert.Contains(t, lines[3].Message, "-> 100.00% (4/4)")

	stages := emitter.Stages()
	assert.Equal(t, progress.StageRunStart, stages[0])
	assert.Equal(t, progress.StageRunDone, stages[len(stages)-1])
	assert.Equal(t, 4, countStage(stages, progress.StageTargetStart))
	assert.Equal(t, 3, countStage(stages, progress.StagePageDone))
	assert.Equal(t, 1, countStage(stages, progress.StageTargetDone))
	assert.Equal(t, 1, countStage(stages, progress.StageTargetEmpty))
	assert.Equal(t, 2, countStage(stages, progress.StageTargetFailed))
	for _, evt := range emitter.Events() {
		assert.Equal(t, progress.UUIDToBytes(runID), evt.RunID)
	}
}

func TestRunNothingPending(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	target := harvest.Target{City: "A", Name: "B", SeedURL: "https://x/b"}
	store.complete[target.Key()] = true
	walker := &scriptedWalker{}

	s, err := New(Config{Concurrency: 3}, store, walker, nil, nil)
	require.NoError(t, err)
	stats, err := s.Run(context.Background(), []harvest.Target{target})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Pending)
	assert.Empty(t, walker.Seen())
	assert.Equal(t, 1, store.Flushes())
}

func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const (
		k = 4
		m = 24
	)
	targets := make([]harvest.Target, m)
	for i := range targets {
		targets[i] = harvest.Target{City: "C", Name: fmt.Sprintf("H%02d", i), SeedURL: fmt.Sprintf("https://x/%d", i)}
	}
	walker := &gaugeWalker{}
	s, err := New(Config{Concurrency: k}, newFakeStore(), walker, nil, nil)
	require.NoError(t, err)

	stats, err := s.Run(context.Background(), targets)
	require.NoError(t, err)
	assert.Equal(t, m, stats.Done)
	assert.LessOrEqual(t, walker.peak.Load(), int32(k))
	assert.GreaterOrEqual(t, walker.peak.Load(), int32(1))
}

func TestRunCancelLetsInFlightWalkFinish(t *testing.T) {
	t.Parallel()

	targets := []harvest.Target{
		{City: "A", Name: "First", SeedURL: "https://x/1"},
		{City: "A", Name: "Second", SeedURL: "https://x/2"},
		{City: "A", Name: "Third", SeedURL: "https://x/3"},
	}
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	walker := &blockingWalker{started: make(chan struct{}, 1), release: release}
	store := newFakeStore()

	s, err := New(Config{Concurrency: 1}, store, walker, nil, nil)
	require.NoError(t, err)

	type result struct {
		stats Stats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := s.Run(ctx, targets)
		done <- result{stats, err}
	}()

	<-walker.started
	cancel()
	close(release)

	select {
	case res := <-done:
		require.ErrorIs(t, res.err, context.Canceled)
		assert.Equal(t, 1, res.stats.Done)
		assert.Equal(t, 3, res.stats.Pending)
		assert.False(t, walker.ctxCanceled.Load(), "walk context must not be canceled")
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.Len(t, store.Persisted(), 1)
	assert.Equal(t, 1, store.Flushes())
}

func TestRunSurfacesReportError(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.flushErr = errors.New("read-only filesystem")
	s, err := New(Config{Concurrency: 1}, store, &scriptedWalker{}, nil, nil)
	require.NoError(t, err)

	stats, err := s.Run(context.Background(), []harvest.Target{{City: "A", Name: "B", SeedURL: "https://x/b"}})
	require.ErrorContains(t, err, "read-only filesystem")
	assert.Equal(t, 1, stats.Empty)
}

type fixedIDs struct{ id uuid.UUID }

func (f fixedIDs) NewRunID() (uuid.UUID, error) { return f.id, nil }

type fakeStore struct {
	mu         sync.Mutex
	complete   map[string]bool
	persistErr map[string]error
	persisted  []harvest.Outcome
	flushes    int
	flushErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{complete: map[string]bool{}, persistErr: map[string]error{}}
}

func (f *fakeStore) IsComplete(t harvest.Target) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.complete[t.Key()]
}

func (f *fakeStore) Persist(_ context.Context, o harvest.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted = append(f.persisted, o)
	if err := f.persistErr[o.Target.Key()]; err != nil {
		return &harvest.PersistError{Target: o.Target, Path: "x", Err: err}
	}
	return nil
}

func (f *fakeStore) FlushFailureReport(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return f.flushErr
}

func (f *fakeStore) Persisted() []harvest.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]harvest.Outcome(nil), f.persisted...)
}

func (f *fakeStore) Flushes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes
}

type scriptedWalker struct {
	mu      sync.Mutex
	results map[string]harvest.WalkResult
	seen    []string
}

func (w *scriptedWalker) Walk(_ context.Context, seed string) harvest.WalkResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = append(w.seen, seed)
	return w.results[seed]
}

func (w *scriptedWalker) Seen() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.seen...)
}

type gaugeWalker struct {
	mu       sync.Mutex
	inFlight int32
	peak     atomic.Int32
}

func (g *gaugeWalker) Walk(context.Context, string) harvest.WalkResult {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.peak.Load() {
		g.peak.Store(g.inFlight)
	}
	g.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	return harvest.WalkResult{Records: []harvest.Record{{Score: 5}}}
}

type blockingWalker struct {
	started     chan struct{}
	release     chan struct{}
	ctxCanceled atomic.Bool
}

func (b *blockingWalker) Walk(ctx context.Context, _ string) harvest.WalkResult {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	if ctx.Err() != nil {
		b.ctxCanceled.Store(true)
	}
	return harvest.WalkResult{Records: []harvest.Record{{Score: 7}}}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

func (r *recordingEmitter) Stages() []progress.Stage {
	var out []progress.Stage
	for _, evt := range r.Events() {
		out = append(out, evt.Stage)
	}
	return out
}

func countStage(stages []progress.Stage, want progress.Stage) int {
	n := 0
	for _, s := range stages {
		if s == want {
			n++
		}
	}
	return n
}
