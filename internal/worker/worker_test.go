package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-harvester/internal/clock/system"
	"github.com/JakeFAU/review-harvester/internal/harvest"
	"github.com/JakeFAU/review-harvester/internal/progress"
	"github.com/JakeFAU/review-harvester/internal/queue/memory"
)

func TestWorkerReportsOutcomeAndEvents(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(2)
	target := harvest.Target{City: "Auckland", Name: "Hotel X", SeedURL: "https://www.booking.com/x.html"}
	require.NoError(t, q.Enqueue(context.Background(), target))
	q.Close()

	walker := &fakeWalker{results: map[string]harvest.WalkResult{
		target.SeedURL: {
			Records: []harvest.Record{{Score: 9}, {Score: 7}},
			Pages: []harvest.PageStat{
				{URL: target.SeedURL, StatusCode: 200, Bytes: 512, Records: 2, Duration: 40 * time.Millisecond},
			},
		},
	}}
	emitter := &recordingEmitter{}
	runID := uuid.New()
	w := New(1, walker, system.Fixed{T: time.Unix(100, 0)}, emitter, runID, nil)

	out := make(chan harvest.Outcome, 1)
	w.Run(context.Background(), context.Background(), q, out)

	require.Len(t, out, 1)
	outcome := <-out
	require.Equal(t, target, outcome.Target)
	require.Equal(t, harvest.OutcomeDone, outcome.Status())
	require.Len(t, outcome.Records, 2)

	events := emitter.Events()
	require.Len(t, events, 2)
	require.Equal(t, progress.StageTargetStart, events[0].Stage)
	require.Equal(t, progress.StagePageDone, events[1].Stage)
	require.Equal(t, progress.Status2xx, events[1].StatusClass)
	require.Equal(t, int64(512), events[1].Bytes)
	for _, evt := range events {
		require.Equal(t, progress.UUIDToBytes(runID), evt.RunID)
		require.NoError(t, evt.Validate())
	}
}

func TestWorkerFinishesWalkAfterCancel(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(2)
	first := harvest.Target{City: "A", Name: "First", SeedURL: "https://x/1"}
	second := harvest.Target{City: "A", Name: "Second", SeedURL: "https://x/2"}
	require.NoError(t, q.Enqueue(context.Background(), first))
	require.NoError(t, q.Enqueue(context.Background(), second))
	q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	walker := &fakeWalker{
		onWalk: func(walkCtx context.Context) {
			cancel()
			require.NoError(t, walkCtx.Err())
		},
		results: map[string]harvest.WalkResult{},
	}
	w := New(1, walker, system.New(), nil, uuid.New(), nil)

	out := make(chan harvest.Outcome, 2)
	w.Run(ctx, context.Background(), q, out)

	require.Len(t, out, 1)
	outcome := <-out
	require.Equal(t, first, outcome.Target)
	require.Equal(t, harvest.OutcomeEmpty, outcome.Status())
	require.Equal(t, 1, q.Len(), "second target stays queued")
}

type fakeWalker struct {
	mu      sync.Mutex
	results map[string]harvest.WalkResult
	onWalk  func(ctx context.Context)
	seen    []string
}

func (f *fakeWalker) Walk(ctx context.Context, seed string) harvest.WalkResult {
	if f.onWalk != nil {
		f.onWalk(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, seed)
	return f.results[seed]
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
