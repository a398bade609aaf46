package readpos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumachat/lumaclient/internal/stats"
	"github.com/lumachat/lumaclient/internal/testutil"
	"github.com/lumachat/lumaclient/internal/types"
)

// persistRecorder captures calls to the persistence function.
type persistRecorder struct {
	mu    sync.Mutex
	calls []string // "roomId:msgId"
	errs  []error  // error per call, nil beyond the end
	done  chan struct{}
}

func newPersistRecorder(errs ...error) *persistRecorder {
	return &persistRecorder{errs: errs, done: make(chan struct{}, 16)}
}

func (p *persistRecorder) persist(_ context.Context, roomId, msgId string) error {
	p.mu.Lock()
	n := len(p.calls)
	p.calls = append(p.calls, fmt.Sprintf("%s:%s", roomId, msgId))
	p.mu.Unlock()

	p.done <- struct{}{}
	if n < len(p.errs) {
		return p.errs[n]
	}
	return nil
}

func (p *persistRecorder) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *persistRecorder) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-p.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for persistence call %d", i+1)
		}
	}
}

func newTestTracker(t *testing.T, rec *persistRecorder) *Tracker {
	tracker := NewTracker(rec.persist, stats.NewStatsUpdater(), testutil.TestLogger(t))
	tracker.delay = 20 * time.Millisecond
	tracker.backoff = []time.Duration{time.Millisecond, time.Millisecond}
	return tracker
}

func TestMarkReadCoalescesRapidUpdates(t *testing.T) {
	rec := newPersistRecorder()
	tracker := newTestTracker(t, rec)

	// a scroll burst: updates arrive far faster than a round trip
	for i := 1; i <= 5; i++ {
		tracker.MarkRead("r1", fmt.Sprintf("m%d", i))
	}

	assert.Equal(t, "m5", tracker.LastRead("r1"), "expected the local pointer to move immediately")

	rec.wait(t, 1)
	time.Sleep(100 * time.Millisecond)

	calls := rec.snapshot()
	require.Len(t, calls, 1, "expected the burst to collapse into one write")
	assert.Equal(t, "r1:m5", calls[0], "expected the write to carry the newest value")
}

func TestMarkUnread(t *testing.T) {
	rec := newPersistRecorder()
	tracker := newTestTracker(t, rec)
	tracker.SeedStatus("r1", types.RoomUserStatus{LastReadMsgId: "m3", IsCleared: true})

	tracker.MarkUnread("r1", "m1")

	assert.Equal(t, "m1", tracker.LastRead("r1"), "expected the pointer rewound immediately")
	assert.False(t, tracker.IsCleared("r1"), "expected mark-unread to freeze the boundary")

	rec.wait(t, 1)
	calls := rec.snapshot()
	require.Len(t, calls, 1, "expected exactly one persistence call")
	assert.Equal(t, "r1:m1", calls[0])
}

func TestSeedStatusDoesNotPersist(t *testing.T) {
	rec := newPersistRecorder()
	tracker := newTestTracker(t, rec)

	tracker.SeedStatus("r1", types.RoomUserStatus{LastReadMsgId: "m7", IsCleared: true})
	assert.Equal(t, "m7", tracker.LastRead("r1"))

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, rec.snapshot(), "expected seeding to issue no write, the server already holds it")
}

func TestMarkReadAtCurrentPointerIsNoOp(t *testing.T) {
	rec := newPersistRecorder()
	tracker := newTestTracker(t, rec)
	tracker.SeedStatus("r1", types.RoomUserStatus{LastReadMsgId: "m7", IsCleared: true})

	tracker.MarkRead("r1", "m7")

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, rec.snapshot(), "expected no write when the pointer did not move")
}

func TestNoteArrival(t *testing.T) {
	t.Run("at bottom and cleared advances the boundary", func(t *testing.T) {
		rec := newPersistRecorder()
		tracker := newTestTracker(t, rec)
		tracker.SeedStatus("r1", types.RoomUserStatus{LastReadMsgId: "m1", IsCleared: true})

		msg := testutil.NewMessage("r1", "hello", 1000)
		autoScroll := tracker.NoteArrival("r1", msg, true)

		assert.True(t, autoScroll, "expected an auto-scroll request when snapped to bottom")
		assert.Equal(t, msg.Id, tracker.LastRead("r1"), "expected the boundary to advance")
	})

	t.Run("at bottom but not cleared keeps the boundary", func(t *testing.T) {
		rec := newPersistRecorder()
		tracker := newTestTracker(t, rec)
		tracker.SeedStatus("r1", types.RoomUserStatus{LastReadMsgId: "m1", IsCleared: false})

		autoScroll := tracker.NoteArrival("r1", testutil.NewMessage("r1", "hello", 1000), true)

		assert.True(t, autoScroll, "expected auto-scroll to follow the sentinel, not the boundary")
		assert.Equal(t, "m1", tracker.LastRead("r1"), "expected the frozen boundary to stay")
	})

	t.Run("scrolled away appends without scrolling", func(t *testing.T) {
		rec := newPersistRecorder()
		tracker := newTestTracker(t, rec)
		tracker.SeedStatus("r1", types.RoomUserStatus{LastReadMsgId: "m1", IsCleared: true})

		autoScroll := tracker.NoteArrival("r1", testutil.NewMessage("r1", "hello", 1000), false)

		assert.False(t, autoScroll, "expected no auto-scroll away from the bottom")
		assert.Equal(t, "m1", tracker.LastRead("r1"), "expected the unread marker position to hold")
	})
}

func TestPersistRetriesOnFailure(t *testing.T) {
	rec := newPersistRecorder(errors.New("unavailable"))
	tracker := newTestTracker(t, rec)

	tracker.MarkRead("r1", "m1")

	rec.wait(t, 2)
	calls := rec.snapshot()
	require.Len(t, calls, 2, "expected a failed write to retry")
	assert.Equal(t, "r1:m1", calls[0])
	assert.Equal(t, "r1:m1", calls[1], "expected the retry to carry the same value")

	assert.Equal(t, "m1", tracker.LastRead("r1"), "expected the optimistic pointer untouched by the failure")
}

func TestFailedWriteAbandonedWhenSuperseded(t *testing.T) {
	block := make(chan struct{})
	var calls []string
	var mu sync.Mutex

	persist := func(_ context.Context, roomId, msgId string) error {
		mu.Lock()
		calls = append(calls, msgId)
		n := len(calls)
		mu.Unlock()

		if n == 1 {
			<-block // hold the first write until the newer update lands
			return errors.New("unavailable")
		}
		return nil
	}

	tracker := NewTracker(persist, stats.NewStatsUpdater(), testutil.TestLogger(t))
	tracker.delay = time.Millisecond
	tracker.backoff = []time.Duration{time.Millisecond, time.Millisecond}

	tracker.MarkRead("r1", "m1")
	time.Sleep(20 * time.Millisecond) // let the first write start
	tracker.MarkRead("r1", "m2")
	close(block)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 2 && calls[1] == "m2"
	}, 2*time.Second, 5*time.Millisecond, "expected the failed stale write abandoned in favor of the newer value")
}
