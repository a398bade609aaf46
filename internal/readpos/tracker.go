// Package readpos tracks the read boundary of each room: the last
// message the viewer is considered to have seen, mirrored locally and
// persisted to the backend with coalescing.
package readpos

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lumachat/lumaclient/internal/stats"
	"github.com/lumachat/lumaclient/internal/types"
)

const persistTimeout = 10 * time.Second

// coalesceDelay is how long a flush waits before taking the pending
// value, so a burst of scroll-driven updates becomes a single write
// carrying the newest pointer.
const coalesceDelay = 150 * time.Millisecond

// retry schedule for a failed persistence call; a write is abandoned
// early only when a newer pointer value supersedes it
var retryBackoff = []time.Duration{250 * time.Millisecond, time.Second, 4 * time.Second}

// PersistFunc issues the PATCH carrying a room's new read boundary.
type PersistFunc func(ctx context.Context, roomId, lastReadMsgId string) error

// Tracker owns the local read pointers. Updates are optimistic: the
// pointer moves immediately and is never rolled back; persistence
// happens asynchronously with at most one in-flight call per room,
// where a newer local update supersedes a stale pending value.
type Tracker struct {
	mu      sync.Mutex
	rooms   map[string]*roomState
	persist PersistFunc
	stats   stats.StatsProvider
	log     *log.Logger

	// backoff and delay are swapped out by tests
	backoff []time.Duration
	delay   time.Duration
}

type roomState struct {
	lastRead  string
	isCleared bool
	pending   string // value awaiting persistence, "" when none
	inFlight  bool
}

func NewTracker(persist PersistFunc, sp stats.StatsProvider, logger *log.Logger) *Tracker {
	return &Tracker{
		rooms:   make(map[string]*roomState),
		persist: persist,
		stats:   sp,
		log:     logger,
		backoff: retryBackoff,
		delay:   coalesceDelay,
	}
}

func (t *Tracker) room(roomId string) *roomState {
	rs, ok := t.rooms[roomId]
	if !ok {
		rs = &roomState{}
		t.rooms[roomId] = rs
	}
	return rs
}

// SeedStatus installs the server-persisted status fetched with a room.
// It does not trigger a write: the server already holds this value.
func (t *Tracker) SeedStatus(roomId string, status types.RoomUserStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rs := t.room(roomId)
	rs.lastRead = status.LastReadMsgId
	rs.isCleared = status.IsCleared
}

// LastRead returns the room's local read boundary.
func (t *Tracker) LastRead(roomId string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.room(roomId).lastRead
}

// IsCleared reports whether the viewer had caught up with the room, the
// anchor condition for advancing the boundary on arrival.
func (t *Tracker) IsCleared(roomId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.room(roomId).isCleared
}

// MarkRead moves the boundary to msgId and schedules one coalesced
// persistence call.
func (t *Tracker) MarkRead(roomId, msgId string) {
	t.setPointer(roomId, msgId, true)
}

// MarkUnread rewinds the boundary to msgId, freezing it against
// automatic advancement, and schedules one coalesced persistence call.
func (t *Tracker) MarkUnread(roomId, msgId string) {
	t.setPointer(roomId, msgId, false)
}

func (t *Tracker) setPointer(roomId, msgId string, cleared bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rs := t.room(roomId)
	if rs.lastRead == msgId && rs.isCleared == cleared {
		// pointer is already there, nothing new to persist
		return
	}
	rs.lastRead = msgId
	rs.isCleared = cleared
	rs.pending = msgId

	if !rs.inFlight {
		rs.inFlight = true
		go t.flush(roomId)
	}
}

// NoteArrival records a newly appended message and reports whether the
// view should auto-scroll to the new bottom. When the viewer is snapped
// to the bottom sentinel and had cleared the room, the boundary
// advances with the message; otherwise the message renders behind the
// existing unread marker.
func (t *Tracker) NoteArrival(roomId string, msg types.MessageResponse, atBottom bool) bool {
	if !atBottom {
		return false
	}

	if t.IsCleared(roomId) {
		t.MarkRead(roomId, msg.Id)
	}

	return true
}

// flush drains a room's pending value, retrying failures with backoff.
// Exactly one flush runs per room at a time; every iteration waits out
// the coalescing window and then picks up the newest pending value, so
// rapid updates collapse into one write.
func (t *Tracker) flush(roomId string) {
	for {
		time.Sleep(t.delay)

		t.mu.Lock()
		rs := t.room(roomId)
		value := rs.pending
		rs.pending = ""
		if value == "" {
			rs.inFlight = false
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()

		t.persistWithRetry(roomId, value)
	}
}

func (t *Tracker) persistWithRetry(roomId, value string) {
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := t.persist(ctx, roomId, value)
		cancel()

		if err == nil {
			t.stats.Incr(stats.ReadPosPersisted)
			return
		}

		if attempt >= len(t.backoff) {
			t.log.Printf("readpos %s: giving up on %q: %v", roomId, value, err)
			return
		}

		t.log.Printf("readpos %s: persist %q failed, retrying: %v", roomId, value, err)
		t.stats.Incr(stats.ReadPosRetries)
		time.Sleep(t.backoff[attempt])

		// a newer pointer supersedes this write; drop it and let the
		// flush loop pick up the fresh value
		t.mu.Lock()
		superseded := t.room(roomId).pending != ""
		t.mu.Unlock()
		if superseded {
			t.log.Printf("readpos %s: pending write for %q superseded", roomId, value)
			return
		}
	}
}
