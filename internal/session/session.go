// Package session coordinates the active room: it owns the room
// switch, the subscribe-then-fetch ordering, and the guard that keeps a
// late snapshot from a previous room out of the current view.
package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/lumachat/lumaclient/internal/feed"
	"github.com/lumachat/lumaclient/internal/readpos"
	"github.com/lumachat/lumaclient/internal/stats"
	"github.com/lumachat/lumaclient/internal/store"
	"github.com/lumachat/lumaclient/internal/types"
)

var ErrNoActiveRoom = errors.New("no active room")

// MessageFetcher fetches a room's message snapshot.
type MessageFetcher interface {
	Messages(ctx context.Context, roomId string) ([]types.MessageResponse, error)
}

// Sub is a live room subscription.
type Sub interface {
	Send(ctx context.Context, content string) error
	Close() error
	State() feed.State
}

// Feed opens room subscriptions.
type Feed interface {
	Subscribe(ctx context.Context, roomId string, onMessage func(types.MessageResponse)) (Sub, error)
}

// DialerFeed adapts the concrete feed dialer to the Feed interface.
func DialerFeed(d *feed.Dialer) Feed {
	return dialerFeed{d}
}

type dialerFeed struct {
	d *feed.Dialer
}

func (f dialerFeed) Subscribe(ctx context.Context, roomId string, onMessage func(types.MessageResponse)) (Sub, error) {
	sub, err := f.d.Subscribe(ctx, roomId, onMessage)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Manager holds the one active room session. Navigating to a room
// tears down the previous subscription and discards results still in
// flight for it.
type Manager struct {
	api      MessageFetcher
	feed     Feed
	store    *store.MessageStore
	tracker  *readpos.Tracker
	viewport *readpos.Viewport
	stats    stats.StatsProvider
	log      *log.Logger

	onUpdate     func(roomId string)
	onAutoScroll func(roomId string)

	mu     sync.Mutex
	gen    int
	roomId string
	sub    Sub
}

func NewManager(api MessageFetcher, fd Feed, ms *store.MessageStore, tracker *readpos.Tracker,
	viewport *readpos.Viewport, sp stats.StatsProvider, logger *log.Logger) *Manager {
	return &Manager{
		api:      api,
		feed:     fd,
		store:    ms,
		tracker:  tracker,
		viewport: viewport,
		stats:    sp,
		log:      logger,
	}
}

// SetUpdateHandler registers the callback fired when a room's merged
// view changes.
func (m *Manager) SetUpdateHandler(handler func(roomId string)) {
	m.onUpdate = handler
}

// SetAutoScrollHandler registers the callback fired when the view
// should snap to the new bottom.
func (m *Manager) SetAutoScrollHandler(handler func(roomId string)) {
	m.onAutoScroll = handler
}

// Open makes room the active one. The feed subscription is established
// before the snapshot fetch so the window between the two cannot drop
// messages; overlap resolves through the store's de-duplication.
func (m *Manager) Open(ctx context.Context, room types.Room) error {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	prevSub, prevRoom := m.sub, m.roomId
	m.sub, m.roomId = nil, room.Id
	m.mu.Unlock()

	if prevSub != nil {
		prevSub.Close()
		m.store.DiscardRoom(prevRoom)
	}

	if room.Status != nil {
		m.tracker.SeedStatus(room.Id, *room.Status)
	}
	m.viewport.SetAtBottom(true)

	sub, err := m.feed.Subscribe(ctx, room.Id, m.handleMessage)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if gen != m.gen {
		// the viewer already navigated on
		m.mu.Unlock()
		sub.Close()
		return nil
	}
	m.sub = sub
	m.mu.Unlock()

	m.store.BeginLoad(room.Id)
	go m.loadSnapshot(ctx, gen, room.Id)

	return nil
}

func (m *Manager) loadSnapshot(ctx context.Context, gen int, roomId string) {
	msgs, err := m.api.Messages(ctx, roomId)

	m.mu.Lock()
	stale := gen != m.gen
	m.mu.Unlock()
	if stale {
		// a response for a room the viewer has left must not touch the
		// current room's state
		m.stats.Incr(stats.StalePayloads)
		m.log.Printf("session: discarding stale snapshot for room %s", roomId)
		return
	}

	if err != nil {
		m.store.FailLoad(roomId, err)
	} else {
		m.store.CompleteLoad(roomId, msgs)
	}

	m.notifyUpdate(roomId)
}

func (m *Manager) handleMessage(msg types.MessageResponse) {
	m.store.Append(msg)

	m.mu.Lock()
	active := m.roomId
	m.mu.Unlock()
	if msg.RoomId != active {
		return
	}

	if m.tracker.NoteArrival(msg.RoomId, msg, m.viewport.AtBottom()) && m.onAutoScroll != nil {
		m.onAutoScroll(msg.RoomId)
	}

	m.notifyUpdate(msg.RoomId)
}

func (m *Manager) notifyUpdate(roomId string) {
	if m.onUpdate != nil {
		m.onUpdate(roomId)
	}
}

// Send transmits user-authored content over the active subscription.
func (m *Manager) Send(ctx context.Context, content string) error {
	m.mu.Lock()
	sub := m.sub
	m.mu.Unlock()

	if sub == nil {
		return ErrNoActiveRoom
	}

	return sub.Send(ctx, content)
}

// Messages returns the active room's merged view.
func (m *Manager) Messages() []types.MessageResponse {
	m.mu.Lock()
	roomId := m.roomId
	m.mu.Unlock()

	if roomId == "" {
		return nil
	}

	return m.store.Merged(roomId)
}

// ActiveRoom returns the active room id, empty when none is open.
func (m *Manager) ActiveRoom() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.roomId
}

// Tracker exposes the read-position tracker for explicit mark actions.
func (m *Manager) Tracker() *readpos.Tracker {
	return m.tracker
}

// Viewport exposes the scroll-position mirror fed by the view layer.
func (m *Manager) Viewport() *readpos.Viewport {
	return m.viewport
}

// Close tears down the active subscription and discards its state.
func (m *Manager) Close() {
	m.mu.Lock()
	m.gen++
	sub, roomId := m.sub, m.roomId
	m.sub, m.roomId = nil, ""
	m.mu.Unlock()

	if sub != nil {
		sub.Close()
		m.store.DiscardRoom(roomId)
	}
}
