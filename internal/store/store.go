// Package store holds the authoritative per-room message state: the
// one-shot fetched snapshot and the live-appended buffer, merged into a
// de-duplicated, time-ordered view.
package store

import (
	"cmp"
	"log"
	"slices"
	"strings"
	"sync"

	"github.com/lumachat/lumaclient/internal/types"
)

// LoadState describes a room's snapshot. NotLoaded and Failed are
// distinct from an empty snapshot so the view can tell "no messages
// yet" from "failed to load".
type LoadState int

const (
	NotLoaded LoadState = iota
	Loading
	Loaded
	Failed
)

func (s LoadState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	}
	return "not loaded"
}

type snapshot struct {
	state LoadState
	err   error
	msgs  []types.MessageResponse
}

// MessageStore owns the per-room snapshots and the live buffer. The
// buffer is shared across rooms because a feed's frames may outlive a
// room switch; Merged filters it to the requested room.
type MessageStore struct {
	mu        sync.RWMutex
	log       *log.Logger
	snapshots map[string]*snapshot
	buffer    []types.MessageResponse
}

func NewMessageStore(logger *log.Logger) *MessageStore {
	return &MessageStore{
		log:       logger,
		snapshots: make(map[string]*snapshot),
	}
}

func (s *MessageStore) BeginLoad(roomId string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[roomId] = &snapshot{state: Loading}
}

func (s *MessageStore) CompleteLoad(roomId string, msgs []types.MessageResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[roomId] = &snapshot{state: Loaded, msgs: slices.Clone(msgs)}
}

func (s *MessageStore) FailLoad(roomId string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[roomId] = &snapshot{state: Failed, err: err}
}

// State returns the snapshot state for a room and, for Failed, the
// load error.
func (s *MessageStore) State(roomId string) (LoadState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[roomId]
	if !ok {
		return NotLoaded, nil
	}

	return snap.state, snap.err
}

// Append adds a live frame to the buffer in arrival order.
func (s *MessageStore) Append(msg types.MessageResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer = append(s.buffer, msg)
}

// Merged produces the rendered view for a room: snapshot then buffer,
// buffer filtered to the room, de-duplicated by id with the buffer copy
// winning (it is the complete one, author resolved), ordered by
// CreatedAt with id as the tie-break. Recomputation is deterministic.
func (s *MessageStore) Merged(roomId string) []types.MessageResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var combined []types.MessageResponse
	if snap, ok := s.snapshots[roomId]; ok && snap.state == Loaded {
		combined = append(combined, snap.msgs...)
	}
	for _, msg := range s.buffer {
		if msg.RoomId == roomId {
			combined = append(combined, msg)
		}
	}

	merged := make([]types.MessageResponse, 0, len(combined))
	seen := make(map[string]int, len(combined))
	for _, msg := range combined {
		if i, ok := seen[msg.Id]; ok {
			merged[i] = msg
			continue
		}
		seen[msg.Id] = len(merged)
		merged = append(merged, msg)
	}

	slices.SortStableFunc(merged, func(a, b types.MessageResponse) int {
		if a.CreatedAt != b.CreatedAt {
			return cmp.Compare(a.CreatedAt, b.CreatedAt)
		}
		return strings.Compare(a.Id, b.Id)
	})

	return merged
}

// Latest returns the newest message of a room's merged view.
func (s *MessageStore) Latest(roomId string) (types.MessageResponse, bool) {
	merged := s.Merged(roomId)
	if len(merged) == 0 {
		return types.MessageResponse{}, false
	}

	return merged[len(merged)-1], true
}

// DiscardRoom drops a room's snapshot and its buffered frames, used
// when navigating away so stale results cannot leak into the next view.
func (s *MessageStore) DiscardRoom(roomId string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, roomId)

	kept := s.buffer[:0]
	for _, msg := range s.buffer {
		if msg.RoomId != roomId {
			kept = append(kept, msg)
		}
	}
	s.buffer = kept
}

// Reset drops all state. Called when the session ends.
func (s *MessageStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = make(map[string]*snapshot)
	s.buffer = nil
}
