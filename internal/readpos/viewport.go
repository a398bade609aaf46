package readpos

import "sync"

// Viewport mirrors the scroll position of the message list. The view
// layer feeds it sentinel visibility changes (the bottom sentinel being
// fully visible means the viewer is snapped to the newest message); the
// session consults it when a message arrives to choose between an
// auto-scroll and an unread marker.
type Viewport struct {
	mu       sync.Mutex
	atBottom bool
}

// NewViewport starts snapped to the bottom, matching a freshly opened
// room.
func NewViewport() *Viewport {
	return &Viewport{atBottom: true}
}

// SetAtBottom records the bottom sentinel's visibility.
func (v *Viewport) SetAtBottom(visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.atBottom = visible
}

func (v *Viewport) AtBottom() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.atBottom
}
