// Package feed maintains the live WebSocket subscription for a room.
// One connection serves one room; navigating to another room means
// tearing this one down and dialing a fresh connection.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/lumachat/lumaclient/internal/stats"
	"github.com/lumachat/lumaclient/internal/transport"
	"github.com/lumachat/lumaclient/internal/types"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingInterval  = (pongWait * 9) / 10
	maxFrameSize  = 64 * 1024
	sendQueueSize = 64

	// outbound sends are limited to a burst of 5, refilling twice a second
	sendRate  = rate.Limit(2)
	sendBurst = 5
)

var (
	ErrNotOpen    = errors.New("subscription is not open")
	ErrTerminated = errors.New("subscription is terminated")
)

// State is the subscription lifecycle:
// Connecting → Open → (Closed | Reconnecting) → Open | Terminated.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateReconnecting
	StateClosed
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Dialer opens room subscriptions. It holds the feed base URL and the
// credential source; each Subscribe call produces an independent
// connection scoped to one room.
type Dialer struct {
	wsBase string
	tokens transport.TokenSource
	stats  stats.StatsProvider
	log    *log.Logger
	dialer *websocket.Dialer
}

func NewDialer(wsBase string, tokens transport.TokenSource, sp stats.StatsProvider, logger *log.Logger) *Dialer {
	return &Dialer{
		wsBase: wsBase,
		tokens: tokens,
		stats:  sp,
		log:    logger,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (d *Dialer) roomURL(roomId string) (string, error) {
	token, err := d.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}

	return d.wsBase + "/rooms/" + roomId + "?jwt=" + url.QueryEscape(token), nil
}

// Subscribe dials the room's feed and starts delivering decoded frames
// to onMessage. Frames for other rooms may still arrive late in a
// connection's life; the caller filters by room id when rendering.
func (d *Dialer) Subscribe(ctx context.Context, roomId string, onMessage func(types.MessageResponse)) (*Subscription, error) {
	sub := &Subscription{
		roomId:    roomId,
		dialer:    d,
		onMessage: onMessage,
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
		limiter:   rate.NewLimiter(sendRate, sendBurst),
		stats:     d.stats,
		log:       d.log,
	}
	sub.setState(StateConnecting)

	addr, err := d.roomURL(roomId)
	if err != nil {
		sub.setState(StateClosed)
		return nil, err
	}

	conn, _, err := d.dialer.DialContext(ctx, addr, nil)
	if err != nil {
		sub.setState(StateClosed)
		return nil, fmt.Errorf("dial room %s: %w", roomId, err)
	}

	go sub.run(conn)
	return sub, nil
}

// Subscription is a single room's live feed connection.
type Subscription struct {
	roomId    string
	dialer    *Dialer
	onMessage func(types.MessageResponse)
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32
	limiter   *rate.Limiter
	stats     stats.StatsProvider
	log       *log.Logger

	connMu sync.Mutex
	conn   *websocket.Conn
}

func (s *Subscription) RoomId() string {
	return s.roomId
}

func (s *Subscription) State() State {
	return State(s.state.Load())
}

func (s *Subscription) setState(st State) {
	s.state.Store(int32(st))
}

// outbound is the envelope for user-authored messages.
type outbound struct {
	Content string `json:"content"`
}

// Send queues a user-authored message. No local echo is synthesized:
// the message becomes visible only when the server reflects it back on
// the inbound stream.
func (s *Subscription) Send(ctx context.Context, content string) error {
	if st := s.State(); st != StateOpen {
		if st == StateTerminated {
			return ErrTerminated
		}
		return ErrNotOpen
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	frame, err := json.Marshal(outbound{Content: content})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the subscription down. The connection is never reused;
// a new room means a new Subscribe call.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.setState(StateTerminated)
		close(s.done)

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			conn.Close()
		}
	})

	return nil
}

func (s *Subscription) setConn(conn *websocket.Conn) {
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
}

func (s *Subscription) run(conn *websocket.Conn) {
	for {
		s.setConn(conn)
		if s.State() == StateTerminated {
			conn.Close()
			return
		}

		s.setState(StateOpen)
		s.pump(conn)
		conn.Close()

		if s.State() == StateTerminated {
			return
		}

		s.setState(StateReconnecting)
		next, ok := s.redial()
		if !ok {
			if s.State() != StateTerminated {
				s.setState(StateClosed)
			}
			return
		}

		s.stats.Incr(stats.FeedReconnects)
		conn = next
	}
}

// pump runs the read loop and a writer goroutine until the connection
// fails or the subscription is closed.
func (s *Subscription) pump(conn *websocket.Conn) {
	stopWriter := make(chan struct{})
	defer close(stopWriter)
	go s.writeLoop(conn, stopWriter)

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.log.Printf("feed %s: read: %v", s.roomId, err)
			}
			return
		}

		var msg types.MessageResponse
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Id == "" {
			// malformed frames are dropped; the connection stays open
			s.stats.Incr(stats.DecodeFailures)
			s.log.Printf("feed %s: dropping undecodable frame: %v", s.roomId, err)
			continue
		}

		s.onMessage(msg)
	}
}

func (s *Subscription) writeLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Printf("feed %s: write: %v", s.roomId, err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stop:
			return
		case <-s.done:
			return
		}
	}
}

// redial reconnects to the same room with a fresh connection, backing
// off between attempts. It gives up once the backoff schedule is
// exhausted or the subscription is closed.
func (s *Subscription) redial() (*websocket.Conn, bool) {
	for _, delay := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second} {
		select {
		case <-s.done:
			return nil, false
		case <-time.After(delay):
		}

		addr, err := s.dialer.roomURL(s.roomId)
		if err != nil {
			s.log.Printf("feed %s: redial: %v", s.roomId, err)
			return nil, false
		}

		conn, _, err := s.dialer.dialer.Dial(addr, nil)
		if err == nil {
			return conn, true
		}
		s.log.Printf("feed %s: redial: %v", s.roomId, err)
	}

	return nil, false
}
