// Package client is the typed API surface over the transport adapter:
// sessions, servers, rooms, message snapshots and read-status updates.
package client

import (
	"context"
	"errors"
	"log"

	"github.com/lumachat/lumaclient/internal/cache"
	"github.com/lumachat/lumaclient/internal/transport"
	"github.com/lumachat/lumaclient/internal/types"
)

// ErrUnauthenticated is the recoverable "no valid session" state: the
// caller should route the user to login, not report a failure.
var ErrUnauthenticated = errors.New("not authenticated")

// ErrNotFound covers entities missing from the backend or the cache;
// the view renders it as an explicit not-found state.
var ErrNotFound = errors.New("not found")

type Client struct {
	transport *transport.Client
	cache     *cache.Service
	log       *log.Logger
}

func NewClient(tc *transport.Client, cs *cache.Service, logger *log.Logger) *Client {
	return &Client{
		transport: tc,
		cache:     cs,
		log:       logger,
	}
}

type sessionRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

// Login creates a session and returns the user with the bearer token to
// store.
func (c *Client) Login(ctx context.Context, username, password string) (types.User, string, error) {
	var resp sessionResponse
	if err := c.transport.Post(ctx, "/auth/sessions", sessionRequest{Username: username, Password: password}, &resp); err != nil {
		return types.User{}, "", err
	}

	return resp.User, resp.Token, nil
}

// CurrentUser performs the session check. A missing or invalid session
// is reported as ErrUnauthenticated, an expected state rather than a
// failure.
func (c *Client) CurrentUser(ctx context.Context) (types.User, error) {
	var user types.User
	if err := c.transport.Get(ctx, "/users", &user); err != nil {
		if transport.IsUnauthorized(err) {
			return types.User{}, ErrUnauthenticated
		}
		return types.User{}, err
	}

	if user.Id == "" {
		return types.User{}, ErrUnauthenticated
	}

	return user, nil
}

// Servers fetches the viewer's servers and refreshes the cache.
func (c *Client) Servers(ctx context.Context) ([]types.Server, error) {
	var servers []types.Server
	if err := c.transport.Get(ctx, "/servers", &servers); err != nil {
		return nil, err
	}

	for _, server := range servers {
		c.cache.Servers().Add(server)
	}

	return servers, nil
}

func (c *Client) CreateServer(ctx context.Context, name string) (types.Server, error) {
	var server types.Server
	if err := c.transport.Post(ctx, "/servers", map[string]string{"name": name}, &server); err != nil {
		return types.Server{}, err
	}

	c.cache.Servers().Add(server)
	return server, nil
}

func (c *Client) JoinServer(ctx context.Context, serverId string) (types.Server, error) {
	var server types.Server
	if err := c.transport.Post(ctx, "/servers/"+serverId, nil, &server); err != nil {
		if transport.IsNotFound(err) {
			return types.Server{}, ErrNotFound
		}
		return types.Server{}, err
	}

	c.cache.Servers().Add(server)
	return server, nil
}

// Rooms fetches a server's rooms and populates the room cache, the
// per-id entries the sidebar and session lookups read.
func (c *Client) Rooms(ctx context.Context, serverId string) ([]types.Room, error) {
	var rooms []types.Room
	if err := c.transport.Get(ctx, "/servers/"+serverId+"/rooms", &rooms); err != nil {
		if transport.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	for _, room := range rooms {
		c.cache.Rooms().Add(room)
	}

	return rooms, nil
}

func (c *Client) CreateRoom(ctx context.Context, serverId, name string, roomType types.RoomType) (types.Room, error) {
	body := map[string]any{"name": name, "type": roomType}

	var room types.Room
	if err := c.transport.Post(ctx, "/servers/"+serverId+"/rooms", body, &room); err != nil {
		return types.Room{}, err
	}

	c.cache.Rooms().Add(room)
	return room, nil
}

// Room returns a cached room. A miss is the explicit not-found state.
func (c *Client) Room(roomId string) (types.Room, error) {
	room, ok := c.cache.Rooms().Get(roomId)
	if !ok {
		return types.Room{}, ErrNotFound
	}

	return room, nil
}

// Messages fetches a room's message snapshot, each message carrying its
// resolved author.
func (c *Client) Messages(ctx context.Context, roomId string) ([]types.MessageResponse, error) {
	var msgs []types.MessageResponse
	if err := c.transport.Get(ctx, "/rooms/"+roomId+"/messages", &msgs); err != nil {
		if transport.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return msgs, nil
}

// UpdateRoomStatus persists a room's read boundary and patches the
// cached room's status optimistically.
func (c *Client) UpdateRoomStatus(ctx context.Context, roomId, lastReadMsgId string) error {
	body := map[string]string{"lastReadMsgId": lastReadMsgId}
	if err := c.transport.Patch(ctx, "/rooms/"+roomId+"/status", body, nil); err != nil {
		return err
	}

	c.cache.Rooms().PartialUpdate(roomId, func(room types.Room) types.Room {
		if room.Status == nil {
			room.Status = &types.RoomUserStatus{RoomId: roomId}
		}
		status := *room.Status
		status.LastReadMsgId = lastReadMsgId
		room.Status = &status
		return room
	})

	return nil
}
