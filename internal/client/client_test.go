package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumachat/lumaclient/internal/cache"
	"github.com/lumachat/lumaclient/internal/testutil"
	"github.com/lumachat/lumaclient/internal/transport"
	"github.com/lumachat/lumaclient/internal/types"
)

type staticTokens string

func (s staticTokens) Token() (string, error) {
	return string(s), nil
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *cache.Service) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := testutil.TestLogger(t)
	cs := cache.NewService(logger)
	tc := transport.NewClient(srv.URL, staticTokens("testtoken"), time.Second, logger)

	return NewClient(tc, cs, logger), cs
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func TestLogin(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/sessions", r.URL.Path)

		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.Username)
		assert.Equal(t, "hunter2", req.Password)

		writeJSON(w, http.StatusOK, map[string]any{
			"user":  types.User{Id: "u1", Username: "alice"},
			"token": "jwt-token",
		})
	}))

	user, token, err := c.Login(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.Id)
	assert.Equal(t, "jwt-token", token, "expected the session token returned for storage")
}

func TestCurrentUser(t *testing.T) {
	t.Run("active session", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/users", r.URL.Path)
			writeJSON(w, http.StatusOK, types.User{Id: "u1", Username: "alice"})
		}))

		user, err := c.CurrentUser(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
	})

	t.Run("rejected session", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": CodeUnauthorized, "message": "no session"})
		}))

		_, err := c.CurrentUser(context.Background())
		assert.ErrorIs(t, err, ErrUnauthenticated, "expected a 401 routed to the login flow")
	})

	t.Run("empty user body", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, types.User{})
		}))

		_, err := c.CurrentUser(context.Background())
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}

func TestRoomsPopulatesCache(t *testing.T) {
	rooms := []types.Room{
		{Id: "r1", ServerId: "s1", Name: "general", Type: types.RoomTypeText},
		{Id: "r2", ServerId: "s1", Name: "random", Type: types.RoomTypeText},
	}

	c, cs := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/servers/s1/rooms", r.URL.Path)
		writeJSON(w, http.StatusOK, rooms)
	}))

	got, err := c.Rooms(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 2, cs.Rooms().Len(), "expected fetched rooms cached")
	cached, err := c.Room("r2")
	require.NoError(t, err)
	assert.Equal(t, "random", cached.Name)

	_, err = c.Room("missing")
	assert.ErrorIs(t, err, ErrNotFound, "expected a cache miss reported as not found")
}

func TestRoomsUnknownServer(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": CodeNotFound, "message": "no such server"})
	}))

	_, err := c.Rooms(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessages(t *testing.T) {
	snapshot := []types.MessageResponse{
		testutil.NewMessage("r1", "first", 100),
		testutil.NewMessage("r1", "second", 200),
	}

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms/r1/messages", r.URL.Path)
		writeJSON(w, http.StatusOK, snapshot)
	}))

	got, err := c.Messages(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, "testuser", got[0].Author.Username, "expected each message carrying its resolved author")
}

func TestUpdateRoomStatus(t *testing.T) {
	var gotBody map[string]string
	c, cs := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/rooms/r1/status", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))

	cs.Rooms().Add(types.Room{Id: "r1", Name: "general"})

	require.NoError(t, c.UpdateRoomStatus(context.Background(), "r1", "m42"))
	assert.Equal(t, map[string]string{"lastReadMsgId": "m42"}, gotBody)

	room, ok := cs.Rooms().Get("r1")
	require.True(t, ok)
	require.NotNil(t, room.Status, "expected the cached status patched optimistically")
	assert.Equal(t, "m42", room.Status.LastReadMsgId)
}

func TestServersAndJoin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /servers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []types.Server{{Id: "s1", Name: "home"}})
	})
	mux.HandleFunc("POST /servers/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "s2" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": CodeNotFound, "message": "no such server"})
			return
		}
		writeJSON(w, http.StatusOK, types.Server{Id: "s2", Name: "work"})
	})

	c, cs := newTestClient(t, mux)

	servers, err := c.Servers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 1)

	joined, err := c.JoinServer(context.Background(), "s2")
	require.NoError(t, err)
	assert.Equal(t, "work", joined.Name)
	assert.Equal(t, 2, cs.Servers().Len(), "expected both servers cached")

	_, err = c.JoinServer(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDisplayText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "known code",
			err:  &transport.RequestError{StatusCode: http.StatusConflict, Code: CodeUsernameExists, Message: "raw server text"},
			want: "Username already exists",
		},
		{
			name: "unknown code falls back",
			err:  &transport.RequestError{StatusCode: http.StatusTeapot, Code: "SOMETHING_NEW"},
			want: genericErrorText,
		},
		{
			name: "plain error falls back",
			err:  assert.AnError,
			want: genericErrorText,
		},
		{
			name: "nil error",
			err:  nil,
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DisplayText(tc.err))
		})
	}
}
