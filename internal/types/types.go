package types

// RoomType classifies a room within a server.
type RoomType string

const (
	RoomTypeText  RoomType = "server_room"
	RoomTypeVoice RoomType = "server_voice_room"
	RoomTypeGroup RoomType = "users_group"
	RoomTypeDM    RoomType = "direct"
)

type User struct {
	Id        string `json:"id"`
	Username  string `json:"username"`
	CreatedAt int64  `json:"createdAt,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

// Message is immutable once created; the id is server-assigned.
type Message struct {
	Id        string `json:"id"`
	AuthorId  string `json:"authorId"`
	RoomId    string `json:"roomId"`
	ServerId  string `json:"serverId,omitempty"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Before reports whether m orders before other in a room timeline.
// CreatedAt is the ordering key, tie-broken by Id so repeated sorts of
// colliding timestamps are stable.
func (m Message) Before(other Message) bool {
	if m.CreatedAt != other.CreatedAt {
		return m.CreatedAt < other.CreatedAt
	}
	return m.Id < other.Id
}

// MessageResponse is a message with its resolved author, the shape both
// the snapshot endpoint and the live feed deliver.
type MessageResponse struct {
	Message
	Author User `json:"author"`
}

type Room struct {
	Id        string   `json:"id"`
	ServerId  string   `json:"serverId"`
	Name      string   `json:"name"`
	GroupName string   `json:"groupName"`
	Type      RoomType `json:"type"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
	// Status is the viewer's read state for the room, the only part of
	// a room the client ever mutates.
	Status *RoomUserStatus `json:"status,omitempty"`
}

// RoomUserStatus tracks the read boundary of a room for one user: all
// messages at or before LastReadMsgId are considered read.
type RoomUserStatus struct {
	Id            string `json:"id"`
	UserId        string `json:"userId"`
	RoomId        string `json:"roomId"`
	LastReadMsgId string `json:"lastReadMsgId"`
	// IsCleared means the user had read everything in the room, so each
	// arriving message advances LastReadMsgId. When false the boundary
	// is frozen until the user clears it again.
	IsCleared bool `json:"isCleared,omitempty"`
}

type Server struct {
	Id        string `json:"id"`
	OwnerId   string `json:"ownerId"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
	// Status carries the viewer's nickname and roles on this server,
	// read-only from the client's perspective.
	Status *ServerUserStatus `json:"status,omitempty"`
}

type ServerUserStatus struct {
	Id       string   `json:"id"`
	UserId   string   `json:"userId"`
	ServerId string   `json:"serverId"`
	Nickname string   `json:"nickname,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}
