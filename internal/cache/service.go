package cache

import (
	"log"

	"github.com/lumachat/lumaclient/internal/types"
)

// Service holds the per-session entity caches. It is created once per
// authenticated session, passed by reference to every component that
// reads it, and invalidated on logout.
type Service struct {
	servers *Collection[types.Server]
	rooms   *Collection[types.Room]
	log     *log.Logger
}

func NewService(logger *log.Logger) *Service {
	return &Service{
		servers: NewCollection(func(s types.Server) string { return s.Id }),
		rooms:   NewCollection(func(r types.Room) string { return r.Id }),
		log:     logger,
	}
}

func (s *Service) Servers() *Collection[types.Server] {
	return s.servers
}

func (s *Service) Rooms() *Collection[types.Room] {
	return s.rooms
}

// RoomsOfServer returns the cached rooms belonging to serverId in
// insertion order.
func (s *Service) RoomsOfServer(serverId string) []types.Room {
	var out []types.Room
	for _, room := range s.rooms.Items() {
		if room.ServerId == serverId {
			out = append(out, room)
		}
	}

	return out
}

// Invalidate drops every cached entity. Called when the session ends.
func (s *Service) Invalidate() {
	s.servers.clear()
	s.rooms.clear()
	s.log.Println("cache invalidated")
}
