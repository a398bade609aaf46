package testutil

import (
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lumachat/lumaclient/internal/types"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// NewMessage builds a message response with a server-style random id.
func NewMessage(roomId, content string, createdAt int64) types.MessageResponse {
	authorId := uuid.NewString()
	return types.MessageResponse{
		Message: types.Message{
			Id:        uuid.NewString(),
			AuthorId:  authorId,
			RoomId:    roomId,
			Content:   content,
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		},
		Author: types.User{
			Id:       authorId,
			Username: "testuser",
		},
	}
}

// NewRoom builds a text room on a random server.
func NewRoom(name string) types.Room {
	now := time.Now().Unix()
	return types.Room{
		Id:        uuid.NewString(),
		ServerId:  uuid.NewString(),
		Name:      name,
		GroupName: "Text Rooms",
		Type:      types.RoomTypeText,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
