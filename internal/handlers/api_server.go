// internal/handlers/api_server.go
package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bingo-service/internal/cache"
	"bingo-service/internal/database"
	"bingo-service/internal/models"
	"bingo-service/internal/room"
)

// Storage is everything the gateway needs from the durable store: the
// room/session contract consumed by the coordination core plus account and
// profile operations. *database.Store satisfies it; tests substitute an
// in-memory fake.
type Storage interface {
	room.Store
	InsertRoom(ctx context.Context, code, hostID string) error
	CreateUser(ctx context.Context, user *models.User) error
	AuthenticateUser(ctx context.Context, email, password string) (string, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetLoadouts(ctx context.Context, userID uuid.UUID) ([]models.Loadout, error)
	GetMatchHistory(ctx context.Context, playerID string) ([]database.HistoryEntry, error)
}

// Gateway is the single entry/exit point for all room-scoped traffic. It
// owns the registry of live rooms and pairs every state change with the
// broadcast that announces it.
type Gateway struct {
	Registry *room.Registry
	Store    Storage
	Logger   *logrus.Logger

	// PublishEvent forwards accepted match events to the historian queue.
	// Nil disables publishing (tests, or redis not configured).
	PublishEvent func(ctx context.Context, rec cache.MatchEventRecord)
}

func NewGateway(store Storage, logger *logrus.Logger) *Gateway {
	return &Gateway{
		Registry: room.NewRegistry(),
		Store:    store,
		Logger:   logger,
	}
}

// publishEvent pushes a match event if a publisher is wired. Best-effort:
// the event log is observability, not game state.
func (gw *Gateway) publishEvent(sessionID uuid.UUID, roomCode, actorID, eventType string, payload map[string]interface{}) {
	if gw.PublishEvent == nil {
		return
	}
	gw.PublishEvent(context.Background(), cache.MatchEventRecord{
		SessionID: sessionID,
		RoomCode:  roomCode,
		ActorID:   actorID,
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})
}
