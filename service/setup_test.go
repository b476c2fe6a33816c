package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/KiiTuNp/SUPERvote/cache"
	"github.com/KiiTuNp/SUPERvote/database"
	"github.com/KiiTuNp/SUPERvote/models"
	"github.com/KiiTuNp/SUPERvote/repository"
	"github.com/KiiTuNp/SUPERvote/websocket"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestService builds a coordinator backed by an in-memory SQLite
// database and the in-process cache mock.
func setupTestService(t *testing.T) (*RoomService, *websocket.Hub, *gorm.DB) {
	testing.Init()
	cache.InitMockForTest()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		// Silence GORM logger for tests unless needed
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "failed to connect to in-memory database")

	require.NoError(t, database.Migrate(db), "failed to migrate database")
	clearTables(db)

	hub := websocket.NewHub()
	svc := NewRoomService(repository.NewRoomRepository(db), hub)

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	})

	return svc, hub, db
}

// clearTables wipes all room data between tests. Order matters due to
// foreign key constraints.
func clearTables(db *gorm.DB) {
	db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.PollVoter{})
	db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.PollOption{})
	db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Poll{})
	db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Participant{})
	db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Room{})
}

// createTestRoom creates a room with a fixed code for use in tests.
func createTestRoom(t *testing.T, svc *RoomService, code string) *models.Room {
	room, err := svc.CreateRoom(context.Background(), "Organizer", code)
	require.NoError(t, err)
	return room
}

// joinApproved joins a participant and immediately approves them.
func joinApproved(t *testing.T, svc *RoomService, roomID, name string) *models.Participant {
	participant, _, err := svc.JoinRoom(context.Background(), roomID, name)
	require.NoError(t, err)
	require.NoError(t, svc.ApproveParticipant(context.Background(), roomID, participant.ID))
	return participant
}

// createActivePoll creates a poll and starts it.
func createActivePoll(t *testing.T, svc *RoomService, roomID, question string, options []string, timerMinutes int) *models.Poll {
	poll, err := svc.CreatePoll(context.Background(), roomID, question, options, timerMinutes)
	require.NoError(t, err)
	require.NoError(t, svc.StartPoll(context.Background(), roomID, poll.ID))
	return poll
}

// drainEvents decodes every event currently buffered on a subscription.
// Events are published synchronously inside the room gate, so once a
// service call returns, its events are already in the channel.
func drainEvents(sub *websocket.Subscription) []models.Event {
	var events []models.Event
	for {
		select {
		case payload, ok := <-sub.C():
			if !ok {
				return events
			}
			var event models.Event
			if err := json.Unmarshal(payload, &event); err == nil {
				events = append(events, event)
			}
		default:
			return events
		}
	}
}

// eventTypes extracts the type of each event in order.
func eventTypes(events []models.Event) []string {
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}
