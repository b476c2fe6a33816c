package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/KiiTuNp/SUPERvote/cache"
	"github.com/KiiTuNp/SUPERvote/database"
	"github.com/KiiTuNp/SUPERvote/models"
	"github.com/KiiTuNp/SUPERvote/repository"
	"github.com/KiiTuNp/SUPERvote/service"
	"github.com/KiiTuNp/SUPERvote/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestEnvironment sets up the Gin router and in-memory SQLite database for testing.
func SetupTestEnvironment(t *testing.T) (*gin.Engine, *gorm.DB) {
	testing.Init()
	gin.SetMode(gin.TestMode)
	cache.InitMockForTest()

	// Use in-memory SQLite for testing
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		// Silence GORM logger for tests unless needed
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "failed to connect to in-memory database")

	database.DB = db
	require.NoError(t, database.Migrate(db), "failed to migrate database")
	ClearTables(db)

	// Clean up function to close DB connection after tests
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	})

	repo := repository.NewRoomRepository(db)
	hub := websocket.NewHub()
	svc := service.NewRoomService(repo, hub)

	roomHandler := NewRoomHandler(svc)
	pollHandler := NewPollHandler(svc)
	reportHandler := NewReportHandler(svc)
	healthHandler := NewHealthHandler(repo)
	sseHandler := NewSSEHandler(svc, hub)

	// Setup Router
	router := gin.Default()
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	router.Use(cors.New(config))

	// Setup Routes (same as in routes/router.go)
	api := router.Group("/api")
	{
		api.GET("/health", healthHandler.HealthCheck)
		api.GET("/status", healthHandler.SystemStatus)
		api.GET("/metrics", healthHandler.Metrics)

		rooms := api.Group("/rooms")
		{
			rooms.POST("/create", roomHandler.CreateRoom)
			rooms.POST("/join", roomHandler.JoinRoom)
			rooms.GET("/:room_id/status", roomHandler.GetRoomStatus)
			rooms.GET("/:room_id/polls", pollHandler.ListPolls)
			rooms.GET("/:room_id/participants", roomHandler.ListParticipants)
			rooms.POST("/:room_id/report", reportHandler.GenerateReport)
			rooms.GET("/:room_id/live", sseHandler.HandleSSE)
		}

		participants := api.Group("/participants")
		{
			participants.POST("/:participant_id/approve", roomHandler.ApproveParticipant)
			participants.POST("/:participant_id/deny", roomHandler.DenyParticipant)
		}

		polls := api.Group("/polls")
		{
			polls.POST("/create", pollHandler.CreatePoll)
			polls.POST("/:poll_id/start", pollHandler.StartPoll)
			polls.POST("/:poll_id/stop", pollHandler.StopPoll)
			polls.POST("/:poll_id/vote", pollHandler.SubmitVote)
		}
	}

	return router, db
}

// ClearTables clears all room data between tests. Order matters due to
// foreign key constraints.
func ClearTables(db *gorm.DB) {
	db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.PollVoter{})
	db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.PollOption{})
	db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Poll{})
	db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Participant{})
	db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Room{})
}

// doJSON performs a JSON request against the test router and decodes the body.
func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	response := map[string]interface{}{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &response)
	}
	return w, response
}

// createRoomViaAPI creates a room through the HTTP surface and returns its code.
func createRoomViaAPI(t *testing.T, router *gin.Engine, organizer, customCode string) string {
	w, response := doJSON(t, router, "POST", "/api/rooms/create", gin.H{
		"organizer_name": organizer,
		"custom_room_id": customCode,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	code, _ := response["room_id"].(string)
	require.NotEmpty(t, code)
	return code
}

// joinRoomViaAPI joins a participant and returns their id and session token.
func joinRoomViaAPI(t *testing.T, router *gin.Engine, roomID, name string) (string, string) {
	w, response := doJSON(t, router, "POST", "/api/rooms/join", gin.H{
		"room_id":          roomID,
		"participant_name": name,
	})
	require.Equal(t, http.StatusOK, w.Code)
	id, _ := response["participant_id"].(string)
	token, _ := response["participant_token"].(string)
	require.NotEmpty(t, id)
	require.NotEmpty(t, token)
	return id, token
}

// approveViaAPI approves a participant through the HTTP surface.
func approveViaAPI(t *testing.T, router *gin.Engine, roomID, participantID string) {
	w, _ := doJSON(t, router, "POST", "/api/participants/"+participantID+"/approve", gin.H{
		"room_id": roomID,
	})
	require.Equal(t, http.StatusOK, w.Code)
}

// createPollViaAPI creates a draft poll and returns its id.
func createPollViaAPI(t *testing.T, router *gin.Engine, roomID, question string, options []string, timerMinutes int) string {
	w, response := doJSON(t, router, "POST", "/api/polls/create", gin.H{
		"room_id":       roomID,
		"question":      question,
		"options":       options,
		"timer_minutes": timerMinutes,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	id, _ := response["poll_id"].(string)
	require.NotEmpty(t, id)
	return id
}

// startPollViaAPI moves a draft poll to active.
func startPollViaAPI(t *testing.T, router *gin.Engine, roomID, pollID string) {
	w, _ := doJSON(t, router, "POST", "/api/polls/"+pollID+"/start", gin.H{
		"room_id": roomID,
	})
	require.Equal(t, http.StatusOK, w.Code)
}
