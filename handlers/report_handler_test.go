package handlers

import (
	"net/http"
	"testing"

	"github.com/KiiTuNp/SUPERvote/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReportEndpoint(t *testing.T) {
	router, db := SetupTestEnvironment(t)
	ClearTables(db)
	createRoomViaAPI(t, router, "Alice", "ABC123")
	bobID, bobToken := joinRoomViaAPI(t, router, "ABC123", "Bob")
	approveViaAPI(t, router, "ABC123", bobID)
	joinRoomViaAPI(t, router, "ABC123", "Pending Pat")

	pollID := createPollViaAPI(t, router, "ABC123", "Coffee or tea?", []string{"Coffee", "Tea"}, 0)
	startPollViaAPI(t, router, "ABC123", pollID)
	w, _ := doJSON(t, router, "POST", "/api/polls/"+pollID+"/vote", gin.H{
		"participant_token": bobToken,
		"selected_option":   "Coffee",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, response := doJSON(t, router, "POST", "/api/rooms/ABC123/report", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, response["purged"])

	report, ok := response["report"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ABC123", report["room_id"])
	assert.Equal(t, "Alice", report["organizer_name"])

	summary, ok := report["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), summary["total_participants"])
	assert.Equal(t, float64(1), summary["approved_count"])
	assert.Equal(t, float64(1), summary["pending_count"])

	polls, ok := report["polls"].([]interface{})
	require.True(t, ok)
	require.Len(t, polls, 1)
	pollResult, ok := polls[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), pollResult["total_votes"])

	stats, ok := pollResult["option_stats"].([]interface{})
	require.True(t, ok)
	require.Len(t, stats, 2)
	coffee, ok := stats[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Coffee", coffee["label"])
	assert.Equal(t, float64(1), coffee["votes"])
	assert.Equal(t, float64(100), coffee["percentage"])

	// The room is gone: every follow-up request is a 404
	w, _ = doJSON(t, router, "GET", "/api/rooms/ABC123/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = doJSON(t, router, "POST", "/api/rooms/ABC123/report", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = doJSON(t, router, "POST", "/api/rooms/join", gin.H{
		"room_id":          "ABC123",
		"participant_name": "Late Larry",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Storage holds no trace of the room
	for _, model := range []interface{}{
		&models.Room{}, &models.Participant{}, &models.Poll{},
		&models.PollOption{}, &models.PollVoter{},
	} {
		var count int64
		require.NoError(t, db.Model(model).Count(&count).Error)
		assert.Equal(t, int64(0), count)
	}
}

func TestGenerateReportEndpointUnknownRoom(t *testing.T) {
	router, db := SetupTestEnvironment(t)
	ClearTables(db)

	w, response := doJSON(t, router, "POST", "/api/rooms/NOPE99/report", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, response, "error")
}
