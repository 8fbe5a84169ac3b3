package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/replay-ingest/internal/db/models"
	"github.com/myysophia/replay-ingest/internal/tests/mocks"
	"github.com/myysophia/replay-ingest/internal/upload"
	"github.com/myysophia/replay-ingest/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploadEventEnvelope struct {
	Code int                 `json:"code"`
	Data UploadEventResponse `json:"data"`
}

func setupUploadEventRouter(t *testing.T) (*gin.Engine, *mocks.MemoryStore, *mocks.EventRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := mocks.NewMemoryStore()
	events := mocks.NewEventRepository()
	h := NewUploadEventHandler(events, store, rawBucket)

	r := gin.New()
	r.GET("/uploads/:shortid", h.Get)
	return r, store, events
}

func getUploadEvent(r *gin.Engine, shortID string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads/"+shortID, nil))
	return w
}

func seedFailed(t *testing.T, store *mocks.MemoryStore, attempts ...upload.Attempt) string {
	t.Helper()
	ts := time.Date(2024, 3, 7, 9, 5, 0, 0, time.UTC)
	logKey := upload.GenerateKey(upload.StateFailed, ts, testShortID, upload.KindLog)
	history, err := json.Marshal(upload.ErrorHistory{Attempts: attempts})
	require.NoError(t, err)

	require.NoError(t, store.Put(t.Context(), rawBucket, logKey, []byte("log")))
	require.NoError(t, store.Put(t.Context(), rawBucket, upload.GenerateKey(upload.StateFailed, ts, testShortID, upload.KindDescriptor), []byte("{}")))
	require.NoError(t, store.Put(t.Context(), rawBucket, upload.GenerateKey(upload.StateFailed, ts, testShortID, upload.KindErrorHistory), history))
	return logKey
}

func TestGetUploadEvent(t *testing.T) {
	r, _, events := setupUploadEventRouter(t)
	events.Seed(models.UploadEvent{
		ShortID:   testShortID,
		Status:    models.UploadStatusValidationError,
		Error:     "API Key 不存在",
		LogBucket: "replay-uploads",
		LogKey:    "uploads/2024/03/07/09/05/" + testShortID + ".power.log",
	})

	w := getUploadEvent(r, testShortID)
	require.Equal(t, http.StatusOK, w.Code)

	var resp uploadEventEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, utils.CodeSuccess, resp.Code)
	require.NotNil(t, resp.Data.Event)
	assert.Equal(t, models.UploadStatusValidationError, resp.Data.Event.Status)
	assert.Nil(t, resp.Data.Failed)
	assert.Contains(t, resp.Data.LogURL, "https://replay-uploads.example.com/uploads/2024/03/07/09/05/")
}

func TestGetUploadEventFailedOnly(t *testing.T) {
	r, store, _ := setupUploadEventRouter(t)
	logKey := seedFailed(t, store, upload.Attempt{Reason: "描述文件不可用", FailureTS: "2024-03-07T09:06:00Z"})

	w := getUploadEvent(r, testShortID)
	require.Equal(t, http.StatusOK, w.Code)

	var resp uploadEventEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.Data.Event)
	require.NotNil(t, resp.Data.Failed)
	assert.Equal(t, logKey, resp.Data.Failed.LogKey)
	require.Len(t, resp.Data.Failed.Attempts, 1)
	assert.Equal(t, "描述文件不可用", resp.Data.Failed.Attempts[0].Reason)
	assert.Contains(t, resp.Data.LogURL, logKey)
}

func TestGetUploadEventNotFound(t *testing.T) {
	r, _, _ := setupUploadEventRouter(t)

	w := getUploadEvent(r, testShortID)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "40410")
}

func TestGetUploadEventInvalidShortID(t *testing.T) {
	r, _, _ := setupUploadEventRouter(t)

	w := getUploadEvent(r, "not-a-shortid")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUploadEventRepositoryError(t *testing.T) {
	r, _, events := setupUploadEventRouter(t)
	events.FailHook = func(op, _ string) error {
		if op == "get" {
			return errors.New("connection refused")
		}
		return nil
	}

	w := getUploadEvent(r, testShortID)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
