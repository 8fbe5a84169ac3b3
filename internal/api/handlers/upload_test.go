package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/replay-ingest/internal/oss"
	"github.com/myysophia/replay-ingest/internal/tests/mocks"
	"github.com/myysophia/replay-ingest/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rawBucket   = "replay-raw-uploads"
	testShortID = "aBcDeFgHiJkLmNoPqRsTuV"
	testToken   = "Token 4d9c8e0e-2a4b-4a7e-9a57-0c1f2b3d4e5f"
)

var requestTime = time.Date(2024, 3, 7, 9, 5, 30, 0, time.UTC)

func setupUploadRouter(t *testing.T) (*gin.Engine, *mocks.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := mocks.NewMemoryStore()
	h := NewUploadHandler(store, rawBucket, 0)
	h.now = func() time.Time { return requestTime }
	h.newID = func() string { return testShortID }

	r := gin.New()
	r.POST("/uploads/request", h.RequestUpload)
	return r, store
}

func postUpload(r *gin.Engine, authorization, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/uploads/request", strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:53124"
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	req.Header.Set("X-Api-Key", "9c1a7f3e-53c4-4f6e-8f1b-2f0e8f8d7c6b")
	req.Header.Set("User-Agent", "HearthstoneDeckTracker/1.2.3")
	r.ServeHTTP(w, req)
	return w
}

func TestRequestUpload(t *testing.T) {
	r, store := setupUploadRouter(t)

	w := postUpload(r, testToken, `{"build":20457,"match_start":"2024-03-07T09:01:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp RequestUploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, testShortID, resp.ShortID)
	logKey := upload.GenerateKey(upload.StateNew, requestTime, testShortID, upload.KindLog)
	assert.Equal(t, "raw/2024/03/07/09/05/"+testShortID+".power.log", logKey)
	assert.Contains(t, resp.PutURL, logKey)
	assert.Contains(t, resp.PutURL, "expires=86400")

	descriptorKey := upload.GenerateKey(upload.StateNew, requestTime, testShortID, upload.KindDescriptor)
	body, err := store.Get(t.Context(), rawBucket, descriptorKey)
	require.NoError(t, err)

	var descriptor upload.Descriptor
	require.NoError(t, json.Unmarshal(body, &descriptor))
	assert.Equal(t, testShortID, descriptor.ShortID)
	assert.Equal(t, "192.0.2.10", descriptor.SourceIP)
	assert.Equal(t, testToken, descriptor.GatewayHeaders.Authorization)
	assert.Equal(t, "9c1a7f3e-53c4-4f6e-8f1b-2f0e8f8d7c6b", descriptor.GatewayHeaders.APIKey)
	assert.Equal(t, "HearthstoneDeckTracker/1.2.3", descriptor.GatewayHeaders.UserAgent)
	assert.JSONEq(t, `{"build":20457,"match_start":"2024-03-07T09:01:00Z"}`, string(descriptor.UploadMetadata))

	// 日志由客户端上传
	assert.False(t, store.Has(rawBucket, logKey))
}

func TestRequestUploadRejected(t *testing.T) {
	tests := []struct {
		name          string
		authorization string
		body          string
		code          int
	}{
		{"缺少 Authorization", "", `{}`, http.StatusUnauthorized},
		{"缺少认证方式", "4d9c8e0e-2a4b-4a7e-9a57-0c1f2b3d4e5f", `{}`, http.StatusUnauthorized},
		{"多余字段", testToken + " extra", `{}`, http.StatusUnauthorized},
		{"空请求体", testToken, ``, http.StatusBadRequest},
		{"非 JSON", testToken, `build=1`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store := setupUploadRouter(t)
			w := postUpload(r, tt.authorization, tt.body)
			assert.Equal(t, tt.code, w.Code)
			assert.Empty(t, store.Keys(rawBucket))
		})
	}
}

func TestRequestUploadStoreUnavailable(t *testing.T) {
	r, store := setupUploadRouter(t)
	store.FailHook = func(op, _, _ string) error {
		if op == "put" {
			return oss.ErrStoreUnavailable
		}
		return nil
	}

	w := postUpload(r, testToken, `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	store.FailHook = func(string, string, string) error { return errors.New("access denied") }
	w = postUpload(r, testToken, `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
