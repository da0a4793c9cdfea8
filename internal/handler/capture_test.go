package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capture-relay-api/internal/handler"
	"capture-relay-api/internal/imaging"
	"capture-relay-api/internal/model"
	"capture-relay-api/internal/relay"
	"capture-relay-api/internal/repository"
	"capture-relay-api/internal/router"
	"capture-relay-api/internal/service"
	"capture-relay-api/internal/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, *repository.SQLiteStore, *relay.MemoryRelay) {
	t.Helper()

	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "captures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	objects := storage.NewMemoryStorage()
	bus := relay.NewMemoryRelay()
	processor := imaging.NewProcessor(imaging.DefaultConfig())

	captureService := service.NewCaptureService(store, store, store, objects, bus, processor, 24*time.Hour)
	accountService := service.NewAccountService(store, store)

	r := router.New(router.Config{
		Handler:        handler.New(),
		CaptureHandler: handler.NewCaptureHandler(captureService),
		AccountHandler: handler.NewAccountHandler(accountService),
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store, bus
}

func testJPEG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeData(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.True(t, envelope.Success)
	return envelope.Data
}

func registerAccount(t *testing.T, srv *httptest.Server, tier string) string {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/v1/accounts", map[string]string{"tier": tier})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := decodeData(t, resp)
	id, _ := data["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestUploadRoundTrip(t *testing.T) {
	srv, _, bus := newTestServer(t)
	accountID := registerAccount(t, srv, "free")

	sub, err := bus.Subscribe(context.Background(), accountID)
	require.NoError(t, err)
	defer sub.Close()

	resp := postJSON(t, srv.URL+"/api/v1/accounts/"+accountID+"/images", map[string]interface{}{
		"image_data":  testJPEG(t),
		"client_hash": "abc123",
		"metadata":    map[string]string{"side": "R", "description": "wound check"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := decodeData(t, resp)

	assert.NotEmpty(t, data["image_id"])
	assert.Contains(t, data["content_key"], "uploads/"+accountID+"/")
	assert.Equal(t, float64(1), data["upload_count"])
	assert.Equal(t, float64(10), data["limit"])

	// The relay saw the upload
	select {
	case event := <-sub.Events():
		assert.Equal(t, accountID, event.AccountID)
		assert.Equal(t, data["image_id"], event.ImageID)
	case <-time.After(2 * time.Second):
		t.Fatal("no relay event received")
	}

	// The stored content is retrievable
	contentResp, err := http.Get(srv.URL + "/api/v1/accounts/" + accountID + "/images/" + data["image_id"].(string) + "/content")
	require.NoError(t, err)
	defer contentResp.Body.Close()
	assert.Equal(t, http.StatusOK, contentResp.StatusCode)
	assert.Equal(t, "image/jpeg", contentResp.Header.Get("Content-Type"))

	// And it shows up in the list with a derived filename
	listResp, err := http.Get(srv.URL + "/api/v1/accounts/" + accountID + "/images")
	require.NoError(t, err)
	listData := decodeData(t, listResp)
	assert.Equal(t, float64(1), listData["count"])
}

func TestUploadQuotaExceeded(t *testing.T) {
	srv, store, _ := newTestServer(t)

	// An account created last period has no signup-month exemption.
	accountID := "acct-last-month"
	require.NoError(t, store.CreateAccount(context.Background(), &model.Account{
		ID:        accountID,
		Tier:      model.TierFree,
		CreatedAt: time.Now().UTC().AddDate(0, 0, -45),
	}))

	payload := testJPEG(t)
	for i := 0; i < 10; i++ {
		resp := postJSON(t, srv.URL+"/api/v1/accounts/"+accountID+"/images", map[string]interface{}{
			"image_data": payload,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp := postJSON(t, srv.URL+"/api/v1/accounts/"+accountID+"/images", map[string]interface{}{
		"image_data": payload,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var envelope struct {
		Success bool `json:"success"`
		Error   struct {
			Code string                 `json:"code"`
			Meta map[string]interface{} `json:"meta"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.False(t, envelope.Success)
	assert.Equal(t, "QUOTA_EXCEEDED", envelope.Error.Code)
	assert.Equal(t, float64(10), envelope.Error.Meta["upload_count"])
	assert.Equal(t, true, envelope.Error.Meta["show_upgrade_modal"])

	// A grace unlock raises the limit and the next upload succeeds
	unlockResp := postJSON(t, srv.URL+"/api/v1/accounts/"+accountID+"/grace-unlock", map[string]string{})
	require.Equal(t, http.StatusOK, unlockResp.StatusCode)
	unlockData := decodeData(t, unlockResp)
	assert.Equal(t, float64(20), unlockData["limit"])

	retryResp := postJSON(t, srv.URL+"/api/v1/accounts/"+accountID+"/images", map[string]interface{}{
		"image_data": payload,
	})
	assert.Equal(t, http.StatusCreated, retryResp.StatusCode)
	retryResp.Body.Close()
}

func TestUploadRejectsGarbage(t *testing.T) {
	srv, _, _ := newTestServer(t)
	accountID := registerAccount(t, srv, "free")

	url := srv.URL + "/api/v1/accounts/" + accountID + "/images"

	resp := postJSON(t, url, map[string]interface{}{
		"image_data": base64.StdEncoding.EncodeToString([]byte("not an image")),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, url, map[string]interface{}{
		"image_data": "%%% not base64 %%%",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, url, map[string]interface{}{
		"image_data": testJPEG(t),
		"metadata":   map[string]string{"side": "X"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestUploadUnknownAccount(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/accounts/nobody/images", map[string]interface{}{
		"image_data": testJPEG(t),
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUsageEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	accountID := registerAccount(t, srv, "premium")

	resp, err := http.Get(srv.URL + "/api/v1/accounts/" + accountID + "/usage")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := decodeData(t, resp)

	assert.Equal(t, true, data["unlimited"])
	assert.Equal(t, float64(0), data["upload_count"])
}

func TestDataURLPrefixStripped(t *testing.T) {
	srv, _, _ := newTestServer(t)
	accountID := registerAccount(t, srv, "free")

	resp := postJSON(t, srv.URL+"/api/v1/accounts/"+accountID+"/images", map[string]interface{}{
		"image_data": "data:image/jpeg;base64," + testJPEG(t),
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}
