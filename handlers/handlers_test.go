package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"roadside-monitor/be/clock"
	"roadside-monitor/be/repository"
	"roadside-monitor/be/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type testServer struct {
	router  *gin.Engine
	clock   *clock.Fake
	blobDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	blobs, err := services.NewLocalBlobStore(dir)
	require.NoError(t, err)
	clk := clock.NewFake(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	logger := zap.NewNop()
	opts := services.UploadOptions{MaxBytes: 1024, URLPrefix: "/api/upload"}

	deviceService := services.NewDeviceService(repository.NewMemoryStore(), blobs, nil, clk, logger, opts)
	uploadService := services.NewUploadService(blobs, logger, opts)

	router := gin.New()
	RegisterRoutes(router,
		NewDeviceHandler(deviceService, logger),
		NewEnvironmentHandler(deviceService, logger),
		NewUploadHandler(deviceService, uploadService, opts.MaxBytes, logger))
	return &testServer{router: router, clock: clk, blobDir: dir}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, path string, fields map[string]string, fileName string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func (s *testServer) createDevice(t *testing.T) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/devices", `{"title":"Camera A","lat":21.0285,"lng":"105.8542"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCreateAndGetDevice(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/devices", `{
		"title": "Camera B",
		"lat": 21.0379,
		"lng": 105.8331,
		"environment": {"temperature": 18, "humidity": "97", "isRaining": true},
		"images": [{"url": "https://example.com/a.jpg", "licensePlate": "29A-12345"}]
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, true, created["isFogging"])
	assert.Equal(t, true, created["hasDetectedVehicles"])

	w = s.do(t, http.MethodGet, "/api/devices/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	device := decode(t, w)
	assert.Equal(t, "Camera B", device["title"])
	assert.Equal(t, false, device["isActive"])
	assert.Len(t, device["images"], 1)
	assert.Len(t, device["environmentData"], 1)
	latest, ok := device["latestEnvironment"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 97.0, latest["humidity"])

	w = s.do(t, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestGetDevices_EmptyListIsArray(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/devices", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestCreateDevice_Validation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/devices", `{"title":"Camera A"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decode(t, w)["code"])

	w = s.do(t, http.MethodPost, "/api/devices", `{"title":"Camera A","lat":"north","lng":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/devices", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidAndUnknownIDs(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/devices/abc", "/api/devices/-1", "/api/devices/0", "/api/devices/abc/environment", "/api/devices/1.5/status"} {
		w := s.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	for _, path := range []string{"/api/devices/42", "/api/devices/42/environment", "/api/devices/42/status"} {
		w := s.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "not_found", decode(t, w)["code"])
	}
}

func TestRecordReading(t *testing.T) {
	s := newTestServer(t)
	s.createDevice(t)

	w := s.do(t, http.MethodPost, "/api/devices/1/environment", `{"temperature":"19","humidity":96,"isRaining":"true"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	status := body["deviceStatus"].(map[string]any)
	assert.Equal(t, true, status["isFogging"])
	assert.Equal(t, true, status["isRoadSlippery"])
	assert.Equal(t, false, status["isLandslide"])
	env := body["environmentData"].(map[string]any)
	assert.Equal(t, 19.0, env["temperature"])

	w = s.do(t, http.MethodPost, "/api/devices/1/environment", `{"temperature":19}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "humidity")

	w = s.do(t, http.MethodPost, "/api/devices/9/environment", `{"temperature":19,"humidity":50,"isRaining":false}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnvironmentHistory(t *testing.T) {
	s := newTestServer(t)
	s.createDevice(t)
	for i := 0; i < 3; i++ {
		w := s.do(t, http.MethodPost, "/api/devices/1/environment", `{"temperature":25,"humidity":50,"isRaining":false}`)
		require.Equal(t, http.StatusCreated, w.Code)
		s.clock.Advance(time.Minute)
	}

	w := s.do(t, http.MethodGet, "/api/devices/1/environment?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, 1.0, body["deviceId"])
	assert.Equal(t, 2.0, body["count"])
	assert.Len(t, body["data"], 2)

	w = s.do(t, http.MethodGet, "/api/devices/1/environment", "")
	assert.Equal(t, 3.0, decode(t, w)["count"])

	for _, limit := range []string{"0", "-5", "ten"} {
		w = s.do(t, http.MethodGet, "/api/devices/1/environment?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, limit)
	}
}

func TestUpdateDevice(t *testing.T) {
	s := newTestServer(t)
	s.createDevice(t)

	w := s.do(t, http.MethodPut, "/api/devices/1", `{"description":"Near the lake"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Near the lake", body["description"])
	assert.Equal(t, "Camera A", body["title"])
	assert.Equal(t, 21.0285, body["lat"])

	w = s.do(t, http.MethodPut, "/api/devices/7", `{"title":"X"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/devices/1", `{"lng":"east"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteDevice_Twice(t *testing.T) {
	s := newTestServer(t)
	s.createDevice(t)

	w := s.do(t, http.MethodDelete, "/api/devices/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Device deleted successfully"}`, w.Body.String())

	w = s.do(t, http.MethodDelete, "/api/devices/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetStatus(t *testing.T) {
	s := newTestServer(t)
	s.createDevice(t)
	w := s.do(t, http.MethodPost, "/api/devices/1/environment", `{"temperature":25,"humidity":50,"isRaining":false,"isLandslide":1}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodGet, "/api/devices/1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["isLandslide"])
	assert.Equal(t, false, body["isFogging"])
	assert.Equal(t, false, body["isActive"])
}

func TestDeviceUpload(t *testing.T) {
	s := newTestServer(t)
	s.createDevice(t)

	w := s.upload(t, "/api/devices/1/upload", map[string]string{
		"title":        "Test Image",
		"content":      "Test upload",
		"licensePlate": "30B-67890",
	}, "marker.png", pngBytes)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	filename := body["filename"].(string)
	assert.True(t, strings.HasSuffix(filename, "marker.png"))
	image := body["image"].(map[string]any)
	assert.Equal(t, "/api/upload/"+filename, image["url"])
	assert.Equal(t, "Test Image", image["title"])

	w = s.do(t, http.MethodGet, "/api/devices/1", "")
	device := decode(t, w)
	assert.Equal(t, true, device["isActive"])
	assert.Equal(t, true, device["hasDetectedVehicles"])

	s.clock.Advance(61 * time.Second)
	w = s.do(t, http.MethodGet, "/api/devices/1", "")
	assert.Equal(t, false, decode(t, w)["isActive"])

	w = s.do(t, http.MethodGet, "/api/upload/"+filename, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pngBytes, w.Body.Bytes())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=31536000, immutable", w.Header().Get("Cache-Control"))
}

func TestDeviceUpload_Errors(t *testing.T) {
	s := newTestServer(t)
	s.createDevice(t)

	w := s.upload(t, "/api/devices/1/upload", map[string]string{"title": "no file"}, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No file uploaded", decode(t, w)["error"])

	w = s.upload(t, "/api/devices/5/upload", nil, "a.png", pngBytes)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.upload(t, "/api/devices/1/upload", nil, "big.png", bytes.Repeat([]byte("x"), 2048))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "payload_too_large", decode(t, w)["code"])

	entries, err := os.ReadDir(s.blobDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStandaloneUpload(t *testing.T) {
	s := newTestServer(t)

	w := s.upload(t, "/api/upload", nil, "frame.png", pngBytes)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "image/png", body["type"])
	assert.Equal(t, float64(len(pngBytes)), body["size"])
	url := body["url"].(string)
	assert.True(t, strings.HasPrefix(url, "/api/upload/"))

	w = s.do(t, http.MethodGet, url, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.upload(t, "/api/upload", nil, "notes.png", []byte("plain text pretending"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unsupported_media", decode(t, w)["code"])

	w = s.upload(t, "/api/upload", nil, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServe_MarkupIsNotRendered(t *testing.T) {
	s := newTestServer(t)
	s.createDevice(t)

	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`)
	w := s.upload(t, "/api/devices/1/upload", nil, "map.svg", svg)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	filename := decode(t, w)["filename"].(string)

	w = s.do(t, http.MethodGet, "/api/upload/"+filename, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "sandbox")
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment"))

	w = s.upload(t, "/api/devices/1/upload", nil, "marker.png", pngBytes)
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, http.MethodGet, "/api/upload/"+decode(t, w)["filename"].(string), "")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, w.Header().Get("Content-Disposition"), "images stay inline")
}

func TestServe_MissingAndTraversal(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/upload/nothing-here.png", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/upload/..%2F..%2Fetc%2Fpasswd", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
