package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cadence/config"
	"cadence/services"
	"cadence/store"
	"cadence/types"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// stubProbe reports the same quality for every file
type stubProbe struct{}

func (stubProbe) Probe(ctx context.Context, path string) (types.Quality, error) {
	return types.Quality{
		Bitrate:    types.NotAvailable,
		BitDepth:   "24-bit",
		SampleRate: "96 kHz",
		Extension:  strings.ToLower(filepath.Ext(path)),
	}, nil
}

// stubTranscoder writes the output file after reporting two progress steps
type stubTranscoder struct{}

func (stubTranscoder) Transcode(ctx context.Context, req services.TranscodeRequest, progress services.ProgressFunc) error {
	progress(50)
	progress(100)
	return os.WriteFile(req.Output, []byte("converted"), 0o644)
}

// TestHelper runs the fully wired router against a temporary library
type TestHelper struct {
	Server  *httptest.Server
	App     *App
	Library string
}

// NewTestHelper creates a server backed by a fresh database and an empty
// library folder
func NewTestHelper(t *testing.T) *TestHelper {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "library.db")
	cfg.Conversion.Timeout = 10 * time.Second

	st, err := store.Open(cfg.Database.Path, zerolog.Nop())
	require.NoError(t, err)

	app := NewApp(cfg, st, Dependencies{Probe: stubProbe{}, Transcoder: stubTranscoder{}}, zerolog.Nop())
	server := httptest.NewServer(app.Router)

	t.Cleanup(func() {
		server.Close()
		app.Close()
		_ = st.Close()
	})

	return &TestHelper{
		Server:  server,
		App:     app,
		Library: t.TempDir(),
	}
}

// MakeRequest makes an HTTP request to the test server
func (h *TestHelper) MakeRequest(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, h.Server.URL+path, reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// DoJSON makes a request and unmarshals the JSON response into target
func (h *TestHelper) DoJSON(t *testing.T, method, path string, requestBody, target any) *http.Response {
	t.Helper()
	resp := h.MakeRequest(t, method, path, requestBody)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if target != nil {
		require.NoError(t, json.Unmarshal(body, target), string(body))
	}
	return resp
}

// GetJSON makes a GET request and unmarshals the JSON response
func (h *TestHelper) GetJSON(t *testing.T, path string, target any) *http.Response {
	return h.DoJSON(t, http.MethodGet, path, nil, target)
}

// PostJSON makes a POST request with a JSON body and unmarshals the response
func (h *TestHelper) PostJSON(t *testing.T, path string, requestBody, target any) *http.Response {
	return h.DoJSON(t, http.MethodPost, path, requestBody, target)
}

// ConnectWebSocket connects to the live channel
func (h *TestHelper) ConnectWebSocket(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.Server.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// ReadEvent reads one live channel message
func (h *TestHelper) ReadEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// CreateTestFile creates a file below the library folder
func (h *TestHelper) CreateTestFile(t *testing.T, relativePath, content string) string {
	t.Helper()
	fullPath := filepath.Join(h.Library, relativePath)
	require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
	require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644))
	return fullPath
}

// RegisterLibrary registers the library folder and returns its id
func (h *TestHelper) RegisterLibrary(t *testing.T) uint {
	t.Helper()
	var dir types.Directory
	resp := h.PostJSON(t, "/api/directories", types.DirectoryRequest{Path: h.Library}, &dir)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return dir.ID
}

// ScanLibrary rescans the registered library folder
func (h *TestHelper) ScanLibrary(t *testing.T, id uint) []types.Artist {
	t.Helper()
	var library []types.Artist
	resp := h.PostJSON(t, "/api/scan", types.ScanRequest{DirectoryID: id, Path: h.Library}, &library)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return library
}
