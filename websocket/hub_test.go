package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cadence/metrics"
	"cadence/types"

	gws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type liveServer struct {
	hub    Hub
	server *httptest.Server
	m      *metrics.Metrics
}

func newLiveServer(t *testing.T) *liveServer {
	t.Helper()

	m := metrics.New()
	h := NewHub(m, zerolog.Nop())
	go h.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := ServeWS(h, w, r, zerolog.Nop()); err != nil {
			t.Logf("upgrade failed: %v", err)
		}
	}))

	t.Cleanup(func() {
		srv.Close()
		h.Stop()
	})
	return &liveServer{hub: h, server: srv, m: m}
}

func (s *liveServer) dial(t *testing.T) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http")
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (s *liveServer) waitForClients(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.hub.ClientCount() == n
	}, 2*time.Second, 10*time.Millisecond)
}

func readEvent(t *testing.T, conn *gws.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_SnapshotOnConnect(t *testing.T) {
	s := newLiveServer(t)
	s.hub.SetSnapshot(func() types.Event {
		return types.QueueUpdate([]types.ConversionJob{{Path: "/m/a.flac", Status: types.JobStatusPending}})
	})

	conn := s.dial(t)
	msg := readEvent(t, conn)

	assert.Equal(t, "queue_update", msg["type"])
	queue, ok := msg["queue"].([]any)
	require.True(t, ok)
	require.Len(t, queue, 1)
	assert.Equal(t, "/m/a.flac", queue[0].(map[string]any)["path"])
}

func TestHub_BroadcastPreservesOrder(t *testing.T) {
	s := newLiveServer(t)
	first := s.dial(t)
	second := s.dial(t)
	s.waitForClients(t, 2)

	s.hub.Publish(types.StatusUpdate("/m/a.flac", types.JobStatusConverting, ""))
	for i := 1; i <= 5; i++ {
		s.hub.Publish(types.ProgressUpdate("/m/a.flac", float64(i*20)))
	}
	s.hub.Publish(types.StatusUpdate("/m/a.flac", types.JobStatusComplete, ""))

	for _, conn := range []*gws.Conn{first, second} {
		msg := readEvent(t, conn)
		assert.Equal(t, "status_update", msg["type"])
		assert.Equal(t, "Converting", msg["status"])

		last := 0.0
		for i := 0; i < 5; i++ {
			msg = readEvent(t, conn)
			require.Equal(t, "progress", msg["type"])
			pct := msg["percent"].(float64)
			assert.Greater(t, pct, last)
			last = pct
		}

		msg = readEvent(t, conn)
		assert.Equal(t, "status_update", msg["type"])
		assert.Equal(t, "Complete", msg["status"])
	}
}

func TestHub_TracksConnectedObservers(t *testing.T) {
	s := newLiveServer(t)

	conn := s.dial(t)
	s.waitForClients(t, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.m.ConnectedObservers))

	conn.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, ""))
	conn.Close()
	s.waitForClients(t, 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(s.m.ConnectedObservers))
}

func TestHub_PublishAfterStopDoesNotBlock(t *testing.T) {
	h := NewHub(nil, zerolog.Nop())
	go h.Run()
	h.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer*2; i++ {
			h.Publish(types.PauseUpdate(true))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked after Stop")
	}
}
