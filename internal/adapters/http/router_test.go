package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/config"
)

const testPasskey = "letmein"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		Mode:         "release",
		StaticPath:   t.TempDir() + "/missing",
		ReadLimit:    4096,
		PingPeriod:   time.Minute,
		WriteTimeout: time.Second,
		SendBuffer:   16,
		Secret:       "0123456789abcdef0123",
		Room:         "main",
		Passkey:      testPasskey,
	}
	ctx, cancel := context.WithCancel(context.Background())
	rooms := orch.NewManager(ctx, orch.Options{Passkey: cfg.Passkey, EphemeralTTL: time.Minute})
	srv := httptest.NewServer(SetupRouter(ctx, cfg, rooms))
	t.Cleanup(func() {
		rooms.Stop()
		srv.Close()
		cancel()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, nick string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?nick=" + nick
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// readUntil reads events until match accepts one.
func readUntil(t *testing.T, ws *websocket.Conn, match func(map[string]any) bool) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		var evt map[string]any
		require.NoError(t, json.Unmarshal(data, &evt))
		if match(evt) {
			return evt
		}
	}
}

func has(key, value string) func(map[string]any) bool {
	return func(evt map[string]any) bool { return evt[key] == value }
}

func write(t *testing.T, ws *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(map[string]string{"text": text}))
}

func TestHealthz(t *testing.T) {
	req := require.New(t)
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
}

func TestWebSocket_Chat_Roundtrip(t *testing.T) {
	req := require.New(t)
	srv := newServer(t)

	alice := dial(t, srv, "alice")
	readUntil(t, alice, has("system", "alice has joined"))
	bob := dial(t, srv, "bob")
	readUntil(t, bob, has("system", "bob has joined"))
	readUntil(t, alice, has("system", "bob has joined"))

	write(t, alice, "hello bob")
	evt := readUntil(t, bob, has("text", "hello bob"))
	req.Equal("alice", evt["user"])

	resp, err := http.Get(srv.URL + "/api/room")
	req.NoError(err)
	defer resp.Body.Close()
	var info orch.Info
	req.NoError(json.NewDecoder(resp.Body).Decode(&info))
	req.ElementsMatch([]string{"alice", "bob"}, info.Users)

	req.NoError(bob.Close())
	readUntil(t, alice, has("system", "bob has left"))
}

func TestWebSocket_Banned_Nick_Is_Refused(t *testing.T) {
	req := require.New(t)
	srv := newServer(t)

	alice := dial(t, srv, "alice")
	readUntil(t, alice, has("system", "alice has joined"))
	write(t, alice, "/identify "+testPasskey)
	readUntil(t, alice, has("system", "IDENTIFIED: You are now an admin (@)."))
	write(t, alice, "/ban mallory")
	readUntil(t, alice, has("system", "mallory has been banned by alice"))

	mallory := dial(t, srv, "mallory")
	readUntil(t, mallory, has("system", "You are banned from this room."))
	_, _, err := mallory.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}
