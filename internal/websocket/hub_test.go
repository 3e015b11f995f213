package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/backend/internal/domain"
	"portfolio/backend/internal/submission"
)

type fakeSessions map[string]*submission.Session

func (f fakeSessions) Get(id string) (*submission.Session, error) {
	s, ok := f[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	return s, nil
}

type fakeTokens struct{}

func (fakeTokens) VerifyFor(token, sessionID string) error {
	if token != "token-"+sessionID {
		return errors.New("mismatch")
	}
	return nil
}

func setup(t *testing.T) (*httptest.Server, *submission.Session, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sess := submission.NewService(submission.Options{}).NewSession("s1")
	hub := NewHub(nil, fakeSessions{"s1": sess}, fakeTokens{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/v1/sessions/:id/events", HandleWebSocket(hub))
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, sess, hub
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHandleWebSocket(t *testing.T) {
	t.Run("先收到快照再收到事件", func(t *testing.T) {
		srv, sess, hub := setup(t)

		conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/sessions/s1/events?token=token-s1"), nil)
		require.NoError(t, err)
		defer conn.Close()

		snap := readMessage(t, conn)
		assert.Equal(t, MessageTypeSnapshot, snap.Type)
		var s submission.Snapshot
		require.NoError(t, json.Unmarshal(snap.Data, &s))
		assert.Equal(t, domain.StatusIdle, s.Status)
		assert.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

		_, err = sess.Select([]domain.Attachment{{Name: "a.jpg", Size: 10}})
		require.NoError(t, err)

		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeEvent, msg.Type)
		var e submission.Event
		require.NoError(t, json.Unmarshal(msg.Data, &e))
		assert.Equal(t, submission.EventSelection, e.Type)
		require.Len(t, e.Files, 1)
		assert.Equal(t, "a.jpg", e.Files[0].Name)
	})

	t.Run("应用层 ping", func(t *testing.T) {
		srv, _, _ := setup(t)

		conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/sessions/s1/events?token=token-s1"), nil)
		require.NoError(t, err)
		defer conn.Close()
		readMessage(t, conn)

		require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
		assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)
	})

	t.Run("会话关闭后断开", func(t *testing.T) {
		srv, sess, _ := setup(t)

		conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/sessions/s1/events?token=token-s1"), nil)
		require.NoError(t, err)
		defer conn.Close()
		readMessage(t, conn)

		sess.Close()

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err = conn.ReadMessage()
		assert.Error(t, err)
	})

	t.Run("令牌错误", func(t *testing.T) {
		srv, _, _ := setup(t)

		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/sessions/s1/events?token=wrong"), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("会话不存在", func(t *testing.T) {
		srv, _, _ := setup(t)

		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/sessions/nope/events?token=token-nope"), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestUpgraderCheckOrigin(t *testing.T) {
	u := upgraderFactory([]string{"https://studio.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, u.CheckOrigin(req))

	req.Header.Set("Origin", "https://studio.example.com")
	assert.True(t, u.CheckOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, u.CheckOrigin(req))
}
