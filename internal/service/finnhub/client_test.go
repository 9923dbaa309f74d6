package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteStream_HandleKeepsNewest(t *testing.T) {
	s := New("k", "ws://unused", []string{"aapl"}, time.Second, 0, 0, nil)

	s.handle([]byte(`{"type":"trade","data":[{"s":"AAPL","p":100.5,"t":1709564400000,"v":10}]}`))
	s.handle([]byte(`{"type":"trade","data":[{"s":"AAPL","p":99.0,"t":1709564399000,"v":10}]}`))
	s.handle([]byte(`{"type":"ping"}`))
	s.handle([]byte(`not json`))

	p, ok := s.LastPrice("aapl")
	require.True(t, ok)
	assert.Equal(t, 100.5, p)

	_, ok = s.LastPrice("MSFT")
	assert.False(t, ok)
}

func TestQuoteStream_MaxAge(t *testing.T) {
	s := New("k", "ws://unused", nil, time.Second, 0, 30*time.Second, nil)
	at := time.UnixMilli(1709564400000).UTC()
	s.now = func() time.Time { return at.Add(10 * time.Second) }
	s.handle([]byte(`{"type":"trade","data":[{"s":"AAPL","p":100.5,"t":1709564400000}]}`))

	_, ok := s.LastPrice("AAPL")
	assert.True(t, ok)

	s.now = func() time.Time { return at.Add(time.Minute) }
	_, ok = s.LastPrice("AAPL")
	assert.False(t, ok)
}

func TestQuoteStream_RunSubscribesAndReads(t *testing.T) {
	subscribed := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub["symbol"]
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trade","data":[{"s":"AAPL","p":123.4,"t":1709564400000}]}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := New("secret", wsURL, []string{"AAPL"}, 10*time.Millisecond, 0, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case sym := <-subscribed:
		assert.Equal(t, "AAPL", sym)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe frame")
	}
	require.Eventually(t, func() bool {
		p, ok := s.LastPrice("AAPL")
		return ok && p == 123.4
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.IsConnected())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
