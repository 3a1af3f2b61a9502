package telephony

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type stubTurnSession struct {
	mu       sync.Mutex
	turns    []string
	hangups  []string
	speaker  Speaker
	reply    string
	replyErr error
}

func (s *stubTurnSession) HandleTurn(_ context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, text)
	return s.reply, s.replyErr
}

func (s *stubTurnSession) NotifyHangup(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hangups = append(s.hangups, reason)
}

func (s *stubTurnSession) AttachSpeaker(sp Speaker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaker = sp
}

func (s *stubTurnSession) snapshot() (turns, hangups []string, attached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.turns...), append([]string(nil), s.hangups...), s.speaker != nil
}

func dialStream(t *testing.T, session TurnSession) (*websocket.Conn, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handler := NewStreamHandler(func(callSID string) (TurnSession, bool) {
		if callSID != "CA123" {
			return nil, false
		}
		return session, true
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := gin.New()
	r.GET("/stream", handler.HandleStream)
	srv := httptest.NewServer(r)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestStreamHandler_TurnRoundTrip(t *testing.T) {
	session := &stubTurnSession{reply: "Bonjour !"}
	conn, cleanup := dialStream(t, session)
	defer cleanup()

	if err := conn.WriteJSON(streamEvent{Event: streamEventStart, CallSid: "CA123"}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	if err := conn.WriteJSON(streamEvent{Event: streamEventTurn, Text: "je veux vendre"}); err != nil {
		t.Fatalf("write turn: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var say streamEvent
	if err := conn.ReadJSON(&say); err != nil {
		t.Fatalf("read say: %v", err)
	}
	if say.Event != streamEventSay || say.Text != "Bonjour !" {
		t.Fatalf("unexpected reply frame %+v", say)
	}

	turns, _, attached := session.snapshot()
	if !attached {
		t.Fatalf("speaker was not attached")
	}
	if len(turns) != 1 || turns[0] != "je veux vendre" {
		t.Fatalf("turns = %v", turns)
	}
}

func TestStreamHandler_StopNotifiesHangup(t *testing.T) {
	session := &stubTurnSession{}
	conn, cleanup := dialStream(t, session)
	defer cleanup()

	if err := conn.WriteJSON(streamEvent{Event: streamEventStart, CallSid: "CA123"}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	if err := conn.WriteJSON(streamEvent{Event: streamEventStop}); err != nil {
		t.Fatalf("write stop: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, hangups, _ := session.snapshot(); len(hangups) == 1 {
			if hangups[0] != "caller_hangup" {
				t.Fatalf("hangup reason = %q", hangups[0])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("hangup notification never arrived")
}

func TestStreamHandler_UnknownCallClosesStream(t *testing.T) {
	session := &stubTurnSession{}
	conn, cleanup := dialStream(t, session)
	defer cleanup()

	if err := conn.WriteJSON(streamEvent{Event: streamEventStart, CallSid: "CA404"}); err != nil {
		t.Fatalf("write start: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected server to close stream for unknown call")
	}
	if _, _, attached := session.snapshot(); attached {
		t.Fatalf("speaker must not attach for unknown call")
	}
}
