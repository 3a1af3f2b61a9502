package telephony

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// TurnSession is the session-side surface the turn stream drives. The
// stream layer never sees orchestrator internals, only these three
// operations.
type TurnSession interface {
	// HandleTurn processes one finished caller utterance and returns the
	// text to speak back.
	HandleTurn(ctx context.Context, text string) (string, error)

	// NotifyHangup reports that the remote side went away.
	NotifyHangup(reason string)

	// AttachSpeaker hands the session an outbound speech channel.
	AttachSpeaker(s Speaker)
}

// SessionResolver maps a provider call id to its live session.
type SessionResolver func(callSID string) (TurnSession, bool)

const (
	streamEventStart = "start"
	streamEventTurn  = "turn"
	streamEventStop  = "stop"
	streamEventSay   = "say"
)

type streamEvent struct {
	Event   string `json:"event"`
	CallSid string `json:"call_sid,omitempty"`
	Text    string `json:"text,omitempty"`
}

// wsSpeaker serializes outbound writes on a single websocket connection.
type wsSpeaker struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSpeaker) Say(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	} else {
		_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	}
	return s.conn.WriteJSON(streamEvent{Event: streamEventSay, Text: text})
}

// StreamHandler terminates the provider's bidirectional media stream as
// a JSON message loop. The first frame must be a start event carrying
// the call sid; subsequent turn events are fed to the session and each
// reply goes back as a say event.
type StreamHandler struct {
	Resolve  SessionResolver
	Log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewStreamHandler(resolve SessionResolver, log *slog.Logger) *StreamHandler {
	return &StreamHandler{
		Resolve: resolve,
		Log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The provider connects server-to-server without an Origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) HandleStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn("stream upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	session, callSID, err := h.handshake(conn, c.Query("call"))
	if err != nil {
		h.Log.Warn("stream handshake failed", "err", err)
		return
	}
	log := h.Log.With("call_sid", callSID)

	speaker := &wsSpeaker{conn: conn}
	session.AttachSpeaker(speaker)
	log.Info("turn stream attached")

	h.readLoop(c.Request.Context(), conn, session, speaker, log)
}

// handshake resolves the session from the start frame. The call sid may
// also arrive as a query parameter; the frame wins when both are set.
func (h *StreamHandler) handshake(conn *websocket.Conn, queryCallSID string) (TurnSession, string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var ev streamEvent
	if err := conn.ReadJSON(&ev); err != nil {
		return nil, "", err
	}
	if ev.Event != streamEventStart {
		return nil, "", errors.New("first stream frame must be a start event")
	}

	callSID := ev.CallSid
	if callSID == "" {
		callSID = queryCallSID
	}
	if callSID == "" {
		return nil, "", errors.New("start event missing call_sid")
	}

	session, ok := h.Resolve(callSID)
	if !ok {
		return nil, "", errors.New("no session for call " + callSID)
	}
	return session, callSID, nil
}

// readLoop pumps inbound frames. All outbound writes, including turn
// replies, go through the shared speaker so they never interleave with
// session-initiated speech on the same connection.
func (h *StreamHandler) readLoop(ctx context.Context, conn *websocket.Conn, session TurnSession, speaker *wsSpeaker, log *slog.Logger) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))

		var ev streamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				session.NotifyHangup("stream_closed")
			} else {
				session.NotifyHangup("stream_error")
				log.Warn("turn stream read failed", "err", err)
			}
			return
		}

		switch ev.Event {
		case streamEventTurn:
			if ev.Text == "" {
				continue
			}
			reply, err := session.HandleTurn(ctx, ev.Text)
			if err != nil {
				log.Warn("turn handling failed", "err", err)
				continue
			}
			if reply == "" {
				continue
			}
			if err := speaker.Say(ctx, reply); err != nil {
				log.Warn("say write failed", "err", err)
				session.NotifyHangup("stream_error")
				return
			}
		case streamEventStop:
			session.NotifyHangup("caller_hangup")
			return
		default:
			log.Debug("ignoring stream event", "event", ev.Event)
		}
	}
}
