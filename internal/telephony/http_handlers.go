package telephony

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"voice-agent-platform/pkg/logger"
	"voice-agent-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// InboundCallHandler converts the provider voice webhook to the internal
// session-accept event, launches an orchestrator, and answers with TwiML
// that points the call's media stream back at this process.
//
// Duplicate deliveries: providers redeliver webhooks on timeouts. The
// Redis latch makes a retried delivery idempotent; the original session
// keeps running and the retry just gets the same TwiML again.
type InboundCallHandler struct {
	Launcher SessionLauncher

	// Redis backs the per-call latch; optional (nil disables dedup).
	Redis    *redis.Client
	LatchTTL time.Duration

	// StreamURL is the externally reachable websocket endpoint.
	StreamURL string

	Now func() time.Time
}

func (h InboundCallHandler) HandleInboundCall(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Launcher == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session launcher not configured"})
		return
	}

	form, err := ParseInboundCallForm(c.Request)
	if err != nil {
		log.Warn("inbound webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if form.CallSid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "CallSid required"})
		return
	}

	streamURL := h.streamURLFor(form.CallSid)

	latchKey := "call_latch:" + form.CallSid
	latched := false
	if h.Redis != nil {
		acquired, err := utils.AcquireCallLatch(c.Request.Context(), h.Redis, latchKey, h.latchTTL())
		if err != nil {
			// A broken latch must not reject live calls.
			log.Warn("call latch unavailable, proceeding without dedup", "err", err)
		} else if !acquired {
			log.Info("duplicate webhook delivery suppressed", "call_sid", form.CallSid)
			writeTwiML(c, streamURL, log)
			return
		} else {
			latched = true
		}
	}

	if _, err := h.Launcher.Launch(c.Request.Context(), form.ToInboundCall(h.Now().UTC())); err != nil {
		log.Error("session launch failed", "call_sid", form.CallSid, "err", err)
		if latched {
			// Free the latch so the provider's retry is not locked out.
			if rerr := utils.ReleaseCallLatch(c.Request.Context(), h.Redis, latchKey); rerr != nil {
				log.Warn("call latch release failed", "err", rerr)
			}
		}
		body, rerr := RenderRejectTwiML()
		if rerr != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(body))
		return
	}

	writeTwiML(c, streamURL, log)
}

func (h InboundCallHandler) streamURLFor(callSID string) string {
	return h.StreamURL + "?call=" + url.QueryEscape(callSID)
}

func (h InboundCallHandler) latchTTL() time.Duration {
	if h.LatchTTL > 0 {
		return h.LatchTTL
	}
	return 30 * time.Minute
}

func writeTwiML(c *gin.Context, streamURL string, log *slog.Logger) {
	body, err := RenderAcceptTwiML(streamURL)
	if err != nil {
		log.Error("twiml render failed", "err", err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(body))
}
