package session

import (
	"context"
	"log/slog"
	"time"

	"voice-agent-platform/internal/backend"
)

// ReplyPipeline turns one caller utterance into the text to speak back,
// inside a hard deadline. A backend that is late or broken degrades to a
// keyword fallback; the caller always hears something.
type ReplyPipeline struct {
	backend  backend.Responder
	deadline time.Duration
	log      *slog.Logger
}

func NewReplyPipeline(responder backend.Responder, deadline time.Duration, log *slog.Logger) *ReplyPipeline {
	return &ReplyPipeline{backend: responder, deadline: deadline, log: log}
}

type pipelineResult struct {
	reply backend.Reply
	err   error
}

// Generate runs the backend under the turn deadline. The result channel
// is buffered so a late backend reply is discarded instead of leaking
// the goroutine.
func (p *ReplyPipeline) Generate(ctx context.Context, turns []backend.Turn) (backend.Reply, bool) {
	turnCtx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	done := make(chan pipelineResult, 1)
	go func() {
		reply, err := p.backend.GenerateReply(turnCtx, turns)
		done <- pipelineResult{reply: reply, err: err}
	}()

	lastTurn := ""
	if n := len(turns); n > 0 {
		lastTurn = turns[n-1].Content
	}

	select {
	case res := <-done:
		if res.err != nil {
			p.log.Warn("backend reply failed, using fallback", "err", res.err)
			return backend.Reply{Text: FallbackReply(lastTurn)}, false
		}
		if res.reply.Text == "" && len(res.reply.ToolCalls) == 0 {
			return backend.Reply{Text: FallbackReply(lastTurn)}, false
		}
		return res.reply, true
	case <-turnCtx.Done():
		p.log.Warn("turn deadline exceeded, using fallback", "deadline", p.deadline)
		return backend.Reply{Text: FallbackReply(lastTurn)}, false
	}
}
