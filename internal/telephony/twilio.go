package telephony

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voice-agent-platform/internal/config"
)

const twilioAPIBase = "https://api.twilio.com"

// TwilioTerminator implements CallTerminator against the Twilio call
// control API: one POST setting the call status to "completed".
//
// Missing credentials short-circuit to false without a request; any
// non-200 status or transport error is logged and reported as false.
// Nothing here ever panics or propagates an error to the teardown path.
type TwilioTerminator struct {
	accountSID string
	authToken  string
	baseURL    string
	client     *http.Client
	log        *slog.Logger
}

func NewTwilioTerminator(cfg config.TwilioConfig, log *slog.Logger) *TwilioTerminator {
	if log == nil {
		log = slog.Default()
	}
	return &TwilioTerminator{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		baseURL:    twilioAPIBase,
		client:     &http.Client{Timeout: 5 * time.Second},
		log:        log,
	}
}

func (t *TwilioTerminator) Terminate(ctx context.Context, callSID string) bool {
	if t.accountSID == "" || t.authToken == "" {
		t.log.Warn("twilio credentials missing, skipping remote termination", "call_sid", callSID)
		return false
	}
	if callSID == "" {
		return false
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json", t.baseURL, t.accountSID, callSID)
	form := url.Values{"Status": {"completed"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		t.log.Error("twilio terminate request build failed", "call_sid", callSID, "err", err)
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Warn("twilio terminate request failed", "call_sid", callSID, "err", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		t.log.Warn("twilio terminate rejected",
			"call_sid", callSID, "status", resp.StatusCode, "body", string(body))
		return false
	}

	t.log.Info("twilio call terminated", "call_sid", callSID)
	return true
}
