package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-agent-platform/internal/config"
)

func TestTwilioTerminator_MissingCredentialsReturnsFalse(t *testing.T) {
	term := NewTwilioTerminator(config.TwilioConfig{}, nil)
	if term.Terminate(context.Background(), "CA123") {
		t.Fatalf("expected false without credentials")
	}
}

func TestTwilioTerminator_PostsCompletedStatus(t *testing.T) {
	var gotPath, gotStatus string
	var gotAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotStatus = r.PostFormValue("Status")
		user, pass, ok := r.BasicAuth()
		gotAuth = ok && user == "AC1" && pass == "tok"
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	term := NewTwilioTerminator(config.TwilioConfig{AccountSID: "AC1", AuthToken: "tok"}, nil)
	term.baseURL = srv.URL

	if !term.Terminate(context.Background(), "CA123") {
		t.Fatalf("expected success")
	}
	if gotPath != "/2010-04-01/Accounts/AC1/Calls/CA123.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotStatus != "completed" {
		t.Fatalf("expected Status=completed, got %q", gotStatus)
	}
	if !gotAuth {
		t.Fatalf("expected basic auth with account credentials")
	}
}

func TestTwilioTerminator_NonOKIsFalseNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	term := NewTwilioTerminator(config.TwilioConfig{AccountSID: "AC1", AuthToken: "tok"}, nil)
	term.baseURL = srv.URL

	if term.Terminate(context.Background(), "CA404") {
		t.Fatalf("expected false on non-200")
	}
}

func TestTwilioTerminator_NetworkErrorIsFalseNotFatal(t *testing.T) {
	term := NewTwilioTerminator(config.TwilioConfig{AccountSID: "AC1", AuthToken: "tok"}, nil)
	term.baseURL = "http://127.0.0.1:1" // nothing listens here
	term.client = &http.Client{Timeout: 200 * time.Millisecond}

	if term.Terminate(context.Background(), "CA123") {
		t.Fatalf("expected false on network error")
	}
}

func TestLegPhoneNumber(t *testing.T) {
	tests := []struct {
		identity string
		want     string
	}{
		{"sip_+33600000001", "+33600000001"},
		{"sip_anonymous", ""},
		{"user_42", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := LegPhoneNumber(tt.identity); got != tt.want {
			t.Fatalf("LegPhoneNumber(%q) = %q, want %q", tt.identity, got, tt.want)
		}
	}
}
