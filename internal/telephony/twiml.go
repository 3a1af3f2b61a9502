package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives we need at the adapter boundary: accept a call
// by connecting its media stream to this process, or turn it away.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlReject struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlConnect struct {
	XMLName xml.Name     `xml:"Connect"`
	Stream  *twimlStream `xml:"Stream,omitempty"`
}

type twimlStream struct {
	URL string `xml:"url,attr"`
}

// RenderAcceptTwiML tells the provider to stream the call's media to
// streamURL (the websocket endpoint served by this process).
func RenderAcceptTwiML(streamURL string) (string, error) {
	if strings.TrimSpace(streamURL) == "" {
		return "", errors.New("telephony: stream url required")
	}
	return render(twimlResponse{Verbs: []any{
		twimlConnect{Stream: &twimlStream{URL: streamURL}},
	}})
}

// RenderRejectTwiML turns the call away as busy.
func RenderRejectTwiML() (string, error) {
	return render(twimlResponse{Verbs: []any{twimlReject{Reason: "busy"}}})
}

// RenderHangupTwiML ends the call immediately.
func RenderHangupTwiML() (string, error) {
	return render(twimlResponse{Verbs: []any{twimlHangup{}}})
}

func render(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
