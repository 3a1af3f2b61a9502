package telephony

import (
	"context"
	"strings"
)

// This file defines the boundary to the session host (the media/room
// runtime that delivers the call). The orchestrator consumes these
// surfaces read-only and best-effort; host objects may implement any
// subset of the optional capabilities.
//
// Rules:
// - No host SDK calls outside telephony adapters.
// - Capability checks are explicit interface assertions, in a fixed
//   order, never reflection.

// Participant is one remote member of the media room.
type Participant interface {
	// Identity is the host-assigned participant identifier. Telephony
	// legs follow the "sip_" naming convention (see IsTelephonyLeg).
	Identity() string
	// Attributes are provider-populated key/value pairs.
	Attributes() map[string]string
	// Metadata is free-form JSON attached by the provider, possibly empty.
	Metadata() string

	Disconnect(ctx context.Context) error
}

// Removable is an optional participant capability.
type Removable interface {
	Remove(ctx context.Context) error
}

// Room is the media room carrying the call.
type Room interface {
	RemoteParticipants(ctx context.Context) []Participant
	Close(ctx context.Context) error
}

// Optional room-controller capabilities.

type ParticipantDisconnector interface {
	DisconnectParticipant(ctx context.Context, identity string) error
}

type ParticipantRemover interface {
	RemoveParticipant(ctx context.Context, identity string) error
}

// TransportHolder exposes the lower-level connection under the room.
type TransportHolder interface {
	Transport() interface{ Close() error }
}

// Session-handle shutdown primitives. Host session objects expose
// inconsistent, version-dependent subsets of these; teardown probes them
// in a fixed preference order and stops at the first success.

type Disconnecter interface {
	Disconnect(ctx context.Context) error
}

type Stopper interface {
	Stop(ctx context.Context) error
}

type Ender interface {
	End(ctx context.Context) error
}

type Closer interface {
	Close(ctx context.Context) error
}

type Terminable interface {
	Terminate(ctx context.Context) error
}

type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Telephony-leg naming convention and provider attribute keys.

const (
	telephonyLegPrefix = "sip_"

	// PhoneAttribute carries the caller number on a telephony leg.
	PhoneAttribute = "sip.phoneNumber"

	// CallSIDAttribute carries the provider call identifier used for
	// remote termination of the PSTN leg.
	CallSIDAttribute = "sip.twilio.callSid"
)

// IsTelephonyLeg reports whether a participant identity names the
// PSTN/SIP side of the call.
func IsTelephonyLeg(identity string) bool {
	return strings.HasPrefix(identity, telephonyLegPrefix)
}

// LegPhoneNumber extracts a phone number embedded in a telephony-leg
// identity ("sip_+33600000001" -> "+33600000001"). Returns "" when the
// identity does not embed one.
func LegPhoneNumber(identity string) string {
	if !IsTelephonyLeg(identity) {
		return ""
	}
	phone := strings.TrimPrefix(identity, telephonyLegPrefix)
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	return ""
}

// CallTerminator force-ends the underlying provider call leg.
// Implementations must be safe to call with a dead or absent provider:
// false means "not terminated", never an exception.
type CallTerminator interface {
	Terminate(ctx context.Context, callSID string) bool
}

// Speaker delivers an utterance to the caller-facing audio path.
type Speaker interface {
	Say(ctx context.Context, text string) error
}
