package termination

import (
	"context"
	"errors"
	"fmt"

	"voice-agent-platform/internal/telephony"
)

// Target bundles every handle that teardown may act on. Any field may be
// nil; strategies skip what is absent. Session, Agent, and JobContext are
// opaque host objects probed through the capability interfaces in the
// telephony package.
type Target struct {
	Room       telephony.Room
	Session    any
	Agent      any
	JobContext any
	Terminator telephony.CallTerminator
}

var errNothingToDo = errors.New("nothing to act on")

// Strategies returns the full teardown cascade in execution order. Every
// strategy runs regardless of earlier outcomes so a partially dead host
// still gets every remaining chance to release the call.
func Strategies(t Target) []Strategy {
	return []Strategy{
		strategyFunc{"disconnect_participants", t.disconnectParticipants},
		strategyFunc{"close_room", t.closeRoom},
		strategyFunc{"shutdown_session", t.shutdownSession},
		strategyFunc{"stop_agent", t.stopAgent},
		strategyFunc{"force_disconnect_sip_legs", t.forceDisconnectSIPLegs},
		strategyFunc{"room_controller_eject", t.roomControllerEject},
		strategyFunc{"close_transport", t.closeTransport},
		strategyFunc{"terminate_provider_call", t.terminateProviderCall},
		strategyFunc{"disconnect_job_context", t.disconnectJobContext},
	}
}

// disconnectParticipants asks every remote participant to leave.
func (t Target) disconnectParticipants(ctx context.Context) error {
	if t.Room == nil {
		return nil
	}
	var firstErr error
	for _, p := range t.Room.RemoteParticipants(ctx) {
		if err := p.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("participant %s: %w", p.Identity(), err)
		}
	}
	return firstErr
}

func (t Target) closeRoom(ctx context.Context) error {
	if t.Room == nil {
		return nil
	}
	return t.Room.Close(ctx)
}

// shutdownSession probes the session handle's shutdown primitives in a
// fixed preference order and stops at the first one that succeeds.
func (t Target) shutdownSession(ctx context.Context) error {
	if t.Session == nil {
		return nil
	}
	return probeShutdown(ctx, t.Session)
}

func (t Target) stopAgent(ctx context.Context) error {
	if t.Agent == nil {
		return nil
	}
	if err := probeShutdown(ctx, t.Agent); err != nil && !errors.Is(err, errNothingToDo) {
		return err
	}
	return nil
}

func probeShutdown(ctx context.Context, handle any) error {
	var lastErr error
	tried := false

	try := func(fn func(context.Context) error) bool {
		tried = true
		if err := fn(ctx); err != nil {
			lastErr = err
			return false
		}
		return true
	}

	if d, ok := handle.(telephony.Disconnecter); ok && try(d.Disconnect) {
		return nil
	}
	if s, ok := handle.(telephony.Stopper); ok && try(s.Stop) {
		return nil
	}
	if e, ok := handle.(telephony.Ender); ok && try(e.End) {
		return nil
	}
	if c, ok := handle.(telephony.Closer); ok && try(c.Close) {
		return nil
	}
	if term, ok := handle.(telephony.Terminable); ok && try(term.Terminate) {
		return nil
	}
	if sh, ok := handle.(telephony.Shutdowner); ok && try(sh.Shutdown) {
		return nil
	}
	if !tried {
		return errNothingToDo
	}
	return lastErr
}

// forceDisconnectSIPLegs targets only telephony legs, trying Disconnect
// first and Remove as a fallback.
func (t Target) forceDisconnectSIPLegs(ctx context.Context) error {
	if t.Room == nil {
		return nil
	}
	var firstErr error
	for _, p := range t.Room.RemoteParticipants(ctx) {
		if !telephony.IsTelephonyLeg(p.Identity()) {
			continue
		}
		if err := p.Disconnect(ctx); err == nil {
			continue
		} else if firstErr == nil {
			firstErr = fmt.Errorf("sip leg %s: %w", p.Identity(), err)
		}
		if r, ok := p.(telephony.Removable); ok {
			if err := r.Remove(ctx); err == nil {
				firstErr = nil
			}
		}
	}
	return firstErr
}

// roomControllerEject uses server-side room controls when the room object
// exposes them.
func (t Target) roomControllerEject(ctx context.Context) error {
	if t.Room == nil {
		return nil
	}
	disconnector, hasDisconnect := t.Room.(telephony.ParticipantDisconnector)
	remover, hasRemove := t.Room.(telephony.ParticipantRemover)
	if !hasDisconnect && !hasRemove {
		return nil
	}

	var firstErr error
	for _, p := range t.Room.RemoteParticipants(ctx) {
		identity := p.Identity()
		if hasDisconnect {
			if err := disconnector.DisconnectParticipant(ctx, identity); err == nil {
				continue
			} else if firstErr == nil {
				firstErr = fmt.Errorf("disconnect %s: %w", identity, err)
			}
		}
		if hasRemove {
			if err := remover.RemoveParticipant(ctx, identity); err == nil {
				firstErr = nil
			} else if firstErr == nil {
				firstErr = fmt.Errorf("remove %s: %w", identity, err)
			}
		}
	}
	return firstErr
}

func (t Target) closeTransport(ctx context.Context) error {
	holder, ok := t.Room.(telephony.TransportHolder)
	if t.Room == nil || !ok {
		return nil
	}
	transport := holder.Transport()
	if transport == nil {
		return nil
	}
	return transport.Close()
}

// terminateProviderCall ends the PSTN leg through the provider REST API
// using the call sid advertised on the sip participant.
func (t Target) terminateProviderCall(ctx context.Context) error {
	if t.Terminator == nil || t.Room == nil {
		return nil
	}
	for _, p := range t.Room.RemoteParticipants(ctx) {
		if !telephony.IsTelephonyLeg(p.Identity()) {
			continue
		}
		callSID := p.Attributes()[telephony.CallSIDAttribute]
		if callSID == "" {
			continue
		}
		if !t.Terminator.Terminate(ctx, callSID) {
			return fmt.Errorf("provider refused to terminate call %s", callSID)
		}
	}
	return nil
}

func (t Target) disconnectJobContext(ctx context.Context) error {
	if t.JobContext == nil {
		return nil
	}
	if err := probeShutdown(ctx, t.JobContext); err != nil && !errors.Is(err, errNothingToDo) {
		return err
	}
	return nil
}
