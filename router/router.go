package router

import (
	"context"
	"encoding/xml"

	"mellium.im/xmlstream"
	"greenmantle.im/xmppd/jid"
	"greenmantle.im/xmppd/mux"
	"greenmantle.im/xmppd/stanza"
)

// Router implements the local stanza delivery policy described by RFC 6121
// §8: it consults a Table to find the session(s) bound to a stanza's
// destination, replays the stanza onto whichever sessions the policy
// selects, and falls back to an OfflineStore or a Forwarder when no local
// session can take it. It is registered with a mux.ServeMux as the
// catch-all MessageHandler and PresenceHandler for every stanza type, via
// Options, so it runs in place of the mux package's own nopHandler whenever
// no more specific module claims a stanza's payload.
type Router struct {
	// Domain is this server's own domain; stanzas addressed to any other
	// domain are handed to Forward instead of the Table.
	Domain *jid.JID

	// Table is the bare/full JID to session map consulted for local
	// delivery. Required.
	Table *Table

	// Offline stores messages addressed to a bare JID with no bound
	// sessions. If nil, such messages are silently dropped.
	Offline OfflineStore

	// Forward delivers stanzas addressed to a non-local domain. If nil,
	// such stanzas are bounced back to their sender as
	// remote-server-not-found.
	Forward Forwarder
}

// New returns a Router backed by table, a process-local MemoryOfflineStore,
// and no outbound S2S forwarding, for the given local domain.
func New(domain *jid.JID, table *Table) *Router {
	return &Router{
		Domain:  domain,
		Table:   table,
		Offline: NewMemoryOfflineStore(),
		Forward: noneForwarder{},
	}
}

// Options returns the mux.Options that register r as the fallback handler
// for every message and presence type. Each is registered with a fully
// wildcard payload name, which is the mux package's final dispatch tier
// (see ServeMux.MessageHandler/PresenceHandler) reached only once no
// module-specific registration for that stanza type and payload matches.
func (r *Router) Options() []mux.Option {
	var opts []mux.Option
	for _, typ := range []stanza.MessageType{
		stanza.NormalMessage, stanza.ChatMessage, stanza.GroupChatMessage,
		stanza.HeadlineMessage, stanza.ErrorMessage, "",
	} {
		opts = append(opts, mux.Message(typ, xml.Name{}, r))
	}
	for _, typ := range []stanza.PresenceType{
		stanza.ErrorPresence, stanza.ProbePresence, stanza.SubscribePresence,
		stanza.SubscribedPresence, stanza.UnavailablePresence,
		stanza.UnsubscribePresence, stanza.UnsubscribedPresence, "",
	} {
		opts = append(opts, mux.Presence(typ, xml.Name{}, r))
	}
	return opts
}

func (r *Router) local(j *jid.JID) bool {
	return r.Domain == nil || j.Domainpart() == r.Domain.Domainpart()
}

// bounce writes a type="error" reply for msg directly onto t, the sender's
// own stream, the same way other modules in this tree reply in place
// (eg. ping.Handler.HandleIQ).
func bounce(t xmlstream.TokenWriter, msg stanza.Message, cond stanza.Error) error {
	reply := stanza.Message{
		XMLName: msg.XMLName,
		ID:      msg.ID,
		To:      msg.From,
		From:    msg.To,
		Type:    stanza.ErrorMessage,
	}
	_, err := xmlstream.Copy(t, xmlstream.Wrap(cond.TokenReader(), reply.StartElement()))
	return err
}

// HandleMessage implements mux.MessageHandler.
func (r *Router) HandleMessage(msg stanza.Message, t xmlstream.TokenReadEncoder) error {
	if msg.To == nil {
		return nil
	}
	if !r.local(msg.To) {
		return r.forward(context.Background(), msg, t)
	}

	if msg.To.Resourcepart() != "" {
		if session, ok := r.Table.Full(msg.To); ok {
			raw, err := captureRaw(t, msg.StartElement())
			if err != nil {
				return err
			}
			return replay(session, raw)
		}
		// No session bound to the exact resource requested; fall through and
		// treat delivery as if it had been addressed to the bare JID, per
		// RFC 6121 §8.5.3.2.1.
	}

	sessions := r.Table.Bare(msg.To)
	if len(sessions) == 0 {
		if msg.Type == stanza.ErrorMessage || r.Offline == nil {
			return nil
		}
		raw, err := captureRaw(t, msg.StartElement())
		if err != nil {
			return err
		}
		return r.Offline.Store(context.Background(), msg.To, raw)
	}

	if msg.Type == stanza.ChatMessage || msg.Type == stanza.NormalMessage || msg.Type == "" {
		// No presence priority is tracked, so the most recently bound
		// resource stands in for "highest priority" (RFC 6121 §8.5.2.1.1).
		raw, err := captureRaw(t, msg.StartElement())
		if err != nil {
			return err
		}
		return replay(sessions[len(sessions)-1], raw)
	}

	raw, err := captureRaw(t, msg.StartElement())
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if err := replay(session, raw); err != nil {
			return err
		}
	}
	return nil
}

// HandlePresence implements mux.PresenceHandler. Presence is always
// broadcast to every bound resource under the destination's bare JID; there
// is no offline store or resource-selection policy for presence.
func (r *Router) HandlePresence(p stanza.Presence, t xmlstream.TokenReadEncoder) error {
	if p.To == nil {
		return nil
	}
	if !r.local(p.To) {
		return r.forwardPresence(context.Background(), p, t)
	}
	return r.deliverPresence(p, t)
}

func (r *Router) deliverPresence(p stanza.Presence, t xmlstream.TokenReadEncoder) error {
	if p.To.Resourcepart() != "" {
		if session, ok := r.Table.Full(p.To); ok {
			raw, err := captureRaw(t, p.StartElement())
			if err != nil {
				return err
			}
			return replay(session, raw)
		}
		return nil
	}

	targets := r.Table.Bare(p.To)
	if len(targets) == 0 {
		return nil
	}
	raw, err := captureRaw(t, p.StartElement())
	if err != nil {
		return err
	}
	for _, session := range targets {
		if err := replay(session, raw); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) forward(ctx context.Context, msg stanza.Message, t xmlstream.TokenReadEncoder) error {
	raw, err := captureRaw(t, msg.StartElement())
	if err != nil {
		return err
	}
	forwarder := r.Forward
	if forwarder == nil {
		forwarder = noneForwarder{}
	}
	if err := forwarder.Forward(ctx, msg.To, raw); err != nil {
		if msg.Type == stanza.ErrorMessage {
			return nil
		}
		return bounce(t, msg, stanza.Error{Condition: stanza.RemoteServerNotFound, Type: stanza.Cancel})
	}
	return nil
}

func (r *Router) forwardPresence(ctx context.Context, p stanza.Presence, t xmlstream.TokenReadEncoder) error {
	raw, err := captureRaw(t, p.StartElement())
	if err != nil {
		return err
	}
	forwarder := r.Forward
	if forwarder == nil {
		forwarder = noneForwarder{}
	}
	return forwarder.Forward(ctx, p.To, raw)
}
