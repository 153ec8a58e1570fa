package router

import (
	"context"
	"errors"

	"greenmantle.im/xmppd/jid"
)

// errNoForwarder is returned by noneForwarder, the Router's default
// Forwarder, for every destination. It surfaces to the sender as a
// remote-server-not-found stanza error.
var errNoForwarder = errors.New("router: no s2s forwarder configured")

// Forwarder hands a raw stanza (its complete, self-contained start and end
// tags included) off to whatever is responsible for delivering it to a
// remote domain. A real deployment is expected to supply one backed by the
// s2s package's outbound dialback client, opening (or reusing) a verified
// connection to to's domain and replaying raw onto it the way Router
// replays locally bound stanzas onto a *xmpp.Session.
type Forwarder interface {
	Forward(ctx context.Context, to *jid.JID, raw []byte) error
}

// noneForwarder is the Router's default Forwarder. It never succeeds:
// outbound S2S dialback requires opening a new TCP connection, negotiating
// StartTLS and dialback (or authenticating over an established one) for
// every unique remote domain, tracking and reusing those connections across
// stanzas, and retrying failed dialback authentications. Building that
// outbound client is out of scope for this module; servers that need
// federated delivery must supply their own Forwarder, grounded on the s2s
// and dial packages' existing outbound primitives (s2s.SendResult,
// s2s.HMACVerifier, dial.Dialer), by setting Router's Forward field.
type noneForwarder struct{}

func (noneForwarder) Forward(ctx context.Context, to *jid.JID, raw []byte) error {
	return errNoForwarder
}
