// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package server

import (
	"crypto/tls"
	"encoding/xml"
	"sync"

	"mellium.im/sasl"
	"mellium.im/xmlstream"
	"greenmantle.im/xmppd"
	"greenmantle.im/xmppd/dial"
	"greenmantle.im/xmppd/jid"
	"greenmantle.im/xmppd/mux"
	"greenmantle.im/xmppd/router"
	"greenmantle.im/xmppd/s2s"
	xmppsasl "greenmantle.im/xmppd/sasl"
)

// Runtime holds the process-wide configuration shared by every connection
// the Server accepts: the routing table and module registry (mux.ServeMux),
// the TLS configuration, the SASL credential lookup used for c2s
// authentication, the resource binder, and the S2S dialback secret.
//
// A Runtime is safe for concurrent use by multiple goroutines once
// constructed; callers should not mutate its fields after passing it to
// New.
type Runtime struct {
	// Domain is this server's own domain, used as the stream "from"/location
	// when accepting connections.
	Domain *jid.JID

	// Mux dispatches routed stanzas to the registered modules (component
	// K). A nil Mux is replaced with an empty mux.New() router. Either way,
	// a router.Router backed by Table()/Offline/Forward is registered onto
	// it as the fallback handler for every message and presence type (see
	// build), so stanzas no module claims still reach local/offline/s2s
	// delivery instead of being dropped.
	Mux *mux.ServeMux

	// TLSConfig is used to negotiate STARTTLS on both listeners.
	TLSConfig *tls.Config

	// Authenticator looks up credentials for c2s SASL PLAIN authentication.
	// If nil, c2s connections are never offered a SASL feature, and resource
	// binding (which requires Authn) can never be reached; that is only
	// appropriate for servers that authenticate connections some other way.
	Authenticator xmppsasl.Authenticator

	// ResourceBind chooses a resourcepart at resource-bind time. If nil,
	// xmpp.RandomResource is used.
	ResourceBind xmpp.ResourceBinder

	// DialbackSecret is shared between this server and any remote servers it
	// trusts enough to vouch for via HMAC (XEP-0220 shared-secret
	// verification).
	DialbackSecret []byte

	// Dialer is used to open the second, verifying connection for s2s
	// dialback requests when DialbackSecret is empty (the
	// dial-back-and-ask-an-authoritative-server path).
	Dialer dial.Dialer

	// Offline stores messages for bare JIDs with no bound session. If nil, a
	// process-local router.MemoryOfflineStore is used.
	Offline router.OfflineStore

	// Forward delivers stanzas addressed to a domain other than Domain. If
	// nil, such stanzas are bounced back to their sender as
	// remote-server-not-found; see router.Forwarder.
	Forward router.Forwarder

	muxOnce sync.Once
	table   *router.Table
	builtMx *mux.ServeMux
}

// Table returns the routing table (component H) that every successfully
// bound c2s session is registered into, and that the router consults for
// local delivery. It is built, together with the rest of the dispatch
// chain, the first time it or Mux's augmented form is needed.
func (rt *Runtime) Table() *router.Table {
	rt.build()
	return rt.table
}

// c2sFeatures returns the stream features offered to client-to-server
// connections.
func (rt *Runtime) c2sFeatures() []xmpp.StreamFeature {
	var features []xmpp.StreamFeature
	if rt.TLSConfig != nil {
		features = append(features, xmpp.StartTLS(true, rt.TLSConfig))
	}
	if rt.Authenticator != nil {
		features = append(features, xmppsasl.New(rt.Authenticator, sasl.Plain))
	}
	bind := rt.ResourceBind
	if bind == nil {
		bind = xmpp.RandomResource
	}
	table := rt.Table()
	features = append(features, xmpp.BindResourceNotify(bind, func(session *xmpp.Session) {
		table.Bind(session.RemoteAddr(), session)
	}))
	return features
}

// s2sFeatures returns the stream features offered to server-to-server
// connections.
func (rt *Runtime) s2sFeatures() []xmpp.StreamFeature {
	var features []xmpp.StreamFeature
	if rt.TLSConfig != nil {
		features = append(features, xmpp.StartTLS(false, rt.TLSConfig))
	}
	features = append(features, s2s.Feature())
	return features
}

func (rt *Runtime) dialbackVerifier() s2s.Verifier {
	if len(rt.DialbackSecret) > 0 {
		return s2s.HMACVerifier(rt.DialbackSecret)
	}
	return s2s.DialVerifier(rt.Dialer, rt.Domain)
}

// build constructs the routing table and wires component H's Router into
// Mux (or a fresh mux.New(), if Mux is nil) as the fallback handler for
// every message and presence type, exactly once. Later calls are no-ops, so
// it is safe to call from every method that needs the table or the
// augmented mux, including once per accepted connection.
func (rt *Runtime) build() {
	rt.muxOnce.Do(func() {
		rt.table = router.NewTable()
		rtr := router.New(rt.Domain, rt.table)
		if rt.Offline != nil {
			rtr.Offline = rt.Offline
		}
		if rt.Forward != nil {
			rtr.Forward = rt.Forward
		}
		m := rt.Mux
		if m == nil {
			m = mux.New()
		}
		for _, opt := range rtr.Options() {
			opt(m)
		}
		rt.builtMx = m
	})
}

func (rt *Runtime) mux() *mux.ServeMux {
	rt.build()
	return rt.builtMx
}

// muxHandler adapts a *mux.ServeMux (whose HandleXMPP widens the token
// stream to an xmlstream.TokenReadEncoder) into an xmpp.Handler (whose
// HandleXMPP only guarantees an xmpp.TokenReadWriter, with no Flush).
// Method signatures must match exactly for interface satisfaction, so
// *mux.ServeMux cannot be used as an xmpp.Handler directly even though a
// TokenReadEncoder value is always assignable to a TokenReadWriter-typed
// variable.
type muxHandler struct {
	mux *mux.ServeMux
}

func (h muxHandler) HandleXMPP(t xmpp.TokenReadWriter, start *xml.StartElement) error {
	return h.mux.HandleXMPP(struct {
		xml.TokenReader
		xmlstream.Encoder
	}{
		TokenReader: t,
		Encoder:     flushEncoder{t},
	}, start)
}

// flushEncoder adapts an xmlstream.TokenWriter (which has no Flush method)
// into an xmlstream.Encoder by delegating to the underlying writer's Flush
// method when it has one, and treating it as a no-op otherwise. The
// reader/writer pair that xmpp.Session's handleInputStream passes to handlers
// has no Flush method; the session flushes its output after each handler
// returns.
type flushEncoder struct {
	xmlstream.TokenWriter
}

func (e flushEncoder) Flush() error {
	type flusher interface {
		Flush() error
	}
	if f, ok := e.TokenWriter.(flusher); ok {
		return f.Flush()
	}
	return nil
}
