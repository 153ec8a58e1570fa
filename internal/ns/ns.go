// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ns provides namespace constants that are used by the xmpp package and
// other internal packages.
package ns // import "greenmantle.im/xmppd/internal/ns"

// List of commonly used namespaces.
const (
	Bind     = "urn:ietf:params:xml:ns:xmpp-bind"
	SASL     = "urn:ietf:params:xml:ns:xmpp-sasl"
	StartTLS = "urn:ietf:params:xml:ns:xmpp-tls"
	XML      = "http://www.w3.org/XML/1998/namespace"

	// Stream is the namespace of the <stream:stream> wrapper element itself
	// (RFC 6120 §4.8.1).
	Stream = "http://etherx.jabber.org/streams"

	// Streams is the namespace of stream-level error conditions
	// (RFC 6120 §4.9.2).
	Streams = "urn:ietf:params:xml:ns:xmpp-streams"

	// Client is the default content namespace for client-to-server streams
	// (RFC 6120 §4.8.3).
	Client = "jabber:client"

	// Server is the default content namespace for server-to-server streams
	// (RFC 6120 §4.8.3).
	Server = "jabber:server"
)
