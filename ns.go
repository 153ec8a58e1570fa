// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package xmpp

const (
	NSClient   = "jabber:client"
	NSServer   = "jabber:server"
	NSStartTLS = "urn:ietf:params:xml:ns:xmpp-tls"
	NSStream   = "http://etherx.jabber.org/streams"
	NSXML      = "http://www.w3.org/XML/1998/namespace"
)
