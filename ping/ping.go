// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package ping implements XEP-0199: XMPP Ping.
package ping // import "greenmantle.im/xmppd/ping"

import (
	"context"
	"encoding/xml"

	"mellium.im/xmlstream"
	"greenmantle.im/xmppd"
	"greenmantle.im/xmppd/jid"
	"greenmantle.im/xmppd/mux"
	"greenmantle.im/xmppd/stanza"
)

// NS is the namespace used by this package, provided as a convenience.
const NS = `urn:xmpp:ping`

// Ping is the payload of a ping request.
type Ping struct {
	stanza.IQ

	Ping struct{} `xml:"urn:xmpp:ping ping"`
}

// TokenReader implements xmlstream.Marshaler.
func (p Ping) TokenReader() xml.TokenReader {
	return p.IQ.Wrap(xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Local: "ping", Space: NS}}))
}

// WriteXML implements xmlstream.WriterTo.
func (p Ping) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, p.TokenReader())
}

// Send sends a ping to the provided JID and blocks until a response (or
// error) is received.
func Send(ctx context.Context, s *xmpp.Session, to jid.JID) error {
	return SendIQ(ctx, stanza.IQ{To: to}, s)
}

// SendIQ is like Send but it allows the caller to customize the IQ.
// Changing the type of the provided IQ has no effect.
func SendIQ(ctx context.Context, iq stanza.IQ, s *xmpp.Session) error {
	if iq.Type != stanza.GetIQ {
		iq.Type = stanza.GetIQ
	}
	r, err := s.SendIQ(ctx, iq.Wrap(xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Local: "ping", Space: NS}})))
	if err != nil {
		return err
	}
	return r.Close()
}

// Handle returns an option that registers a handler responding to pings with
// an empty result.
func Handle() mux.Option {
	return mux.IQ(stanza.GetIQ, xml.Name{Local: "ping", Space: NS}, Handler{})
}

// Handler responds to ping requests with an empty IQ result.
type Handler struct{}

// HandleIQ responds to ping requests.
func (Handler) HandleIQ(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	if iq.Type != stanza.GetIQ || start.Name.Local != "ping" || start.Name.Space != NS {
		return nil
	}
	_, err := xmlstream.Copy(t, iq.Result(nil))
	return err
}
