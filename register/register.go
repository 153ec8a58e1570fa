// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package register implements XEP-0077: In-Band Registration.
package register // import "greenmantle.im/xmppd/register"

import (
	"context"
	"encoding/xml"

	"mellium.im/xmlstream"
	"greenmantle.im/xmppd/mux"
	"greenmantle.im/xmppd/stanza"
)

// NS is the namespace used by in-band registration requests, provided as a
// convenience.
const NS = "jabber:iq:register"

// Query is the payload of a registration request or response.
//
// A Remove request is signaled by a non-nil Remove; all other fields are
// ignored in that case.
type Query struct {
	XMLName  xml.Name  `xml:"jabber:iq:register query"`
	Username string    `xml:"username,omitempty"`
	Password string    `xml:"password,omitempty"`
	Remove   *struct{} `xml:"remove,omitempty"`
}

// TokenReader implements xmlstream.Marshaler.
func (q Query) TokenReader() xml.TokenReader {
	if q.Remove != nil {
		return xmlstream.Wrap(
			xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Local: "remove"}}),
			xml.StartElement{Name: xml.Name{Space: NS, Local: "query"}},
		)
	}

	var payloads []xml.TokenReader
	if q.Username != "" {
		payloads = append(payloads, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(q.Username)),
			xml.StartElement{Name: xml.Name{Local: "username"}},
		))
	}
	if q.Password != "" {
		payloads = append(payloads, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(q.Password)),
			xml.StartElement{Name: xml.Name{Local: "password"}},
		))
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(payloads...),
		xml.StartElement{Name: xml.Name{Space: NS, Local: "query"}},
	)
}

// WriteXML implements xmlstream.WriterTo.
func (q Query) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, q.TokenReader())
}

// MarshalXML implements xml.Marshaler.
func (q Query) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	_, err := q.WriteXML(e)
	if err != nil {
		return err
	}
	return e.Flush()
}

// AccountManagement is the storage interface this package's Handler delegates
// account creation and removal to.
//
// Implementations are responsible for hashing or otherwise protecting
// passwords at rest; the handler passes the password through unmodified.
type AccountManagement interface {
	// CreateAccount creates a new account with the given username and
	// password. Any non-nil error is reported to the client as a conflict,
	// since the username being taken is by far the most common failure.
	CreateAccount(ctx context.Context, username, password string) error

	// RemoveAccount removes the account with the given username.
	RemoveAccount(ctx context.Context, username string) error
}

// Handle returns an option that registers a Handler for in-band registration
// get and set requests.
func Handle(am AccountManagement) mux.Option {
	h := Handler{AccountManagement: am}
	return func(m *mux.ServeMux) {
		mux.IQ(stanza.GetIQ, xml.Name{Local: "query", Space: NS}, h)(m)
		mux.IQ(stanza.SetIQ, xml.Name{Local: "query", Space: NS}, h)(m)
	}
}

// Handler responds to in-band registration requests by delegating account
// mutation to an AccountManagement implementation.
type Handler struct {
	AccountManagement AccountManagement
}

// HandleIQ responds to in-band registration requests.
func (h Handler) HandleIQ(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	if start.Name.Local != "query" || start.Name.Space != NS {
		return nil
	}

	switch iq.Type {
	case stanza.GetIQ:
		_, err := xmlstream.Copy(t, iq.Result(Query{}.TokenReader()))
		return err
	case stanza.SetIQ:
		return h.handleSet(iq, t, start)
	}
	return nil
}

func (h Handler) handleSet(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	var q Query
	d := xml.NewTokenDecoder(t)
	if err := d.DecodeElement(&q, start); err != nil {
		return err
	}

	ctx := context.Background()
	if q.Remove != nil {
		username := ""
		if iq.From != nil {
			username = iq.From.Localpart()
		}
		if err := h.AccountManagement.RemoveAccount(ctx, username); err != nil {
			return writeErr(iq, t, stanza.Error{Condition: stanza.ItemNotFound})
		}
		_, err := xmlstream.Copy(t, iq.Result(nil))
		return err
	}

	if q.Username == "" || q.Password == "" {
		return writeErr(iq, t, stanza.Error{Condition: stanza.BadRequest})
	}

	if err := h.AccountManagement.CreateAccount(ctx, q.Username, q.Password); err != nil {
		return writeErr(iq, t, stanza.Error{Condition: stanza.Conflict})
	}
	_, err := xmlstream.Copy(t, iq.Result(nil))
	return err
}

func writeErr(iq stanza.IQ, t xmlstream.TokenReadEncoder, se stanza.Error) error {
	iq.Type = stanza.ErrorIQ
	_, err := xmlstream.Copy(t, iq.Wrap(se.TokenReader()))
	return err
}
