// Copyright 2017 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package sasl negotiates authentication using the Simple Authentication and
// Security Layer (SASL) as defined in RFC 6120 §6 and RFC 4422.
package sasl // import "greenmantle.im/xmppd/sasl"

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"mellium.im/sasl"
	"greenmantle.im/xmppd"
	"greenmantle.im/xmppd/internal/ns"
	"greenmantle.im/xmppd/internal/saslerr"
	"greenmantle.im/xmppd/jid"
	"greenmantle.im/xmppd/stream"
)

// ErrNoMechanisms is returned when negotiating SASL as an initiating entity
// if none of the local mechanisms match one advertised by the peer.
var ErrNoMechanisms = errors.New("sasl: no matching mechanisms found")

// Authenticator looks up the password for an authentication identity. It is
// called by the receiving (server) side of a session to check credentials
// offered by a client; ok is false if no such identity exists.
type Authenticator func(ctx context.Context, identity string) (password string, ok bool, err error)

// New returns a stream feature for performing SASL authentication. auth is
// used on the receiving side to look up credentials; it is ignored when
// negotiating as an initiating entity and may be nil in that role. mechanisms
// are tried in order, so stronger mechanisms should be listed first.
func New(auth Authenticator, mechanisms ...sasl.Mechanism) xmpp.StreamFeature {
	if len(mechanisms) == 0 {
		panic("sasl: must specify at least 1 mechanism")
	}

	return xmpp.StreamFeature{
		Name:       xml.Name{Space: ns.SASL, Local: "mechanisms"},
		Necessary:  xmpp.Secure,
		Prohibited: xmpp.Authn,
		List: func(ctx context.Context, e *xml.Encoder, start xml.StartElement) (req bool, err error) {
			req = true
			if err = e.EncodeToken(start); err != nil {
				return req, err
			}
			startMechanism := xml.StartElement{Name: xml.Name{Local: "mechanism"}}
			for _, m := range mechanisms {
				select {
				case <-ctx.Done():
					return req, ctx.Err()
				default:
				}
				if err = e.EncodeToken(startMechanism); err != nil {
					return req, err
				}
				if err = e.EncodeToken(xml.CharData(m.Name)); err != nil {
					return req, err
				}
				if err = e.EncodeToken(startMechanism.End()); err != nil {
					return req, err
				}
			}
			if err = e.EncodeToken(start.End()); err != nil {
				return req, err
			}
			return req, e.Flush()
		},
		Parse: func(ctx context.Context, d *xml.Decoder, start *xml.StartElement) (bool, interface{}, error) {
			parsed := struct {
				XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl mechanisms"`
				List    []string `xml:"urn:ietf:params:xml:ns:xmpp-sasl mechanism"`
			}{}
			err := d.DecodeElement(&parsed, start)
			return true, parsed.List, err
		},
		Matches: func(start xml.StartElement) bool {
			return start.Name == xml.Name{Space: ns.SASL, Local: "auth"}
		},
		Negotiate: func(ctx context.Context, session *xmpp.Session, data interface{}) (mask xmpp.SessionState, rw io.ReadWriter, err error) {
			if (session.State() & xmpp.Received) == xmpp.Received {
				return negotiateServer(ctx, session, auth, mechanisms)
			}
			return negotiateClient(ctx, session, data.([]string), mechanisms)
		},
	}
}

func negotiateClient(ctx context.Context, session *xmpp.Session, remote []string, mechanisms []sasl.Mechanism) (mask xmpp.SessionState, rw io.ReadWriter, err error) {
	conn := session.Conn()

	var selected sasl.Mechanism
selectmechanism:
	for _, m := range mechanisms {
		for _, name := range remote {
			if name == m.Name {
				selected = m
				break selectmechanism
			}
		}
	}
	if selected.Name == "" {
		return mask, nil, ErrNoMechanisms
	}

	opts := []sasl.Option{
		sasl.RemoteMechanisms(remote...),
	}
	if username := session.LocalAddr().Localpart(); username != "" {
		opts = append(opts, sasl.Credentials(username, ""))
	}
	if tlsconn, ok := conn.Raw().(*tls.Conn); ok {
		opts = append(opts, sasl.ConnState(tlsconn.ConnectionState()))
	}
	client := sasl.NewClient(selected, opts...)

	more, resp, err := client.Step(nil)
	if err != nil {
		return mask, nil, err
	}

	if _, err = fmt.Fprintf(conn,
		`<auth xmlns='%s' mechanism='%s'>%s</auth>`,
		ns.SASL, selected.Name, resp,
	); err != nil {
		return mask, nil, err
	}

	success := false
	for {
		tok, err := session.Token()
		if err != nil {
			return mask, nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			return mask, nil, stream.BadFormat
		}
		var challenge []byte
		challenge, success, err = decodeSASLChallenge(session.Decoder(), start)
		if err != nil {
			return mask, nil, err
		}
		if success {
			break
		}
		if !more {
			return mask, nil, stream.UndefinedCondition
		}
		more, resp, err = client.Step(challenge)
		if err != nil {
			return mask, nil, err
		}
		if _, err = fmt.Fprintf(conn, `<response xmlns='%s'>%s</response>`, ns.SASL, resp); err != nil {
			return mask, nil, err
		}
	}
	return xmpp.Authn, nil, nil
}

func negotiateServer(ctx context.Context, session *xmpp.Session, auth Authenticator, mechanisms []sasl.Mechanism) (mask xmpp.SessionState, rw io.ReadWriter, err error) {
	conn := session.Conn()

	tok, err := session.Token()
	if err != nil {
		return mask, nil, err
	}
	start, ok := tok.(xml.StartElement)
	if !ok || start.Name != (xml.Name{Space: ns.SASL, Local: "auth"}) {
		return mask, nil, stream.BadFormat
	}
	req := struct {
		XMLName   xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl auth"`
		Mechanism string   `xml:"mechanism,attr"`
		Payload   []byte   `xml:",chardata"`
	}{}
	if err = session.Decoder().DecodeElement(&req, &start); err != nil {
		return mask, nil, err
	}

	var selected sasl.Mechanism
	for _, m := range mechanisms {
		if m.Name == req.Mechanism {
			selected = m
			break
		}
	}
	if selected.Name == "" {
		fail := saslerr.Failure{Condition: saslerr.InvalidMechanism}
		if werr := xml.NewEncoder(conn).Encode(fail); werr != nil {
			return mask, nil, werr
		}
		return mask, nil, fail
	}

	var identity string
	permit := func(n *sasl.Negotiator) bool {
		return true
	}

	lookup := func(username []byte) ([]byte, error) {
		identity = string(username)
		pass, ok, err := auth(ctx, identity)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New("sasl: no such identity")
		}
		return []byte(pass), nil
	}

	server := sasl.NewServer(selected, permit, sasl.CredentialsFunc(lookup))

	more, resp, err := server.Step(req.Payload)
	if err != nil {
		_ = xml.NewEncoder(conn).Encode(saslerr.Failure{Condition: saslerr.NotAuthorized})
		return mask, nil, err
	}
	for more {
		if _, err = fmt.Fprintf(conn, `<challenge xmlns='%s'>%s</challenge>`, ns.SASL, resp); err != nil {
			return mask, nil, err
		}
		tok, err := session.Token()
		if err != nil {
			return mask, nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name != (xml.Name{Space: ns.SASL, Local: "response"}) {
			return mask, nil, stream.BadFormat
		}
		respElem := struct {
			XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl response"`
			Payload []byte   `xml:",chardata"`
		}{}
		if err = session.Decoder().DecodeElement(&respElem, &start); err != nil {
			return mask, nil, err
		}
		more, resp, err = server.Step(respElem.Payload)
		if err != nil {
			_ = xml.NewEncoder(conn).Encode(saslerr.Failure{Condition: saslerr.NotAuthorized})
			return mask, nil, err
		}
	}

	if _, err = fmt.Fprintf(conn, `<success xmlns='%s'/>`, ns.SASL); err != nil {
		return mask, nil, err
	}
	bare, err := jid.New(identity, session.LocalAddr().Domainpart(), "")
	if err != nil {
		return mask, nil, err
	}
	session.SetOrigin(&bare)
	return xmpp.Authn, nil, nil
}

func decodeSASLChallenge(d *xml.Decoder, start xml.StartElement) (challenge []byte, success bool, err error) {
	switch start.Name {
	case xml.Name{Space: ns.SASL, Local: "challenge"}:
		c := struct {
			Data []byte `xml:",chardata"`
		}{}
		if err = d.DecodeElement(&c, &start); err != nil {
			return nil, false, err
		}
		return c.Data, false, nil
	case xml.Name{Space: ns.SASL, Local: "success"}:
		if err = d.Skip(); err != nil {
			return nil, true, err
		}
		return nil, true, nil
	case xml.Name{Space: ns.SASL, Local: "failure"}:
		fail := saslerr.Failure{}
		if err = d.DecodeElement(&fail, &start); err != nil {
			return nil, false, err
		}
		return nil, false, fail
	default:
		return nil, false, stream.UnsupportedStanzaType
	}
}
