// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package s2s

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"

	"greenmantle.im/xmppd"
	"greenmantle.im/xmppd/dial"
	"greenmantle.im/xmppd/internal/ns"
	"greenmantle.im/xmppd/jid"
	"greenmantle.im/xmppd/stream"
)

// Namespaces used by Server Dialback (XEP-0220).
const (
	// NSDialback is the namespace of the db:result/db:verify elements
	// exchanged on an established s2s stream.
	NSDialback = "jabber:server:dialback"

	// NSDialbackFeature is the namespace used to advertise dialback support in
	// a <stream:features/> list.
	NSDialbackFeature = "urn:xmpp:features:dialback"
)

// Feature returns a stream feature that advertises support for Server
// Dialback. Like Bidi, the feature itself carries no negotiation; the actual
// key exchange happens out of band using SendResult and Accept once the
// stream is established.
func Feature() xmpp.StreamFeature {
	return xmpp.StreamFeature{
		Name:       xml.Name{Space: NSDialbackFeature, Local: "dialback"},
		Necessary:  xmpp.Secure,
		Prohibited: xmpp.Authn,
		List: func(ctx context.Context, e *xml.Encoder, start xml.StartElement) (bool, error) {
			if err := e.EncodeToken(start); err != nil {
				return false, err
			}
			if err := e.EncodeToken(start.End()); err != nil {
				return false, err
			}
			return false, e.Flush()
		},
		Parse: func(ctx context.Context, d *xml.Decoder, start *xml.StartElement) (bool, interface{}, error) {
			parsed := struct {
				XMLName xml.Name `xml:"urn:xmpp:features:dialback dialback"`
			}{}
			return false, nil, d.DecodeElement(&parsed, start)
		},
		Negotiate: func(ctx context.Context, session *xmpp.Session, data interface{}) (xmpp.SessionState, io.ReadWriter, error) {
			// Purely informational; dialback itself runs over db:result/db:verify
			// stanzas sent directly on the already-open stream.
			return 0, nil, nil
		},
	}
}

// GenerateKey computes the dialback key an originating server sends to a
// receiving server, as defined in XEP-0220 §3.2: an HMAC-SHA256 of
// "receiving originating streamID" keyed with secret, shared out of band by
// every server that is authoritative for originating.
func GenerateKey(secret []byte, receiving, originating, streamID string) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s %s %s", receiving, originating, streamID)
	return hex.EncodeToString(mac.Sum(nil))
}

// SendResult is used by an originating server once it has opened an s2s
// stream to the receiving server. It sends the dialback key and blocks until
// the receiving server reports whether the key was accepted.
func SendResult(ctx context.Context, session *xmpp.Session, originating, receiving, key string) error {
	conn := session.Conn()
	if _, err := fmt.Fprintf(conn,
		`<db:result xmlns:db='%s' to='%s' from='%s'>%s</db:result>`,
		NSDialback, receiving, originating, key,
	); err != nil {
		return err
	}
	if err := session.Flush(); err != nil {
		return err
	}

	for {
		tok, err := session.Token()
		if err != nil {
			return err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			return stream.BadFormat
		}
		if start.Name.Space != NSDialback || start.Name.Local != "result" {
			if err := session.Decoder().Skip(); err != nil {
				return err
			}
			continue
		}
		result := struct {
			XMLName xml.Name `xml:"jabber:server:dialback result"`
			Type    string   `xml:"type,attr"`
		}{}
		if err := session.Decoder().DecodeElement(&result, &start); err != nil {
			return err
		}
		switch result.Type {
		case "valid":
			return nil
		case "invalid":
			return stream.NotAuthorized
		default:
			return stream.UndefinedCondition
		}
	}
}

// Verifier reports whether key is the correct dialback key for the given
// receiving/originating domain pair and stream ID. Implementations either
// hold the shared secret directly (HMACVerifier) or dial back to a server
// authoritative for originating and ask it (DialVerifier).
type Verifier func(ctx context.Context, receiving, originating, streamID, key string) (bool, error)

// HMACVerifier returns a Verifier for a receiving server that shares secret
// with every server authoritative for the domains it accepts dialback from.
func HMACVerifier(secret []byte) Verifier {
	return func(ctx context.Context, receiving, originating, streamID, key string) (bool, error) {
		return hmac.Equal([]byte(key), []byte(GenerateKey(secret, receiving, originating, streamID))), nil
	}
}

// DialVerifier returns a Verifier that implements classic XEP-0220 §3.3
// dialback: it opens a second, independent s2s connection to the domain
// claiming to be originating and asks an authoritative server there to
// confirm the key with a db:verify request.
func DialVerifier(dialer dial.Dialer, local *jid.JID) Verifier {
	return func(ctx context.Context, receiving, originating, streamID, key string) (bool, error) {
		remote, err := jid.New("", originating, "")
		if err != nil {
			return false, err
		}
		rw, err := dialer.Dial(ctx, "tcp", remote)
		if err != nil {
			return false, err
		}
		defer func() { _ = closeIfCloser(rw) }()

		session, err := xmpp.NewServerSession(ctx, &remote, local, "", rw)
		if err != nil {
			return false, err
		}
		conn := session.Conn()
		if _, err = fmt.Fprintf(conn,
			`<db:verify xmlns:db='%s' to='%s' from='%s' id='%s'>%s</db:verify>`,
			NSDialback, originating, local.String(), streamID, key,
		); err != nil {
			return false, err
		}
		if err = session.Flush(); err != nil {
			return false, err
		}

		for {
			tok, err := session.Token()
			if err != nil {
				return false, err
			}
			start, ok := tok.(xml.StartElement)
			if !ok {
				return false, stream.BadFormat
			}
			if start.Name.Space != NSDialback || start.Name.Local != "verify" {
				if err := session.Decoder().Skip(); err != nil {
					return false, err
				}
				continue
			}
			verify := struct {
				XMLName xml.Name `xml:"jabber:server:dialback verify"`
				Type    string   `xml:"type,attr"`
			}{}
			if err := session.Decoder().DecodeElement(&verify, &start); err != nil {
				return false, err
			}
			return verify.Type == "valid", nil
		}
	}
}

func closeIfCloser(rw io.ReadWriter) error {
	if c, ok := rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Accept is used by a receiving server on an established s2s stream once the
// triggering db:result start element has already been consumed from the
// session's decoder (ie. when it matched a dispatch on
// xml.Name{Space: NSDialback, Local: "result"}). It decodes the key, checks
// it with verify, writes the appropriate db:result reply, and if the key is
// valid, binds the session's peer identity to the originating domain.
func Accept(ctx context.Context, session *xmpp.Session, start xml.StartElement, verify Verifier) error {
	conn := session.Conn()
	req := struct {
		XMLName xml.Name `xml:"jabber:server:dialback result"`
		To      string   `xml:"to,attr"`
		From    string   `xml:"from,attr"`
		Key     string   `xml:",chardata"`
	}{}
	if err := session.Decoder().DecodeElement(&req, &start); err != nil {
		return err
	}

	ok, err := verify(ctx, req.To, req.From, session.StreamID(), req.Key)
	if err != nil {
		return err
	}

	typ := "invalid"
	if ok {
		typ = "valid"
	}
	if _, err := fmt.Fprintf(conn,
		`<db:result xmlns:db='%s' to='%s' from='%s' type='%s'/>`,
		NSDialback, req.From, req.To, typ,
	); err != nil {
		return err
	}
	if err := session.Flush(); err != nil {
		return err
	}
	if !ok {
		return stream.NotAuthorized
	}

	origin, err := jid.New("", req.From, "")
	if err != nil {
		return err
	}
	session.SetOrigin(&origin)
	return nil
}
