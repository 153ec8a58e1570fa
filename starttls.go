// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package xmpp

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"

	"greenmantle.im/xmppd/internal/ns"
	"greenmantle.im/xmppd/stream"
)

// ErrTLSUpgradeFailed is returned when the underlying connection cannot be
// upgraded to TLS because it does not implement net.Conn.
var ErrTLSUpgradeFailed = errors.New("xmpp: the underlying connection cannot be upgraded to TLS")

// StartTLS returns a stream feature for negotiating STARTTLS (RFC 6120 §5).
// config is used as the TLS configuration for both the server (tls.Server)
// and client (tls.Client) roles; it must not be nil.
func StartTLS(required bool, config *tls.Config) StreamFeature {
	return StreamFeature{
		Name:       xml.Name{Local: "starttls", Space: ns.StartTLS},
		Prohibited: Secure,
		List: func(ctx context.Context, e *xml.Encoder, start xml.StartElement) (req bool, err error) {
			if err = e.EncodeToken(start); err != nil {
				return required, err
			}
			if required {
				startRequired := xml.StartElement{Name: xml.Name{Local: "required"}}
				if err = e.EncodeToken(startRequired); err != nil {
					return required, err
				}
				if err = e.EncodeToken(startRequired.End()); err != nil {
					return required, err
				}
			}
			if err = e.EncodeToken(start.End()); err != nil {
				return required, err
			}
			return required, e.Flush()
		},
		Parse: func(ctx context.Context, d *xml.Decoder, start *xml.StartElement) (bool, interface{}, error) {
			parsed := struct {
				XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-tls starttls"`
				Required struct {
					XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-tls required"`
				}
			}{}
			err := d.DecodeElement(&parsed, start)
			return parsed.Required.XMLName.Local == "required" && parsed.Required.XMLName.Space == ns.StartTLS, nil, err
		},
		Negotiate: func(ctx context.Context, session *Session, data interface{}) (mask SessionState, rw io.ReadWriter, err error) {
			conn := session.Conn()
			netconn, ok := conn.Raw().(net.Conn)
			if !ok {
				return mask, nil, ErrTLSUpgradeFailed
			}

			if session.State()&Received == Received {
				if _, err = fmt.Fprint(conn, `<proceed xmlns='`+ns.StartTLS+`'/>`); err != nil {
					return mask, nil, err
				}
				rw = tls.Server(netconn, config)
				mask = Secure
				return mask, rw, nil
			}

			if _, err = fmt.Fprint(conn, `<starttls xmlns='`+ns.StartTLS+`'/>`); err != nil {
				return mask, nil, err
			}
			tok, err := session.Token()
			if err != nil {
				return mask, nil, err
			}
			start, ok := tok.(xml.StartElement)
			if !ok || start.Name.Space != ns.StartTLS {
				return mask, nil, stream.UnsupportedStanzaType
			}
			switch start.Name.Local {
			case "proceed":
				rw = tls.Client(netconn, config)
			case "failure":
				return mask, nil, nil
			default:
				return mask, nil, stream.UnsupportedStanzaType
			}
			return Secure, rw, nil
		},
	}
}
