// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package xmpp

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"greenmantle.im/xmppd/internal"
	"greenmantle.im/xmppd/internal/ns"
	"greenmantle.im/xmppd/jid"
	"greenmantle.im/xmppd/stream"
)

const (
	bindIQServerGeneratedRP = `<iq id='%s' type='set'><bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'/></iq>`
	bindIQClientRequestedRP = `<iq id='%s' type='set'><bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'><resource>%s</resource></bind></iq>`
)

// ResourceBinder assigns a resourcepart to an authenticated session.
// Requested is the resourcepart the peer asked for, or "" if it left the
// choice up to the server. Implementations should generate a short random
// resource when requested is empty, and should disambiguate (eg. by
// appending a suffix) when the requested resource is already bound for the
// same bare JID.
type ResourceBinder func(ctx context.Context, bare *jid.JID, requested string) (resource string, err error)

// RandomResource is the default ResourceBinder: it ignores any requested
// resource and assigns a random identifier, matching the behavior most
// servers fall back to when a client leaves resource selection up to them.
func RandomResource(ctx context.Context, bare *jid.JID, requested string) (string, error) {
	return internal.RandomID(internal.IDLen), nil
}

// BindResource returns a stream feature that can be used for binding a
// resource (RFC 6120 §7). bind is used to choose the bound resourcepart on
// the receiving (server) side; if omitted or nil, RandomResource is used.
func BindResource(bind ...ResourceBinder) StreamFeature {
	var b ResourceBinder
	if len(bind) > 0 {
		b = bind[0]
	}
	return BindResourceNotify(b, nil)
}

// BindResourceNotify is like BindResource, but additionally invokes bound
// (if non-nil) with the session once the receiving side has successfully
// bound a resource and set session.origin, and before the feature's
// success response is written. This is the hook a server uses to register
// the now fully-addressed session into a routing table.
func BindResourceNotify(bind ResourceBinder, bound func(*Session)) StreamFeature {
	if bind == nil {
		bind = RandomResource
	}
	if bound == nil {
		bound = func(*Session) {}
	}
	return StreamFeature{
		Name:       xml.Name{Space: ns.Bind, Local: "bind"},
		Necessary:  Authn,
		Prohibited: Ready,
		List: func(ctx context.Context, e *xml.Encoder, start xml.StartElement) (req bool, err error) {
			req = true
			if err = e.EncodeToken(start); err != nil {
				return req, err
			}
			if err = e.EncodeToken(start.End()); err != nil {
				return req, err
			}
			return req, e.Flush()
		},
		Parse: func(ctx context.Context, d *xml.Decoder, start *xml.StartElement) (bool, interface{}, error) {
			parsed := struct {
				XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
			}{}
			return true, nil, d.DecodeElement(&parsed, start)
		},
		Matches: func(start xml.StartElement) bool {
			return start.Name == xml.Name{Space: ns.Client, Local: "iq"}
		},
		Negotiate: func(ctx context.Context, session *Session, data interface{}) (mask SessionState, rw io.ReadWriter, err error) {
			conn := session.Conn()

			if session.State()&Received == Received {
				tok, err := session.Token()
				if err != nil {
					return mask, nil, err
				}
				start, ok := tok.(xml.StartElement)
				if !ok || start.Name != (xml.Name{Space: ns.Client, Local: "iq"}) {
					return mask, nil, stream.BadFormat
				}
				req := struct {
					XMLName xml.Name `xml:"jabber:client iq"`
					ID      string   `xml:"id,attr"`
					Type    string   `xml:"type,attr"`
					Bind    struct {
						Resource string `xml:"urn:ietf:params:xml:ns:xmpp-bind resource"`
					} `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
				}{}
				if err = session.Decoder().DecodeElement(&req, &start); err != nil {
					return mask, nil, err
				}
				if req.Type != "set" {
					return mask, nil, stream.UnsupportedStanzaType
				}

				bare := session.LocalAddr()
				resource, err := bind(ctx, bare, req.Bind.Resource)
				if err != nil {
					_, werr := fmt.Fprintf(conn,
						`<iq id='%s' type='error'><error type='cancel'><conflict xmlns='urn:ietf:params:xml:ns:xmpp-stanzas'/></error></iq>`,
						req.ID)
					if werr != nil {
						return mask, nil, werr
					}
					return mask, nil, err
				}
				full, err := jid.New(bare.Localpart(), bare.Domainpart(), resource)
				if err != nil {
					return mask, nil, err
				}
				session.origin = &full
				bound(session)

				_, err = fmt.Fprintf(conn,
					`<iq id='%s' type='result'><bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'><jid>%s</jid></bind></iq>`,
					req.ID, full.String())
				if err != nil {
					return mask, nil, err
				}
				return Ready, nil, nil
			}

			reqID := internal.RandomID(internal.IDLen)
			if resource := session.origin.Resourcepart(); resource == "" {
				_, err = fmt.Fprintf(conn, bindIQServerGeneratedRP, reqID)
			} else {
				_, err = fmt.Fprintf(conn, bindIQClientRequestedRP, reqID, resource)
			}
			if err != nil {
				return mask, nil, err
			}
			tok, err := session.Token()
			if err != nil {
				return mask, nil, err
			}
			start, ok := tok.(xml.StartElement)
			if !ok {
				return mask, nil, stream.BadFormat
			}
			resp := struct {
				XMLName xml.Name `xml:"jabber:client iq"`
				ID      string   `xml:"id,attr"`
				Type    string   `xml:"type,attr"`
				Bind    struct {
					JID string `xml:"jid"`
				} `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
			}{}
			if start.Name != (xml.Name{Space: ns.Client, Local: "iq"}) {
				return mask, nil, stream.BadFormat
			}
			if err = session.Decoder().DecodeElement(&resp, &start); err != nil {
				return mask, nil, err
			}
			switch {
			case resp.ID != reqID:
				return mask, nil, stream.UndefinedCondition
			case resp.Type == "result":
				bound, err := jid.Parse(resp.Bind.JID)
				if err != nil {
					return mask, nil, err
				}
				session.origin = &bound
			default:
				return mask, nil, stream.UndefinedCondition
			}
			return Ready, nil, nil
		},
	}
}
