// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"errors"

	"greenmantle.im/xmppd/internal/ns"
	"greenmantle.im/xmppd/jid"
)

// Presence is an XMPP stanza that is used as an indication that an entity is
// available for communication. It is used to set a status message, broadcast
// availability, and advertise entity capabilities. It can be directed
// (one-to-one), or used as a broadcast mechanism (one-to-many).
type Presence struct {
	XMLName xml.Name     `xml:"presence"`
	ID      string       `xml:"id,attr"`
	To      *jid.JID     `xml:"to,attr"`
	From    *jid.JID     `xml:"from,attr"`
	Lang    string       `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Type    PresenceType `xml:"type,attr,omitempty"`
}

// PresenceType is the type of a presence stanza.
// It should normally be one of the constants defined in this package.
type PresenceType string

const (
	// ErrorPresence indicates that an error has occurred regarding processing of
	// a previously sent presence stanza; if the presence stanza is of type
	// "error", it MUST include an <error/> child element
	ErrorPresence PresenceType = "error"

	// ProbePresence is a request for an entity's current presence. It should
	// generally only be generated and sent by servers on behalf of a user.
	ProbePresence PresenceType = "probe"

	// SubscribePresence is sent when the sender wishes to subscribe to the
	// recipient's presence.
	SubscribePresence PresenceType = "subscribe"

	// SubscribedPresence indicates that the sender has allowed the recipient to
	// receive future presence broadcasts.
	SubscribedPresence PresenceType = "subscribed"

	// UnavailablePresence indicates that the sender is no longer available for
	// communication.
	UnavailablePresence PresenceType = "unavailable"

	// UnsubscribePresence indicates that the sender is unsubscribing from the
	// receiver's presence.
	UnsubscribePresence PresenceType = "unsubscribe"

	// UnsubscribedPresence indicates that the subscription request has been
	// denied, or a previously granted subscription has been revoked.
	UnsubscribedPresence PresenceType = "unsubscribed"
)

// String satisfies fmt.Stringer.
func (t PresenceType) String() string {
	return string(t)
}

// StartElement returns a start element that can be used to encode p, with
// its XML name carried over from p.XMLName except for the local name, which
// is always "presence".
func (p Presence) StartElement() xml.StartElement {
	start := xml.StartElement{Name: xml.Name{Space: p.XMLName.Space, Local: "presence"}}
	if p.ID != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "id"}, Value: p.ID})
	}
	if p.To != nil {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "to"}, Value: p.To.String()})
	}
	if p.From != nil {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "from"}, Value: p.From.String()})
	}
	if p.Lang != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Space: ns.XML, Local: "lang"}, Value: p.Lang})
	}
	if p.Type != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: string(p.Type)})
	}
	return start
}

// errNotPresence is returned by NewPresence when start is not named
// "presence".
var errNotPresence = errors.New("stanza: start element is not a presence")

// NewPresence parses the id, to, from, xml:lang, and type attributes of
// start into a Presence, preserving start's XML name verbatim. It returns an
// error if start is not a <presence/> element.
func NewPresence(start xml.StartElement) (Presence, error) {
	p := Presence{XMLName: start.Name}
	if start.Name.Local != "presence" {
		return p, errNotPresence
	}
	var err error
	for _, a := range start.Attr {
		if a.Name.Space != "" && a.Name.Space != ns.XML {
			continue
		}
		switch a.Name.Local {
		case "id":
			p.ID = a.Value
		case "to":
			var j jid.JID
			if j, err = jid.Parse(a.Value); err != nil {
				return p, err
			}
			p.To = &j
		case "from":
			var j jid.JID
			if j, err = jid.Parse(a.Value); err != nil {
				return p, err
			}
			p.From = &j
		case "lang":
			if a.Name.Space == ns.XML {
				p.Lang = a.Value
			}
		case "type":
			p.Type = PresenceType(a.Value)
		}
	}
	return p, nil
}
