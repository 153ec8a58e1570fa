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

// Message is an XMPP stanza that is used for "push" style communication such
// as chat messages. Unlike IQ, a message does not require a response.
type Message struct {
	XMLName xml.Name    `xml:"message"`
	ID      string      `xml:"id,attr"`
	To      *jid.JID    `xml:"to,attr"`
	From    *jid.JID    `xml:"from,attr"`
	Lang    string      `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Type    MessageType `xml:"type,attr,omitempty"`
}

// MessageType is the type of a message stanza.
// It should normally be one of the constants defined in this package.
type MessageType string

const (
	// NormalMessage is a standalone message sent outside the context of a
	// one-to-one conversation or groupchat, and the default type if no type is
	// specified.
	NormalMessage MessageType = "normal"

	// ChatMessage is used in the context of a one-to-one chat session.
	ChatMessage MessageType = "chat"

	// GroupChatMessage is a message sent in the context of a multi-user chat.
	GroupChatMessage MessageType = "groupchat"

	// HeadlineMessage provides an alert, notification, or other transient
	// information to which no reply is expected (eg. news headlines, stock
	// quotes, or weather alerts).
	HeadlineMessage MessageType = "headline"

	// ErrorMessage indicates that an error occurred while processing or
	// delivering a previously sent message; such a message MUST include an
	// <error/> child element.
	ErrorMessage MessageType = "error"
)

// StartElement returns a start element that can be used to encode msg, with
// its XML name carried over from msg.XMLName except for the local name,
// which is always "message".
func (msg Message) StartElement() xml.StartElement {
	start := xml.StartElement{Name: xml.Name{Space: msg.XMLName.Space, Local: "message"}}
	if msg.ID != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "id"}, Value: msg.ID})
	}
	if msg.To != nil {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "to"}, Value: msg.To.String()})
	}
	if msg.From != nil {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "from"}, Value: msg.From.String()})
	}
	if msg.Lang != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Space: ns.XML, Local: "lang"}, Value: msg.Lang})
	}
	if msg.Type != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: string(msg.Type)})
	}
	return start
}

// errNotMessage is returned by NewMessage when start is not named "message".
var errNotMessage = errors.New("stanza: start element is not a message")

// NewMessage parses the id, to, from, xml:lang, and type attributes of start
// into a Message, preserving start's XML name verbatim. It returns an error
// if start is not a <message/> element.
func NewMessage(start xml.StartElement) (Message, error) {
	msg := Message{XMLName: start.Name}
	if start.Name.Local != "message" {
		return msg, errNotMessage
	}
	var err error
	for _, a := range start.Attr {
		if a.Name.Space != "" && a.Name.Space != ns.XML {
			continue
		}
		switch a.Name.Local {
		case "id":
			msg.ID = a.Value
		case "to":
			var j jid.JID
			if j, err = jid.Parse(a.Value); err != nil {
				return msg, err
			}
			msg.To = &j
		case "from":
			var j jid.JID
			if j, err = jid.Parse(a.Value); err != nil {
				return msg, err
			}
			msg.From = &j
		case "lang":
			if a.Name.Space == ns.XML {
				msg.Lang = a.Value
			}
		case "type":
			msg.Type = MessageType(a.Value)
		}
	}
	return msg, nil
}
