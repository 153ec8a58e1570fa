// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"errors"

	"mellium.im/xmlstream"
	"greenmantle.im/xmppd/internal/ns"
	"greenmantle.im/xmppd/jid"
)

// Errors returned by the stanza package.
var (
	ErrEmptyIQType = errors.New("stanza: empty IQ type")
)

// IQ ("Information Query") is used as a general request response mechanism.
// IQ's are one-to-one, provide get and set semantics, and always require a
// response in the form of a result or an error.
type IQ struct {
	XMLName xml.Name `xml:"iq"`
	ID      string   `xml:"id,attr"`
	To      *jid.JID `xml:"to,attr"`
	From    *jid.JID `xml:"from,attr"`
	Lang    string   `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Type    IQType   `xml:"type,attr"`
}

// Wrap wraps payload in this IQ's start element, carrying over its id, to,
// from, xml:lang, and type attributes.
func (iq IQ) Wrap(payload xml.TokenReader) xml.TokenReader {
	start := xml.StartElement{Name: xml.Name{Local: "iq"}}
	if iq.ID != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "id"}, Value: iq.ID})
	}
	if iq.To != nil {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "to"}, Value: iq.To.String()})
	}
	if iq.From != nil {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "from"}, Value: iq.From.String()})
	}
	if iq.Lang != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Space: "xml", Local: "lang"}, Value: iq.Lang})
	}
	// The type attribute is always written, even when empty, since IQ is
	// required to carry a type per RFC 6120 §8.2.3.
	start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: string(iq.Type)})
	return xmlstream.Wrap(payload, start)
}

// Result returns a token reader for an IQ of type result sent in reply to iq:
// the to and from addresses are swapped and the id is carried over.
func (iq IQ) Result(payload xml.TokenReader) xml.TokenReader {
	iq.Type = ResultIQ
	iq.To, iq.From = iq.From, iq.To
	return iq.Wrap(payload)
}

// StartElement returns a start element that can be used to encode iq, with
// its XML name carried over from iq.XMLName rather than fixed to "iq".
func (iq IQ) StartElement() xml.StartElement {
	start := xml.StartElement{Name: xml.Name{Space: iq.XMLName.Space, Local: "iq"}}
	if iq.ID != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "id"}, Value: iq.ID})
	}
	if iq.To != nil {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "to"}, Value: iq.To.String()})
	}
	if iq.From != nil {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "from"}, Value: iq.From.String()})
	}
	if iq.Lang != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Space: ns.XML, Local: "lang"}, Value: iq.Lang})
	}
	start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: string(iq.Type)})
	return start
}

// NewIQ parses the id, to, from, xml:lang, and type attributes of start into
// an IQ, preserving start's XML name verbatim. It does not validate that
// start is actually named "iq"; callers that only dispatch true IQ stanzas to
// NewIQ (such as a stream multiplexer that has already matched on the
// element name) are expected to do that filtering themselves.
func NewIQ(start xml.StartElement) (IQ, error) {
	iq := IQ{XMLName: start.Name}
	var err error
	for _, a := range start.Attr {
		if a.Name.Space != "" && a.Name.Space != ns.XML {
			continue
		}
		switch a.Name.Local {
		case "id":
			iq.ID = a.Value
		case "to":
			var j jid.JID
			if j, err = jid.Parse(a.Value); err != nil {
				return iq, err
			}
			iq.To = &j
		case "from":
			var j jid.JID
			if j, err = jid.Parse(a.Value); err != nil {
				return iq, err
			}
			iq.From = &j
		case "lang":
			if a.Name.Space == ns.XML {
				iq.Lang = a.Value
			}
		case "type":
			iq.Type = IQType(a.Value)
		}
	}
	return iq, nil
}

// IQType is the type of an IQ stanza.
// It should normally be one of the constants defined in this package.
type IQType string

const (
	// GetIQ is used to query another entity for information.
	GetIQ IQType = "get"

	// SetIQ is used to provide data to another entity, set new values, and
	// replace existing values.
	SetIQ IQType = "set"

	// ResultIQ is sent in response to a successful get or set IQ.
	ResultIQ IQType = "result"

	// ErrorIQ is sent to report that an error occurred during the delivery or
	// processing of a get or set IQ.
	ErrorIQ IQType = "error"
)

// MarshalXMLAttr satisfies the xml.MarshalerAttr interface for IQType.
// It returns ErrEmptyIQType when trying to marshal a IQ stanza with an empty
// type attribute.
func (t IQType) MarshalXMLAttr(name xml.Name) (attr xml.Attr, err error) {
	s := string(t)
	if s == "" {
		return attr, ErrEmptyIQType
	}
	attr.Name = name
	attr.Value = s
	return attr, nil
}
