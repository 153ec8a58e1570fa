// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package xmpp

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"greenmantle.im/xmppd/internal/ns"
	"greenmantle.im/xmppd/stream"
)

// A StreamFeature represents a feature that may be selected during stream
// negotiation. Features should be stateless and usable from multiple
// goroutines unless otherwise specified.
type StreamFeature struct {
	// The XML name of the feature as advertised in the <stream:features/>
	// list. If a start element with this name is seen while the connection is
	// reading the features list, it will trigger this StreamFeature's List
	// function as a callback.
	Name xml.Name

	// Bits that are required before this feature is advertised. For
	// instance, a feature that should only be advertised after the session
	// is authenticated would set this to Authn.
	Necessary SessionState

	// Bits that must be off for this feature to be advertised. For
	// instance, a feature that performs authentication itself would set this
	// to Authn so that it is not offered twice.
	Prohibited SessionState

	// Matches reports whether a start element read from the peer while we
	// are the receiving entity is a request to negotiate this feature. Most
	// features are requested with an element that does not share the
	// feature's advertised Name (eg. SASL is advertised as <mechanisms/> but
	// requested with <auth/>), so this cannot be derived from Name alone.
	// If Matches is nil, the start element's Name is compared to Name.
	Matches func(start xml.StartElement) bool

	// List is used to send the feature in a <stream:features/> list.
	List func(ctx context.Context, e *xml.Encoder, start xml.StartElement) (req bool, err error)

	// Parse is used to parse the feature that begins with the given XML
	// start element (which should have a Name that matches this stream
	// feature's Name) out of a peer's advertised features list. It returns
	// whether or not the feature is required, and any data that will be
	// needed if the feature is selected for negotiation (eg. the list of
	// mechanisms if the feature was SASL).
	Parse func(ctx context.Context, d *xml.Decoder, start *xml.StartElement) (req bool, data interface{}, err error)

	// Negotiate takes over the session temporarily while negotiating the
	// feature.
	//
	// When called on the initiating entity, data is whatever Parse returned.
	// When called on the receiving entity, the start element that triggered
	// Matches has already been consumed from the session's decoder and data
	// is nil; Negotiate is responsible for reading and replying to the rest
	// of the request itself.
	//
	// The returned mask is ORed into the session state. If rw is non-nil it
	// replaces the session's underlying connection (eg. after STARTTLS or
	// stream compression) and the stream is restarted automatically.
	Negotiate func(ctx context.Context, session *Session, data interface{}) (mask SessionState, rw io.ReadWriter, err error)
}

// negotiateFeatures performs one round of stream feature negotiation: if s is
// the receiving entity it advertises features and waits for the peer to
// select one, otherwise it reads the peer's advertised features and selects
// one. It returns once a single feature has been negotiated (or once an empty
// features list indicates that negotiation is complete).
func negotiateFeatures(ctx context.Context, s *Session, features []StreamFeature) (mask SessionState, rw io.ReadWriter, err error) {
	if s.state&Received == Received {
		return negotiateServerFeatures(ctx, s, features)
	}
	return negotiateClientFeatures(ctx, s, features)
}

func applicable(s *Session, features []StreamFeature) []StreamFeature {
	var out []StreamFeature
	for _, f := range features {
		if (s.state&f.Necessary) == f.Necessary && (s.state&f.Prohibited) == 0 {
			out = append(out, f)
		}
	}
	return out
}

// negotiateServerFeatures writes the <stream:features/> list appropriate for
// the session's current state and waits for the peer to request one of them.
func negotiateServerFeatures(ctx context.Context, s *Session, features []StreamFeature) (mask SessionState, rw io.ReadWriter, err error) {
	avail := applicable(s, features)

	if _, err = fmt.Fprint(s.Conn(), `<stream:features>`); err != nil {
		return mask, nil, err
	}
	for _, f := range avail {
		start := xml.StartElement{Name: f.Name}
		if _, err = f.List(ctx, s.out.e, start); err != nil {
			return mask, nil, err
		}
	}
	if _, err = fmt.Fprint(s.Conn(), `</stream:features>`); err != nil {
		return mask, nil, err
	}
	if err = s.out.e.Flush(); err != nil {
		return mask, nil, err
	}

	if len(avail) == 0 {
		return Ready, nil, nil
	}

	tok, err := s.in.d.Token()
	if err != nil {
		return mask, nil, err
	}
	start, ok := tok.(xml.StartElement)
	if !ok {
		return mask, nil, stream.BadFormat
	}

	for _, f := range avail {
		matched := false
		if f.Matches != nil {
			matched = f.Matches(start)
		} else {
			matched = start.Name == f.Name
		}
		if matched {
			mask, rw, err = f.Negotiate(ctx, s, nil)
			if err == nil {
				s.negotiated[f.Name.Space] = struct{}{}
			}
			return mask, rw, err
		}
	}
	return mask, nil, stream.UnsupportedFeature
}

// negotiateClientFeatures reads a peer-advertised <stream:features/> list and
// negotiates the first mandatory-to-negotiate feature found (or, if none are
// mandatory, the first feature found).
func negotiateClientFeatures(ctx context.Context, s *Session, features []StreamFeature) (mask SessionState, rw io.ReadWriter, err error) {
	tok, err := s.in.d.Token()
	if err != nil {
		return mask, nil, err
	}
	start, ok := tok.(xml.StartElement)
	if !ok {
		return mask, nil, stream.BadFormat
	}
	switch {
	case start.Name.Local != "features":
		return mask, nil, stream.InvalidXML
	case start.Name.Space != ns.Stream:
		return mask, nil, stream.BadNamespacePrefix
	}

	type parsed struct {
		req     bool
		data    interface{}
		feature StreamFeature
	}
	found := make(map[xml.Name]parsed)
	var order []xml.Name
	var anyReq bool
	total := 0

parseFeatures:
	for {
		t, err := s.in.d.Token()
		if err != nil {
			return mask, nil, err
		}
		switch tok := t.(type) {
		case xml.StartElement:
			total++
			matched := false
			for _, f := range applicable(s, features) {
				if tok.Name == f.Name {
					req, data, err := f.Parse(ctx, s.Decoder(), &tok)
					if err != nil {
						return mask, nil, err
					}
					found[f.Name] = parsed{req: req, data: data, feature: f}
					s.features[f.Name.Space] = data
					order = append(order, f.Name)
					if req {
						anyReq = true
					}
					matched = true
					break
				}
			}
			if !matched {
				if sk, ok := s.in.d.(interface{ Skip() error }); ok {
					if err := sk.Skip(); err != nil {
						return mask, nil, err
					}
				}
			}
			continue parseFeatures
		case xml.EndElement:
			if tok.Name.Local == "features" && tok.Name.Space == ns.Stream {
				break parseFeatures
			}
			return mask, nil, stream.InvalidXML
		default:
			return mask, nil, stream.RestrictedXML
		}
	}

	if total == 0 || len(found) == 0 {
		return Ready, nil, nil
	}

	var pick parsed
	for _, name := range order {
		p := found[name]
		if !anyReq || p.req {
			pick = p
			break
		}
	}
	mask, rw, err = pick.feature.Negotiate(ctx, s, pick.data)
	if err != nil {
		return mask, nil, err
	}
	s.negotiated[pick.feature.Name.Space] = struct{}{}
	if !anyReq {
		mask |= Ready
	}
	return mask, rw, nil
}
