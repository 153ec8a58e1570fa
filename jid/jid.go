// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package jid implements XMPP addresses (historically called "Jabber ID's" or
// "JID's") as described in RFC 7622 and transformers for the escaping mechanism
// defined in XEP-0106: JID Escaping.
package jid // import "greenmantle.im/xmppd/jid"

import (
	"encoding/xml"
	"errors"
	"net"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/precis"
)

// JID represents an XMPP address (Jabber ID) comprising a localpart,
// domainpart, and resourcepart. All values are normalized and validated per
// RFC 7622 §3.2 when the JID is constructed, so a JID in hand is always safe
// to compare, display, or put on the wire.
//
// The zero value and a nil *JID both behave as an empty JID for marshaling
// purposes; to construct a usable JID use New or Parse.
type JID struct {
	localpart    string
	domainpart   string
	resourcepart string
}

// New constructs a new JID from the given localpart, domainpart, and
// resourcepart, validating and normalizing each part per RFC 7622. Only the
// domainpart is required.
func New(localpart, domainpart, resourcepart string) (JID, error) {
	if !utf8.ValidString(localpart) || !utf8.ValidString(resourcepart) {
		return JID{}, errors.New("jid: contains invalid UTF-8")
	}

	var err error
	if !isIP6Literal(domainpart) {
		domainpart, err = idna.ToUnicode(domainpart)
		if err != nil {
			return JID{}, err
		}
	}
	if !utf8.ValidString(domainpart) {
		return JID{}, errors.New("jid: domainpart contains invalid UTF-8")
	}

	if localpart != "" {
		localpart, err = precis.UsernameCaseMapped.String(localpart)
		if err != nil {
			return JID{}, err
		}
	}
	if resourcepart != "" {
		resourcepart, err = precis.OpaqueString.String(resourcepart)
		if err != nil {
			return JID{}, err
		}
	}

	if err := commonChecks(localpart, domainpart, resourcepart); err != nil {
		return JID{}, err
	}

	return JID{localpart: localpart, domainpart: domainpart, resourcepart: resourcepart}, nil
}

// Parse constructs a new JID from its string representation.
func Parse(s string) (JID, error) {
	localpart, domainpart, resourcepart, err := SplitString(s)
	if err != nil {
		return JID{}, err
	}
	return New(localpart, domainpart, resourcepart)
}

// MustParse is like Parse except that it panics if the JID is invalid. It is
// intended for use with tests or to initialize package-level values that are
// known at compile time to be valid.
func MustParse(s string) *JID {
	j, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return &j
}

// Bare returns a copy of the JID without its resourcepart.
func (j *JID) Bare() *JID {
	if j == nil {
		return nil
	}
	return &JID{localpart: j.localpart, domainpart: j.domainpart}
}

// Domain returns a copy of the JID with only its domainpart.
func (j *JID) Domain() *JID {
	if j == nil {
		return nil
	}
	return &JID{domainpart: j.domainpart}
}

// WithResource returns a copy of the JID with the given resourcepart.
func (j *JID) WithResource(resourcepart string) (JID, error) {
	if j == nil {
		return New("", "", resourcepart)
	}
	return New(j.localpart, j.domainpart, resourcepart)
}

// Copy returns a new JID that is equal to j but does not alias it.
func (j *JID) Copy() *JID {
	if j == nil {
		return nil
	}
	cp := *j
	return &cp
}

// Localpart gets the localpart of a JID (eg "username").
func (j *JID) Localpart() string {
	if j == nil {
		return ""
	}
	return j.localpart
}

// Domainpart gets the domainpart of a JID (eg. "example.net").
func (j *JID) Domainpart() string {
	if j == nil {
		return ""
	}
	return j.domainpart
}

// Resourcepart gets the resourcepart of a JID (eg. "someclient-abc123").
func (j *JID) Resourcepart() string {
	if j == nil {
		return ""
	}
	return j.resourcepart
}

// String satisfies fmt.Stringer.
func (j *JID) String() string {
	if j == nil {
		return ""
	}
	return stringify(j)
}

// Network satisfies net.Addr. It always returns "xmpp".
func (j *JID) Network() string {
	return "xmpp"
}

// Equal performs a part-for-part comparison with the given JID. Two nil JIDs
// are equal; a nil JID is never equal to a non-nil one.
func (j *JID) Equal(j2 *JID) bool {
	if j == nil || j2 == nil {
		return j == j2
	}
	return j.localpart == j2.localpart &&
		j.domainpart == j2.domainpart &&
		j.resourcepart == j2.resourcepart
}

var _ net.Addr = (*JID)(nil)

// MarshalXMLAttr satisfies the xml.MarshalerAttr interface.
func (j *JID) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	if j == nil {
		return xml.Attr{}, nil
	}
	return xml.Attr{Name: name, Value: j.String()}, nil
}

// UnmarshalXMLAttr satisfies the xml.UnmarshalerAttr interface.
func (j *JID) UnmarshalXMLAttr(attr xml.Attr) error {
	parsed, err := Parse(attr.Value)
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}

// MarshalXML satisfies the xml.Marshaler interface, encoding the JID as
// character data inside start (or as a bare <JID> element via xml.Marshal).
func (j *JID) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if j == nil {
		return nil
	}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.EncodeToken(xml.CharData(j.String())); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// UnmarshalXML satisfies the xml.Unmarshaler interface.
func (j *JID) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	if s == "" {
		return errors.New("jid: cannot unmarshal an empty element as a JID")
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}

// SplitString splits out the localpart, domainpart, and resourcepart from a
// string representation of a JID. The parts are not guaranteed to be valid, and
// each part must be 1023 bytes or less.
func SplitString(s string) (localpart, domainpart, resourcepart string, err error) {
	// RFC 7622 §3.1.  Fundamentals:
	//
	//    Implementation Note: When dividing a JID into its component parts,
	//    an implementation needs to match the separator characters '@' and
	//    '/' before applying any transformation algorithms, which might
	//    decompose certain Unicode code points to the separator characters.
	parts := strings.SplitAfterN(s, "/", 2)

	if strings.HasSuffix(parts[0], "/") {
		if len(parts) == 2 && parts[1] != "" {
			resourcepart = parts[1]
		} else {
			err = errors.New("jid: the resourcepart must be larger than 0 bytes")
			return
		}
	}

	norp := strings.TrimSuffix(parts[0], "/")
	nolp := strings.SplitAfterN(norp, "@", 2)

	if nolp[0] == "@" {
		err = errors.New("jid: the localpart must be larger than 0 bytes")
		return
	}

	switch len(nolp) {
	case 1:
		domainpart = nolp[0]
	case 2:
		domainpart = nolp[1]
		localpart = strings.TrimSuffix(nolp[0], "@")
	}

	// Trailing dots on domainparts are ignored per RFC 7622 §3.2.
	domainpart = strings.TrimSuffix(domainpart, ".")

	return
}

func stringify(j *JID) string {
	s := j.Domainpart()
	if lp := j.Localpart(); lp != "" {
		s = lp + "@" + s
	}
	if rp := j.Resourcepart(); rp != "" {
		s = s + "/" + rp
	}
	return s
}

// isIP6Literal reports whether domainpart is formatted as a bracketed IPv6
// literal (eg. "[::1]"). Such domainparts are not valid IDNA domain names and
// must bypass IDNA normalization entirely.
func isIP6Literal(domainpart string) bool {
	return len(domainpart) > 2 && strings.HasPrefix(domainpart, "[") && strings.HasSuffix(domainpart, "]")
}

func checkIP6String(domainpart string) error {
	if l := len(domainpart); l > 2 && strings.HasPrefix(domainpart, "[") &&
		strings.HasSuffix(domainpart, "]") {
		if ip := net.ParseIP(domainpart[1 : l-1]); ip == nil || ip.To4() != nil {
			return errors.New("jid: domainpart is not a valid IPv6 address")
		}
	}
	return nil
}

func commonChecks(localpart, domainpart, resourcepart string) error {
	if l := len(localpart); l > 1023 {
		return errors.New("jid: the localpart must be smaller than 1024 bytes")
	}

	// RFC 7622 §3.3.1 provides a small table of characters which are still not
	// allowed in localparts even though the IdentifierClass base class and the
	// UsernameCaseMapped profile don't forbid them.
	if strings.ContainsAny(localpart, "\"&'/:<>@") {
		return errors.New("jid: localpart contains forbidden characters")
	}

	if l := len(resourcepart); l > 1023 {
		return errors.New("jid: the resourcepart must be smaller than 1024 bytes")
	}

	if l := len(domainpart); l < 1 || l > 1023 {
		return errors.New("jid: the domainpart must be between 1 and 1023 bytes")
	}

	return checkIP6String(domainpart)
}
