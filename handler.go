// Copyright 2015 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package xmpp

import (
	"encoding/xml"

	"mellium.im/xmlstream"
)

// TokenReadWriter is the stream handed to a Handler: a TokenReader scoped to
// the current top-level element and a TokenWriter that writes to the session
// output stream.
type TokenReadWriter interface {
	xmlstream.TokenReader
	xmlstream.TokenWriter
}

// Handler responds to a single top-level stream element (a stanza or a
// stream-namespaced element that Serve did not handle itself).
//
// HandleXMPP is called with a stream positioned just after start; the
// handler may read the remainder of the element from t (xmlstream.Inner has
// already been applied) and write a response to t. If HandleXMPP returns an
// error of type stanza.Error or stream.Error it is marshaled back to the
// peer; any other error is reported as an undefined-condition stream error
// and the session is closed.
type Handler interface {
	HandleXMPP(t TokenReadWriter, start *xml.StartElement) error
}

// HandlerFunc allows ordinary functions to be used as a Handler.
type HandlerFunc func(t TokenReadWriter, start *xml.StartElement) error

// HandleXMPP satisfies the Handler interface.
func (f HandlerFunc) HandleXMPP(t TokenReadWriter, start *xml.StartElement) error {
	return f(t, start)
}
