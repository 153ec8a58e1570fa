// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package xmpp

import (
	"io"
)

// Conn is the underlying byte stream of a Session. It is the value passed to
// a StreamFeature's Negotiate function when a feature wraps the connection in
// a new security or compression layer.
//
// Most code should not read from or write to a Conn directly; all normal
// stanza traffic goes through the Session's token reader/writer instead.
type Conn struct {
	rw io.ReadWriter
}

func newConn(rw io.ReadWriter) *Conn {
	return &Conn{rw: rw}
}

// Read satisfies the io.Reader interface.
func (c *Conn) Read(p []byte) (int, error) {
	return c.rw.Read(p)
}

// Write satisfies the io.Writer interface.
func (c *Conn) Write(p []byte) (int, error) {
	return c.rw.Write(p)
}

// Raw returns the underlying io.ReadWriter that the Conn wraps, for features
// that need to install a new layer below the XML encoder/decoder (eg.
// STARTTLS or stream compression).
func (c *Conn) Raw() io.ReadWriter {
	return c.rw
}
