package router

import (
	"bytes"
	"encoding/xml"

	"mellium.im/xmlstream"
	"greenmantle.im/xmppd"
)

// captureRaw serializes the stanza currently being read from t into a
// self-contained byte slice: start, followed by everything t yields up to
// (and including) start's matching end tag. t's first token is always the
// stanza's own start element (mux hands handlers a reader replayed from the
// buffered start token), so it is discarded and re-synthesized from start
// to guarantee a well-formed closing tag even though the underlying reader
// is scoped to start's children and never yields the real one.
//
// This mirrors the capture idiom bosh.boshSession.pump uses to relay a
// session's output back out over HTTP.
func captureRaw(t xml.TokenReader, start xml.StartElement) ([]byte, error) {
	if _, err := t.Token(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if _, err := xmlstream.Copy(enc, xmlstream.Wrap(xmlstream.Inner(t), start)); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// replay decodes raw (as produced by captureRaw) and re-encodes it onto
// dst, the way a captured BOSH response is replayed onto the HTTP body
// encoder in bosh.go. dst.EncodeToken/Flush take the session's exclusive
// lock, so replay is safe to call from a goroutine other than the one
// running dst's own Serve loop.
func replay(dst *xmpp.Session, raw []byte) error {
	d := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := d.Token()
		if err != nil {
			break
		}
		if err := dst.EncodeToken(xml.CopyToken(tok)); err != nil {
			return err
		}
	}
	return dst.Flush()
}
