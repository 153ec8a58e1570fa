// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package bosh implements XEP-0124 (Bidirectional-streams Over Synchronous
// HTTP) as an http.Handler that bridges long-polled HTTP requests to an
// ordinary *xmpp.Session running over an in-memory net.Pipe, so that the
// rest of the tree (the module registry, stream features, session state
// machine) never needs to know its stanzas arrived over HTTP instead of a
// raw TCP socket.
package bosh // import "greenmantle.im/xmppd/bosh"

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"mellium.im/xmlstream"
	"greenmantle.im/xmppd"
	"greenmantle.im/xmppd/internal"
	"greenmantle.im/xmppd/internal/ns"
	"greenmantle.im/xmppd/jid"
	"greenmantle.im/xmppd/mux"
)

// NS is the BOSH body element namespace (XEP-0124 §4).
const NS = "http://jabber.org/protocol/httpbind"

// Manager accepts BOSH HTTP requests and bridges each BOSH session to its
// own *xmpp.Session. The zero value is not usable; construct one with
// NewManager.
type Manager struct {
	domain   *jid.JID
	features func() []xmpp.StreamFeature
	handler  xmpp.Handler

	waitMax    time.Duration
	hold       int
	polling    time.Duration
	inactivity time.Duration

	mu       sync.Mutex
	sessions map[string]*boshSession
}

// NewManager constructs a Manager. domain is used as the stream "from"
// address offered to every BOSH-backed session; features is called once per
// new BOSH session to build the stream feature list that session will
// negotiate (the same features.go-style list server.Runtime builds for
// plain TCP c2s connections); mux dispatches stanzas once a session is
// Ready, exactly as it would for a TCP-accepted session.
func NewManager(domain *jid.JID, features func() []xmpp.StreamFeature, router *mux.ServeMux, opts ...Option) *Manager {
	m := &Manager{
		domain:     domain,
		features:   features,
		handler:    muxHandler{mux: router},
		waitMax:    60 * time.Second,
		hold:       1,
		polling:    15 * time.Second,
		inactivity: 60 * time.Second,
		sessions:   make(map[string]*boshSession),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// muxHandler adapts a *mux.ServeMux (whose HandleXMPP widens the token
// stream to an xmlstream.TokenReadEncoder) into an xmpp.Handler (whose
// HandleXMPP only guarantees an xmpp.TokenReadWriter, with no Flush). Go
// requires exact method-signature identity for interface satisfaction, so
// *mux.ServeMux cannot be used as an xmpp.Handler directly even though a
// TokenReadEncoder value is always assignable to a TokenReadWriter-typed
// variable; see the same adapter in server/runtime.go.
type muxHandler struct {
	mux *mux.ServeMux
}

func (h muxHandler) HandleXMPP(t xmpp.TokenReadWriter, start *xml.StartElement) error {
	return h.mux.HandleXMPP(struct {
		xml.TokenReader
		xmlstream.Encoder
	}{
		TokenReader: t,
		Encoder:     flushEncoder{t},
	}, start)
}

// flushEncoder adapts an xmlstream.TokenWriter into an xmlstream.Encoder by
// delegating to the underlying writer's Flush method when it has one.
type flushEncoder struct {
	xmlstream.TokenWriter
}

func (e flushEncoder) Flush() error {
	type flusher interface {
		Flush() error
	}
	if f, ok := e.TokenWriter.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// Option configures a Manager.
type Option func(*Manager)

// WaitMax bounds how long the connection manager will hold a request open
// waiting for a stanza to relay back (XEP-0124 "wait").
func WaitMax(d time.Duration) Option { return func(m *Manager) { m.waitMax = d } }

// Hold sets the maximum number of requests the connection manager will hold
// at once (XEP-0124 "hold").
func Hold(n int) Option { return func(m *Manager) { m.hold = n } }

// Polling sets the shortest allowable interval between two requests
// (XEP-0124 "polling").
func Polling(d time.Duration) Option { return func(m *Manager) { m.polling = d } }

// Inactivity sets the longest allowable period with no client requests
// before the connection manager considers the session dead.
func Inactivity(d time.Duration) Option { return func(m *Manager) { m.inactivity = d } }

// body is the XEP-0124 <body/> wrapper element, both for requests (only the
// fields clients send are populated) and responses.
type body struct {
	XMLName  xml.Name `xml:"http://jabber.org/protocol/httpbind body"`
	Sid      string   `xml:"sid,attr,omitempty"`
	Rid      uint64   `xml:"rid,attr,omitempty"`
	To       string   `xml:"to,attr,omitempty"`
	From     string   `xml:"from,attr,omitempty"`
	Lang     string   `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Ver      string   `xml:"ver,attr,omitempty"`
	Wait     int      `xml:"wait,attr,omitempty"`
	Hold     int      `xml:"hold,attr,omitempty"`
	Requests int      `xml:"requests,attr,omitempty"`
	Type     string   `xml:"type,attr,omitempty"`
	Ack      uint64   `xml:"ack,attr,omitempty"`
	Inner    []byte   `xml:",innerxml"`
}

// ServeHTTP implements the BOSH connection manager endpoint. It accepts only
// POST requests carrying a single <body/> element, per XEP-0124 §5.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "bosh: only POST is supported", http.StatusMethodNotAllowed)
		return
	}
	var req body
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bosh: malformed body element", http.StatusBadRequest)
		return
	}

	var (
		sess *boshSession
		err  error
	)
	if req.Sid == "" {
		sess, err = m.create(r.Context(), req)
	} else {
		sess, err = m.lookup(req.Sid)
	}
	if err != nil {
		writeTerminate(w, "item-not-found")
		return
	}

	resp, err := sess.handle(r.Context(), req)
	if err != nil {
		writeTerminate(w, "item-not-found")
		m.remove(sess.sid)
		return
	}
	if resp.Type == "terminate" {
		m.remove(sess.sid)
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	if err := xml.NewEncoder(w).Encode(resp); err != nil {
		return
	}
}

func writeTerminate(w http.ResponseWriter, condition string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	fmt.Fprintf(w, `<body xmlns=%q type="terminate" condition=%q/>`, NS, condition)
}

func (m *Manager) create(ctx context.Context, req body) (*boshSession, error) {
	if req.To == "" {
		return nil, errors.New("bosh: session creation request missing 'to'")
	}
	to, err := jid.Parse(req.To)
	if err != nil {
		return nil, err
	}
	if to.Domainpart() != m.domain.Domainpart() {
		return nil, fmt.Errorf("bosh: %q does not serve domain %q", m.domain, req.To)
	}
	sess, err := newBoshSession(ctx, to, m.features(), m.handler, m.waitMax, m.hold, m.inactivity)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[sess.sid] = sess
	m.mu.Unlock()
	return sess, nil
}

func (m *Manager) lookup(sid string) (*boshSession, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sid]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("bosh: unknown sid %q", sid)
	}
	return sess, nil
}

func (m *Manager) remove(sid string) {
	m.mu.Lock()
	sess, ok := m.sessions[sid]
	delete(m.sessions, sid)
	m.mu.Unlock()
	if ok {
		sess.close()
	}
}

// boshSession bridges one BOSH sid to one *xmpp.Session running over a
// net.Pipe. mu guards the rid and held-request bookkeeping; it is released
// before a request's req.Inner is written into the pipe, so that write is
// not serialized by mu. Outbound stanzas accumulate on outbox until some
// held request drains them.
type boshSession struct {
	sid        string
	local      net.Conn // our end of the pipe; the *xmpp.Session owns the other end
	session    *xmpp.Session
	waitMax    time.Duration
	hold       int
	inactivity time.Duration

	mu       sync.Mutex
	rid      uint64
	lastSeen time.Time
	held     int
	waiters  []chan struct{} // one per currently suspended request, oldest first

	outbox chan []byte
	done   chan struct{}
	closed bool
}

// registerWaiter enqueues a new suspended request's wake channel. Per
// XEP-0124 §4.9/§8, a connection manager must never have more than hold+1
// requests suspended at once; if admitting this one would break that
// invariant, the oldest suspended request is woken immediately so it can
// return an empty <body/> and free its slot, draining oldest-first.
func (s *boshSession) registerWaiter() chan struct{} {
	wake := make(chan struct{}, 1)
	s.mu.Lock()
	if len(s.waiters) > s.hold {
		oldest := s.waiters[0]
		s.waiters = s.waiters[1:]
		select {
		case oldest <- struct{}{}:
		default:
		}
	}
	s.waiters = append(s.waiters, wake)
	s.mu.Unlock()
	return wake
}

func (s *boshSession) unregisterWaiter(wake chan struct{}) {
	s.mu.Lock()
	for i, w := range s.waiters {
		if w == wake {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

func newBoshSession(ctx context.Context, to jid.JID, features []xmpp.StreamFeature, handler xmpp.Handler, waitMax time.Duration, hold int, inactivity time.Duration) (*boshSession, error) {
	local, remote := net.Pipe()
	sess := &boshSession{
		sid:        internal.RandomID(internal.IDLen),
		local:      local,
		waitMax:    waitMax,
		hold:       hold,
		inactivity: inactivity,
		lastSeen:   time.Now(),
		outbox:     make(chan []byte, hold+1),
		done:       make(chan struct{}),
	}

	session, err := xmpp.NewServerSession(ctx, &to, nil, "", remote, features...)
	if err != nil {
		local.Close()
		remote.Close()
		return nil, err
	}
	sess.session = session

	go sess.pump()
	go func() {
		defer close(sess.done)
		_ = session.Serve(handler)
	}()
	return sess, nil
}

// pump continuously decodes top-level elements written by the *xmpp.Session
// into local and forwards their serialized bytes to outbox, the same
// xmlstream.Inner/Copy idiom the rest of the tree uses to stream a single
// child element without buffering the whole document.
func (s *boshSession) pump() {
	d := xml.NewDecoder(s.local)
	for {
		tok, err := d.Token()
		if err != nil {
			return
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Space == ns.Stream && start.Name.Local == "stream" {
			// The synthetic stream-open response; its attributes were already
			// surfaced via session.StreamID, nothing to relay to a client body.
			continue
		}
		var buf bytes.Buffer
		enc := xml.NewEncoder(&buf)
		if _, err := xmlstream.Copy(enc, xmlstream.Wrap(xmlstream.Inner(d), start)); err != nil {
			return
		}
		if err := enc.Flush(); err != nil {
			return
		}
		select {
		case s.outbox <- buf.Bytes():
		case <-s.done:
			return
		}
	}
}

// handle processes one HTTP request against this BOSH session: it writes
// req's payload to the underlying stream, then waits up to waitMax for at
// least one stanza to relay back (opportunistically batching a few more
// with a short follow-up drain), and returns the <body/> to write back.
func (s *boshSession) handle(ctx context.Context, req body) (body, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return body{}, errors.New("bosh: session closed")
	}
	if req.Rid != 0 && s.rid != 0 && req.Rid != s.rid+1 {
		s.mu.Unlock()
		return body{}, fmt.Errorf("bosh: out of order rid: got %d, want %d", req.Rid, s.rid+1)
	}
	s.rid = req.Rid
	s.lastSeen = time.Now()
	s.held++
	defer func() {
		s.mu.Lock()
		s.held--
		s.mu.Unlock()
	}()
	s.mu.Unlock()

	if req.Type == "terminate" {
		s.close()
		return body{Sid: s.sid, Type: "terminate"}, nil
	}

	isCreate := len(req.Inner) == 0 && req.To != ""
	if isCreate {
		// Session-creation request: synthesize the stream-open tag the
		// *xmpp.Session is waiting to read as the receiving entity.
		if _, err := fmt.Fprintf(s.local,
			`<?xml version='1.0'?><stream:stream to=%q xmlns=%q xmlns:stream=%q version='1.0'>`,
			req.To, ns.Client, ns.Stream,
		); err != nil {
			return body{}, err
		}
	} else if len(req.Inner) > 0 {
		if _, err := s.local.Write(req.Inner); err != nil {
			return body{}, err
		}
	}

	resp := body{Sid: s.sid, Wait: int(s.waitMax / time.Second), Hold: s.hold}
	if isCreate && s.hold >= 2 {
		// Parameters are negotiated: a hold greater than one only works if the
		// client is allowed to keep that many requests outstanding at once.
		resp.Requests = s.hold + 1
	}

	wake := s.registerWaiter()
	defer s.unregisterWaiter(wake)

	var payload bytes.Buffer
	deadline := time.Now().Add(s.waitMax)
	for {
		select {
		case chunk := <-s.outbox:
			payload.Write(chunk)
		case <-wake:
			// Evicted: this request was the oldest of more than hold+1
			// suspended at once. Return immediately with whatever had already
			// arrived, or an empty body if nothing had.
			resp.Inner = payload.Bytes()
			return resp, nil
		case <-time.After(timeUntil(deadline)):
			resp.Inner = payload.Bytes()
			return resp, nil
		case <-ctx.Done():
			resp.Inner = payload.Bytes()
			return resp, ctx.Err()
		case <-s.done:
			resp.Type = "terminate"
			resp.Inner = payload.Bytes()
			return resp, nil
		}
		if payload.Len() > 0 {
			// Opportunistically batch a few more already-queued stanzas before
			// flushing this response, without holding the request open for the
			// full wait interval once something has arrived.
			select {
			case chunk := <-s.outbox:
				payload.Write(chunk)
				continue
			case <-time.After(20 * time.Millisecond):
			}
			resp.Inner = payload.Bytes()
			return resp, nil
		}
	}
}

func (s *boshSession) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.local.Close()
	s.session.Close()
}

func timeUntil(t time.Time) time.Duration {
	d := time.Until(t)
	if d < 0 {
		return 0
	}
	return d
}
