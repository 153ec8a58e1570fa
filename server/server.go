// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package server

import (
	"context"
	"encoding/xml"
	"errors"
	"log"
	"net"

	"greenmantle.im/xmppd"
	"greenmantle.im/xmppd/s2s"
)

// A Server accepts c2s and s2s connections on behalf of a Runtime, spawning
// one goroutine per accepted net.Conn that owns a single *xmpp.Session for
// the lifetime of that connection.
type Server struct {
	options

	rt *Runtime
}

// New returns a Server that accepts connections on behalf of rt.
func New(rt *Runtime, opts ...Option) *Server {
	return &Server{
		options: getOpts(opts...),
		rt:      rt,
	}
}

// ListenAndServe listens for both c2s and s2s connections (on ClientAddr and
// S2SAddr respectively, defaulting to ":5222" and ":5269") and blocks,
// serving both until one of the listeners returns a fatal error.
func (srv *Server) ListenAndServe() error {
	clientAddr := srv.clientAddr
	if clientAddr == "" {
		clientAddr = ":5222"
	}
	s2sAddr := srv.s2sAddr
	if s2sAddr == "" {
		s2sAddr = ":5269"
	}

	cln, err := net.Listen("tcp", clientAddr)
	if err != nil {
		return err
	}
	sln, err := net.Listen("tcp", s2sAddr)
	if err != nil {
		cln.Close()
		return err
	}

	errc := make(chan error, 2)
	go func() { errc <- srv.Serve(cln) }()
	go func() { errc <- srv.ServeS2S(sln) }()
	return <-errc
}

// Serve accepts incoming c2s connections on l, spawning a new goroutine to
// negotiate and serve each.
func (srv *Server) Serve(l net.Listener) error {
	defer l.Close()
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			srv.logger().Printf("server: c2s accept error: %v", err)
			continue
		}
		go srv.serveC2S(conn)
	}
}

// ServeS2S accepts incoming s2s connections on l, spawning a new goroutine
// to negotiate and serve each.
func (srv *Server) ServeS2S(l net.Listener) error {
	defer l.Close()
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			srv.logger().Printf("server: s2s accept error: %v", err)
			continue
		}
		go srv.serveS2S(conn)
	}
}

func (srv *Server) logger() *log.Logger {
	if srv.options.logger != nil {
		return srv.options.logger
	}
	return log.Default()
}

func (srv *Server) serveC2S(conn net.Conn) {
	defer conn.Close()
	ctx := context.Background()
	session, err := xmpp.NewServerSession(ctx, srv.rt.Domain, nil, "", conn, srv.rt.c2sFeatures()...)
	if err != nil {
		srv.logger().Printf("server: c2s negotiation with %s failed: %v", conn.RemoteAddr(), err)
		return
	}
	defer func() {
		if full := session.RemoteAddr(); full != nil {
			srv.rt.Table().Unbind(full)
		}
	}()
	if err := session.Serve(muxHandler{mux: srv.rt.mux()}); err != nil {
		srv.logger().Printf("server: c2s session with %s ended: %v", conn.RemoteAddr(), err)
	}
}

func (srv *Server) serveS2S(conn net.Conn) {
	defer conn.Close()
	ctx := context.Background()
	session, err := xmpp.NewServerSession(ctx, srv.rt.Domain, nil, "", conn, srv.rt.s2sFeatures()...)
	if err != nil {
		srv.logger().Printf("server: s2s negotiation with %s failed: %v", conn.RemoteAddr(), err)
		return
	}
	h := s2sHandler{rt: srv.rt, session: session}
	if err := session.Serve(h); err != nil {
		srv.logger().Printf("server: s2s session with %s ended: %v", conn.RemoteAddr(), err)
	}
}

// s2sHandler intercepts Server Dialback db:result requests (which arrive as
// a top-level stanza after stream feature negotiation, not as a feature
// themselves) before falling back to the shared module registry for
// everything else.
type s2sHandler struct {
	rt      *Runtime
	session *xmpp.Session
}

func (h s2sHandler) HandleXMPP(t xmpp.TokenReadWriter, start *xml.StartElement) error {
	if start.Name.Space == s2s.NSDialback && start.Name.Local == "result" {
		return s2s.Accept(context.Background(), h.session, *start, h.rt.dialbackVerifier())
	}
	return muxHandler{mux: h.rt.mux()}.HandleXMPP(t, start)
}
